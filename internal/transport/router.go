package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mzizi/muundo/internal/action"
	"github.com/mzizi/muundo/internal/config"
	"github.com/mzizi/muundo/internal/interp"
	"github.com/mzizi/muundo/internal/observability"
	"github.com/mzizi/muundo/internal/query"
	"github.com/mzizi/muundo/internal/schema"
	"github.com/mzizi/muundo/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Interpreter *interp.Interpreter
	Navigation  *interp.NavigationResolver
	Registry    *schema.Registry
	Validator   *schema.Validator
	Source      model.DocumentSource
	Actions     *action.Router
	Badges      *action.BadgeResolver
	Scheduler   *query.PollScheduler
	Engine      *query.Engine

	// Authenticate verifies bearer tokens on the UI routes. Nil means every
	// request is served anonymously with no USER namespace.
	Authenticate func(http.Handler) http.Handler

	Ready observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to all routes including health.
	r.Use(Recovery(deps.Logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if deps.Config.Observability.Tracing.Enabled {
		r.Use(observability.TracingMiddleware)
	}
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	// Public routes, bypass authentication.
	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Ready))
	if deps.Config.Observability.Metrics.Enabled {
		r.Handle(deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	// Authenticated routes, full middleware chain.
	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRuntimeContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(deps.Logger))
		r.Use(noteActivity(deps.Scheduler))

		r.Get("/ui/structure", handleGetStructure(deps.Interpreter))
		r.Post("/ui/structure/reload", handleReloadDocument(deps))
		r.Get("/ui/navigation", handleGetNavigation(deps.Navigation))
		r.Get("/ui/pages/{pageId}", handleGetPage(deps.Interpreter))
		r.Get("/ui/badges", handleGetBadge(deps.Badges, deps.Metrics))
		r.Post("/ui/actions", handleDispatchAction(deps.Actions, deps.Metrics))
		r.Post("/ui/session/state", handleSessionState(deps.Scheduler, deps.Engine, deps.Logger))
	})

	return r
}

// noteActivity records every authenticated request as user activity so the
// adaptive poll cadence can react.
func noteActivity(scheduler *query.PollScheduler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if scheduler == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheduler.NoteActivity(time.Now())
			next.ServeHTTP(w, r)
		})
	}
}
