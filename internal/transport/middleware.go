package transport

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mzizi/muundo/internal/config"
	"github.com/mzizi/muundo/internal/observability"
	"github.com/mzizi/muundo/internal/runtime"
	"github.com/mzizi/muundo/model"
)

// Context key for middleware-injected claims.
type claimsKey struct{}

// WithClaims stores JWT claims in the context. Used by the auth middleware.
func WithClaims(ctx context.Context, claims map[string]any) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFrom extracts JWT claims from the context.
func ClaimsFrom(ctx context.Context) map[string]any {
	claims, _ := ctx.Value(claimsKey{}).(map[string]any)
	return claims
}

// Recovery catches panics in downstream handlers, logs them, and returns
// a 500 JSON error response.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path))
					WriteError(w, model.NewInternalError())
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS returns middleware that handles Cross-Origin Resource Sharing based
// on the provided configuration.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = true
	}
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	maxAge := fmt.Sprintf("%d", cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && origins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Max-Age", maxAge)
				w.Header().Set("Access-Control-Expose-Headers", "X-Request-Id")
				w.Header().Set("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestID reads X-Request-Id from the request header or generates a new
// one, then stores it in the context and sets the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := model.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SecurityHeaders sets standard security response headers on all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// BuildRuntimeContext snapshots a model.RuntimeContext through the runtime
// aggregator, sourcing USER from verified JWT claims, GEOLOCATION from
// request headers, and FILTER from query parameters, then stores it in the
// request context. Absent sources leave their namespace nil.
func BuildRuntimeContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agg := runtime.NewAggregator(
			claimsUserProvider{},
			headerLocationProvider{r: r},
			queryFilterProvider{r: r},
		)
		ctx := model.WithRuntimeContext(r.Context(), agg.Snapshot(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Per-request providers backing the runtime aggregator.

type claimsUserProvider struct{}

func (claimsUserProvider) CurrentUser(ctx context.Context) *model.UserContext {
	return userFromClaims(ClaimsFrom(ctx))
}

type headerLocationProvider struct{ r *http.Request }

func (p headerLocationProvider) CurrentLocation(context.Context) *model.GeoContext {
	return geoFromHeaders(p.r)
}

type queryFilterProvider struct{ r *http.Request }

func (p queryFilterProvider) CurrentFilter(context.Context) map[string]any {
	return filterFromQuery(p.r)
}

// HandlerTimeout returns middleware that sets a context deadline on requests.
func HandlerTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogging logs each request with method, path, status, and duration.
func RequestLogging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			observability.RequestLogger(r.Context(), logger).Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// --- helpers ---

// statusWriter wraps http.ResponseWriter to capture the written status code.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

func userFromClaims(claims map[string]any) *model.UserContext {
	if claims == nil {
		return nil
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil
	}
	email, _ := claims["email"].(string)
	verified, _ := claims["email_verified"].(bool)
	return &model.UserContext{
		ID:       sub,
		Email:    email,
		Verified: verified,
		Roles:    claimStringSlice(claims, "roles"),
		Claims:   claims,
	}
}

func geoFromHeaders(r *http.Request) *model.GeoContext {
	latStr := r.Header.Get("X-Geo-Latitude")
	lonStr := r.Header.Get("X-Geo-Longitude")
	if latStr == "" || lonStr == "" {
		return nil
	}
	lat, errLat := strconv.ParseFloat(latStr, 64)
	lon, errLon := strconv.ParseFloat(lonStr, 64)
	if errLat != nil || errLon != nil {
		return nil
	}
	geo := &model.GeoContext{Latitude: lat, Longitude: lon}
	if acc, err := strconv.ParseFloat(r.Header.Get("X-Geo-Accuracy"), 64); err == nil {
		geo.Accuracy = acc
	}
	return geo
}

// filterFromQuery extracts filter[key]=value query params into the FILTER
// namespace. No filter params means a nil namespace.
func filterFromQuery(r *http.Request) map[string]any {
	var filter map[string]any
	for key, values := range r.URL.Query() {
		if len(key) > len("filter[") && strings.HasPrefix(key, "filter[") && strings.HasSuffix(key, "]") {
			if filter == nil {
				filter = make(map[string]any)
			}
			field := key[len("filter[") : len(key)-1]
			if len(values) > 0 {
				filter[field] = values[0]
			}
		}
	}
	return filter
}

func claimStringSlice(claims map[string]any, key string) []string {
	raw, ok := claims[key].([]any)
	if !ok {
		return nil
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			result = append(result, s)
		}
	}
	return result
}
