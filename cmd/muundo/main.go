// Package main is the entry point for the muundo structure server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mzizi/muundo/internal/action"
	"github.com/mzizi/muundo/internal/catalog"
	"github.com/mzizi/muundo/internal/config"
	"github.com/mzizi/muundo/internal/interp"
	"github.com/mzizi/muundo/internal/observability"
	"github.com/mzizi/muundo/internal/query"
	"github.com/mzizi/muundo/internal/schema"
	"github.com/mzizi/muundo/internal/transport"
	"github.com/mzizi/muundo/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "muundo", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Load the query catalog from OpenAPI specs.
	cat := catalog.NewCatalog()
	specSources := buildSpecSources(cfg)
	if err := cat.Load(specSources); err != nil {
		logger.Error("catalog load failed", zap.Error(err))
		return 1
	}
	logger.Info("catalog loaded", zap.Int("queries", len(cat.Names())))

	// Step 5: Load and validate the structure document.
	source := schema.NewFileSource(cfg.Document.Path)
	validator := schema.NewValidator()

	doc, err := source.Fetch(ctx)
	if err != nil {
		logger.Error("document load failed", zap.Error(err))
		return 1
	}
	if verrs := validator.Validate(doc); len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("document validation error",
				zap.String("path", ve.Path),
				zap.String("code", ve.Code),
				zap.String("message", ve.Message))
		}
		return 1
	}
	registry := schema.NewRegistry(doc)
	for _, name := range cat.MissingQueries(doc) {
		logger.Warn("document references a query the catalog does not know",
			zap.String("query", name))
	}
	metrics.SetDocumentPagesLoaded(float64(len(doc.Pages)))
	logger.Info("document loaded",
		zap.String("app", doc.Meta.AppName),
		zap.String("checksum", doc.Checksum),
		zap.Int("pages", len(doc.Pages)),
		zap.Int("blocks", len(doc.Blocks)))

	// Step 6: Optional Redis persistence for persist-enabled cache policies.
	persist, redisClient := buildPersistStore(cfg.Cache, logger)

	// Step 7: Query execution stack: HTTP backend, cache engine, scheduler.
	backend := catalog.NewHTTPBackend(cat, backendOptions(cfg.Services), logger)
	engine := query.NewEngine(backend, persist, logger)

	var scheduler *query.PollScheduler
	if cfg.Polling.Enabled {
		scheduler = query.NewPollScheduler(engine, logger)
	}

	// Step 8: Action router and badge resolver.
	actions := action.NewRouter(logger)
	actions.Register(model.SchemeNavigate, action.NewRoutingHandler("push"))
	actions.Register(model.SchemeModal, action.NewRoutingHandler("modal"))
	actions.Register(model.SchemeBottomSheet, action.NewRoutingHandler("bottomsheet"))
	actions.Register(model.SchemeShare, action.NewShareHandler(action.DefaultShareTemplates()))
	actions.Register(model.SchemeConfirm, action.NewConfirmHandler(action.DefaultConfirmDescriptors()))
	actions.Register(model.SchemeAPI, action.NewAPIHandler(backend))
	badges := action.NewBadgeResolver(backend, logger)

	// Step 9: Interpreter and navigation resolver. The component set is the
	// union of component names the initial document declares.
	components := interp.NewMapComponentRegistry()
	for _, b := range doc.Blocks {
		components.Register(b.Component)
	}
	interpreter := interp.New(registry, engine, components, logger)
	if scheduler != nil {
		interpreter.SetPoller(scheduler)
	}
	navigation := interp.NewNavigationResolver(registry, badges)

	// Step 10: Authentication. Identity is optional: without a secret every
	// request is served anonymously and the USER namespace stays nil.
	var authenticate func(http.Handler) http.Handler
	if secret := os.Getenv(cfg.Identity.SecretEnv); secret != "" {
		authenticate = transport.JWTAuthenticator(cfg.Identity, []byte(secret))
	} else {
		logger.Warn("JWT secret not configured, serving unauthenticated",
			zap.String("env", cfg.Identity.SecretEnv))
	}

	// Step 11: HTTP router and server.
	ready := observability.ReadinessChecks{
		DocumentLoaded: func() bool { return len(registry.Document().Pages) > 0 },
		CatalogLoaded: func() bool {
			return len(cat.Names()) > 0 || len(specSources) == 0
		},
	}
	if redisClient != nil {
		ready.CacheStore = redisChecker{client: redisClient}
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		Interpreter:  interpreter,
		Navigation:   navigation,
		Registry:     registry,
		Validator:    validator,
		Source:       source,
		Actions:      actions,
		Badges:       badges,
		Scheduler:    scheduler,
		Engine:       engine,
		Authenticate: authenticate,
		Ready:        ready,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 12: Start HTTP server and wait for shutdown.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if scheduler != nil {
		scheduler.StopAll()
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", zap.Error(err))
		}
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildSpecSources converts config spec sources to catalog.SpecSource,
// resolving relative paths against the specs directory and attaching each
// service's base URL.
func buildSpecSources(cfg *config.Config) []catalog.SpecSource {
	sources := make([]catalog.SpecSource, len(cfg.Specs.Sources))
	for i, s := range cfg.Specs.Sources {
		specPath := s.SpecFile
		if cfg.Specs.Directory != "" && !filepath.IsAbs(specPath) {
			specPath = filepath.Join(cfg.Specs.Directory, specPath)
		}
		sources[i] = catalog.SpecSource{
			ServiceID: s.ServiceID,
			BaseURL:   cfg.Services[s.ServiceID].BaseURL,
			SpecPath:  specPath,
		}
	}
	return sources
}

// backendOptions derives HTTP backend options from the service configs.
// The backend carries one option set; the first configured service (by
// sorted ID) wins when services disagree.
func backendOptions(services map[string]config.ServiceConfig) catalog.BackendOptions {
	ids := make([]string, 0, len(services))
	for id := range services {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	opts := catalog.BackendOptions{}
	if len(ids) > 0 {
		svc := services[ids[0]]
		opts.Timeout = svc.Timeout
		opts.FailureThreshold = svc.CircuitBreaker.FailureThreshold
		opts.SuccessThreshold = svc.CircuitBreaker.SuccessThreshold
		opts.BreakerCooldown = svc.CircuitBreaker.Cooldown
	}
	return opts
}

// buildPersistStore picks the cache persistence backend. Without a Redis
// address the engine keeps a process-local store.
func buildPersistStore(cfg config.CacheConfig, logger *zap.Logger) (model.KVStore, *redis.Client) {
	addr := ""
	if cfg.AddrEnv != "" {
		addr = os.Getenv(cfg.AddrEnv)
	}
	if addr == "" {
		logger.Info("using in-memory cache persistence")
		return query.NewMemoryKVStore(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
	logger.Info("using redis cache persistence", zap.String("addr", addr))
	return query.NewRedisKVStore(client), client
}

// redisChecker adapts a redis client to the readiness HealthChecker.
type redisChecker struct {
	client *redis.Client
}

func (r redisChecker) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
