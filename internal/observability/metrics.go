package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
)

// Metrics holds all Prometheus metric instruments for the engine.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Query metrics
	QueryExecutionsTotal *prometheus.CounterVec
	QueryDuration        *prometheus.HistogramVec
	QueryCacheHitsTotal  *prometheus.CounterVec
	QueryCacheMissesTotal *prometheus.CounterVec
	QueryStaleServesTotal *prometheus.CounterVec

	// Poll scheduler metrics
	PollTasksActive prometheus.Gauge
	PollTicksTotal  *prometheus.CounterVec

	// Backend invocation metrics
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState *prometheus.GaugeVec

	// Document metrics
	DocumentReloadTotal *prometheus.CounterVec
	DocumentPagesLoaded prometheus.Gauge

	// Action metrics
	ActionDispatchesTotal *prometheus.CounterVec
	BadgeResolutionsTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "muundo_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "muundo_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		// Queries
		QueryExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "muundo_query_executions_total",
			Help: "Total number of query executions.",
		}, []string{"query", "status"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "muundo_query_duration_seconds",
			Help:    "Query execution duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"query"}),
		QueryCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "muundo_query_cache_hits_total",
			Help: "Total query cache hits.",
		}, []string{"query"}),
		QueryCacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "muundo_query_cache_misses_total",
			Help: "Total query cache misses.",
		}, []string{"query"}),
		QueryStaleServesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "muundo_query_stale_serves_total",
			Help: "Total stale cache entries served after a fetch failure.",
		}, []string{"query"}),

		// Polling
		PollTasksActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "muundo_poll_tasks_active",
			Help: "Number of active poll tasks.",
		}),
		PollTicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "muundo_poll_ticks_total",
			Help: "Total poll ticks executed.",
		}, []string{"query"}),

		// Backend
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "muundo_backend_requests_total",
			Help: "Total number of backend service requests.",
		}, []string{"service_id", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "muundo_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"service_id"}),
		BackendCircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "muundo_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"service_id"}),

		// Document
		DocumentReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "muundo_document_reload_total",
			Help: "Total structure document reloads.",
		}, []string{"status"}),
		DocumentPagesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "muundo_document_pages_loaded",
			Help: "Number of pages in the active structure document.",
		}),

		// Actions
		ActionDispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "muundo_action_dispatches_total",
			Help: "Total action dispatches.",
		}, []string{"scheme", "handled"}),
		BadgeResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "muundo_badge_resolutions_total",
			Help: "Total badge count resolutions.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		// Queries
		m.QueryExecutionsTotal,
		m.QueryDuration,
		m.QueryCacheHitsTotal,
		m.QueryCacheMissesTotal,
		m.QueryStaleServesTotal,
		// Polling
		m.PollTasksActive,
		m.PollTicksTotal,
		// Backend
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		// Document
		m.DocumentReloadTotal,
		m.DocumentPagesLoaded,
		// Actions
		m.ActionDispatchesTotal,
		m.BadgeResolutionsTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// RecordQueryExecution records a query execution with its outcome.
func (m *Metrics) RecordQueryExecution(query, status string, duration time.Duration) {
	m.QueryExecutionsTotal.WithLabelValues(query, status).Inc()
	m.QueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// RecordQueryCacheHit records a query cache hit.
func (m *Metrics) RecordQueryCacheHit(query string) {
	m.QueryCacheHitsTotal.WithLabelValues(query).Inc()
}

// RecordQueryCacheMiss records a query cache miss.
func (m *Metrics) RecordQueryCacheMiss(query string) {
	m.QueryCacheMissesTotal.WithLabelValues(query).Inc()
}

// RecordQueryStaleServe records a stale entry served after a fetch failure.
func (m *Metrics) RecordQueryStaleServe(query string) {
	m.QueryStaleServesTotal.WithLabelValues(query).Inc()
}

// RecordPollStart records a poll task starting.
func (m *Metrics) RecordPollStart() {
	m.PollTasksActive.Inc()
}

// RecordPollStop records a poll task stopping.
func (m *Metrics) RecordPollStop() {
	m.PollTasksActive.Dec()
}

// RecordPollTick records one poll tick for a query.
func (m *Metrics) RecordPollTick(query string) {
	m.PollTicksTotal.WithLabelValues(query).Inc()
}

// RecordBackendRequest records a backend service request.
func (m *Metrics) RecordBackendRequest(serviceID string, status int, duration time.Duration) {
	m.BackendRequestsTotal.WithLabelValues(serviceID, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(serviceID).Observe(duration.Seconds())
}

// SetBackendCircuitBreakerState sets the circuit breaker state for a service.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetBackendCircuitBreakerState(serviceID string, state float64) {
	m.BackendCircuitBreakerState.WithLabelValues(serviceID).Set(state)
}

// RecordDocumentReload records a document reload attempt.
func (m *Metrics) RecordDocumentReload(status string) {
	m.DocumentReloadTotal.WithLabelValues(status).Inc()
}

// SetDocumentPagesLoaded sets the page count of the active document.
func (m *Metrics) SetDocumentPagesLoaded(count float64) {
	m.DocumentPagesLoaded.Set(count)
}

// RecordActionDispatch records an action dispatch.
func (m *Metrics) RecordActionDispatch(scheme string, handled bool) {
	m.ActionDispatchesTotal.WithLabelValues(scheme, strconv.FormatBool(handled)).Inc()
}

// RecordBadgeResolution records a badge resolution outcome.
func (m *Metrics) RecordBadgeResolution(status string) {
	m.BadgeResolutionsTotal.WithLabelValues(status).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start))
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
