package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockBackend is a configurable HTTP test server that simulates a backend
// service. It allows configuring per-query responses and records all
// received requests for later assertion.
type MockBackend struct {
	t         *testing.T
	serviceID string
	server    *httptest.Server

	mu            sync.RWMutex
	queries       map[string]*queryConfig
	receivedByKey map[string][]*RecordedRequest
}

// RecordedRequest captures the details of a request received by the mock backend.
type RecordedRequest struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Headers     http.Header
	Body        map[string]any
	RawBody     []byte
	ReceivedAt  time.Time
}

// queryConfig holds the configured responses for a single query.
type queryConfig struct {
	mu        sync.Mutex
	responses []*mockResponse
	current   int
}

type mockResponse struct {
	status    int
	body      any
	delay     time.Duration
	connError bool
}

// QueryMock is a builder for configuring mock responses for a named query.
type QueryMock struct {
	backend *MockBackend
	query   string
}

// queryRoute maps a catalog query name to its HTTP method and path pattern.
type queryRoute struct {
	method      string
	pathPattern string
}

// DefaultPlacesRoutes returns the routes for the places-svc test OpenAPI
// spec. Kept in sync with placesSpec by hand so the harness stays light.
func DefaultPlacesRoutes() map[string]queryRoute {
	return map[string]queryRoute{
		"listPlaces":          {method: "GET", pathPattern: "/v1/places"},
		"getPlace":            {method: "GET", pathPattern: "/v1/places/{placeId}"},
		"listEvents":          {method: "GET", pathPattern: "/v1/events"},
		"unreadNotifications": {method: "GET", pathPattern: "/v1/notifications/unread"},
	}
}

// newMockBackend creates a new mock backend and starts the HTTP test server.
func newMockBackend(t *testing.T, serviceID string, routes map[string]queryRoute) *MockBackend {
	t.Helper()

	mb := &MockBackend{
		t:             t,
		serviceID:     serviceID,
		queries:       make(map[string]*queryConfig),
		receivedByKey: make(map[string][]*RecordedRequest),
	}

	mux := http.NewServeMux()
	for query, route := range routes {
		pattern := route.method + " " + route.pathPattern
		mux.HandleFunc(pattern, mb.handleQuery(query))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error": fmt.Sprintf("mock: no query registered for %s %s", r.Method, r.URL.Path),
		})
	})

	mb.server = httptest.NewServer(mux)
	t.Cleanup(mb.server.Close)

	return mb
}

// URL returns the base URL of the mock backend server.
func (mb *MockBackend) URL() string {
	return mb.server.URL
}

// OnQuery returns a builder for configuring responses for the named query.
func (mb *MockBackend) OnQuery(query string) *QueryMock {
	return &QueryMock{backend: mb, query: query}
}

// RespondWith configures the query to respond with the given status and body.
func (qm *QueryMock) RespondWith(status int, body any) *QueryMock {
	qm.backend.addResponse(qm.query, &mockResponse{status: status, body: body})
	return qm
}

// RespondWithError configures the query to respond with an error body.
func (qm *QueryMock) RespondWithError(status int, code, message string) *QueryMock {
	qm.backend.addResponse(qm.query, &mockResponse{
		status: status,
		body:   map[string]any{"code": code, "message": message},
	})
	return qm
}

// RespondWithDelay configures a delayed response to simulate a slow backend.
func (qm *QueryMock) RespondWithDelay(delay time.Duration, status int, body any) *QueryMock {
	qm.backend.addResponse(qm.query, &mockResponse{status: status, body: body, delay: delay})
	return qm
}

// RespondWithConnectionError configures the query to close the connection
// to simulate a backend failure.
func (qm *QueryMock) RespondWithConnectionError() *QueryMock {
	qm.backend.addResponse(qm.query, &mockResponse{connError: true})
	return qm
}

func (mb *MockBackend) addResponse(query string, resp *mockResponse) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	cfg, ok := mb.queries[query]
	if !ok {
		cfg = &queryConfig{}
		mb.queries[query] = cfg
	}
	cfg.responses = append(cfg.responses, resp)
}

func (mb *MockBackend) handleQuery(query string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &RecordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			QueryParams: make(map[string]string),
			Headers:     r.Header.Clone(),
			ReceivedAt:  time.Now(),
		}
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				rec.QueryParams[key] = values[0]
			}
		}
		if r.Body != nil {
			body, _ := io.ReadAll(r.Body)
			rec.RawBody = body
			if len(body) > 0 {
				var parsed map[string]any
				if err := json.Unmarshal(body, &parsed); err == nil {
					rec.Body = parsed
				}
			}
		}

		mb.mu.Lock()
		mb.receivedByKey[query] = append(mb.receivedByKey[query], rec)
		mb.mu.Unlock()

		resp := mb.getNextResponse(query)
		if resp == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			return
		}

		if resp.connError {
			// Hijack the connection and close it to simulate a connection
			// error.
			if hj, ok := w.(http.Hijacker); ok {
				conn, _, _ := hj.Hijack()
				if conn != nil {
					conn.Close()
				}
			}
			return
		}

		if resp.delay > 0 {
			time.Sleep(resp.delay)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		if resp.body != nil {
			json.NewEncoder(w).Encode(resp.body)
		}
	}
}

func (mb *MockBackend) getNextResponse(query string) *mockResponse {
	mb.mu.RLock()
	cfg, ok := mb.queries[query]
	mb.mu.RUnlock()
	if !ok || cfg == nil {
		return nil
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	if len(cfg.responses) == 0 {
		return nil
	}

	idx := cfg.current
	if idx >= len(cfg.responses) {
		// Repeat the last response for subsequent calls.
		idx = len(cfg.responses) - 1
	} else {
		cfg.current++
	}
	return cfg.responses[idx]
}

// AssertCalled verifies that the query was hit the expected number of times.
func (mb *MockBackend) AssertCalled(t *testing.T, query string, expectedCount int) {
	t.Helper()
	mb.mu.RLock()
	actual := len(mb.receivedByKey[query])
	mb.mu.RUnlock()
	if actual != expectedCount {
		t.Errorf("mock %s: query %q called %d times, want %d", mb.serviceID, query, actual, expectedCount)
	}
}

// AssertNotCalled verifies that the query was never hit.
func (mb *MockBackend) AssertNotCalled(t *testing.T, query string) {
	t.Helper()
	mb.AssertCalled(t, query, 0)
}

// LastRequest returns the last request received for the given query.
// Returns nil if no requests were recorded.
func (mb *MockBackend) LastRequest(query string) *RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	reqs := mb.receivedByKey[query]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// AllRequests returns all requests received for the given query.
func (mb *MockBackend) AllRequests(query string) []*RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	reqs := mb.receivedByKey[query]
	copied := make([]*RecordedRequest, len(reqs))
	copy(copied, reqs)
	return copied
}

// Reset clears all recorded requests and configured responses.
func (mb *MockBackend) Reset() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.queries = make(map[string]*queryConfig)
	mb.receivedByKey = make(map[string][]*RecordedRequest)
}
