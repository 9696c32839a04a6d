// Package integration provides a reusable test harness for end-to-end
// testing of the muundo structure server. It starts a full HTTP server with
// a mock backend service, an in-memory cache store, and a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
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

// placesSpec is the OpenAPI spec for the places-svc mock backend. The
// catalog indexes its operationIds as query names.
const placesSpec = `openapi: 3.0.3
info:
  title: Places Service
  version: 1.0.0
paths:
  /v1/places:
    get:
      operationId: listPlaces
      responses:
        "200":
          description: OK
  /v1/places/{placeId}:
    get:
      operationId: getPlace
      parameters:
        - name: placeId
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: OK
  /v1/events:
    get:
      operationId: listEvents
      responses:
        "200":
          description: OK
  /v1/notifications/unread:
    get:
      operationId: unreadNotifications
      responses:
        "200":
          description: OK
`

// defaultDocument is the structure document the harness loads unless a test
// overrides it.
const defaultDocument = `version: "1.0"
meta:
  app_name: muundo-demo
  default_page: home
blocks:
  - id: places-list
    component: PlaceList
    props:
      style: card
  - id: place-card
    component: PlaceCard
  - id: events-strip
    component: EventStrip
  - id: verified-banner
    component: Banner
pages:
  - id: home
    title: Home
    screen: main
    sections:
      - id: nearby
        building_block_id: places-list
        data_source:
          query_name: listPlaces
          params:
            lat: "$$GEOLOCATION.LATITUDE"
            lng: "$$GEOLOCATION.LONGITUDE"
          required: ["lat", "lng"]
      - id: events
        building_block_id: events-strip
        data_source:
          query_name: listEvents
          cache_policy:
            strategy: static
      - id: verified
        building_block_id: verified-banner
        condition: "user.verified"
  - id: detail
    title: Place
    screen: main
    sections:
      - id: place
        building_block_id: place-card
        data_source:
          query_name: getPlace
          params:
            placeId: "$$FILTER.place_id"
          required: ["placeId"]
          cache_policy:
            strategy: onLoad
            staleness_ms: 60000
navigation:
  - id: nav-home
    label: Home
    icon: home
    page_id: home
    order: 1
    visible: true
    badge_source: "api://unreadNotifications"
  - id: nav-places
    label: Places
    page_id: detail
    order: 2
    visible: true
`

// TestHarness encapsulates a fully wired server instance with a mock
// backend for integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Catalog   *catalog.Catalog
	Registry  *schema.Registry
	Engine    *query.Engine
	Scheduler *query.PollScheduler
	Backend   *MockBackend

	documentPath string
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	document       string
	backendOpts    catalog.BackendOptions
	handlerTimeout time.Duration
}

// WithDocument replaces the default structure document with the given YAML.
func WithDocument(yaml string) HarnessOption {
	return func(c *harnessConfig) {
		c.document = yaml
	}
}

// WithBackendOptions overrides the HTTP backend's timeout and circuit
// breaker settings.
func WithBackendOptions(opts catalog.BackendOptions) HarnessOption {
	return func(c *harnessConfig) {
		c.backendOpts = opts
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// NewTestHarness creates and starts a full server instance. The server and
// the mock backend are cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		document:       defaultDocument,
		handlerTimeout: 10 * time.Second,
		backendOpts: catalog.BackendOptions{
			Timeout:          5 * time.Second,
			FailureThreshold: 10,
			SuccessThreshold: 1,
			BreakerCooldown:  time.Minute,
		},
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{
		t:      t,
		issuer: newTokenIssuer(),
	}
	logger := zap.NewNop()

	// Step 1: Start the mock backend and index its spec into the catalog.
	h.Backend = newMockBackend(t, "places-svc", DefaultPlacesRoutes())

	tmpDir := t.TempDir()
	specPath := filepath.Join(tmpDir, "places-svc.yaml")
	if err := os.WriteFile(specPath, []byte(placesSpec), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}

	h.Catalog = catalog.NewCatalog()
	err := h.Catalog.Load([]catalog.SpecSource{{
		ServiceID: "places-svc",
		BaseURL:   h.Backend.URL(),
		SpecPath:  specPath,
	}})
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	// Step 2: Load and validate the structure document from a temp file so
	// reload tests can rewrite it.
	h.documentPath = filepath.Join(tmpDir, "structure.yaml")
	if err := os.WriteFile(h.documentPath, []byte(hc.document), 0o644); err != nil {
		t.Fatalf("write document: %v", err)
	}

	source := schema.NewFileSource(h.documentPath)
	validator := schema.NewValidator()
	doc, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch document: %v", err)
	}
	if verrs := validator.Validate(doc); len(verrs) > 0 {
		t.Fatalf("document fixture invalid: %v", verrs)
	}
	h.Registry = schema.NewRegistry(doc)

	// Step 3: Query execution stack over the mock backend.
	backend := catalog.NewHTTPBackend(h.Catalog, hc.backendOpts, logger)
	h.Engine = query.NewEngine(backend, query.NewMemoryKVStore(), logger)
	h.Scheduler = query.NewPollScheduler(h.Engine, logger)

	// Step 4: Action router, badges, interpreter, navigation.
	actions := action.NewRouter(logger)
	actions.Register(model.SchemeNavigate, action.NewRoutingHandler("push"))
	actions.Register(model.SchemeModal, action.NewRoutingHandler("modal"))
	actions.Register(model.SchemeBottomSheet, action.NewRoutingHandler("bottomsheet"))
	actions.Register(model.SchemeShare, action.NewShareHandler(action.DefaultShareTemplates()))
	actions.Register(model.SchemeConfirm, action.NewConfirmHandler(action.DefaultConfirmDescriptors()))
	actions.Register(model.SchemeAPI, action.NewAPIHandler(backend))
	badges := action.NewBadgeResolver(backend, logger)

	components := interp.NewMapComponentRegistry()
	for _, b := range doc.Blocks {
		components.Register(b.Component)
	}
	interpreter := interp.New(h.Registry, h.Engine, components, logger)
	interpreter.SetPoller(h.Scheduler)
	navigation := interp.NewNavigationResolver(h.Registry, badges)

	// Step 5: Config and router with the full middleware chain.
	cfg := config.Defaults()
	cfg.Identity.Issuer = h.issuer.Issuer()
	cfg.Identity.Audience = h.issuer.Audience()
	cfg.Server.HandlerTimeout = hc.handlerTimeout
	cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.Observability.Tracing.Enabled = false
	cfg.Observability.Metrics.Enabled = false

	metrics := observability.InitMetrics(prometheus.NewRegistry())

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		Interpreter:  interpreter,
		Navigation:   navigation,
		Registry:     h.Registry,
		Validator:    validator,
		Source:       source,
		Actions:      actions,
		Badges:       badges,
		Scheduler:    h.Scheduler,
		Engine:       h.Engine,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, h.issuer.Secret()),
		Ready: observability.ReadinessChecks{
			DocumentLoaded: func() bool { return len(h.Registry.Document().Pages) > 0 },
			CatalogLoaded:  func() bool { return len(h.Catalog.Names()) > 0 },
		},
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.Scheduler.StopAll()
		h.server.Close()
	})

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// RewriteDocument replaces the structure document file on disk. The change
// takes effect after POST /ui/structure/reload.
func (h *TestHarness) RewriteDocument(yaml string) {
	h.t.Helper()
	if err := os.WriteFile(h.documentPath, []byte(yaml), 0o644); err != nil {
		h.t.Fatalf("rewrite document: %v", err)
	}
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// GETWithHeaders performs an authenticated GET request with extra headers.
func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, headers)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks the expected status and parses the body into target.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// GeoHeaders returns request headers carrying a Nairobi test position.
func GeoHeaders() map[string]string {
	return map[string]string{
		"X-Geo-Latitude":  "-1.2833",
		"X-Geo-Longitude": "36.8167",
		"X-Geo-Accuracy":  "15",
	}
}

// --- Default test claims ---

// MemberClaims returns TestClaims for a verified signed-in user.
func MemberClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-member",
		Email:     "member@test.muundo.dev",
		Verified:  true,
		Roles:     []string{"member"},
	}
}

// GuestClaims returns TestClaims for an unverified user.
func GuestClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-guest",
		Email:     "guest@test.muundo.dev",
		Verified:  false,
	}
}

// --- Fixtures ---

// PlaceFixture returns a map representing one place for mock responses.
func PlaceFixture(id, name string) map[string]any {
	return map[string]any{
		"id":       id,
		"name":     name,
		"category": "cafe",
		"rating":   4.5,
		"distance": 320.0,
	}
}

// PlaceListFixture returns a list response with the given places.
func PlaceListFixture(places ...map[string]any) map[string]any {
	items := make([]any, len(places))
	for i, p := range places {
		items[i] = p
	}
	return map[string]any{
		"items": items,
		"total": float64(len(places)),
	}
}

// CountFixture returns a badge count response.
func CountFixture(n int) map[string]any {
	return map[string]any{"count": float64(n)}
}

// sectionByID finds one section view in a parsed page response.
func sectionByID(t *testing.T, view model.PageView, id string) model.SectionView {
	t.Helper()
	for _, s := range view.Sections {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("page %q has no section %q (sections: %s)", view.ID, id, FormatJSON(view.Sections))
	return model.SectionView{}
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
