package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/mzizi/muundo/internal/catalog"
	"github.com/mzizi/muundo/model"
)

// singleSectionDoc keeps one literal-parameter query on the page so backend
// call counts stay deterministic in resilience tests.
const singleSectionDoc = `version: "1.0"
meta:
  app_name: muundo-demo
  default_page: home
blocks:
  - id: places-list
    component: PlaceList
pages:
  - id: home
    title: Home
    screen: main
    sections:
      - id: nearby
        building_block_id: places-list
        data_source:
          query_name: listPlaces
`

func loadHome(t *testing.T, h *TestHarness, token string) model.PageView {
	t.Helper()
	resp := h.GET("/ui/pages/home", token)
	var view model.PageView
	h.AssertJSON(t, resp, http.StatusOK, &view)
	return view
}

func TestCache_staticQueryFetchedOnce(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnQuery("listEvents").RespondWith(200, map[string]any{"items": []any{"gig"}})

	token := h.GenerateToken(MemberClaims())
	loadHome(t, h, token)
	loadHome(t, h, token)

	// The static strategy fetches once and serves from cache afterwards.
	h.Backend.AssertCalled(t, "listEvents", 1)
}

func TestCache_stalenessWindowServesFromCache(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnQuery("getPlace").RespondWith(200, PlaceFixture("p-1", "Steam Cafe"))

	token := h.GenerateToken(MemberClaims())

	for i := 0; i < 2; i++ {
		resp := h.GET("/ui/pages/detail?filter[place_id]=p-1", token)
		var view model.PageView
		h.AssertJSON(t, resp, http.StatusOK, &view)
		if s := sectionByID(t, view, "place"); s.State != model.SectionReady {
			t.Fatalf("place state = %q on load %d", s.State, i+1)
		}
	}
	h.Backend.AssertCalled(t, "getPlace", 1)

	// A different parameter set is a different cache key.
	resp := h.GET("/ui/pages/detail?filter[place_id]=p-2", token)
	resp.Body.Close()
	h.Backend.AssertCalled(t, "getPlace", 2)
}

func TestCache_foregroundTransitionRefetches(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnQuery("getPlace").RespondWith(200, PlaceFixture("p-1", "Steam Cafe"))

	token := h.GenerateToken(MemberClaims())

	for i := 0; i < 2; i++ {
		resp := h.GET("/ui/pages/detail?filter[place_id]=p-1", token)
		resp.Body.Close()
	}
	h.Backend.AssertCalled(t, "getPlace", 1)

	// Returning to the foreground invalidates entries whose policy refetches
	// on foreground, even inside the staleness window.
	resp := h.POST("/ui/session/state", map[string]any{"foreground": true}, token)
	h.AssertStatus(t, resp, http.StatusOK)

	resp = h.GET("/ui/pages/detail?filter[place_id]=p-1", token)
	resp.Body.Close()
	h.Backend.AssertCalled(t, "getPlace", 2)
}

func TestResilience_backendErrorIsolatedToSection(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnQuery("listPlaces").RespondWithError(500, "INTERNAL", "db down")
	h.Backend.OnQuery("listEvents").RespondWith(200, map[string]any{"items": []any{}})

	token := h.GenerateToken(MemberClaims())
	resp := h.GETWithHeaders("/ui/pages/home", token, GeoHeaders())

	var view model.PageView
	h.AssertJSON(t, resp, http.StatusOK, &view)

	nearby := sectionByID(t, view, "nearby")
	if nearby.State != model.SectionError {
		t.Errorf("nearby state = %q, want error", nearby.State)
	}
	if nearby.Error == "" {
		t.Error("nearby should carry an error message")
	}

	// The failing section must not take its siblings down.
	if s := sectionByID(t, view, "events"); s.State != model.SectionReady {
		t.Errorf("events state = %q, want ready", s.State)
	}
}

func TestResilience_staleServedOnBackendFailure(t *testing.T) {
	h := NewTestHarness(t, WithDocument(singleSectionDoc))
	h.Backend.OnQuery("listPlaces").
		RespondWith(200, PlaceListFixture(PlaceFixture("p-1", "Steam Cafe"))).
		RespondWithError(500, "INTERNAL", "db down")

	token := h.GenerateToken(MemberClaims())

	first := sectionByID(t, loadHome(t, h, token), "nearby")
	if first.State != model.SectionReady {
		t.Fatalf("first load state = %q", first.State)
	}

	// The second load fails upstream; the cached result is inside the
	// retention window and gets served instead of the failure.
	second := sectionByID(t, loadHome(t, h, token), "nearby")
	if second.State != model.SectionReady {
		t.Fatalf("second load state = %q, want ready via stale data", second.State)
	}
	data, ok := second.Data.(map[string]any)
	if !ok || data["total"] != float64(1) {
		t.Errorf("stale data = %s", FormatJSON(second.Data))
	}

	// One successful fetch, then retries+1 failed attempts.
	h.Backend.AssertCalled(t, "listPlaces", 4)
}

func TestResilience_circuitBreakerShortCircuits(t *testing.T) {
	h := NewTestHarness(t,
		WithDocument(singleSectionDoc),
		WithBackendOptions(catalog.BackendOptions{
			Timeout:          5 * time.Second,
			FailureThreshold: 3,
			SuccessThreshold: 1,
			BreakerCooldown:  time.Minute,
		}))
	h.Backend.OnQuery("listPlaces").RespondWithError(500, "INTERNAL", "db down")

	token := h.GenerateToken(MemberClaims())

	if s := sectionByID(t, loadHome(t, h, token), "nearby"); s.State != model.SectionError {
		t.Fatalf("first load state = %q, want error", s.State)
	}
	// Three failures tripped the breaker; subsequent fetches are rejected
	// before reaching the backend.
	if s := sectionByID(t, loadHome(t, h, token), "nearby"); s.State != model.SectionError {
		t.Fatalf("second load state = %q, want error", s.State)
	}
	h.Backend.AssertCalled(t, "listPlaces", 3)
}

func TestResilience_backendTimeout(t *testing.T) {
	h := NewTestHarness(t,
		WithDocument(singleSectionDoc),
		WithBackendOptions(catalog.BackendOptions{
			Timeout:          100 * time.Millisecond,
			FailureThreshold: 10,
			SuccessThreshold: 1,
			BreakerCooldown:  time.Minute,
		}))
	h.Backend.OnQuery("listPlaces").RespondWithDelay(400*time.Millisecond, 200, PlaceListFixture())

	token := h.GenerateToken(MemberClaims())

	nearby := sectionByID(t, loadHome(t, h, token), "nearby")
	if nearby.State != model.SectionError {
		t.Errorf("nearby state = %q, want error on timeout", nearby.State)
	}
}

func TestResilience_connectionError(t *testing.T) {
	h := NewTestHarness(t, WithDocument(singleSectionDoc))
	h.Backend.OnQuery("listPlaces").RespondWithConnectionError()

	token := h.GenerateToken(MemberClaims())

	nearby := sectionByID(t, loadHome(t, h, token), "nearby")
	if nearby.State != model.SectionError {
		t.Errorf("nearby state = %q, want error on dropped connection", nearby.State)
	}
}
