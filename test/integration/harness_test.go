package integration

import (
	"net/http"
	"testing"

	"github.com/mzizi/muundo/model"
)

const reloadedDocument = `version: "1.1"
meta:
  app_name: muundo-demo
  default_page: welcome
blocks:
  - id: welcome-banner
    component: Banner
pages:
  - id: welcome
    title: Welcome
    screen: main
    sections:
      - id: banner
        building_block_id: welcome-banner
`

// brokenDocument is missing its version and references a block that does
// not exist.
const brokenDocument = `meta:
  app_name: muundo-demo
pages:
  - id: welcome
    title: Welcome
    screen: main
    sections:
      - id: banner
        building_block_id: ghost-block
`

func TestHarness_boots(t *testing.T) {
	h := NewTestHarness(t)

	if len(h.Catalog.Names()) != 4 {
		t.Errorf("catalog queries = %v", h.Catalog.Names())
	}
	if h.Registry.Checksum() == "" {
		t.Error("registry should carry a document checksum")
	}

	token := h.GenerateToken(MemberClaims())
	resp := h.GET("/ui/structure", token)
	h.AssertStatus(t, resp, http.StatusOK)
}

func TestReload_swapsDocument(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(MemberClaims())

	before := h.Registry.Checksum()

	h.RewriteDocument(reloadedDocument)
	resp := h.POST("/ui/structure/reload", nil, token)

	var info model.StructureInfo
	h.AssertJSON(t, resp, http.StatusOK, &info)

	if info.Version != "1.1" || info.PageCount != 1 {
		t.Errorf("info = %s", FormatJSON(info))
	}
	if h.Registry.Checksum() == before {
		t.Error("checksum should change after reload")
	}

	// Pages from the previous document are gone.
	resp = h.GET("/ui/pages/home", token)
	h.AssertStatus(t, resp, http.StatusNotFound)

	resp = h.GET("/ui/pages/welcome", token)
	h.AssertStatus(t, resp, http.StatusOK)
}

func TestReload_invalidDocumentKeepsPrevious(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(MemberClaims())

	h.RewriteDocument(brokenDocument)
	resp := h.POST("/ui/structure/reload", nil, token)
	assertErrorCode(t, h, resp, http.StatusUnprocessableEntity, model.ErrDocumentInvalid)

	// The previous document stays active.
	resp = h.GET("/ui/pages/home", token)
	h.AssertStatus(t, resp, http.StatusOK)
}

func TestSessionState_togglesForeground(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(MemberClaims())

	resp := h.POST("/ui/session/state", map[string]any{"foreground": false}, token)
	var body struct {
		Foreground bool `json:"foreground"`
	}
	h.AssertJSON(t, resp, http.StatusOK, &body)
	if body.Foreground {
		t.Error("foreground = true, want false")
	}

	resp = h.POST("/ui/session/state", map[string]any{"foreground": true}, token)
	h.AssertStatus(t, resp, http.StatusOK)
}
