package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mzizi/muundo/internal/interp"
	"github.com/mzizi/muundo/model"
)

func handleGetPage(i *interp.Interpreter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageID := chi.URLParam(r, "pageId")
		rc := model.RuntimeContextFrom(r.Context())

		view, err := i.PageView(r.Context(), pageID, rc)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

func handleGetNavigation(nav *interp.NavigationResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := nav.Resolve(r.Context())
		WriteJSON(w, http.StatusOK, map[string]any{"items": entries})
	}
}
