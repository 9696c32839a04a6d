package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/mzizi/muundo/internal/action"
	"github.com/mzizi/muundo/internal/observability"
)

// dispatchRequest is the POST /ui/actions request body.
type dispatchRequest struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

func handleDispatchAction(router *action.Router, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			WriteBadRequest(w, "unreadable request body")
			return
		}

		var req dispatchRequest
		if err := json.Unmarshal(body, &req); err != nil {
			WriteBadRequest(w, "request body must be JSON")
			return
		}
		if req.Action == "" {
			WriteBadRequest(w, "action is required")
			return
		}

		result := router.Dispatch(r.Context(), req.Action, req.Payload)
		if metrics != nil {
			metrics.RecordActionDispatch(result.Scheme, result.Handled)
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

// badgeResponse is the GET /ui/badges response body.
type badgeResponse struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

func handleGetBadge(badges *action.BadgeResolver, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := r.URL.Query().Get("source")
		if source == "" {
			WriteBadRequest(w, "source query parameter is required")
			return
		}

		count := badges.Resolve(r.Context(), source)
		if metrics != nil {
			status := "ok"
			if count == 0 {
				status = "zero"
			}
			metrics.RecordBadgeResolution(status)
		}
		WriteJSON(w, http.StatusOK, badgeResponse{Source: source, Count: count})
	}
}
