package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mzizi/muundo/internal/query"
)

// sessionStateRequest is the POST /ui/session/state request body.
type sessionStateRequest struct {
	Foreground  bool `json:"foreground"`
	Reconnected bool `json:"reconnected"`
}

// handleSessionState records client lifecycle transitions. Background
// clients poll slower; returning to the foreground restores the base
// cadence, counts as activity, and marks cached entries whose policy
// refetches on foreground. A reconnect marks the refetch-on-reconnect
// entries the same way.
func handleSessionState(scheduler *query.PollScheduler, engine *query.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionStateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteBadRequest(w, "request body must be JSON")
			return
		}

		if scheduler != nil {
			scheduler.SetForeground(req.Foreground)
			if req.Foreground {
				scheduler.NoteActivity(time.Now())
			}
		}

		marked := 0
		if engine != nil {
			if req.Foreground {
				marked += engine.MarkForegroundStale()
			}
			if req.Reconnected {
				marked += engine.MarkReconnectStale()
			}
		}
		if marked > 0 && logger != nil {
			logger.Debug("session transition marked cache entries stale",
				zap.Int("entries", marked),
				zap.Bool("foreground", req.Foreground),
				zap.Bool("reconnected", req.Reconnected))
		}

		WriteJSON(w, http.StatusOK, map[string]any{"foreground": req.Foreground})
	}
}
