package transport

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mzizi/muundo/internal/interp"
	"github.com/mzizi/muundo/internal/observability"
)

func handleGetStructure(i *interp.Interpreter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, i.Info())
	}
}

// handleReloadDocument refetches and validates the structure document. On
// success the new document is swapped in atomically and running poll tasks
// are stopped so stale cadences do not outlive the document that declared
// them. On failure the previous document stays active.
func handleReloadDocument(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := observability.RequestLogger(r.Context(), deps.Logger)

		if err := deps.Registry.Reload(r.Context(), deps.Source, deps.Validator); err != nil {
			logger.Warn("document reload rejected", zap.Error(err))
			if deps.Metrics != nil {
				deps.Metrics.RecordDocumentReload("failure")
			}
			WriteError(w, err)
			return
		}

		if deps.Scheduler != nil {
			deps.Scheduler.StopAll()
		}

		doc := deps.Registry.Document()
		logger.Info("document reloaded",
			zap.String("checksum", doc.Checksum),
			zap.Int("pages", len(doc.Pages)))
		if deps.Metrics != nil {
			deps.Metrics.RecordDocumentReload("success")
			deps.Metrics.SetDocumentPagesLoaded(float64(len(doc.Pages)))
		}

		WriteJSON(w, http.StatusOK, deps.Interpreter.Info())
	}
}
