package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
)

// ListJobsHandler lists every scheduled job with its run statistics.
func ListJobsHandler(registry JobRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, registry.Stats())
	}
}

// JobActionHandler dispatches enable/disable/pause/resume/run on a named job.
// Enable uses the server's base context, not the request context, so the
// ticker outlives the request.
func JobActionHandler(registry JobRegistry, baseCtx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		action := chi.URLParam(r, "action")

		var err error
		switch action {
		case "enable":
			err = registry.Enable(baseCtx, name)
		case "disable":
			err = registry.Disable(name)
		case "pause":
			err = registry.Pause(name)
		case "resume":
			err = registry.Resume(name)
		case "run":
			err = registry.ExecuteNow(r.Context(), name)
		default:
			http.Error(w, "unknown action", http.StatusBadRequest)
			return
		}

		if err != nil {
			logger.WithFields(map[string]interface{}{
				"job":    name,
				"action": action,
			}).WithError(err).Error("scheduler action failed")
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
