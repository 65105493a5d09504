package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/signalnews/pulse-gateway/internal/domain"
	"github.com/signalnews/pulse-gateway/internal/history"
)

func (api *API) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	records, err := api.history.List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load report history")
		return
	}

	// The stores make no ordering promise; display order is newest first.
	domain.SortHistoryNewestFirst(records)

	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, map[string]any{
			"job_id":           record.JobID,
			"topic":            record.Topic,
			"refined_topic":    record.RefinedTopic,
			"user_preferences": record.UserPreferences,
			"timestamp":        record.Timestamp.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": items})
}

func (api *API) HistoryByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	jobID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/v1/history/"))
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id is required")
		return
	}

	if err := api.history.Delete(r.Context(), jobID); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "history record not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to delete history record")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "deleted": true})
}
