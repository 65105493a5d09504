package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/signalnews/pulse-gateway/internal/domain"
	"github.com/signalnews/pulse-gateway/internal/gateway"
	"github.com/signalnews/pulse-gateway/internal/service"
)

type generateRequest struct {
	Topic       string              `json:"topic"`
	Preferences *domain.Preferences `json:"preferences,omitempty"`
}

func (api *API) Reports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request generateRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}

	preferences := domain.DefaultPreferences()
	if request.Preferences != nil {
		preferences = *request.Preferences
	}

	job, err := api.reports.Generate(r.Context(), strings.TrimSpace(request.Topic), preferences)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyTopic):
			writeError(w, r, http.StatusUnprocessableEntity, "invalid_request", "please enter a topic to generate a report")
		case errors.Is(err, domain.ErrInvalidPreferences):
			writeError(w, r, http.StatusUnprocessableEntity, "invalid_request", "unrecognized report preferences")
		default:
			writeError(w, r, http.StatusBadGateway, "backend_error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      job.Status,
		"events_url":  "/v1/reports/" + job.ID + "/events",
		"accepted_at": job.CreatedAt.Format(time.RFC3339Nano),
	})
}

// ReportByID dispatches /v1/reports/{id}, /v1/reports/{id}/events and
// /v1/reports/{id}/cancel.
func (api *API) ReportByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/reports/")
	jobID, action, _ := strings.Cut(rest, "/")
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id is required")
		return
	}

	switch action {
	case "":
		api.getReport(w, r, jobID)
	case "events":
		api.reportEvents(w, r, jobID)
	case "cancel":
		api.cancelReport(w, r, jobID)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (api *API) getReport(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	report, err := api.reports.FetchReport(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "report not found")
			return
		}
		writeError(w, r, http.StatusBadGateway, "backend_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report)
}

func (api *API) cancelReport(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	if err := api.reports.Cancel(r.Context(), jobID); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "job not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to cancel job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "cancelled": true})
}

// reportEvents streams tracker progress snapshots as server-sent events
// until the job reaches a terminal state or the client disconnects.
func (api *API) reportEvents(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	jobTracker, ok := api.reports.Tracker(jobID)
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "job not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	snapshots, cancel := jobTracker.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, open := <-snapshots:
			if !open {
				return
			}
			encoded, err := json.Marshal(snapshot)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", encoded)
			flusher.Flush()
		}
	}
}
