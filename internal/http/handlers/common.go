package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/signalnews/pulse-gateway/internal/history"
	"github.com/signalnews/pulse-gateway/internal/http/middleware"
	"github.com/signalnews/pulse-gateway/internal/service"
	"github.com/signalnews/pulse-gateway/internal/session"
)

var errInvalidPayload = errors.New("invalid payload")

type API struct {
	reports  *service.ReportsService
	pulse    *service.PulseService
	history  *history.Adapter
	sessions *session.Notifier
	logger   *log.Logger
}

func NewAPI(
	reports *service.ReportsService,
	pulse *service.PulseService,
	historyAdapter *history.Adapter,
	sessions *session.Notifier,
	logger *log.Logger,
) *API {
	return &API{
		reports:  reports,
		pulse:    pulse,
		history:  historyAdapter,
		sessions: sessions,
		logger:   logger,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}
