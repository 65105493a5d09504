package httpserver

import (
	"log"
	"net/http"

	"github.com/signalnews/pulse-gateway/internal/http/handlers"
	"github.com/signalnews/pulse-gateway/internal/http/middleware"
	"github.com/signalnews/pulse-gateway/internal/session"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *log.Logger
	Verifier       session.Verifier
	Notifier       *session.Notifier
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", deps.API.Health)
	mux.HandleFunc("/v1/reports", deps.API.Reports)
	mux.HandleFunc("/v1/reports/", deps.API.ReportByID)
	mux.HandleFunc("/v1/history", deps.API.History)
	mux.HandleFunc("/v1/history/", deps.API.HistoryByID)
	mux.HandleFunc("/v1/pulse/latest", deps.API.PulseLatest)
	mux.HandleFunc("/v1/session/events", deps.API.SessionEvents)

	handler := http.Handler(mux)
	handler = middleware.Session(deps.Verifier, deps.Notifier)(handler)
	handler = middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
