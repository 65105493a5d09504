package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalnews/pulse-gateway/internal/config"
	"github.com/signalnews/pulse-gateway/internal/gateway"
	"github.com/signalnews/pulse-gateway/internal/history"
	httpserver "github.com/signalnews/pulse-gateway/internal/http"
	"github.com/signalnews/pulse-gateway/internal/http/handlers"
	"github.com/signalnews/pulse-gateway/internal/pulse"
	"github.com/signalnews/pulse-gateway/internal/service"
	"github.com/signalnews/pulse-gateway/internal/session"
)

func main() {
	logger := log.New(os.Stdout, "[pulse-gw] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gatewayClient := gateway.NewClient(gateway.ClientConfig{
		BaseURL:    cfg.BackendBaseURL,
		Timeout:    time.Duration(cfg.BackendTimeoutMS) * time.Millisecond,
		MaxRetries: cfg.BackendMaxRetries,
	})

	remoteStore, remoteCloser := setupRemoteStore(ctx, cfg, logger)
	defer remoteCloser()
	guestStore, guestCloser := setupGuestStore(ctx, cfg, logger)
	defer guestCloser()
	historyAdapter := history.NewAdapter(remoteStore, guestStore, logger)

	notifier := session.NewNotifier()
	verifier := session.NewJWTVerifier(cfg.SessionJWTSecret)
	if cfg.SessionJWTSecret == "" {
		logger.Printf("SESSION_JWT_SECRET not configured, all sessions treated as guests")
	}

	reportsService := service.NewReportsService(
		gatewayClient,
		historyAdapter,
		time.Duration(cfg.StreamIdleTimeoutMS)*time.Millisecond,
		logger,
	)
	pulseService := service.NewPulseService(
		gatewayClient,
		pulse.NewCache(time.Duration(cfg.PulseCacheTTLMS)*time.Millisecond),
		logger,
	)

	api := handlers.NewAPI(reportsService, pulseService, historyAdapter, notifier, logger)
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		Verifier:       verifier,
		Notifier:       notifier,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupRemoteStore(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (history.Store, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, authenticated history uses in-memory store")
		return history.NewMemoryStore(), func() {}
	}

	pgStore, err := history.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("failed to initialize postgres history store, fallback to memory: %v", err)
		return history.NewMemoryStore(), func() {}
	}
	logger.Printf("postgres history store initialized")
	return pgStore, func() {
		pgStore.Close()
	}
}

func setupGuestStore(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (history.Store, func()) {
	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, guest history uses in-memory store")
		return history.NewMemoryStore(), func() {}
	}

	redisStore, err := history.NewRedisSessionStore(ctx, history.RedisConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		DB:         cfg.RedisDB,
		SessionTTL: time.Duration(cfg.GuestSessionTTLMS) * time.Millisecond,
	})
	if err != nil {
		logger.Printf("failed to initialize redis session store, fallback to memory: %v", err)
		return history.NewMemoryStore(), func() {}
	}
	logger.Printf("redis session store initialized")
	return redisStore, func() {
		_ = redisStore.Close()
	}
}
