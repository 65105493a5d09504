package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config centralizes runtime settings for the gateway service.
type Config struct {
	Port string

	// Upstream report-generation backend.
	BackendBaseURL    string
	BackendTimeoutMS  int
	BackendMaxRetries int

	// Streaming channel hardening: a silent channel fails the job after
	// this long instead of leaving the tracker streaming forever.
	StreamIdleTimeoutMS int

	// Session identity.
	SessionJWTSecret  string
	GuestSessionTTLMS int

	// Authenticated history store.
	DatabaseURL string

	// Guest history store.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Dashboard aggregate cache.
	PulseCacheTTLMS int

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		BackendBaseURL:    getEnv("BACKEND_BASE_URL", "http://127.0.0.1:8000"),
		BackendTimeoutMS:  getEnvInt("BACKEND_TIMEOUT_MS", 15000),
		BackendMaxRetries: getEnvInt("BACKEND_MAX_RETRIES", 2),

		StreamIdleTimeoutMS: getEnvInt("STREAM_IDLE_TIMEOUT_MS", 300000),

		SessionJWTSecret:  getEnv("SESSION_JWT_SECRET", ""),
		GuestSessionTTLMS: getEnvInt("GUEST_SESSION_TTL_MS", int((12 * time.Hour).Milliseconds())),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		PulseCacheTTLMS: getEnvInt("PULSE_CACHE_TTL_MS", 300000),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 40),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
