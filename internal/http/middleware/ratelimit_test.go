package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitRejectsBurstOverflow(t *testing.T) {
	handler := RateLimit(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func() *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodGet, "/v1/pulse/latest", nil)
		request.RemoteAddr = "203.0.113.7:51234"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder
	}

	if got := send().Code; got != http.StatusNoContent {
		t.Fatalf("first request within burst, got status %d", got)
	}
	if got := send().Code; got != http.StatusNoContent {
		t.Fatalf("second request within burst, got status %d", got)
	}

	rejected := send()
	if rejected.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the burst, got %d", rejected.Code)
	}
	if got := rejected.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After hint, got %q", got)
	}

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(rejected.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode rejection body: %v", err)
	}
	if payload.Error.Code != "rate_limited" {
		t.Fatalf("expected rate_limited code, got %q", payload.Error.Code)
	}
	if payload.RequestID == "" {
		t.Fatalf("rejection body must carry a request id")
	}
}

func TestRateLimitIsolatesCallers(t *testing.T) {
	handler := RateLimit(1, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(remoteAddr string) int {
		request := httptest.NewRequest(http.MethodGet, "/v1/pulse/latest", nil)
		request.RemoteAddr = remoteAddr
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder.Code
	}

	if got := send("203.0.113.7:51234"); got != http.StatusNoContent {
		t.Fatalf("first caller within burst, got %d", got)
	}
	if got := send("203.0.113.7:51235"); got != http.StatusTooManyRequests {
		t.Fatalf("same IP on a new port must share the bucket, got %d", got)
	}
	if got := send("198.51.100.9:40000"); got != http.StatusNoContent {
		t.Fatalf("distinct caller must get its own bucket, got %d", got)
	}
}

func TestLimiterPoolSweepsIdleCallers(t *testing.T) {
	pool := newLimiterPool(1, 1)
	pool.allow("203.0.113.7")
	pool.allow("198.51.100.9")

	pool.mu.Lock()
	pool.callers["203.0.113.7"].lastSeen = time.Now().Add(-10 * time.Minute)
	pool.mu.Unlock()

	pool.sweep(limiterMaxIdle)

	pool.mu.Lock()
	defer pool.mu.Unlock()
	if _, ok := pool.callers["203.0.113.7"]; ok {
		t.Fatalf("idle caller must be swept")
	}
	if _, ok := pool.callers["198.51.100.9"]; !ok {
		t.Fatalf("active caller must survive the sweep")
	}
}

func TestClientIPFallsBackToRawAddr(t *testing.T) {
	if got := clientIP("203.0.113.7:51234"); got != "203.0.113.7" {
		t.Fatalf("expected host part, got %q", got)
	}
	if got := clientIP("unix-socket-peer"); got != "unix-socket-peer" {
		t.Fatalf("expected raw addr fallback, got %q", got)
	}
}
