package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRPS   = 20
	defaultBurst = 40

	limiterSweepInterval = 60 * time.Second
	limiterMaxIdle       = 3 * time.Minute
)

type callerLimiter struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one token bucket per caller IP. Buckets that go
// idle are swept so the pool stays proportional to active traffic.
type limiterPool struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	callers map[string]*callerLimiter
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = defaultRPS
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &limiterPool{
		rps:     rate.Limit(rps),
		burst:   burst,
		callers: make(map[string]*callerLimiter),
	}
}

func (p *limiterPool) allow(ip string) bool {
	p.mu.Lock()
	caller, ok := p.callers[ip]
	if !ok {
		caller = &callerLimiter{bucket: rate.NewLimiter(p.rps, p.burst)}
		p.callers[ip] = caller
	}
	caller.lastSeen = time.Now()
	p.mu.Unlock()

	return caller.bucket.Allow()
}

func (p *limiterPool) sweep(maxIdle time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ip, caller := range p.callers {
		if time.Since(caller.lastSeen) > maxIdle {
			delete(p.callers, ip)
		}
	}
}

// RateLimit throttles requests per client IP and answers overflow with
// the standard error envelope plus a Retry-After hint.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	pool := newLimiterPool(rps, burst)
	go func() {
		ticker := time.NewTicker(limiterSweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			pool.sweep(limiterMaxIdle)
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !pool.allow(clientIP(r.RemoteAddr)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":      map[string]string{"code": "rate_limited", "message": "too many requests"},
					"request_id": GetRequestID(r.Context()),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}
