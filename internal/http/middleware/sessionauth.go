package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/signalnews/pulse-gateway/internal/session"
)

const (
	sessionSweepInterval = 60 * time.Second
	sessionMaxIdle       = 3 * time.Minute
)

type sessionRecord struct {
	userID   string
	lastSeen time.Time
}

// sessionTracker remembers the last authenticated user seen per session
// id so sign-in and sign-out flips can be detected. Idle entries are
// swept out; a session that went quiet long enough reads as unseen.
type sessionTracker struct {
	mu      sync.Mutex
	records map[string]*sessionRecord
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{records: make(map[string]*sessionRecord)}
}

// observe records the user currently bound to the session and returns
// the previously recorded user along with whether the session was
// already tracked.
func (t *sessionTracker) observe(sessionID, userID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, seen := t.records[sessionID]
	if !seen {
		t.records[sessionID] = &sessionRecord{userID: userID, lastSeen: time.Now()}
		return "", false
	}
	previous := record.userID
	record.userID = userID
	record.lastSeen = time.Now()
	return previous, true
}

func (t *sessionTracker) evictIdle(maxIdle time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, record := range t.records {
		if time.Since(record.lastSeen) > maxIdle {
			delete(t.records, id)
		}
	}
}

func (t *sessionTracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Session resolves the caller's identity for the request: a valid
// bearer token means an authenticated session, anything else a guest
// session keyed by X-Session-Id (minted here when absent). Sign-in and
// sign-out flips observed on the same session id are published through
// the notifier so history views can refresh.
//
// Only client-provided session ids are tracked for flip detection. A
// request without the header gets a fresh id that cannot flip, and
// recording those would let headerless traffic grow the tracker
// without bound.
func Session(verifier session.Verifier, notifier *session.Notifier) func(http.Handler) http.Handler {
	tracker := newSessionTracker()
	go func() {
		ticker := time.NewTicker(sessionSweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			tracker.evictIdle(sessionMaxIdle)
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := strings.TrimSpace(r.Header.Get("X-Session-Id"))
			provided := sessionID != ""
			if !provided {
				sessionID = session.NewGuestID()
			}
			w.Header().Set("X-Session-Id", sessionID)

			identity := session.Identity{GuestID: sessionID}
			if token := bearerToken(r); token != "" && verifier != nil {
				if verified, err := verifier.Verify(token); err == nil {
					verified.GuestID = ""
					identity = verified
				}
			}

			if notifier != nil && provided {
				previous, seen := tracker.observe(sessionID, identity.UserID)
				if seen && previous != identity.UserID {
					if identity.UserID != "" {
						notifier.Notify(session.Change{UserID: identity.UserID, SignedIn: true})
					} else {
						notifier.Notify(session.Change{UserID: previous, SignedIn: false})
					}
				}
			}

			next.ServeHTTP(w, r.WithContext(session.WithIdentity(r.Context(), identity)))
		})
	}
}

func bearerToken(r *http.Request) string {
	authorization := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authorization, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
}
