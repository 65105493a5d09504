// Package session resolves the caller's identity for every request.
// A valid bearer token means an authenticated session served by the
// remote history store; anything else is a guest session identified by
// an ephemeral session id and served by session-scoped storage.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid session token")

// Identity describes the caller of one operation. Exactly one of the
// two modes applies: UserID set (authenticated) or GuestID set (guest).
type Identity struct {
	UserID    string
	Name      string
	AvatarURL string
	GuestID   string

	// BearerToken is the raw credential, forwarded on remote calls made
	// on behalf of an authenticated session.
	BearerToken string
}

func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

// Verifier validates bearer credentials. Implementations must be safe
// for concurrent use.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// JWTVerifier validates HS256 session tokens minted by the identity
// provider. Display metadata rides along in the claims.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(token string) (Identity, error) {
	if len(v.secret) == 0 || strings.TrimSpace(token) == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID:      subject,
		Name:        stringClaim(claims, "name"),
		AvatarURL:   stringClaim(claims, "avatar_url"),
		BearerToken: token,
	}, nil
}

// NewGuestID mints an identifier for an unauthenticated session.
func NewGuestID() string {
	return "guest-" + uuid.NewString()
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}

type contextKey string

const identityContextKey contextKey = "session_identity"

// WithIdentity attaches the resolved identity to the request context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// FromContext returns the identity resolved for this request. The zero
// Identity (a guest with no session id) is returned when none was set.
func FromContext(ctx context.Context) Identity {
	identity, _ := ctx.Value(identityContextKey).(Identity)
	return identity
}
