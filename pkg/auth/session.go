package auth

import (
	"context"
	"errors"
	"time"

	"github.com/opendesk-io/opendesk/pkg/rbac"
)

// ErrSessionNotFound is returned when no session exists for a token hash,
// or the session has expired.
var ErrSessionNotFound = errors.New("session not found")

// Session is a server-side login session, keyed by the SHA256 hash of the
// opaque token held by the client.
type Session struct {
	TokenHash string    `json:"tokenHash"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session has passed its expiry
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SessionStore persists sessions. Get must return ErrSessionNotFound for
// missing or expired sessions and wrap connectivity failures so that
// errors.Is(err, rbac.ErrStoreUnavailable) holds.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, tokenHash string) (*Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteAllForUser(ctx context.Context, userID int64) error
}

// AuthContext is the per-request authentication state placed on the request
// context by the auth middleware.
type AuthContext struct {
	UserID    int64
	TokenHash string
	Snapshot  *rbac.Snapshot
}
