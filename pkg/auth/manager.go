package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opendesk-io/opendesk/pkg/audit"
	"github.com/opendesk-io/opendesk/pkg/cache"
	"github.com/opendesk-io/opendesk/pkg/rbac"
)

// DefaultSessionTTL is how long a login session lives
const DefaultSessionTTL = 24 * time.Hour

// SessionManager issues, validates, and revokes sessions. Validation
// results are cached; the cache applies its own TTLs and never caches a
// session close to expiry.
type SessionManager struct {
	store      SessionStore
	source     rbac.SnapshotSource
	cache      *cache.Cache
	audit      audit.Logger
	sessionTTL time.Duration
	now        func() time.Time
}

// NewSessionManager creates a session manager
func NewSessionManager(store SessionStore, source rbac.SnapshotSource, c *cache.Cache, auditor audit.Logger) *SessionManager {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	return &SessionManager{
		store:      store,
		source:     source,
		cache:      c,
		audit:      auditor,
		sessionTTL: DefaultSessionTTL,
		now:        time.Now,
	}
}

// CreateSession issues a new session for a user and returns the plaintext
// token. The token is never stored; only its hash is.
func (m *SessionManager) CreateSession(ctx context.Context, userID int64) (string, error) {
	token, tokenHash, err := GenerateToken()
	if err != nil {
		return "", err
	}

	now := m.now()
	session := &Session{
		TokenHash: tokenHash,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.sessionTTL),
	}
	if err := m.store.Create(ctx, session); err != nil {
		return "", err
	}
	return token, nil
}

// Validate resolves a plaintext token to an authenticated context. It
// returns ErrSessionNotFound for unknown, expired, or deactivated-user
// sessions, and a store-unavailable error when neither the cache nor the
// stores can answer.
func (m *SessionManager) Validate(ctx context.Context, token string) (*AuthContext, error) {
	if err := ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	tokenHash := HashToken(token)

	if m.cache != nil {
		if cached, ok := m.cache.GetSessionValidation(tokenHash); ok {
			if cached.Snapshot != nil && !cached.Snapshot.IsActive {
				return nil, ErrSessionNotFound
			}
			return &AuthContext{
				UserID:    cached.UserID,
				TokenHash: tokenHash,
				Snapshot:  cached.Snapshot,
			}, nil
		}
	}

	session, err := m.store.Get(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	snap, err := m.source.LoadSnapshot(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, rbac.ErrUserNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if !snap.IsActive {
		return nil, ErrSessionNotFound
	}

	if m.cache != nil {
		m.cache.SetSessionValidation(&cache.SessionValidation{
			TokenHash: tokenHash,
			UserID:    session.UserID,
			ExpiresAt: session.ExpiresAt,
			Snapshot:  snap,
		})
		// The snapshot is already resolved; seed the user cache so the
		// permission engine does not load it a second time
		m.cache.SetUser(session.UserID, snap)
	}

	return &AuthContext{
		UserID:    session.UserID,
		TokenHash: tokenHash,
		Snapshot:  snap,
	}, nil
}

// Revoke ends a single session and drops its cached validation
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	return m.RevokeHash(ctx, HashToken(token))
}

// RevokeHash ends a session identified by its stored hash, for callers
// that never see the plaintext token (logout from an authenticated
// request).
func (m *SessionManager) RevokeHash(ctx context.Context, tokenHash string) error {
	if err := m.store.Delete(ctx, tokenHash); err != nil {
		return err
	}
	if m.cache != nil {
		m.cache.InvalidateSession(tokenHash)
	}
	return nil
}

// RevokeAllForUser ends every session for a user (logout everywhere,
// or part of an account deactivation).
func (m *SessionManager) RevokeAllForUser(ctx context.Context, actorID, userID int64) error {
	if err := m.store.DeleteAllForUser(ctx, userID); err != nil {
		return err
	}
	if m.cache != nil {
		m.cache.InvalidateUserSessions(userID)
	}
	m.audit.LogAdminAction(ctx, audit.EventTypeSessionRevoke, actorID,
		fmt.Sprintf("user:%d", userID), "all sessions revoked")
	return nil
}
