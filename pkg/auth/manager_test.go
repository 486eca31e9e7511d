package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/opendesk-io/opendesk/pkg/cache"
	"github.com/opendesk-io/opendesk/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshots map[int64]*rbac.Snapshot
	loads     int
	err       error
}

func (f *fakeSource) LoadSnapshot(ctx context.Context, userID int64) (*rbac.Snapshot, error) {
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	snap, ok := f.snapshots[userID]
	if !ok {
		return nil, rbac.ErrUserNotFound
	}
	return snap, nil
}

func activeSnapshot(userID int64) *rbac.Snapshot {
	roleID := int64(1)
	return &rbac.Snapshot{
		UserID:   userID,
		RoleID:   &roleID,
		RoleName: rbac.RoleNameEmployee,
		Kind:     rbac.RoleKindAgent,
		IsActive: true,
	}
}

func newTestManager(t *testing.T, source rbac.SnapshotSource) (*SessionManager, *cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	c := cache.New(cache.DefaultConfig())
	m := NewSessionManager(NewRedisSessionStore(client), source, c, nil)
	return m, c, mr
}

func TestSessionManagerCreateAndValidate(t *testing.T) {
	source := &fakeSource{snapshots: map[int64]*rbac.Snapshot{7: activeSnapshot(7)}}
	m, _, _ := newTestManager(t, source)
	ctx := context.Background()

	token, err := m.CreateSession(ctx, 7)
	require.NoError(t, err)

	authCtx, err := m.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), authCtx.UserID)
	assert.Equal(t, HashToken(token), authCtx.TokenHash)
	require.NotNil(t, authCtx.Snapshot)
	assert.Equal(t, rbac.RoleKindAgent, authCtx.Snapshot.Kind)
}

func TestSessionManagerValidateUsesCache(t *testing.T) {
	source := &fakeSource{snapshots: map[int64]*rbac.Snapshot{7: activeSnapshot(7)}}
	m, _, _ := newTestManager(t, source)
	ctx := context.Background()

	token, err := m.CreateSession(ctx, 7)
	require.NoError(t, err)

	_, err = m.Validate(ctx, token)
	require.NoError(t, err)
	_, err = m.Validate(ctx, token)
	require.NoError(t, err)

	assert.Equal(t, 1, source.loads, "second validation must hit the cache")
}

func TestSessionManagerValidateBadToken(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeSource{})

	_, err := m.Validate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManagerValidateUnknownToken(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeSource{})

	token, _, err := GenerateToken()
	require.NoError(t, err)

	_, err = m.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManagerValidateInactiveUser(t *testing.T) {
	inactive := activeSnapshot(7)
	inactive.IsActive = false
	source := &fakeSource{snapshots: map[int64]*rbac.Snapshot{7: inactive}}
	m, _, _ := newTestManager(t, source)
	ctx := context.Background()

	token, err := m.CreateSession(ctx, 7)
	require.NoError(t, err)

	_, err = m.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManagerValidateStoreUnavailable(t *testing.T) {
	m, _, mr := newTestManager(t, &fakeSource{})
	mr.Close()

	token, _, err := GenerateToken()
	require.NoError(t, err)

	_, err = m.Validate(context.Background(), token)
	assert.ErrorIs(t, err, rbac.ErrStoreUnavailable,
		"store failure must be distinguishable from a missing session")
}

func TestSessionManagerRevoke(t *testing.T) {
	source := &fakeSource{snapshots: map[int64]*rbac.Snapshot{7: activeSnapshot(7)}}
	m, _, _ := newTestManager(t, source)
	ctx := context.Background()

	token, err := m.CreateSession(ctx, 7)
	require.NoError(t, err)
	_, err = m.Validate(ctx, token)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, token))

	// The cached validation must not survive the revocation
	_, err = m.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManagerRevokeAllForUser(t *testing.T) {
	source := &fakeSource{snapshots: map[int64]*rbac.Snapshot{
		7: activeSnapshot(7),
		8: activeSnapshot(8),
	}}
	m, _, _ := newTestManager(t, source)
	ctx := context.Background()

	tokenA, err := m.CreateSession(ctx, 7)
	require.NoError(t, err)
	tokenB, err := m.CreateSession(ctx, 7)
	require.NoError(t, err)
	tokenOther, err := m.CreateSession(ctx, 8)
	require.NoError(t, err)

	for _, token := range []string{tokenA, tokenB, tokenOther} {
		_, err = m.Validate(ctx, token)
		require.NoError(t, err)
	}

	require.NoError(t, m.RevokeAllForUser(ctx, 1, 7))

	_, err = m.Validate(ctx, tokenA)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Validate(ctx, tokenB)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	authCtx, err := m.Validate(ctx, tokenOther)
	require.NoError(t, err)
	assert.Equal(t, int64(8), authCtx.UserID)
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(2*time.Minute)))
}
