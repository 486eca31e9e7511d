package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/opendesk-io/opendesk/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSessionStore(client), mr
}

func testSession(userID int64, tokenHash string) *Session {
	now := time.Now()
	return &Session{
		TokenHash: tokenHash,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	session := testSession(7, "hash-a")
	require.NoError(t, store.Create(ctx, session))

	got, err := store.Get(ctx, "hash-a")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, "hash-a", got.TokenHash)
}

func TestRedisSessionStoreGetMissing(t *testing.T) {
	store, _ := newTestRedisStore(t)

	_, err := store.Get(context.Background(), "no-such-hash")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStoreExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	session := testSession(7, "hash-a")
	session.ExpiresAt = time.Now().Add(time.Minute)
	require.NoError(t, store.Create(ctx, session))

	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "hash-a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStoreDelete(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession(7, "hash-a")))
	require.NoError(t, store.Delete(ctx, "hash-a"))

	_, err := store.Get(ctx, "hash-a")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Deleting a missing session is not an error
	assert.NoError(t, store.Delete(ctx, "hash-a"))
}

func TestRedisSessionStoreDeleteAllForUser(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession(7, "u7-a")))
	require.NoError(t, store.Create(ctx, testSession(7, "u7-b")))
	require.NoError(t, store.Create(ctx, testSession(8, "u8-a")))

	require.NoError(t, store.DeleteAllForUser(ctx, 7))

	_, err := store.Get(ctx, "u7-a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Get(ctx, "u7-b")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	got, err := store.Get(ctx, "u8-a")
	require.NoError(t, err)
	assert.Equal(t, int64(8), got.UserID)
}

func TestRedisSessionStoreUnavailable(t *testing.T) {
	store, mr := newTestRedisStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "hash-a")
	assert.ErrorIs(t, err, rbac.ErrStoreUnavailable)
}
