package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/opendesk-io/opendesk/pkg/rbac"
)

const (
	sessionKeyPrefix  = "session:"
	userSessionPrefix = "user_sessions:"
)

// RedisSessionStore persists sessions in Redis. Each session lives under
// its own key with a TTL matching its expiry; a per-user set indexes the
// token hashes so logout-everywhere is a set scan, not a keyspace scan.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore creates a session store over a Redis client
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(tokenHash string) string {
	return sessionKeyPrefix + tokenHash
}

func userSessionsKey(userID int64) string {
	return fmt.Sprintf("%s%d", userSessionPrefix, userID)
}

// Create stores a session with a TTL matching its expiry
func (s *RedisSessionStore) Create(ctx context.Context, session *Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.TokenHash), payload, ttl)
	pipe.SAdd(ctx, userSessionsKey(session.UserID), session.TokenHash)
	pipe.Expire(ctx, userSessionsKey(session.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return rbac.StoreError("create session", err)
	}
	return nil
}

// Get fetches a session by token hash
func (s *RedisSessionStore) Get(ctx context.Context, tokenHash string) (*Session, error) {
	payload, err := s.client.Get(ctx, sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, rbac.StoreError("get session", err)
	}

	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if session.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// Delete removes a single session
func (s *RedisSessionStore) Delete(ctx context.Context, tokenHash string) error {
	session, err := s.Get(ctx, tokenHash)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(tokenHash))
	pipe.SRem(ctx, userSessionsKey(session.UserID), tokenHash)
	if _, err := pipe.Exec(ctx); err != nil {
		return rbac.StoreError("delete session", err)
	}
	return nil
}

// DeleteAllForUser removes every session belonging to a user
func (s *RedisSessionStore) DeleteAllForUser(ctx context.Context, userID int64) error {
	hashes, err := s.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return rbac.StoreError("list user sessions", err)
	}

	pipe := s.client.TxPipeline()
	for _, hash := range hashes {
		pipe.Del(ctx, sessionKey(hash))
	}
	pipe.Del(ctx, userSessionsKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return rbac.StoreError("delete user sessions", err)
	}
	return nil
}
