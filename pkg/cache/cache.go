package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/opendesk-io/opendesk/pkg/observability"
	"github.com/opendesk-io/opendesk/pkg/rbac"
	"github.com/robfig/cron/v3"
)

// Config controls cache TTLs, capacities, and the cleanup schedule
type Config struct {
	UserTTL      time.Duration
	UserCapacity int

	SessionTTL      time.Duration
	SessionCapacity int
	// SessionMinRemaining is the floor below which a session is never
	// cached: a token about to expire always goes back to the store.
	SessionMinRemaining time.Duration

	CleanupInterval time.Duration

	// Now is the clock; defaults to time.Now. Injected so TTL behavior is
	// testable.
	Now func() time.Time
}

// DefaultConfig returns the production cache configuration
func DefaultConfig() Config {
	return Config{
		UserTTL:             5 * time.Minute,
		UserCapacity:        1000,
		SessionTTL:          10 * time.Minute,
		SessionCapacity:     2000,
		SessionMinRemaining: time.Minute,
		CleanupInterval:     5 * time.Minute,
	}
}

// SessionValidation is a cached session lookup: the session attributes plus
// the user snapshot resolved when it was validated.
type SessionValidation struct {
	TokenHash string
	UserID    int64
	ExpiresAt time.Time
	Snapshot  *rbac.Snapshot
}

type userEntry struct {
	snap       *rbac.Snapshot
	insertedAt time.Time
	expiresAt  time.Time
}

type sessionEntry struct {
	val        *SessionValidation
	insertedAt time.Time
	expiresAt  time.Time
}

// Stats is a point-in-time view of cache effectiveness
type Stats struct {
	Users    SideStats `json:"users"`
	Sessions SideStats `json:"sessions"`
}

// SideStats covers one of the two caches
type SideStats struct {
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hitRate"`
}

// Cache is the process-local permission cache: user permission snapshots
// and session validations, each independently keyed, TTL'd, and capacity
// bounded. All methods are safe for concurrent use.
//
// A Cache is constructed by the composition root and injected; Start runs
// the periodic expired-entry sweep and Stop halts it.
type Cache struct {
	cfg Config

	mu       sync.RWMutex
	users    map[int64]*userEntry
	sessions map[string]*sessionEntry

	userHits, userMisses, userEvictions          uint64
	sessionHits, sessionMisses, sessionEvictions uint64

	cron    *cron.Cron
	metrics *observability.Metrics
}

// New creates a cache from the given configuration
func New(cfg Config) *Cache {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		cfg:      cfg,
		users:    make(map[int64]*userEntry, cfg.UserCapacity),
		sessions: make(map[string]*sessionEntry, cfg.SessionCapacity),
	}
}

// WithMetrics attaches Prometheus counters for hits, misses, evictions, and size
func (c *Cache) WithMetrics(m *observability.Metrics) *Cache {
	c.metrics = m
	return c
}

// Start schedules the periodic cleanup sweep. Safe to skip in tests;
// Cleanup can always be invoked directly.
func (c *Cache) Start() error {
	c.cron = cron.New()
	spec := "@every " + c.cfg.CleanupInterval.String()
	if _, err := c.cron.AddFunc(spec, func() { c.Cleanup() }); err != nil {
		return err
	}
	c.cron.Start()
	return nil
}

// Stop halts the cleanup schedule and waits for a running sweep to finish
func (c *Cache) Stop() {
	if c.cron != nil {
		ctx := c.cron.Stop()
		<-ctx.Done()
	}
}

// GetUser returns the cached snapshot for a user, honoring the TTL
func (c *Cache) GetUser(userID int64) (*rbac.Snapshot, bool) {
	now := c.cfg.Now()

	c.mu.RLock()
	entry, ok := c.users[userID]
	c.mu.RUnlock()

	if !ok || now.After(entry.expiresAt) {
		c.mu.Lock()
		if entry2, ok2 := c.users[userID]; ok2 && now.After(entry2.expiresAt) {
			delete(c.users, userID)
		}
		c.userMisses++
		c.mu.Unlock()
		c.observeMiss("users")
		return nil, false
	}

	c.mu.Lock()
	c.userHits++
	c.mu.Unlock()
	c.observeHit("users")
	return entry.snap, true
}

// SetUser caches a user snapshot, evicting the oldest-by-insertion 10% of
// entries first when the cache is full.
func (c *Cache) SetUser(userID int64, snap *rbac.Snapshot) {
	now := c.cfg.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.users[userID]; !exists && len(c.users) >= c.cfg.UserCapacity {
		c.evictOldestUsersLocked()
	}
	c.users[userID] = &userEntry{
		snap:       snap,
		insertedAt: now,
		expiresAt:  now.Add(c.cfg.UserTTL),
	}
	c.updateSizeGauges()
}

// GetSessionValidation returns the cached validation for a token hash
func (c *Cache) GetSessionValidation(tokenHash string) (*SessionValidation, bool) {
	now := c.cfg.Now()

	c.mu.RLock()
	entry, ok := c.sessions[tokenHash]
	c.mu.RUnlock()

	if !ok || now.After(entry.expiresAt) || now.After(entry.val.ExpiresAt) {
		c.mu.Lock()
		if entry2, ok2 := c.sessions[tokenHash]; ok2 && (now.After(entry2.expiresAt) || now.After(entry2.val.ExpiresAt)) {
			delete(c.sessions, tokenHash)
		}
		c.sessionMisses++
		c.mu.Unlock()
		c.observeMiss("sessions")
		return nil, false
	}

	c.mu.Lock()
	c.sessionHits++
	c.mu.Unlock()
	c.observeHit("sessions")
	return entry.val, true
}

// SetSessionValidation caches a session validation. Sessions expiring
// within SessionMinRemaining are never cached: the imminent invalidation
// must come from the store, not from a stale cache entry.
func (c *Cache) SetSessionValidation(val *SessionValidation) {
	now := c.cfg.Now()
	if val.ExpiresAt.Sub(now) < c.cfg.SessionMinRemaining {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.sessions[val.TokenHash]; !exists && len(c.sessions) >= c.cfg.SessionCapacity {
		c.evictOldestSessionsLocked()
	}

	expiresAt := now.Add(c.cfg.SessionTTL)
	if val.ExpiresAt.Before(expiresAt) {
		expiresAt = val.ExpiresAt
	}
	c.sessions[val.TokenHash] = &sessionEntry{
		val:        val,
		insertedAt: now,
		expiresAt:  expiresAt,
	}
	c.updateSizeGauges()
}

// InvalidateUser drops the user's snapshot AND every cached session
// validation for that user. Role and team mutations call this synchronously
// before responding: a demoted user must not retain elevated cached
// permissions for even one more request.
func (c *Cache) InvalidateUser(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.users, userID)
	for hash, entry := range c.sessions {
		if entry.val.UserID == userID {
			delete(c.sessions, hash)
		}
	}
	c.updateSizeGauges()
}

// InvalidateSession drops a single cached session validation
func (c *Cache) InvalidateSession(tokenHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, tokenHash)
	c.updateSizeGauges()
}

// InvalidateUserSessions drops every cached session validation for a user
// while leaving the user snapshot intact (logout-everywhere).
func (c *Cache) InvalidateUserSessions(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for hash, entry := range c.sessions {
		if entry.val.UserID == userID {
			delete(c.sessions, hash)
		}
	}
	c.updateSizeGauges()
}

// Cleanup sweeps expired entries from both caches. The sweep is a single
// bounded scan under the write lock.
func (c *Cache) Cleanup() {
	now := c.cfg.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, entry := range c.users {
		if now.After(entry.expiresAt) {
			delete(c.users, id)
			c.userEvictions++
			c.observeEvictionLocked("users", "expired")
		}
	}
	for hash, entry := range c.sessions {
		if now.After(entry.expiresAt) || now.After(entry.val.ExpiresAt) {
			delete(c.sessions, hash)
			c.sessionEvictions++
			c.observeEvictionLocked("sessions", "expired")
		}
	}
	c.updateSizeGauges()
}

// Clear drops everything from both caches
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = make(map[int64]*userEntry, c.cfg.UserCapacity)
	c.sessions = make(map[string]*sessionEntry, c.cfg.SessionCapacity)
	c.updateSizeGauges()
}

// Stats returns hit/miss/eviction counters and current sizes
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Users: SideStats{
			Size:      len(c.users),
			Capacity:  c.cfg.UserCapacity,
			Hits:      c.userHits,
			Misses:    c.userMisses,
			Evictions: c.userEvictions,
			HitRate:   hitRate(c.userHits, c.userMisses),
		},
		Sessions: SideStats{
			Size:      len(c.sessions),
			Capacity:  c.cfg.SessionCapacity,
			Hits:      c.sessionHits,
			Misses:    c.sessionMisses,
			Evictions: c.sessionEvictions,
			HitRate:   hitRate(c.sessionHits, c.sessionMisses),
		},
	}
}

func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// evictOldestUsersLocked removes the oldest-by-insertion 10% of entries.
// Caller holds the write lock.
func (c *Cache) evictOldestUsersLocked() {
	n := c.cfg.UserCapacity / 10
	if n < 1 {
		n = 1
	}

	type aged struct {
		id         int64
		insertedAt time.Time
	}
	entries := make([]aged, 0, len(c.users))
	for id, entry := range c.users {
		entries = append(entries, aged{id: id, insertedAt: entry.insertedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].insertedAt.Before(entries[j].insertedAt)
	})

	for i := 0; i < n && i < len(entries); i++ {
		delete(c.users, entries[i].id)
		c.userEvictions++
		c.observeEvictionLocked("users", "capacity")
	}
}

// evictOldestSessionsLocked removes the oldest-by-insertion 10% of entries.
// Caller holds the write lock.
func (c *Cache) evictOldestSessionsLocked() {
	n := c.cfg.SessionCapacity / 10
	if n < 1 {
		n = 1
	}

	type aged struct {
		hash       string
		insertedAt time.Time
	}
	entries := make([]aged, 0, len(c.sessions))
	for hash, entry := range c.sessions {
		entries = append(entries, aged{hash: hash, insertedAt: entry.insertedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].insertedAt.Before(entries[j].insertedAt)
	})

	for i := 0; i < n && i < len(entries); i++ {
		delete(c.sessions, entries[i].hash)
		c.sessionEvictions++
		c.observeEvictionLocked("sessions", "capacity")
	}
}

func (c *Cache) observeHit(side string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(side).Inc()
	}
}

func (c *Cache) observeMiss(side string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(side).Inc()
	}
}

func (c *Cache) observeEvictionLocked(side, reason string) {
	if c.metrics != nil {
		c.metrics.CacheEvictionsTotal.WithLabelValues(side, reason).Inc()
	}
}

func (c *Cache) updateSizeGauges() {
	if c.metrics != nil {
		c.metrics.CacheSize.WithLabelValues("users").Set(float64(len(c.users)))
		c.metrics.CacheSize.WithLabelValues("sessions").Set(float64(len(c.sessions)))
	}
}
