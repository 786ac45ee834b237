// Package cache provides a tenant-scoped cache for shared infrastructure.
//
// The sharded in-memory implementation keeps lock contention low by hashing
// keys across independent shards. The TenantCache wrapper routes every key
// through the isolation resolver before it touches the backing cache, so two
// tenants can never observe each other's entries regardless of the raw keys
// they use.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

// Default cache configuration values.
const (
	defaultShardCount = 64
	defaultTTL        = time.Hour
)

// entry is a cached value with its expiry.
type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// shard is one lock domain of the cache.
type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// Sharded is an in-memory cache with per-shard locking and lazy TTL expiry.
type Sharded struct {
	shards     []*shard
	defaultTTL time.Duration
	clock      func() time.Time
}

// NewSharded creates an in-memory cache. shardCount and ttl fall back to
// defaults when non-positive.
func NewSharded(shardCount int, ttl time.Duration) *Sharded {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]entry)}
	}

	return &Sharded{shards: shards, defaultTTL: ttl, clock: time.Now}
}

// WithClock overrides the cache clock for testing.
func (c *Sharded) WithClock(clock func() time.Time) *Sharded {
	c.clock = clock

	return c
}

func (c *Sharded) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))

	return c.shards[int(h.Sum32())%len(c.shards)]
}

// Get returns the value for key, or (nil, false) when absent or expired.
func (c *Sharded) Get(key string) ([]byte, bool) {
	s := c.shardFor(key)
	now := c.clock()

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if e.expired(now) {
		s.mu.Lock()
		// Re-check under the write lock: another writer may have replaced it
		if cur, still := s.entries[key]; still && cur.expired(now) {
			delete(s.entries, key)
		}
		s.mu.Unlock()

		return nil, false
	}

	return e.value, true
}

// Set stores value under key. A non-positive ttl uses the cache default.
func (c *Sharded) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	s := c.shardFor(key)

	s.mu.Lock()
	s.entries[key] = entry{value: value, expiresAt: c.clock().Add(ttl)}
	s.mu.Unlock()
}

// Delete removes key.
func (c *Sharded) Delete(key string) {
	s := c.shardFor(key)

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len returns the number of live entries across all shards.
func (c *Sharded) Len() int {
	now := c.clock()
	total := 0

	for _, s := range c.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			if !e.expired(now) {
				total++
			}
		}
		s.mu.RUnlock()
	}

	return total
}
