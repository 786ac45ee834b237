package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/piwi3910/tenantcore/internal/config"
)

// recordFailureScript atomically applies the failure transition:
//  1. Clear the entry if its lock has expired
//  2. No-op while a lock is still active
//  3. Increment the counter and set locked_until once it reaches max
//
// Keys: KEYS[1] = attempt hash
// Args: ARGV[1] = now (unix ms), ARGV[2] = max attempts, ARGV[3] = lockout (ms)
// Returns: {failures, locked_until_ms}
var recordFailureScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local lockout = tonumber(ARGV[3])

local lu = tonumber(redis.call("HGET", KEYS[1], "locked_until") or "0")
if lu > 0 then
    if now < lu then
        local f = tonumber(redis.call("HGET", KEYS[1], "failures") or "0")
        return {f, lu}
    end
    redis.call("DEL", KEYS[1])
    lu = 0
end

local f = redis.call("HINCRBY", KEYS[1], "failures", 1)
if f >= max then
    lu = now + lockout
    redis.call("HSET", KEYS[1], "locked_until", lu)
end

-- Auto-expire idle entries well after any lock would have cleared
local ttl = lockout * 2
if ttl < 3600000 then ttl = 3600000 end
redis.call("PEXPIRE", KEYS[1], ttl)

return {f, lu}
`)

// recordSuccessScript clears the entry unless a lock is still active.
// Returns 1 when cleared, 0 when the lock made it a no-op.
var recordSuccessScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local lu = tonumber(redis.call("HGET", KEYS[1], "locked_until") or "0")
if lu > 0 and now < lu then
    return 0
end
redis.call("DEL", KEYS[1])
return 1
`)

// stateScript reads the entry, clearing it first if the lock has expired.
// Returns {failures, locked_until_ms}.
var stateScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local lu = tonumber(redis.call("HGET", KEYS[1], "locked_until") or "0")
if lu > 0 and now >= lu then
    redis.call("DEL", KEYS[1])
    return {0, 0}
end
local f = tonumber(redis.call("HGET", KEYS[1], "failures") or "0")
return {f, lu}
`)

// RedisStore is an AttemptStore backed by Redis, for multi-instance
// deployments where lockout state must be shared. All transitions run as Lua
// scripts, giving the same per-key linearization the in-memory store gets
// from its mutex.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed attempt store.
func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "tenantcore:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisStore{client: client, prefix: prefix + "lockout:"}
}

// NewRedisStoreFromClient creates a Redis-backed attempt store using an
// existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tenantcore:"
	}

	return &RedisStore{client: client, prefix: prefix + "lockout:"}
}

func (s *RedisStore) key(principalKey string) string {
	return s.prefix + principalKey
}

// RecordFailure implements AttemptStore.
func (s *RedisStore) RecordFailure(ctx context.Context, key string, now time.Time, max int, lockout time.Duration) (AttemptState, error) {
	res, err := recordFailureScript.Run(ctx, s.client, []string{s.key(key)},
		now.UnixMilli(), max, lockout.Milliseconds()).Int64Slice()
	if err != nil {
		return AttemptState{}, fmt.Errorf("redis record failure: %w", err)
	}

	return stateFromReply(res)
}

// RecordSuccess implements AttemptStore.
func (s *RedisStore) RecordSuccess(ctx context.Context, key string, now time.Time) error {
	if err := recordSuccessScript.Run(ctx, s.client, []string{s.key(key)},
		now.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("redis record success: %w", err)
	}

	return nil
}

// State implements AttemptStore.
func (s *RedisStore) State(ctx context.Context, key string, now time.Time) (AttemptState, error) {
	res, err := stateScript.Run(ctx, s.client, []string{s.key(key)},
		now.UnixMilli()).Int64Slice()
	if err != nil {
		return AttemptState{}, fmt.Errorf("redis read state: %w", err)
	}

	return stateFromReply(res)
}

// Ping implements AttemptStore.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements AttemptStore.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func stateFromReply(res []int64) (AttemptState, error) {
	if len(res) != 2 {
		return AttemptState{}, fmt.Errorf("redis reply has %d elements, want 2", len(res))
	}

	state := AttemptState{FailedAttempts: int(res[0])}
	if res[1] > 0 {
		state.LockedUntil = time.UnixMilli(res[1])
	}

	return state, nil
}
