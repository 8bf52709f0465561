// Package ratelimit provides a distributed, Redis-backed token bucket for
// fencing the executor's dispatch rate across multiple operator replicas
// (SPEC_FULL.md §4.6), grounded on the teacher's
// pkg/kernel/limiter_redis.go (same atomic Lua token-bucket script and
// github.com/redis/go-redis/v9 client), retargeted from actor/policy
// backpressure onto per-aggregate action dispatch.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy is the token bucket shape: RPM replenishes at requests/minute,
// Burst caps the bucket size.
type Policy struct {
	RPM   int
	Burst int
}

// tokenBucketScript performs refill+consume atomically so concurrent
// operator replicas never over-admit against the same key.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    local added = elapsed * rate
    tokens = tokens + added
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return {allowed, tokens}
`)

// DistributedLimiter gates actionID dispatch across replicas via Redis.
type DistributedLimiter struct {
	client *redis.Client
	policy Policy
}

// NewDistributedLimiter constructs a limiter against addr with policy p.
func NewDistributedLimiter(addr, password string, db int, p Policy) *DistributedLimiter {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &DistributedLimiter{client: rdb, policy: p}
}

// Allow consumes cost tokens from the bucket keyed by actionID, returning
// whether dispatch may proceed.
func (l *DistributedLimiter) Allow(ctx context.Context, actionID string, cost int) (bool, error) {
	key := fmt.Sprintf("rynxs:executor:limiter:%s", actionID)

	rate := float64(l.policy.RPM) / 60.0
	if rate <= 0 {
		rate = 1.0
	}
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := tokenBucketScript.Run(ctx, l.client, []string{key}, rate, l.policy.Burst, cost, now).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis script failed: %w", err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("ratelimit: unexpected redis script response shape")
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}

// Close releases the underlying Redis client.
func (l *DistributedLimiter) Close() error { return l.client.Close() }
