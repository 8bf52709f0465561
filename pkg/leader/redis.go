// Package leader implements the executor's LeaderChecker fence (spec §5:
// single writer per log) via a Redis SET-NX-EX lease, grounded on the
// teacher's use of github.com/redis/go-redis/v9 for distributed
// coordination primitives (pkg/kernel/limiter_redis.go).
package leader

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rynxs/operator-core/pkg/errs"
)

// RedisLeaseChecker holds (or contends for) a time-boxed lease at key,
// identified by id. Spec §9's open question on the "late leadership loss"
// window applies here: a lease held in Redis can expire between an
// IsLeader() check and the executor's subsequent Create/Patch call, same
// as the documented gap for any external lock.
type RedisLeaseChecker struct {
	client *redis.Client
	key    string
	id     string
	ttl    time.Duration
}

// NewRedisLeaseChecker constructs a checker for a lease at key, identified
// by this process's id, held for ttl at a time.
func NewRedisLeaseChecker(addr, password string, db int, key, id string, ttl time.Duration) *RedisLeaseChecker {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &RedisLeaseChecker{client: rdb, key: key, id: id, ttl: ttl}
}

// IsLeader attempts to acquire or renew the lease. It returns true iff this
// process currently holds it.
func (c *RedisLeaseChecker) IsLeader(ctx context.Context) (bool, error) {
	acquired, err := c.client.SetNX(ctx, c.key, c.id, c.ttl).Result()
	if err != nil {
		return false, errs.StorageWrap(err, "leader: redis setnx failed")
	}
	if acquired {
		return true, nil
	}

	held, err := c.client.Get(ctx, c.key).Result()
	if err != nil && err != redis.Nil {
		return false, errs.StorageWrap(err, "leader: redis get failed")
	}
	if held == c.id {
		// Renew our own lease.
		if err := c.client.Expire(ctx, c.key, c.ttl).Err(); err != nil {
			return false, errs.StorageWrap(err, "leader: redis renew failed")
		}
		return true, nil
	}
	return false, nil
}

// Release gives up the lease if we currently hold it.
func (c *RedisLeaseChecker) Release(ctx context.Context) error {
	held, err := c.client.Get(ctx, c.key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return errs.StorageWrap(err, "leader: redis get failed")
	}
	if held != c.id {
		return nil
	}
	return c.client.Del(ctx, c.key).Err()
}

// Close releases the underlying Redis client.
func (c *RedisLeaseChecker) Close() error { return c.client.Close() }
