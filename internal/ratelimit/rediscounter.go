package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aegis-run/governor/internal/circuitbreaker"
)

// redisCounter backs the limiter across multiple process instances. It
// approximates the exact single-key reservation algorithm with INCR+EXPIRE:
// the bucket's TTL is its window lifetime, so an expired bucket is absent
// rather than swept by a janitor. A request is admitted as long as the
// post-increment value stays at or under cap; Redis's own expiry makes a
// separate cleanup sweep unnecessary on this backend.
type redisCounter struct {
	redis *circuitbreaker.RedisWrapper
}

func newRedisCounter(rw *circuitbreaker.RedisWrapper) *redisCounter {
	return &redisCounter{redis: rw}
}

func (c *redisCounter) reserve(ctx context.Context, key string, windowEnd time.Time, cap int) (bool, error) {
	n, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr: %w", err)
	}
	if n == 1 {
		ttl := time.Until(windowEnd)
		if ttl <= 0 {
			ttl = time.Second
		}
		if err := c.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return false, fmt.Errorf("expire: %w", err)
		}
	}
	return n <= int64(cap), nil
}

func (c *redisCounter) stop() {}

// NewRedisLimiter builds a Limiter backed by Redis, shared across process
// instances. C10's entitlement cache is in-process and does not share
// this client or its breaker.
func NewRedisLimiter(caps *CapTable, rw *circuitbreaker.RedisWrapper, logger *zap.Logger) *Limiter {
	return newLimiter(newRedisCounter(rw), caps, logger)
}
