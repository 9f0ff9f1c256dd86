package circuitbreaker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWrapper wraps a go-redis v9 client with a circuit breaker. Used by
// the rate limiter (C9) for sliding-window counters; the auth gate's (C10)
// entitlement cache is in-process and does not use it.
type RedisWrapper struct {
	client *redis.Client
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewRedisWrapper creates a Redis wrapper with circuit breaker.
func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	config := GetRedisConfig().ToConfig()
	cb := NewCircuitBreaker("redis", config, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker("redis", "governor", cb)
	return &RedisWrapper{client: client, cb: cb, logger: logger}
}

func (rw *RedisWrapper) record(success bool) {
	GlobalMetricsCollector.RecordRequest("redis", "governor", rw.cb.State(), success)
}

// Ping wraps Redis Ping with circuit breaker.
func (rw *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	var result *redis.StatusCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Ping(ctx)
		return result.Err()
	})
	rw.record(err == nil)
	if err != nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Get wraps Redis Get with circuit breaker. redis.Nil does not trip the breaker.
func (rw *RedisWrapper) Get(ctx context.Context, key string) *redis.StringCmd {
	var result *redis.StringCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Get(ctx, key)
		if result.Err() == redis.Nil {
			return nil
		}
		return result.Err()
	})
	rw.record(err == nil)
	if err != nil {
		result = redis.NewStringCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Set wraps Redis Set with circuit breaker.
func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	var result *redis.StatusCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Set(ctx, key, value, expiration)
		return result.Err()
	})
	rw.record(err == nil)
	if err != nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Del wraps Redis Del with circuit breaker.
func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var result *redis.IntCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Del(ctx, keys...)
		return result.Err()
	})
	rw.record(err == nil)
	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Keys wraps Redis Keys with circuit breaker.
func (rw *RedisWrapper) Keys(ctx context.Context, pattern string) *redis.StringSliceCmd {
	var result *redis.StringSliceCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Keys(ctx, pattern)
		return result.Err()
	})
	rw.record(err == nil)
	if err != nil {
		result = redis.NewStringSliceCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Incr wraps Redis INCR with circuit breaker. Used by the rate limiter to
// bump a sliding-window bucket counter.
func (rw *RedisWrapper) Incr(ctx context.Context, key string) *redis.IntCmd {
	var result *redis.IntCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Incr(ctx, key)
		return result.Err()
	})
	rw.record(err == nil)
	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Expire wraps Redis EXPIRE with circuit breaker. Called once right after
// a counter's first Incr to bound the bucket's lifetime.
func (rw *RedisWrapper) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	var result *redis.BoolCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Expire(ctx, key, ttl)
		return result.Err()
	})
	rw.record(err == nil)
	if err != nil {
		result = redis.NewBoolCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// TTL wraps Redis TTL with circuit breaker.
func (rw *RedisWrapper) TTL(ctx context.Context, key string) *redis.DurationCmd {
	var result *redis.DurationCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.TTL(ctx, key)
		return result.Err()
	})
	rw.record(err == nil)
	if err != nil {
		result = redis.NewDurationCmd(ctx, 0)
		result.SetErr(err)
	}
	return result
}

// Close wraps Redis Close.
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// GetClient returns the underlying Redis client for operations not covered by wrapper.
func (rw *RedisWrapper) GetClient() *redis.Client {
	return rw.client
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open.
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.State() == StateOpen
}
