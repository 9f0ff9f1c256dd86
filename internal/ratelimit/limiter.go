// Package ratelimit implements C9: a sliding-window admit/deny limiter
// keyed by (uid, endpoint, windowStart), with per-tier caps on daily calls,
// hourly calls, and endpoint-scoped hourly calls. Grounded on
// internal/ratecontrol.go's YAML tier-cap loading idiom, but the counter
// semantics themselves are new — ratecontrol computes a throttling delay,
// this computes a hard admit/deny decision per spec.md §4.9.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aegis-run/governor/internal/metrics"
	"github.com/aegis-run/governor/internal/store"
)

// DenyReason identifies which cap tripped, per spec.md §4.9's 429 body
// shape {type: daily_calls|hourly_calls|endpoint_calls, resetAt}.
type DenyReason string

const (
	ReasonNone            DenyReason = ""
	ReasonDailyCalls      DenyReason = "daily_calls"
	ReasonHourlyCalls     DenyReason = "hourly_calls"
	ReasonEndpointCalls   DenyReason = "endpoint_calls"
	ReasonCostExceedsCall DenyReason = "cost_per_call"
	ReasonBurst           DenyReason = "burst"
)

// Decision is the outcome of a single Check call.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	ResetAt time.Time
}

// counter implements the single-key reservation algorithm of spec.md §4.9:
// no entry or expired → admit and reset to count=1; count>=cap → deny;
// else increment and admit. Each key's read-modify-write must be atomic.
type counter interface {
	reserve(ctx context.Context, key string, windowEnd time.Time, cap int) (allowed bool, err error)
	stop()
}

// Limiter is the per-tier, per-backend rate limiter. Construct one with
// NewMapLimiter for in-process (tests, local dev, single-instance) use or
// NewRedisLimiter for a cross-process deployment.
type Limiter struct {
	counter counter
	caps    *CapTable
	burst   *burstGate
	clock   func() time.Time
	logger  *zap.Logger
}

func newLimiter(c counter, caps *CapTable, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{counter: c, caps: caps, burst: newBurstGate(), clock: time.Now, logger: logger}
}

// Stop releases the backend's background resources (the in-process
// janitor goroutine, in the map-backed case).
func (l *Limiter) Stop() {
	l.counter.stop()
}

// Check runs the three window checks spec.md §4.9 requires for a call to
// (uid, endpoint) at tier: daily cap, hourly cap, endpoint-hourly cap, in
// that order, short-circuiting on the first denial. maxCostPerCall is
// exposed via Caps so the router can apply it before ever reaching here —
// Check itself never looks at a call's actual cost.
func (l *Limiter) Check(ctx context.Context, uid, endpoint string, tier store.Tier) (Decision, error) {
	caps := l.caps.For(tier)
	now := l.clock()

	if caps.BurstPerSecond > 0 && !l.burst.allow(uid, caps.BurstPerSecond, caps.BurstCapacity) {
		metrics.RateLimitDenied.WithLabelValues(string(tier), string(ReasonBurst)).Inc()
		return Decision{Allowed: false, Reason: ReasonBurst, ResetAt: now.Add(time.Second)}, nil
	}

	checks := []struct {
		reason DenyReason
		cap    int
		w      window
		scoped bool
	}{
		{ReasonDailyCalls, caps.MaxCallsPerDay, windowDay, false},
		{ReasonHourlyCalls, caps.MaxCallsPerHour, windowHour, false},
		{ReasonEndpointCalls, caps.MaxCallsPerEndpointPerHour, windowHour, true},
	}

	for _, c := range checks {
		if c.cap <= 0 {
			return Decision{Allowed: false, Reason: c.reason, ResetAt: now}, nil
		}
		start, end := c.w.bounds(now)
		key := compositeKey(uid, endpoint, c.scoped, c.w, start)
		allowed, err := l.counter.reserve(ctx, key, end, c.cap)
		if err != nil {
			return Decision{}, fmt.Errorf("ratelimit: reserve %s: %w", key, err)
		}
		if !allowed {
			metrics.RateLimitDenied.WithLabelValues(string(tier), string(c.reason)).Inc()
			return Decision{Allowed: false, Reason: c.reason, ResetAt: end}, nil
		}
	}
	return Decision{Allowed: true}, nil
}

// Caps exposes the resolved tier caps, primarily so callers can read
// MaxCostPerCall without re-deriving it.
func (l *Limiter) Caps(tier store.Tier) TierCaps {
	return l.caps.For(tier)
}

func compositeKey(uid, endpoint string, scoped bool, w window, start time.Time) string {
	if scoped {
		return fmt.Sprintf("ratelimit:%s:%s:%s:%d", uid, endpoint, w, start.Unix())
	}
	return fmt.Sprintf("ratelimit:%s:%s:%d", uid, w, start.Unix())
}
