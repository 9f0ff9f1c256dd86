package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// burstGate smooths request bursts within a window using a per-key token
// bucket, independent of the window counters in limiter.go. Adapted from
// the teacher's per-user rate.Limiter map in its budget manager, which
// throttled a cost-aware spend rate; this throttles raw request rate as
// a cheap first line of defense before the window counters ever run.
type burstGate struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newBurstGate() *burstGate {
	return &burstGate{limiters: make(map[string]*rate.Limiter)}
}

// allow reports whether key may proceed under a bucket refilling at
// perSecond tokens/sec with the given burst capacity, creating the bucket
// on first use.
func (g *burstGate) allow(key string, perSecond float64, burst int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	lim, ok := g.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(perSecond), burst)
		g.limiters[key] = lim
	}
	return lim.Allow()
}
