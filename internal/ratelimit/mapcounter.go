package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const janitorInterval = 10 * time.Minute

type mapEntry struct {
	count     int
	resetTime time.Time
}

// mapCounter is the in-process backend: a mutex-guarded map, one entry per
// key, swept by a background janitor every 10 minutes. The same mutex
// guards both reserve and the janitor's sweep, so cleanup never races a
// concurrent increment.
type mapCounter struct {
	mu      sync.Mutex
	entries map[string]mapEntry
	stopCh  chan struct{}
	now     func() time.Time
}

func newMapCounter() *mapCounter {
	c := &mapCounter{
		entries: make(map[string]mapEntry),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	go c.janitor()
	return c
}

func (c *mapCounter) reserve(_ context.Context, key string, windowEnd time.Time, cap int) (bool, error) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || now.After(e.resetTime) {
		c.entries[key] = mapEntry{count: 1, resetTime: windowEnd}
		return true, nil
	}
	if e.count >= cap {
		return false, nil
	}
	e.count++
	c.entries[key] = e
	return true, nil
}

func (c *mapCounter) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

func (c *mapCounter) sweep() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if now.After(e.resetTime) {
			delete(c.entries, key)
		}
	}
}

func (c *mapCounter) stop() {
	close(c.stopCh)
}

// NewMapLimiter builds an in-process Limiter, for tests and single-instance
// deployments that run without Redis.
func NewMapLimiter(caps *CapTable, logger *zap.Logger) *Limiter {
	return newLimiter(newMapCounter(), caps, logger)
}
