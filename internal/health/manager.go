package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered Checkers on a fixed interval and serves their
// last results, grounded on the teacher's NewManager/RegisterChecker
// lifecycle but stripped of per-check YAML configuration (critical/
// enabled/timeout per check): this module has few enough checkers that a
// single global interval and timeout suffice.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	results  map[string]Result
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	stop     chan struct{}
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		results:  make(map[string]Result),
		interval: 15 * time.Second,
		timeout:  5 * time.Second,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

func (m *Manager) RegisterChecker(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Start runs an immediate check pass, then repeats on m.interval until ctx
// is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	m.runAll(ctx)
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.runAll(ctx)
			}
		}
	}()
}

func (m *Manager) Stop() {
	close(m.stop)
}

func (m *Manager) runAll(ctx context.Context) {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	for _, c := range checkers {
		start := time.Now()
		checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := c.Check(checkCtx)
		cancel()

		status := StatusHealthy
		message := ""
		if err != nil {
			message = err.Error()
			if c.Critical() {
				status = StatusUnhealthy
			} else {
				status = StatusDegraded
			}
			m.logger.Warn("health check failed", zap.String("component", c.Name()), zap.Error(err))
		}

		result := Result{
			Component: c.Name(), Status: status, Message: message,
			Duration: time.Since(start), Timestamp: time.Now(), Critical: c.Critical(),
		}
		m.mu.Lock()
		m.results[c.Name()] = result
		m.mu.Unlock()
	}
}

// Snapshot returns the last result of every registered checker.
func (m *Manager) Snapshot() map[string]Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Result, len(m.results))
	for k, v := range m.results {
		out[k] = v
	}
	return out
}

// Ready reports whether every critical checker's last result was
// healthy. An unchecked (no results yet) manager is considered ready —
// readiness shouldn't flap false during the brief startup window before
// the first check pass completes.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.checkers {
		if !c.Critical() {
			continue
		}
		if r, ok := m.results[c.Name()]; ok && r.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}
