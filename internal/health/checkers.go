package health

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aegis-run/governor/internal/circuitbreaker"
)

// Pinger is the narrow surface a store needs to expose for a liveness
// checker (pgstore satisfies this via its *sql.DB pool; memstore's Ping
// always returns nil).
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker verifies the persistence layer is reachable. Critical:
// the entire request-governance pipeline depends on it (budget Check/
// Deduct, cost ledger writes).
type StoreChecker struct {
	store Pinger
}

func NewStoreChecker(store Pinger) *StoreChecker { return &StoreChecker{store: store} }

func (c *StoreChecker) Name() string     { return "store" }
func (c *StoreChecker) Critical() bool   { return true }
func (c *StoreChecker) Check(ctx context.Context) error { return c.store.Ping(ctx) }

// ProviderBreakerChecker reports whether any LLM provider's circuit breaker
// is open. Not critical: a single vendor outage is exactly what the
// fallback chain (C4) exists to route around, so it should surface as
// degraded rather than flip the process unready.
type ProviderBreakerChecker struct {
	breakers map[string]*circuitbreaker.CircuitBreaker
}

func NewProviderBreakerChecker(breakers map[string]*circuitbreaker.CircuitBreaker) *ProviderBreakerChecker {
	return &ProviderBreakerChecker{breakers: breakers}
}

func (c *ProviderBreakerChecker) Name() string   { return "provider_breakers" }
func (c *ProviderBreakerChecker) Critical() bool { return false }

func (c *ProviderBreakerChecker) Check(ctx context.Context) error {
	var open []string
	for name, b := range c.breakers {
		if b.State() == circuitbreaker.StateOpen {
			open = append(open, name)
		}
	}
	if len(open) == 0 {
		return nil
	}
	sort.Strings(open)
	return fmt.Errorf("circuit open for providers: %s", strings.Join(open, ", "))
}
