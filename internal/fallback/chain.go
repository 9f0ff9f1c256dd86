// Package fallback walks a routing.Route's ordered (provider, model) chain
// (C4), retrying each entry with jittered exponential backoff and skipping
// straight past non-retryable failures, with every entry gated by its
// provider's circuit breaker.
package fallback

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/aegis-run/governor/internal/circuitbreaker"
	"github.com/aegis-run/governor/internal/metrics"
	"github.com/aegis-run/governor/internal/provideradapter"
	"github.com/aegis-run/governor/internal/routing"
)

const (
	baseDelay  = 500 * time.Millisecond
	maxDelay   = 30 * time.Second
	maxAttempt = 3 // attempts (first try plus retries) within one chain entry before moving to the next
)

// Registry resolves an Adapter and a CircuitBreaker for a given provider.
// cmd/governor wires this up from configured vendor credentials; tests
// use an in-memory registry over FakeAdapter.
type Registry interface {
	Adapter(provider string) (provideradapter.Adapter, bool)
	Breaker(provider string) *circuitbreaker.CircuitBreaker
}

// MapRegistry is a Registry backed by plain maps, sufficient for wiring a
// small, fixed set of providers at startup.
type MapRegistry struct {
	adapters map[string]provideradapter.Adapter
	breakers map[string]*circuitbreaker.CircuitBreaker
}

func NewMapRegistry() *MapRegistry {
	return &MapRegistry{
		adapters: map[string]provideradapter.Adapter{},
		breakers: map[string]*circuitbreaker.CircuitBreaker{},
	}
}

func (r *MapRegistry) Register(provider string, adapter provideradapter.Adapter, logger *zap.Logger) {
	r.adapters[provider] = adapter
	r.breakers[provider] = circuitbreaker.NewProviderBreaker(provider, logger)
	circuitbreaker.GlobalMetricsCollector.RegisterCircuitBreaker("provider-"+provider, "llm-provider", r.breakers[provider])
}

func (r *MapRegistry) Adapter(provider string) (provideradapter.Adapter, bool) {
	a, ok := r.adapters[provider]
	return a, ok
}

func (r *MapRegistry) Breaker(provider string) *circuitbreaker.CircuitBreaker {
	return r.breakers[provider]
}

// ErrChainExhausted is returned when every entry in the chain failed.
var ErrChainExhausted = errors.New("fallback: all providers in chain failed")

// Attempt records the outcome of one chain entry, used for logging,
// billing attribution, and test assertions.
type Attempt struct {
	Provider string
	Model    string
	Err      error
}

// Result is the outcome of walking a full chain.
type Result struct {
	Response provideradapter.Response
	Attempts []Attempt
}

// Invoke walks route.Chain() in order: primary first, then each fallback.
func Invoke(ctx context.Context, registry Registry, route routing.Route, prompt string, opts provideradapter.InvokeOptions, logger *zap.Logger) (Result, error) {
	var attempts []Attempt

	for _, ref := range route.Chain() {
		adapter, ok := registry.Adapter(ref.Provider)
		if !ok {
			attempts = append(attempts, Attempt{Provider: ref.Provider, Model: ref.Model, Err: provideradapter.ModelUnavailable(ref.Provider, ref.Model)})
			metrics.FallbackAttempts.WithLabelValues(ref.Provider, ref.Model, "no_adapter").Inc()
			continue
		}
		breaker := registry.Breaker(ref.Provider)

		resp, err := invokeWithRetry(ctx, breaker, adapter, ref, prompt, opts, logger)
		attempts = append(attempts, Attempt{Provider: ref.Provider, Model: ref.Model, Err: err})
		if err == nil {
			metrics.FallbackAttempts.WithLabelValues(ref.Provider, ref.Model, "success").Inc()
			return Result{Response: resp, Attempts: attempts}, nil
		}

		var llmErr *provideradapter.LLMError
		if errors.As(err, &llmErr) && !llmErr.Retryable {
			metrics.FallbackAttempts.WithLabelValues(ref.Provider, ref.Model, "non_retryable").Inc()
			continue
		}
		metrics.FallbackAttempts.WithLabelValues(ref.Provider, ref.Model, "exhausted_retries").Inc()
	}

	return Result{Attempts: attempts}, ErrChainExhausted
}

// invokeWithRetry tries one chain entry up to maxAttempt times in all on a
// retryable error, backing off min(baseDelay*2^attempt + jitter, maxDelay)
// between tries, and giving up immediately on a non-retryable error or an
// open circuit breaker.
func invokeWithRetry(ctx context.Context, breaker *circuitbreaker.CircuitBreaker, adapter provideradapter.Adapter, ref routing.ModelRef, prompt string, opts provideradapter.InvokeOptions, logger *zap.Logger) (provideradapter.Response, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempt; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return provideradapter.Response{}, ctx.Err()
			case <-timer.C:
			}
		}

		var resp provideradapter.Response
		cbErr := breaker.Execute(ctx, func() error {
			var invokeErr error
			resp, invokeErr = adapter.Invoke(ctx, ref.Model, prompt, opts)
			return invokeErr
		})

		if cbErr == nil {
			return resp, nil
		}

		if errors.Is(cbErr, circuitbreaker.ErrCircuitBreakerOpen) || errors.Is(cbErr, circuitbreaker.ErrTooManyRequests) {
			if logger != nil {
				logger.Warn("provider breaker open, skipping chain entry",
					zap.String("provider", ref.Provider), zap.String("model", ref.Model))
			}
			return provideradapter.Response{}, &provideradapter.LLMError{
				Provider: ref.Provider, Model: ref.Model, Kind: provideradapter.ErrAPIError, Retryable: false, Cause: cbErr,
			}
		}

		lastErr = cbErr
		var llmErr *provideradapter.LLMError
		if errors.As(cbErr, &llmErr) && !llmErr.Retryable {
			return provideradapter.Response{}, cbErr
		}
	}

	return provideradapter.Response{}, lastErr
}

func backoffDelay(attempt int) time.Duration {
	d := baseDelay * time.Duration(1<<uint(attempt))
	if d > maxDelay {
		d = maxDelay
	}
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
	total := d + jitter
	if total > maxDelay {
		total = maxDelay
	}
	return total
}
