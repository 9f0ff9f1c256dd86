package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aegis-run/governor/internal/circuitbreaker"
)

func TestProviderBreakerCheckerHealthyWhenAllClosed(t *testing.T) {
	breakers := map[string]*circuitbreaker.CircuitBreaker{
		"anthropic": circuitbreaker.NewProviderBreaker("anthropic", zaptest.NewLogger(t)),
		"openai":    circuitbreaker.NewProviderBreaker("openai", zaptest.NewLogger(t)),
	}
	c := NewProviderBreakerChecker(breakers)
	assert.False(t, c.Critical())
	assert.NoError(t, c.Check(context.Background()))
}

func TestProviderBreakerCheckerDegradedWhenOneOpen(t *testing.T) {
	anthropic := circuitbreaker.NewProviderBreaker("anthropic", zaptest.NewLogger(t))
	breakers := map[string]*circuitbreaker.CircuitBreaker{
		"anthropic": anthropic,
		"openai":    circuitbreaker.NewProviderBreaker("openai", zaptest.NewLogger(t)),
	}

	for i := 0; i < 5; i++ {
		_ = anthropic.Execute(context.Background(), func() error { return assert.AnError })
	}
	require.Equal(t, circuitbreaker.StateOpen, anthropic.State())

	c := NewProviderBreakerChecker(breakers)
	err := c.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic")
}
