package fallback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aegis-run/governor/internal/provideradapter"
	"github.com/aegis-run/governor/internal/routing"
)

func newRegistry(t *testing.T, providers map[string]*provideradapter.FakeAdapter) *MapRegistry {
	reg := NewMapRegistry()
	logger := zaptest.NewLogger(t)
	for name, adapter := range providers {
		reg.Register(name, adapter, logger)
	}
	return reg
}

func TestInvokeSucceedsOnPrimary(t *testing.T) {
	anthropic := provideradapter.NewFakeAdapter("anthropic").WithSuccess("claude-3-haiku", provideradapter.Usage{InputTokens: 5, OutputTokens: 5}, 0.001)
	reg := newRegistry(t, map[string]*provideradapter.FakeAdapter{"anthropic": anthropic})

	route := routing.Route{Primary: routing.ModelRef{Provider: "anthropic", Model: "claude-3-haiku"}}
	result, err := Invoke(context.Background(), reg, route, "hi", provideradapter.InvokeOptions{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Len(t, result.Attempts, 1)
	assert.Equal(t, "anthropic", result.Response.Provider)
}

func TestInvokeFallsBackOnNonRetryableError(t *testing.T) {
	anthropic := provideradapter.NewFakeAdapter("anthropic").WithError("claude-3-opus",
		&provideradapter.LLMError{Provider: "anthropic", Model: "claude-3-opus", Kind: provideradapter.ErrInsufficientQuota, Retryable: false})
	openai := provideradapter.NewFakeAdapter("openai").WithSuccess("gpt-4", provideradapter.Usage{InputTokens: 5, OutputTokens: 5}, 0.01)
	reg := newRegistry(t, map[string]*provideradapter.FakeAdapter{"anthropic": anthropic, "openai": openai})

	route := routing.Route{
		Primary:   routing.ModelRef{Provider: "anthropic", Model: "claude-3-opus"},
		Fallbacks: []routing.ModelRef{{Provider: "openai", Model: "gpt-4"}},
	}
	result, err := Invoke(context.Background(), reg, route, "hi", provideradapter.InvokeOptions{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, "anthropic", result.Attempts[0].Provider)
	assert.Error(t, result.Attempts[0].Err)
	assert.Equal(t, "openai", result.Response.Provider)
}

func TestInvokeExhaustsChain(t *testing.T) {
	anthropic := provideradapter.NewFakeAdapter("anthropic").WithError("claude-3-opus",
		&provideradapter.LLMError{Provider: "anthropic", Model: "claude-3-opus", Kind: provideradapter.ErrInsufficientQuota, Retryable: false})
	reg := newRegistry(t, map[string]*provideradapter.FakeAdapter{"anthropic": anthropic})

	route := routing.Route{Primary: routing.ModelRef{Provider: "anthropic", Model: "claude-3-opus"}}
	_, err := Invoke(context.Background(), reg, route, "hi", provideradapter.InvokeOptions{}, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrChainExhausted)
}

func TestInvokeUnknownAdapterSkipsToNext(t *testing.T) {
	openai := provideradapter.NewFakeAdapter("openai").WithSuccess("gpt-4o", provideradapter.Usage{InputTokens: 1, OutputTokens: 1}, 0.001)
	reg := newRegistry(t, map[string]*provideradapter.FakeAdapter{"openai": openai})

	route := routing.Route{
		Primary:   routing.ModelRef{Provider: "anthropic", Model: "claude-3-opus"},
		Fallbacks: []routing.ModelRef{{Provider: "openai", Model: "gpt-4o"}},
	}
	result, err := Invoke(context.Background(), reg, route, "hi", provideradapter.InvokeOptions{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "openai", result.Response.Provider)
}
