package provideradapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		quota     bool
		wantKind  ErrorKind
		wantRetry bool
	}{
		{"rate limited", 429, false, ErrRateLimit, true},
		{"quota message on 400", 400, true, ErrRateLimit, true},
		{"server error", 503, false, ErrAPIError, true},
		{"forbidden quota", 403, false, ErrInsufficientQuota, false},
		{"bad request", 422, false, ErrInvalidRequest, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ClassifyHTTPStatus("anthropic", "claude-3-haiku", tc.status, tc.quota)
			require.NotNil(t, err)
			assert.Equal(t, tc.wantKind, err.Kind)
			assert.Equal(t, tc.wantRetry, err.Retryable)
		})
	}
}

func TestClassifyHTTPStatusSuccessReturnsNil(t *testing.T) {
	assert.Nil(t, ClassifyHTTPStatus("anthropic", "claude-3-haiku", 200, false))
}

func TestFakeAdapterSuccess(t *testing.T) {
	fa := NewFakeAdapter("anthropic").WithSuccess("claude-3-haiku", Usage{InputTokens: 10, OutputTokens: 20}, 0.01)
	resp, err := fa.Invoke(context.Background(), "claude-3-haiku", "hi", InvokeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 30, resp.Usage.Total())
	assert.Equal(t, "anthropic", resp.Provider)
}

func TestFakeAdapterUnknownModel(t *testing.T) {
	fa := NewFakeAdapter("anthropic")
	_, err := fa.Invoke(context.Background(), "claude-unknown", "hi", InvokeOptions{})
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrModelUnavailable, llmErr.Kind)
	assert.False(t, llmErr.Retryable)
}

func TestFakeAdapterRejectsVisionOnNonVisionModel(t *testing.T) {
	fa := NewFakeAdapter("anthropic").WithSuccess("claude-3-haiku", Usage{}, 0)
	_, err := fa.Invoke(context.Background(), "claude-3-haiku", "hi", InvokeOptions{IsVision: true})
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrInvalidRequest, llmErr.Kind)
	assert.False(t, llmErr.Retryable)
}

func TestFakeAdapterPropagatesConfiguredError(t *testing.T) {
	fa := NewFakeAdapter("anthropic").WithError("claude-3-opus", &LLMError{
		Provider: "anthropic", Model: "claude-3-opus", Kind: ErrRateLimit, Retryable: true,
	})
	_, err := fa.Invoke(context.Background(), "claude-3-opus", "hi", InvokeOptions{})
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrRateLimit, llmErr.Kind)
	assert.True(t, llmErr.Retryable)
}
