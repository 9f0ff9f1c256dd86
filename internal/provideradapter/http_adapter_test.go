package provideradapter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPAdapterInvokeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{Content: "hello", InputTokens: 5, OutputTokens: 7})
	}))
	defer srv.Close()

	a := NewHTTPAdapter("acme", srv.URL, "key", zap.NewNop())
	resp, err := a.Invoke(t.Context(), "acme-large", "hi", InvokeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 12, resp.Usage.Total())
	assert.Equal(t, "acme", resp.Provider)
}

func TestHTTPAdapterRejectsVisionWithoutImage(t *testing.T) {
	a := NewHTTPAdapter("acme", "http://unused.invalid", "key", zap.NewNop())
	_, err := a.Invoke(t.Context(), "acme-vision", "hi", InvokeOptions{IsVision: true})
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrInvalidRequest, llmErr.Kind)
	assert.False(t, llmErr.Retryable)
}

func TestHTTPAdapterClassifiesHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	a := NewHTTPAdapter("acme-ratelimit", srv.URL, "key", zap.NewNop())
	_, err := a.Invoke(t.Context(), "acme-large", "hi", InvokeOptions{})
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrRateLimit, llmErr.Kind)
	assert.True(t, llmErr.Retryable)
}

// TestHTTPAdapterCircuitOpenIsNotRetryable drives enough consecutive 5xx
// responses to trip the adapter's own HTTP-transport breaker, then asserts
// the resulting LLMError is Retryable: false so the fallback chain moves on
// to the next provider instead of re-hitting a known-bad one.
func TestHTTPAdapterCircuitOpenIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	a := NewHTTPAdapter("acme-failing", srv.URL, "key", zap.NewNop())

	// Default CB_HTTP_FAILURE_THRESHOLD is 3: the first three 500s each
	// surface as an ordinary retryable api_error, tripping the breaker.
	for i := 0; i < 3; i++ {
		_, err := a.Invoke(t.Context(), "acme-large", "hi", InvokeOptions{})
		var llmErr *LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrAPIError, llmErr.Kind)
	}

	_, err := a.Invoke(t.Context(), "acme-large", "hi", InvokeOptions{})
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrAPIError, llmErr.Kind)
	assert.False(t, llmErr.Retryable, "circuit-open failures must not be retryable")
}
