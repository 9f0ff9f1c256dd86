// Package provideradapter defines the capability interface LLM vendor
// clients satisfy (C3). Vendor SDK quirks stay outside this package; every
// concrete adapter reports the canonical ErrorKind classification spec.md
// §4.3 requires.
package provideradapter

import (
	"context"
	"time"
)

// ErrorKind is the canonical, caller-visible classification of a failed
// provider call.
type ErrorKind string

const (
	ErrRateLimit          ErrorKind = "rate_limit"
	ErrAPIError           ErrorKind = "api_error"
	ErrTimeout            ErrorKind = "timeout"
	ErrInvalidRequest     ErrorKind = "invalid_request"
	ErrInsufficientQuota  ErrorKind = "insufficient_quota"
	ErrModelUnavailable   ErrorKind = "model_unavailable"
	ErrNetworkError       ErrorKind = "network_error"
	ErrBudgetExceeded     ErrorKind = "budget_exceeded"
)

// LLMError is the typed failure a provider call returns. Retryable governs
// whether the fallback chain (C4) retries the current entry or moves on.
type LLMError struct {
	Provider  string
	Model     string
	Kind      ErrorKind
	Retryable bool
	Cause     error
}

func (e *LLMError) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *LLMError) Unwrap() error { return e.Cause }

// Usage carries the token accounting for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// ImageData is the payload required for a vision request.
type ImageData struct {
	Base64   string
	MimeType string
}

// InvokeOptions parametrizes one call.
type InvokeOptions struct {
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
	IsVision     bool
	Image        *ImageData
}

// Response is a successful call's result.
type Response struct {
	Content       string
	Usage         Usage
	LatencyMs     int64
	EstimatedCost float64
	Provider      string
	Model         string
}

// Adapter is the capability every vendor client exposes. Implementations
// must be stateless after construction so they are safe to share across
// concurrent requests (spec.md §5 "Provider adapters: stateless after
// construction; safe to share").
type Adapter interface {
	Invoke(ctx context.Context, model string, prompt string, opts InvokeOptions) (Response, error)
}

// ClassifyHTTPStatus implements spec.md §4.3's bit-exact classification
// policy for adapters built over an HTTP transport.
func ClassifyHTTPStatus(provider, model string, status int, isQuotaMessage bool) *LLMError {
	switch {
	case status == 429 || isQuotaMessage:
		return &LLMError{Provider: provider, Model: model, Kind: ErrRateLimit, Retryable: true}
	case status >= 500:
		return &LLMError{Provider: provider, Model: model, Kind: ErrAPIError, Retryable: true}
	case status == 403:
		return &LLMError{Provider: provider, Model: model, Kind: ErrInsufficientQuota, Retryable: false}
	case status >= 400:
		return &LLMError{Provider: provider, Model: model, Kind: ErrInvalidRequest, Retryable: false}
	default:
		return nil
	}
}

// ModelUnavailable marks a model string the adapter does not recognize.
// Non-retryable for this adapter; the fallback chain may still succeed on a
// different provider further down the list.
func ModelUnavailable(provider, model string) *LLMError {
	return &LLMError{Provider: provider, Model: model, Kind: ErrModelUnavailable, Retryable: false}
}

// TimeoutError marks a call that exceeded its deadline.
func TimeoutError(provider, model string, cause error) *LLMError {
	return &LLMError{Provider: provider, Model: model, Kind: ErrTimeout, Retryable: true, Cause: cause}
}

// NetworkError marks a transport-level failure below the HTTP layer.
func NetworkError(provider, model string, cause error) *LLMError {
	return &LLMError{Provider: provider, Model: model, Kind: ErrNetworkError, Retryable: true, Cause: cause}
}

// InvalidVisionRequest is returned when a vision request targets a
// non-vision model; non-retryable per spec.md §4.3.
func InvalidVisionRequest(provider, model string) *LLMError {
	return &LLMError{Provider: provider, Model: model, Kind: ErrInvalidRequest, Retryable: false}
}

// DefaultCallTimeout is the hard per-call timeout spec.md §5 names.
const DefaultCallTimeout = 30 * time.Second
