package provideradapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aegis-run/governor/internal/circuitbreaker"
)

// HTTPAdapter calls a vendor chat-completion style endpoint over HTTP,
// wrapped in the provider's circuit breaker (C5). The request/response
// shape is intentionally generic (prompt in, content out) since every
// vendor's actual wire format is opaque behind this package per spec.md
// §5 ("vendor SDKs as opaque behind Invoke").
type HTTPAdapter struct {
	provider   string
	baseURL    string
	apiKey     string
	httpClient *circuitbreaker.HTTPWrapper
	logger     *zap.Logger
}

// NewHTTPAdapter builds an HTTPAdapter for one provider. The HTTPWrapper
// registers its own named circuit breaker so a single vendor's outage
// cannot trip another vendor's breaker.
func NewHTTPAdapter(provider, baseURL, apiKey string, logger *zap.Logger) *HTTPAdapter {
	return &HTTPAdapter{
		provider:   provider,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: DefaultCallTimeout}, "provider-"+provider, provider, logger),
		logger:     logger,
	}
}

type chatRequest struct {
	Model        string  `json:"model"`
	Prompt       string  `json:"prompt"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	ImageBase64  string  `json:"image_base64,omitempty"`
	ImageMime    string  `json:"image_mime,omitempty"`
}

type chatResponse struct {
	Content      string `json:"content"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Error        *struct {
		Message string `json:"message"`
		IsQuota bool   `json:"is_quota"`
	} `json:"error,omitempty"`
}

func (a *HTTPAdapter) Invoke(ctx context.Context, model string, prompt string, opts InvokeOptions) (Response, error) {
	if opts.IsVision && opts.Image == nil {
		return Response{}, InvalidVisionRequest(a.provider, model)
	}

	body := chatRequest{
		Model:        model,
		Prompt:       prompt,
		MaxTokens:    opts.MaxTokens,
		Temperature:  opts.Temperature,
		SystemPrompt: opts.SystemPrompt,
	}
	if opts.Image != nil {
		body.ImageBase64 = opts.Image.Base64
		body.ImageMime = opts.Image.MimeType
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, &LLMError{Provider: a.provider, Model: model, Kind: ErrInvalidRequest, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat", bytes.NewReader(payload))
	if err != nil {
		return Response{}, NetworkError(a.provider, model, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, TimeoutError(a.provider, model, ctx.Err())
		}
		if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			// Open breaker means this provider is known-bad right now; spec.md
			// §4.5 wants the fallback chain to move on immediately, not retry
			// the same provider, matching internal/fallback/chain.go's handling
			// of the provider-level breaker's open state.
			return Response{}, &LLMError{Provider: a.provider, Model: model, Kind: ErrAPIError, Retryable: false, Cause: err}
		}
		return Response{}, NetworkError(a.provider, model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, NetworkError(a.provider, model, err)
	}

	var parsed chatResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 300 {
		isQuota := parsed.Error != nil && parsed.Error.IsQuota
		if classified := ClassifyHTTPStatus(a.provider, model, resp.StatusCode, isQuota); classified != nil {
			return Response{}, classified
		}
		return Response{}, &LLMError{Provider: a.provider, Model: model, Kind: ErrAPIError, Retryable: true,
			Cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	return Response{
		Content:   parsed.Content,
		Usage:     Usage{InputTokens: parsed.InputTokens, OutputTokens: parsed.OutputTokens},
		LatencyMs: latency.Milliseconds(),
		Provider:  a.provider,
		Model:     model,
	}, nil
}
