package provideradapter

import (
	"context"
	"strings"
)

// FakeAdapter is a deterministic in-memory Adapter used by router, fallback
// chain, and budget tests. Behavior per model name is configured by the
// caller rather than inferred, so tests read as explicit fixtures.
type FakeAdapter struct {
	Provider string
	// Models maps a model name to a canned outcome. A model absent from this
	// map returns ModelUnavailable.
	Models map[string]FakeOutcome
}

// FakeOutcome is one canned result for a given model.
type FakeOutcome struct {
	Response Response
	Err      *LLMError
}

func NewFakeAdapter(provider string) *FakeAdapter {
	return &FakeAdapter{Provider: provider, Models: map[string]FakeOutcome{}}
}

// WithSuccess registers a model that always succeeds with the given usage.
func (f *FakeAdapter) WithSuccess(model string, usage Usage, cost float64) *FakeAdapter {
	f.Models[model] = FakeOutcome{Response: Response{
		Content:       "ok",
		Usage:         usage,
		EstimatedCost: cost,
		Provider:      f.Provider,
		Model:         model,
	}}
	return f
}

// WithError registers a model that always fails with the given error.
func (f *FakeAdapter) WithError(model string, err *LLMError) *FakeAdapter {
	f.Models[model] = FakeOutcome{Err: err}
	return f
}

func (f *FakeAdapter) Invoke(ctx context.Context, model string, prompt string, opts InvokeOptions) (Response, error) {
	if opts.IsVision && !strings.Contains(strings.ToLower(model), "vision") {
		return Response{}, InvalidVisionRequest(f.Provider, model)
	}
	outcome, ok := f.Models[model]
	if !ok {
		return Response{}, ModelUnavailable(f.Provider, model)
	}
	if outcome.Err != nil {
		return Response{}, outcome.Err
	}
	return outcome.Response, nil
}
