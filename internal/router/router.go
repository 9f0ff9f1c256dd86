// Package router implements C8's Route entry point, binding the pricing
// table (C1), routing table (C2), provider adapters (C3), fallback chain
// (C4), circuit breakers (C5), cost tracker (C6), and budget engine (C7)
// into the single call spec.md §4.8 describes. Step ordering is
// contractual and must not be reordered.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aegis-run/governor/internal/budget"
	"github.com/aegis-run/governor/internal/costtracker"
	"github.com/aegis-run/governor/internal/fallback"
	"github.com/aegis-run/governor/internal/provideradapter"
	"github.com/aegis-run/governor/internal/routing"
	"github.com/aegis-run/governor/internal/store"
)

// ErrBudgetExceeded is returned when the pre-flight budget check rejects
// the call outright (free tier or already blocked).
var ErrBudgetExceeded = errors.New("router: budget exceeded")

// ErrUnknownModelOverrideProvider is returned when options.modelOverride
// names a model whose provider cannot be inferred; per spec.md §9's open
// question #4 this is a 400 invalid_request, never a panic or a guess.
var ErrUnknownModelOverrideProvider = errors.New("router: cannot infer provider for model override")

// ErrRequestTooExpensive is returned when the pre-call MaxCostPerCall guard
// prunes every entry out of the chain before any provider is attempted —
// distinct from every provider being attempted and failing.
var ErrRequestTooExpensive = errors.New("router: request exceeds max cost per call")

// Options parametrizes a single Route call.
type Options struct {
	PreferenceOverride *routing.Preference
	ModelOverride      string
	MaxCostPerCall     float64 // 0 disables the pre-call cost guard
}

// Response is Route's successful outcome.
type Response struct {
	Content              string
	Provider             string
	Model                string
	Cost                 float64
	RoutingPreference    routing.Preference
	PreferenceDowngraded bool
}

// Router binds the per-request-type components together.
type Router struct {
	routes           *routing.Table
	registry         fallback.Registry
	budgets          *budget.Manager
	costs            *costtracker.Tracker
	globalPreference routing.Preference
	logger           *zap.Logger
}

func New(routes *routing.Table, registry fallback.Registry, budgets *budget.Manager, costs *costtracker.Tracker, globalPreference routing.Preference, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if globalPreference == "" {
		globalPreference = routing.PreferenceQuality
	}
	return &Router{
		routes:           routes,
		registry:         registry,
		budgets:          budgets,
		costs:            costs,
		globalPreference: globalPreference,
		logger:           logger,
	}
}

// estimatedInputOutputTokens is the fixed probe size spec.md §4.8 step 5
// uses for the pre-call cost guard, independent of the actual prompt size.
const (
	guardInputTokens  = 1000
	guardOutputTokens = 500
)

func (r *Router) Route(ctx context.Context, requestType, prompt, uid string, opts Options) (Response, error) {
	// Step 1: pre-flight budget check.
	checkResult := r.budgets.Check(ctx, uid)
	if !checkResult.Allowed {
		return Response{}, ErrBudgetExceeded
	}

	// Step 2: determine active preference.
	preference := r.globalPreference
	if opts.PreferenceOverride != nil {
		preference = *opts.PreferenceOverride
	}
	downgraded := false

	var route routing.Route
	var err error
	if checkResult.Status == store.StatusDegraded {
		if degradedRoute, ok := r.routes.SelectDegraded(requestType); ok {
			route = degradedRoute
			preference = routing.PreferenceDegraded
			downgraded = true
		}
	}
	if route.Primary.Model == "" {
		if checkResult.Routing == routing.PreferenceCost && preference != routing.PreferenceCost {
			preference = routing.PreferenceCost
			downgraded = true
		}
		// Step 3: select from the normal table.
		route, err = r.routes.Select(requestType, preference)
		if err != nil {
			return Response{}, fmt.Errorf("router: %w", err)
		}
	}

	// Step 4: honor modelOverride.
	if opts.ModelOverride != "" {
		provider, ok := routing.InferProvider(opts.ModelOverride)
		if !ok {
			return Response{}, fmt.Errorf("%w: %q", ErrUnknownModelOverrideProvider, opts.ModelOverride)
		}
		route.Primary = routing.ModelRef{Provider: provider, Model: opts.ModelOverride}
	}

	// Step 5: prune the chain by the pre-call cost guard, then walk what
	// remains as a single fallback chain so C4's retry/break/circuit-breaker
	// logic (internal/fallback) runs once instead of being reimplemented
	// (incorrectly, since it could never see a wrapped LLMError) at this
	// per-entry loop layer.
	chain := route.Chain()
	affordable := chain
	if opts.MaxCostPerCall > 0 {
		affordable = make([]routing.ModelRef, 0, len(chain))
		for _, ref := range chain {
			estimate := r.costs.CostEstimate(ref.Provider, ref.Model, guardInputTokens, guardOutputTokens)
			if estimate > opts.MaxCostPerCall {
				continue
			}
			affordable = append(affordable, ref)
		}
	}
	if len(affordable) == 0 {
		return Response{}, ErrRequestTooExpensive
	}

	chainRoute := routing.Route{Primary: affordable[0], Fallbacks: affordable[1:], Defaults: route.Defaults}
	start := time.Now()
	result, invokeErr := fallback.Invoke(ctx, r.registry, chainRoute, prompt, provideradapter.InvokeOptions{
		MaxTokens:    route.Defaults.MaxTokens,
		Temperature:  route.Defaults.Temperature,
		SystemPrompt: route.Defaults.SystemPrompt,
		IsVision:     route.Defaults.IsVision,
	}, r.logger)
	latency := time.Since(start).Milliseconds()

	for _, attempt := range result.Attempts {
		rec := store.LLMCallRecord{
			UID: uid, RequestType: requestType, Provider: attempt.Provider, Model: attempt.Model,
			Success: attempt.Err == nil, LatencyMs: latency,
			RoutingPreference: string(preference), PreferenceDowngraded: downgraded, Timestamp: time.Now(),
		}
		if attempt.Err == nil {
			rec.InputTokens = result.Response.Usage.InputTokens
			rec.OutputTokens = result.Response.Usage.OutputTokens
			rec.Cost = result.Response.EstimatedCost
		} else {
			rec.Error = attempt.Err.Error()
		}
		r.costs.Record(ctx, rec)
	}

	if invokeErr != nil {
		return Response{}, invokeErr
	}

	resp := result.Response
	r.budgets.Deduct(ctx, uid, resp.EstimatedCost, requestType, resp.Model)
	return Response{
		Content: resp.Content, Provider: resp.Provider, Model: resp.Model, Cost: resp.EstimatedCost,
		RoutingPreference: preference, PreferenceDowngraded: downgraded,
	}, nil
}
