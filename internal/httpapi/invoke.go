package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aegis-run/governor/internal/auth"
	"github.com/aegis-run/governor/internal/provideradapter"
	"github.com/aegis-run/governor/internal/router"
	"github.com/aegis-run/governor/internal/routing"
	"github.com/aegis-run/governor/internal/store"
)

// invokeEndpoint is the rate limiter key for the governed AI call path —
// the one endpoint spec.md §4.9's per-endpoint hourly cap actually guards.
const invokeEndpoint = "ai.invoke"

type invokeRequest struct {
	RequestType    string  `json:"requestType"`
	Prompt         string  `json:"prompt"`
	Preference     string  `json:"preference,omitempty"`
	ModelOverride  string  `json:"modelOverride,omitempty"`
	MaxCostPerCall float64 `json:"maxCostPerCall,omitempty"`
}

type invokeResponse struct {
	Content              string  `json:"content"`
	Provider             string  `json:"provider"`
	Model                string  `json:"model"`
	Cost                 float64 `json:"cost"`
	RoutingPreference    string  `json:"routingPreference"`
	PreferenceDowngraded bool    `json:"preferenceDowngraded"`
}

// handleInvoke is this module's one concrete realization of the pipeline
// spec.md §2 names ("control flow of a typical AI request: C10 -> C9 ->
// C7.Check -> C8 -> C7.Deduct -> C6.Record -> response"). RequireAuth
// (C10) has already run by the time this handler is reached; this wires
// C9's rate limiter in front of C8's Router, which performs C7's check,
// C1-C5's route selection/invocation, and C6's recording itself.
func (d *Dependencies) handleInvoke(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UIDFromContext(r.Context())
	if !ok {
		writeError(w, "unauthorized", "missing authenticated user")
		return
	}

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RequestType == "" || req.Prompt == "" {
		writeError(w, "invalid_request", "requestType and prompt are required")
		return
	}

	tier := store.TierFree
	if user, err := d.Users.Get(r.Context(), uid); err == nil {
		tier = store.Tier(user.Tier)
	}
	decision, err := d.Limiter.Check(r.Context(), uid, invokeEndpoint, tier)
	if err != nil {
		writeError(w, "budget_check_failed", err.Error())
		return
	}
	if !decision.Allowed {
		kind := "rate_limit_exceeded"
		writeErrorWithResetAt(w, kind, string(decision.Reason), decision.ResetAt.UTC().Format(time.RFC3339))
		return
	}

	opts := router.Options{ModelOverride: req.ModelOverride, MaxCostPerCall: req.MaxCostPerCall}
	if req.Preference != "" {
		pref := routing.Preference(req.Preference)
		opts.PreferenceOverride = &pref
	}
	if opts.MaxCostPerCall > 0 {
		caps := d.Limiter.Caps(tier)
		if caps.MaxCostPerCall > 0 && opts.MaxCostPerCall > caps.MaxCostPerCall {
			opts.MaxCostPerCall = caps.MaxCostPerCall
		}
	}

	resp, err := d.Router.Route(r.Context(), req.RequestType, req.Prompt, uid, opts)
	if err != nil {
		writeInvokeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, invokeResponse{
		Content: resp.Content, Provider: resp.Provider, Model: resp.Model, Cost: resp.Cost,
		RoutingPreference: string(resp.RoutingPreference), PreferenceDowngraded: resp.PreferenceDowngraded,
	})
}

func writeInvokeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, router.ErrBudgetExceeded):
		writeError(w, "ai_budget_exhausted", err.Error())
	case errors.Is(err, router.ErrUnknownModelOverrideProvider), errors.Is(err, routing.ErrUnknownRequestType):
		writeError(w, "invalid_request", err.Error())
	case errors.Is(err, router.ErrRequestTooExpensive):
		writeError(w, "request_too_expensive", err.Error())
	default:
		var llmErr *provideradapter.LLMError
		if errors.As(err, &llmErr) && llmErr.Kind == provideradapter.ErrInvalidRequest {
			writeError(w, "invalid_request", err.Error())
			return
		}
		writeError(w, "provider_error", err.Error())
	}
}
