// Package metrics holds the process-wide Prometheus registrations for the
// governance pipeline. One package-level var block, promauto-registered at
// import time, mirrors the teacher's metrics package shape.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PricingFallbacks counts C1 lookups that missed the pricing table and
	// fell back to the default rate.
	PricingFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_pricing_fallback_total",
			Help: "Total number of pricing lookups that fell back to the default rate",
		},
		[]string{"reason"},
	)

	// BudgetTransitions counts C7 status transitions.
	BudgetTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_budget_transitions_total",
			Help: "Total number of budget status transitions",
		},
		[]string{"to_status"},
	)

	// BudgetCheckResults counts C7 pre-flight check outcomes.
	BudgetCheckResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_budget_check_total",
			Help: "Total number of budget pre-flight checks by outcome",
		},
		[]string{"allowed", "status"},
	)

	// FallbackAttempts counts C4 per-entry attempts.
	FallbackAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_fallback_attempts_total",
			Help: "Total number of fallback chain attempts",
		},
		[]string{"provider", "model", "outcome"},
	)

	// RateLimitDenied counts C9 denials.
	RateLimitDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_rate_limit_denied_total",
			Help: "Total number of requests denied by the rate limiter",
		},
		[]string{"tier", "window"},
	)

	// LLMCallCost observes the recorded cost of each successful call.
	LLMCallCost = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "governor_llm_call_cost_usd",
			Help:    "Cost in USD of each recorded LLM call",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// ScheduledJobRuns counts C11 job executions by outcome.
	ScheduledJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_scheduled_job_runs_total",
			Help: "Total number of scheduled job executions",
		},
		[]string{"job", "status"},
	)

	// ApproachingLimitAlerts counts C11's hourly sweep firing a
	// once-per-period approaching-limit alert.
	ApproachingLimitAlerts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "governor_approaching_limit_alerts_total",
			Help: "Total number of approaching-limit alerts fired by the hourly sweep",
		},
	)
)
