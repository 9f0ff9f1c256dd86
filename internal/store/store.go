// Package store defines the persistence contracts spec.md §3's entities
// need (C7's budgets, C6's call ledger and daily rollups, C11's job
// execution log) and two implementations: a Postgres-backed store for
// production and an in-memory store for tests and local development.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup finds no matching row/document.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned by a transactional update that lost a
// compare-and-swap race; callers retry per spec.md §7's "retried
// transparently up to 3 times inside the txn helper" policy.
var ErrConflict = errors.New("store: transaction conflict")

// BudgetStatus mirrors spec.md §3's UserAIBudget.status enum.
type BudgetStatus string

const (
	StatusPremium  BudgetStatus = "premium"
	StatusDegraded BudgetStatus = "degraded"
	StatusBlocked  BudgetStatus = "blocked"
)

// Tier mirrors spec.md §3's User.tier enum.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierProPlus    Tier = "pro_plus"
	TierEnterprise Tier = "enterprise"
)

// UserAIBudget is the (uid, period) keyed document from spec.md §3.
type UserAIBudget struct {
	UID               string
	Period            string // YYYY-MM
	Tier              Tier
	BudgetUsd         float64
	SpentUsd          float64
	DegradedSpendUsd  float64
	MaxDegradedUsd    float64
	Status            BudgetStatus
	CallCount         int64
	CallCountDegraded int64
	LastCallAt        *time.Time
	ResetAt           time.Time
	DegradedAt        *time.Time
	BlockedAt         *time.Time
	Version           int64 // optimistic-concurrency token for Postgres row version
}

// LLMCallRecord is the append-only call ledger entry from spec.md §3.
type LLMCallRecord struct {
	RequestID            string
	UID                  string
	RequestType          string
	Provider             string
	Model                string
	InputTokens          int
	OutputTokens         int
	Cost                 float64
	LatencyMs            int64
	Success              bool
	Error                string
	RoutingPreference    string
	PreferenceDowngraded bool
	Timestamp            time.Time
}

// DailyCostSummary is the rollup spec.md §3/§4.6 describes.
type DailyCostSummary struct {
	Date           string // YYYY-MM-DD
	TotalCalls     int64
	TotalCostUsd   float64
	ByProvider     map[string]float64
	ByRequestType  map[string]float64
	ByPreference   map[string]float64
	TopUsers       []UserCost
	GeneratedAt    time.Time
}

// UserCost is one entry of a DailyCostSummary's top-10 users.
type UserCost struct {
	UID      string
	CostUsd  float64
}

// UserDailyUsage is the (uid, date) aggregate spec.md §4.6/§6 names as
// users/{uid}/ai_usage/{YYYY-MM-DD}: incremented once per successful call
// alongside the call-ledger append. GET /api/v1/budget/usage does not read
// it; that handler builds its breakdown from LLMCallRecord.
type UserDailyUsage struct {
	UID          string
	Date         string // YYYY-MM-DD
	TotalCostUsd float64
	TotalCalls   int64
	RequestTypes map[string]int64
}

// JobRun records one scheduled job execution (C11), keyed by (job, runAt),
// so a job handler can check idempotency before doing work twice.
type JobRun struct {
	Job        string
	RunAt      time.Time
	FinishedAt *time.Time
	Status     string // running, succeeded, failed
	Detail     string
}

// BudgetStore persists UserAIBudget documents with the row-level locking
// spec.md §5 requires ("store-level, not in-process, serialization").
type BudgetStore interface {
	// GetOrCreate returns the budget for (uid, period), creating it from
	// the supplied defaults if it doesn't exist yet.
	GetOrCreate(ctx context.Context, uid, period string, defaults UserAIBudget) (UserAIBudget, error)
	// WithLock runs fn with the (uid, period) row locked for the duration
	// of the transaction (Postgres: SELECT ... FOR UPDATE); fn returns the
	// budget to persist, or an error to abort (no write, no lock held on
	// return). Retried by the caller, not by WithLock, on ErrConflict.
	WithLock(ctx context.Context, uid, period string, fn func(current UserAIBudget) (UserAIBudget, error)) (UserAIBudget, error)
	// ListForPeriod supports the monthly-reset scan (C11), paged by limit/offset.
	ListForPeriod(ctx context.Context, period string, limit, offset int) ([]UserAIBudget, error)
	// ApproachingLimit lists budgets at or above the given spend fraction
	// of budgetUsd, for the hourly approaching-limit sweep (C11).
	ApproachingLimit(ctx context.Context, period string, fraction float64) ([]UserAIBudget, error)
	// HistoryForUser lists a single user's budget documents across their
	// most recent periods (newest first), for the budget history API.
	HistoryForUser(ctx context.Context, uid string, months int) ([]UserAIBudget, error)
}

// CallRecordStore persists the append-only LLM call ledger.
type CallRecordStore interface {
	Append(ctx context.Context, rec LLMCallRecord) error
	ListForUser(ctx context.Context, uid string, since time.Time, limit int) ([]LLMCallRecord, error)
	ListForDate(ctx context.Context, date string) ([]LLMCallRecord, error)
}

// SummaryStore persists DailyCostSummary rollups.
type SummaryStore interface {
	Put(ctx context.Context, summary DailyCostSummary) error
	Get(ctx context.Context, date string) (DailyCostSummary, error)
}

// JobLogStore persists C11's scheduled-job execution log.
type JobLogStore interface {
	Start(ctx context.Context, job string, runAt time.Time) (bool, error) // false if already started (idempotency)
	Finish(ctx context.Context, job string, runAt time.Time, status, detail string) error
}

// UsageStore persists per-user daily usage aggregates. IncrementDaily is an
// upsert: the first call for (uid, date) creates the row, every later call
// that day adds to it.
type UsageStore interface {
	IncrementDaily(ctx context.Context, uid, date string, cost float64, requestType string) error
	GetDaily(ctx context.Context, uid, date string) (UserDailyUsage, error)
}

// Store bundles every persistence contract governor needs. Ping lets the
// health manager's StoreChecker verify reachability without depending on
// a concrete backend.
type Store interface {
	BudgetStore
	CallRecordStore
	SummaryStore
	JobLogStore
	UsageStore
	Ping(ctx context.Context) error
	Close() error
}
