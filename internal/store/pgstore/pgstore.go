// Package pgstore is the Postgres-backed store.Store implementation,
// grounded on internal/db/client.go's sqlx+lib/pq wiring and wrapped in
// internal/circuitbreaker's DatabaseWrapper for breaker/metrics parity
// with every other outbound dependency.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/aegis-run/governor/internal/circuitbreaker"
	"github.com/aegis-run/governor/internal/store"
)

// Store is the Postgres implementation of store.Store.
type Store struct {
	db     *sqlx.DB
	cb     *circuitbreaker.DatabaseWrapper
	logger *zap.Logger
}

// Open connects to Postgres and wraps the pool in a circuit breaker.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	cb := circuitbreaker.NewDatabaseWrapper(sqlDB, logger)
	if err := cb.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return &Store{db: sqlx.NewDb(sqlDB, "postgres"), cb: cb, logger: logger}, nil
}

func (s *Store) Close() error { return s.cb.Close() }

// Ping satisfies internal/health.Pinger.
func (s *Store) Ping(ctx context.Context) error { return s.cb.PingContext(ctx) }

const budgetColumns = `uid, period, tier, budget_usd, spent_usd, degraded_spend_usd, max_degraded_usd,
	status, call_count, call_count_degraded, last_call_at, reset_at, degraded_at, blocked_at, version`

type budgetRow struct {
	UID               string     `db:"uid"`
	Period            string     `db:"period"`
	Tier              string     `db:"tier"`
	BudgetUsd         float64    `db:"budget_usd"`
	SpentUsd          float64    `db:"spent_usd"`
	DegradedSpendUsd  float64    `db:"degraded_spend_usd"`
	MaxDegradedUsd    float64    `db:"max_degraded_usd"`
	Status            string     `db:"status"`
	CallCount         int64      `db:"call_count"`
	CallCountDegraded int64      `db:"call_count_degraded"`
	LastCallAt        *time.Time `db:"last_call_at"`
	ResetAt           time.Time  `db:"reset_at"`
	DegradedAt        *time.Time `db:"degraded_at"`
	BlockedAt         *time.Time `db:"blocked_at"`
	Version           int64      `db:"version"`
}

func (r budgetRow) toDomain() store.UserAIBudget {
	return store.UserAIBudget{
		UID: r.UID, Period: r.Period, Tier: store.Tier(r.Tier),
		BudgetUsd: r.BudgetUsd, SpentUsd: r.SpentUsd,
		DegradedSpendUsd: r.DegradedSpendUsd, MaxDegradedUsd: r.MaxDegradedUsd,
		Status: store.BudgetStatus(r.Status), CallCount: r.CallCount,
		CallCountDegraded: r.CallCountDegraded, LastCallAt: r.LastCallAt,
		ResetAt: r.ResetAt, DegradedAt: r.DegradedAt, BlockedAt: r.BlockedAt,
		Version: r.Version,
	}
}

func fromDomain(b store.UserAIBudget) budgetRow {
	return budgetRow{
		UID: b.UID, Period: b.Period, Tier: string(b.Tier),
		BudgetUsd: b.BudgetUsd, SpentUsd: b.SpentUsd,
		DegradedSpendUsd: b.DegradedSpendUsd, MaxDegradedUsd: b.MaxDegradedUsd,
		Status: string(b.Status), CallCount: b.CallCount,
		CallCountDegraded: b.CallCountDegraded, LastCallAt: b.LastCallAt,
		ResetAt: b.ResetAt, DegradedAt: b.DegradedAt, BlockedAt: b.BlockedAt,
		Version: b.Version,
	}
}

func (s *Store) GetOrCreate(ctx context.Context, uid, period string, defaults store.UserAIBudget) (store.UserAIBudget, error) {
	defaults.UID, defaults.Period, defaults.Version = uid, period, 1
	row := fromDomain(defaults)

	query := fmt.Sprintf(`
		INSERT INTO user_ai_budgets (%s)
		VALUES (:uid, :period, :tier, :budget_usd, :spent_usd, :degraded_spend_usd, :max_degraded_usd,
			:status, :call_count, :call_count_degraded, :last_call_at, :reset_at, :degraded_at, :blocked_at, :version)
		ON CONFLICT (uid, period) DO NOTHING`, budgetColumns)
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return store.UserAIBudget{}, fmt.Errorf("pgstore: insert budget: %w", err)
	}

	var out budgetRow
	if err := s.db.GetContext(ctx, &out, `SELECT `+budgetColumns+` FROM user_ai_budgets WHERE uid=$1 AND period=$2`, uid, period); err != nil {
		return store.UserAIBudget{}, fmt.Errorf("pgstore: read budget: %w", err)
	}
	return out.toDomain(), nil
}

// WithLock opens a transaction, locks the (uid, period) row with SELECT
// ... FOR UPDATE, applies fn, and writes the result back guarded by the
// version token — a concurrent writer that committed between the lock
// acquisition and our update is impossible under FOR UPDATE, but the
// version check also catches any future refactor that reads outside the
// lock.
func (s *Store) WithLock(ctx context.Context, uid, period string, fn func(current store.UserAIBudget) (store.UserAIBudget, error)) (store.UserAIBudget, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return store.UserAIBudget{}, fmt.Errorf("pgstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	var current budgetRow
	err = tx.GetContext(ctx, &current, `SELECT `+budgetColumns+` FROM user_ai_budgets WHERE uid=$1 AND period=$2 FOR UPDATE`, uid, period)
	if errors.Is(err, sql.ErrNoRows) {
		return store.UserAIBudget{}, store.ErrNotFound
	}
	if err != nil {
		return store.UserAIBudget{}, fmt.Errorf("pgstore: lock budget: %w", err)
	}

	next, err := fn(current.toDomain())
	if err != nil {
		return store.UserAIBudget{}, err
	}
	next.UID, next.Period = uid, period
	next.Version = current.Version + 1

	res, err := tx.ExecContext(ctx, `
		UPDATE user_ai_budgets SET
			tier=$1, budget_usd=$2, spent_usd=$3,
			degraded_spend_usd=$4, max_degraded_usd=$5,
			status=$6, call_count=$7, call_count_degraded=$8,
			last_call_at=$9, reset_at=$10, degraded_at=$11,
			blocked_at=$12, version=$13
		WHERE uid=$14 AND period=$15 AND version=$16`,
		string(next.Tier), next.BudgetUsd, next.SpentUsd,
		next.DegradedSpendUsd, next.MaxDegradedUsd,
		string(next.Status), next.CallCount, next.CallCountDegraded,
		next.LastCallAt, next.ResetAt, next.DegradedAt,
		next.BlockedAt, next.Version,
		uid, period, current.Version)
	if err != nil {
		return store.UserAIBudget{}, fmt.Errorf("pgstore: update budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.UserAIBudget{}, store.ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return store.UserAIBudget{}, fmt.Errorf("pgstore: commit: %w", err)
	}
	return next, nil
}

func (s *Store) ListForPeriod(ctx context.Context, period string, limit, offset int) ([]store.UserAIBudget, error) {
	var rows []budgetRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+budgetColumns+` FROM user_ai_budgets WHERE period=$1 ORDER BY uid LIMIT $2 OFFSET $3`, period, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list budgets: %w", err)
	}
	return toDomainSlice(rows), nil
}

func (s *Store) ApproachingLimit(ctx context.Context, period string, fraction float64) ([]store.UserAIBudget, error) {
	var rows []budgetRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+budgetColumns+` FROM user_ai_budgets
		 WHERE period=$1 AND budget_usd > 0 AND spent_usd/budget_usd >= $2
		 ORDER BY uid`, period, fraction)
	if err != nil {
		return nil, fmt.Errorf("pgstore: approaching-limit scan: %w", err)
	}
	return toDomainSlice(rows), nil
}

func (s *Store) HistoryForUser(ctx context.Context, uid string, months int) ([]store.UserAIBudget, error) {
	var rows []budgetRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+budgetColumns+` FROM user_ai_budgets WHERE uid=$1 ORDER BY period DESC LIMIT $2`, uid, months)
	if err != nil {
		return nil, fmt.Errorf("pgstore: history for user: %w", err)
	}
	return toDomainSlice(rows), nil
}

func toDomainSlice(rows []budgetRow) []store.UserAIBudget {
	out := make([]store.UserAIBudget, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out
}

func (s *Store) Append(ctx context.Context, rec store.LLMCallRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_call_records
			(request_id, uid, request_type, provider, model, input_tokens, output_tokens,
			 cost, latency_ms, success, error, routing_preference, preference_downgraded, ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		rec.RequestID, rec.UID, rec.RequestType, rec.Provider, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.Cost, rec.LatencyMs, rec.Success,
		rec.Error, rec.RoutingPreference, rec.PreferenceDowngraded, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("pgstore: append call record: %w", err)
	}
	return nil
}

type callRow struct {
	RequestID            string    `db:"request_id"`
	UID                  string    `db:"uid"`
	RequestType          string    `db:"request_type"`
	Provider             string    `db:"provider"`
	Model                string    `db:"model"`
	InputTokens          int       `db:"input_tokens"`
	OutputTokens         int       `db:"output_tokens"`
	Cost                 float64   `db:"cost"`
	LatencyMs            int64     `db:"latency_ms"`
	Success              bool      `db:"success"`
	Error                string    `db:"error"`
	RoutingPreference    string    `db:"routing_preference"`
	PreferenceDowngraded bool      `db:"preference_downgraded"`
	Timestamp            time.Time `db:"ts"`
}

func (r callRow) toDomain() store.LLMCallRecord {
	return store.LLMCallRecord{
		RequestID: r.RequestID, UID: r.UID, RequestType: r.RequestType,
		Provider: r.Provider, Model: r.Model, InputTokens: r.InputTokens,
		OutputTokens: r.OutputTokens, Cost: r.Cost, LatencyMs: r.LatencyMs,
		Success: r.Success, Error: r.Error, RoutingPreference: r.RoutingPreference,
		PreferenceDowngraded: r.PreferenceDowngraded, Timestamp: r.Timestamp,
	}
}

func (s *Store) ListForUser(ctx context.Context, uid string, since time.Time, limit int) ([]store.LLMCallRecord, error) {
	var rows []callRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT request_id, uid, request_type, provider, model, input_tokens, output_tokens,
			cost, latency_ms, success, error, routing_preference, preference_downgraded, ts
		 FROM llm_call_records WHERE uid=$1 AND ts >= $2 ORDER BY ts DESC LIMIT $3`, uid, since, limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list user calls: %w", err)
	}
	out := make([]store.LLMCallRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) ListForDate(ctx context.Context, date string) ([]store.LLMCallRecord, error) {
	var rows []callRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT request_id, uid, request_type, provider, model, input_tokens, output_tokens,
			cost, latency_ms, success, error, routing_preference, preference_downgraded, ts
		 FROM llm_call_records WHERE ts::date = $1::date ORDER BY ts`, date)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list calls for date: %w", err)
	}
	out := make([]store.LLMCallRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, summary store.DailyCostSummary) error {
	byProvider, _ := json.Marshal(summary.ByProvider)
	byRequestType, _ := json.Marshal(summary.ByRequestType)
	byPreference, _ := json.Marshal(summary.ByPreference)
	topUIDs := make([]string, len(summary.TopUsers))
	for i, u := range summary.TopUsers {
		topUIDs[i] = fmt.Sprintf("%s:%.4f", u.UID, u.CostUsd)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_cost_summaries (date, total_calls, total_cost_usd, by_provider, by_request_type, by_preference, top_users, generated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (date) DO UPDATE SET
			total_calls=EXCLUDED.total_calls, total_cost_usd=EXCLUDED.total_cost_usd,
			by_provider=EXCLUDED.by_provider, by_request_type=EXCLUDED.by_request_type,
			by_preference=EXCLUDED.by_preference, top_users=EXCLUDED.top_users, generated_at=EXCLUDED.generated_at`,
		summary.Date, summary.TotalCalls, summary.TotalCostUsd, byProvider, byRequestType, byPreference,
		pq.Array(topUIDs), summary.GeneratedAt)
	if err != nil {
		return fmt.Errorf("pgstore: put daily summary: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, date string) (store.DailyCostSummary, error) {
	var row struct {
		Date          string    `db:"date"`
		TotalCalls    int64     `db:"total_calls"`
		TotalCostUsd  float64   `db:"total_cost_usd"`
		ByProvider    []byte    `db:"by_provider"`
		ByRequestType []byte    `db:"by_request_type"`
		ByPreference  []byte    `db:"by_preference"`
		GeneratedAt   time.Time `db:"generated_at"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT date, total_calls, total_cost_usd, by_provider, by_request_type, by_preference, generated_at
		 FROM daily_cost_summaries WHERE date=$1`, date)
	if errors.Is(err, sql.ErrNoRows) {
		return store.DailyCostSummary{}, store.ErrNotFound
	}
	if err != nil {
		return store.DailyCostSummary{}, fmt.Errorf("pgstore: get daily summary: %w", err)
	}
	out := store.DailyCostSummary{Date: row.Date, TotalCalls: row.TotalCalls, TotalCostUsd: row.TotalCostUsd, GeneratedAt: row.GeneratedAt}
	_ = json.Unmarshal(row.ByProvider, &out.ByProvider)
	_ = json.Unmarshal(row.ByRequestType, &out.ByRequestType)
	_ = json.Unmarshal(row.ByPreference, &out.ByPreference)
	return out, nil
}

// IncrementDaily upserts the (uid, date) usage row: total_cost_usd and
// total_calls accumulate, and request_types[requestType] is bumped via
// jsonb_set so concurrent increments for different request types don't
// clobber each other.
func (s *Store) IncrementDaily(ctx context.Context, uid, date string, cost float64, requestType string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_daily_usage (uid, date, total_cost_usd, total_calls, request_types)
		VALUES ($1, $2::date, $3, 1, jsonb_build_object($4::text, 1::bigint))
		ON CONFLICT (uid, date) DO UPDATE SET
			total_cost_usd = user_daily_usage.total_cost_usd + EXCLUDED.total_cost_usd,
			total_calls = user_daily_usage.total_calls + 1,
			request_types = jsonb_set(
				user_daily_usage.request_types,
				ARRAY[$4::text],
				(COALESCE((user_daily_usage.request_types->>$4::text)::bigint, 0) + 1)::text::jsonb,
				true
			)`,
		uid, date, cost, requestType)
	if err != nil {
		return fmt.Errorf("pgstore: increment daily usage: %w", err)
	}
	return nil
}

func (s *Store) GetDaily(ctx context.Context, uid, date string) (store.UserDailyUsage, error) {
	var row struct {
		UID          string  `db:"uid"`
		Date         string  `db:"date"`
		TotalCostUsd float64 `db:"total_cost_usd"`
		TotalCalls   int64   `db:"total_calls"`
		RequestTypes []byte  `db:"request_types"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT uid, date::text AS date, total_cost_usd, total_calls, request_types
		FROM user_daily_usage WHERE uid=$1 AND date=$2::date`, uid, date)
	if errors.Is(err, sql.ErrNoRows) {
		return store.UserDailyUsage{}, store.ErrNotFound
	}
	if err != nil {
		return store.UserDailyUsage{}, fmt.Errorf("pgstore: get daily usage: %w", err)
	}
	out := store.UserDailyUsage{UID: row.UID, Date: row.Date, TotalCostUsd: row.TotalCostUsd, TotalCalls: row.TotalCalls, RequestTypes: map[string]int64{}}
	_ = json.Unmarshal(row.RequestTypes, &out.RequestTypes)
	return out, nil
}

func (s *Store) Start(ctx context.Context, job string, runAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO job_runs (job, run_at, status) VALUES ($1,$2,'running')
		ON CONFLICT (job, run_at) DO NOTHING`, job, runAt)
	if err != nil {
		return false, fmt.Errorf("pgstore: start job run: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *Store) Finish(ctx context.Context, job string, runAt time.Time, status, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE job_runs SET finished_at=$1, status=$2, detail=$3 WHERE job=$4 AND run_at=$5`,
		time.Now(), status, detail, job, runAt)
	if err != nil {
		return fmt.Errorf("pgstore: finish job run: %w", err)
	}
	return nil
}
