// Package scheduler implements C11: the monthly reset, daily rollup,
// weekly power-user report, and hourly approaching-limit sweep jobs,
// grounded on the teacher's explicit background-task start/stop lifecycle
// (internal/health.Manager's ticker loop) but driven by cron expressions
// via github.com/robfig/cron (v1) now that Temporal is gone (spec.md §9:
// "replace Temporal cron workflows with a direct cron library since this
// module has no other use for a durable workflow engine").
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron"
	"go.uber.org/zap"

	"github.com/aegis-run/governor/internal/budget"
	"github.com/aegis-run/governor/internal/costtracker"
	"github.com/aegis-run/governor/internal/metrics"
	"github.com/aegis-run/governor/internal/store"
)

// approachingLimitFraction is spec.md §4.11's hourly-sweep threshold.
const approachingLimitFraction = 0.8

// Scheduler owns the cron runtime and every job's dependencies.
type Scheduler struct {
	cron    *cron.Cron
	store   store.Store
	budgets *budget.Manager
	costs   *costtracker.Tracker
	clock   func() time.Time
	logger  *zap.Logger
}

type Options struct {
	Store   store.Store
	Budgets *budget.Manager
	Costs   *costtracker.Tracker
	Clock   func() time.Time
	Logger  *zap.Logger
}

func New(opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(),
		store:   opts.Store,
		budgets: opts.Budgets,
		costs:   opts.Costs,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}
}

// Start registers every job on its cron schedule and begins running them
// in the background. Cron expressions are UTC per spec.md §4.11's "00:00
// UTC" / "02:00 UTC" / "Mon 01:00 UTC" wall-clock anchors; the process
// itself must run with TZ=UTC (nothing in this repository sets it) for
// these expressions to mean what they say. Each expression starts with a
// seconds field, as robfig/cron's default parser reads it.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		spec string
		name string
		run  func(context.Context) error
	}{
		{"0 0 0 1 * *", "monthly_reset", s.runMonthlyReset},
		{"0 0 2 * * *", "daily_rollup", s.runDailyRollup},
		{"0 0 1 * * 1", "weekly_power_user_report", s.runWeeklyPowerUserReport},
		{"0 0 * * * *", "approaching_limit_sweep", s.runApproachingLimitSweep},
	}
	for _, j := range jobs {
		j := j
		if err := s.cron.AddFunc(j.spec, func() { s.runGuarded(ctx, j.name, j.run) }); err != nil {
			return fmt.Errorf("scheduler: register %s: %w", j.name, err)
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler so no further job runs start; it does not wait
// for a job run already in progress. Safe to call even if Start was never
// called.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// runGuarded wraps a job with the idempotency check (JobLogStore.Start),
// metrics, and logging every job shares.
func (s *Scheduler) runGuarded(ctx context.Context, name string, fn func(context.Context) error) {
	runAt := s.clock().UTC().Truncate(time.Minute)
	started, err := s.store.Start(ctx, name, runAt)
	if err != nil {
		s.logger.Error("scheduler: job-log start failed", zap.String("job", name), zap.Error(err))
		metrics.ScheduledJobRuns.WithLabelValues(name, "log_error").Inc()
		return
	}
	if !started {
		s.logger.Info("scheduler: job already ran for this tick, skipping", zap.String("job", name))
		return
	}

	runErr := fn(ctx)
	status, detail := "succeeded", ""
	if runErr != nil {
		status, detail = "failed", runErr.Error()
		s.logger.Error("scheduler: job failed", zap.String("job", name), zap.Error(runErr))
	} else {
		s.logger.Info("scheduler: job succeeded", zap.String("job", name))
	}
	metrics.ScheduledJobRuns.WithLabelValues(name, status).Inc()
	if err := s.store.Finish(ctx, name, runAt, status, detail); err != nil {
		s.logger.Error("scheduler: job-log finish failed", zap.String("job", name), zap.Error(err))
	}
}

// runMonthlyReset walks every budget from the previous period and forces
// the lazy roll for each uid, per spec.md §4.11: "collection-group scan of
// budgets, re-read tier, replace to current period. Process in batches."
func (s *Scheduler) runMonthlyReset(ctx context.Context) error {
	prevPeriod := s.clock().UTC().AddDate(0, -1, 0).Format("2006-01")
	const batchSize = 200
	offset := 0
	total := 0
	for {
		batch, err := s.store.ListForPeriod(ctx, prevPeriod, batchSize, offset)
		if err != nil {
			return fmt.Errorf("scheduler: list previous-period budgets: %w", err)
		}
		for _, b := range batch {
			if _, err := s.budgets.EnsureCurrentPeriod(ctx, b.UID); err != nil {
				s.logger.Warn("scheduler: monthly reset failed for user", zap.String("uid", b.UID), zap.Error(err))
			}
		}
		total += len(batch)
		if len(batch) < batchSize {
			break
		}
		offset += batchSize
	}
	s.logger.Info("scheduler: monthly reset complete", zap.Int("users_rolled", total))
	return nil
}

// runDailyRollup aggregates yesterday's call ledger into a DailyCostSummary,
// per spec.md §4.11: "02:00 UTC ... write daily_{date} summary (overwrite).
// Safe to re-run."
func (s *Scheduler) runDailyRollup(ctx context.Context) error {
	date := s.clock().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	summary, err := s.costs.AggregateDaily(ctx, date)
	if err != nil {
		return fmt.Errorf("scheduler: daily rollup: %w", err)
	}
	s.logger.Info("scheduler: daily rollup complete",
		zap.String("date", date), zap.Int64("calls", summary.TotalCalls), zap.Float64("cost_usd", summary.TotalCostUsd))
	return nil
}

// runWeeklyPowerUserReport cross-references current-period degraded/blocked
// users against their status last period to flag repeat offenders, per
// spec.md §4.11's "cross-join current-period degraded/blocked users with
// last-period status to flag 'repeat' candidates."
func (s *Scheduler) runWeeklyPowerUserReport(ctx context.Context) error {
	now := s.clock().UTC()
	currentPeriod := now.Format("2006-01")
	prevPeriod := now.AddDate(0, -1, 0).Format("2006-01")

	// An explicit cap rather than 0: pgstore passes limit straight to SQL
	// LIMIT, where 0 returns no rows.
	const maxUsersPerReport = 100000
	current, err := s.store.ListForPeriod(ctx, currentPeriod, maxUsersPerReport, 0)
	if err != nil {
		return fmt.Errorf("scheduler: list current-period budgets: %w", err)
	}
	prevStatus := map[string]store.BudgetStatus{}
	previous, err := s.store.ListForPeriod(ctx, prevPeriod, maxUsersPerReport, 0)
	if err != nil {
		return fmt.Errorf("scheduler: list previous-period budgets: %w", err)
	}
	for _, b := range previous {
		prevStatus[b.UID] = b.Status
	}

	repeatCount := 0
	for _, b := range current {
		if b.Status != store.StatusDegraded && b.Status != store.StatusBlocked {
			continue
		}
		if prev, ok := prevStatus[b.UID]; ok && (prev == store.StatusDegraded || prev == store.StatusBlocked) {
			repeatCount++
			s.logger.Info("scheduler: repeat power user flagged",
				zap.String("uid", b.UID), zap.String("current_status", string(b.Status)), zap.String("previous_status", string(prev)))
		}
	}
	s.logger.Info("scheduler: weekly power-user report complete", zap.Int("repeat_users", repeatCount))
	return nil
}

// runApproachingLimitSweep fires a once-per-period alert for premium,
// non-free-tier users who have spent >= 80% of budgetUsd, per spec.md
// §4.11. "Fire one" here means: log + increment the alert counter;
// spec.md §1 treats the outbound notification channel as an external
// collaborator.
func (s *Scheduler) runApproachingLimitSweep(ctx context.Context) error {
	period := s.clock().UTC().Format("2006-01")
	candidates, err := s.store.ApproachingLimit(ctx, period, approachingLimitFraction)
	if err != nil {
		return fmt.Errorf("scheduler: approaching-limit scan: %w", err)
	}

	periodStart, _ := time.Parse("2006-01", period)
	fired := 0
	for _, b := range candidates {
		if b.Status != store.StatusPremium || b.Tier == store.TierFree {
			continue
		}
		alertJob := "approaching_limit:" + b.UID
		isFirst, err := s.store.Start(ctx, alertJob, periodStart)
		if err != nil {
			s.logger.Warn("scheduler: approaching-limit dedup check failed", zap.String("uid", b.UID), zap.Error(err))
			continue
		}
		if !isFirst {
			continue
		}
		_ = s.store.Finish(ctx, alertJob, periodStart, "succeeded", "")
		metrics.ApproachingLimitAlerts.Inc()
		fired++
		s.logger.Info("scheduler: approaching-limit alert fired",
			zap.String("uid", b.UID), zap.Float64("spent_usd", b.SpentUsd), zap.Float64("budget_usd", b.BudgetUsd))
	}
	s.logger.Info("scheduler: approaching-limit sweep complete", zap.Int("alerts_fired", fired))
	return nil
}
