// Package memstore is an in-memory Store implementation for local
// development and unit tests, grounded on the teacher's mutex-guarded
// map patterns (e.g. internal/circuitbreaker's MetricsCollector) but
// instance-based rather than a package-level global.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aegis-run/governor/internal/store"
)

type budgetKey struct{ uid, period string }

type jobKey struct {
	job   string
	runAt time.Time
}

type usageKey struct{ uid, date string }

// Store is a single-process, mutex-guarded implementation of store.Store.
type Store struct {
	mu        sync.Mutex
	budgets   map[budgetKey]store.UserAIBudget
	calls     []store.LLMCallRecord
	summaries map[string]store.DailyCostSummary
	jobs      map[jobKey]*store.JobRun
	usage     map[usageKey]store.UserDailyUsage
}

func New() *Store {
	return &Store{
		budgets:   map[budgetKey]store.UserAIBudget{},
		summaries: map[string]store.DailyCostSummary{},
		jobs:      map[jobKey]*store.JobRun{},
		usage:     map[usageKey]store.UserDailyUsage{},
	}
}

func (s *Store) GetOrCreate(ctx context.Context, uid, period string, defaults store.UserAIBudget) (store.UserAIBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := budgetKey{uid, period}
	if b, ok := s.budgets[key]; ok {
		return b, nil
	}
	defaults.UID = uid
	defaults.Period = period
	defaults.Version = 1
	s.budgets[key] = defaults
	return defaults, nil
}

func (s *Store) WithLock(ctx context.Context, uid, period string, fn func(current store.UserAIBudget) (store.UserAIBudget, error)) (store.UserAIBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := budgetKey{uid, period}
	current, ok := s.budgets[key]
	if !ok {
		return store.UserAIBudget{}, store.ErrNotFound
	}
	next, err := fn(current)
	if err != nil {
		return store.UserAIBudget{}, err
	}
	next.UID = uid
	next.Period = period
	next.Version = current.Version + 1
	s.budgets[key] = next
	return next, nil
}

func (s *Store) ListForPeriod(ctx context.Context, period string, limit, offset int) ([]store.UserAIBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.UserAIBudget
	for k, b := range s.budgets {
		if k.period == period {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return page(out, limit, offset), nil
}

func (s *Store) ApproachingLimit(ctx context.Context, period string, fraction float64) ([]store.UserAIBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.UserAIBudget
	for k, b := range s.budgets {
		if k.period != period || b.BudgetUsd <= 0 {
			continue
		}
		if b.SpentUsd/b.BudgetUsd >= fraction {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (s *Store) HistoryForUser(ctx context.Context, uid string, months int) ([]store.UserAIBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.UserAIBudget
	for k, b := range s.budgets {
		if k.uid == uid {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period > out[j].Period })
	if months > 0 && months < len(out) {
		out = out[:months]
	}
	return out, nil
}

func (s *Store) Append(ctx context.Context, rec store.LLMCallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, rec)
	return nil
}

func (s *Store) ListForUser(ctx context.Context, uid string, since time.Time, limit int) ([]store.LLMCallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.LLMCallRecord
	for _, c := range s.calls {
		if c.UID == uid && !c.Timestamp.Before(since) {
			out = append(out, c)
		}
	}
	return page(out, limit, 0), nil
}

func (s *Store) ListForDate(ctx context.Context, date string) ([]store.LLMCallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.LLMCallRecord
	for _, c := range s.calls {
		if c.Timestamp.Format("2006-01-02") == date {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, summary store.DailyCostSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[summary.Date] = summary
	return nil
}

func (s *Store) Get(ctx context.Context, date string) (store.DailyCostSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[date]
	if !ok {
		return store.DailyCostSummary{}, store.ErrNotFound
	}
	return sum, nil
}

func (s *Store) Start(ctx context.Context, job string, runAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := jobKey{job, runAt}
	if _, exists := s.jobs[key]; exists {
		return false, nil
	}
	s.jobs[key] = &store.JobRun{Job: job, RunAt: runAt, Status: "running"}
	return true, nil
}

func (s *Store) Finish(ctx context.Context, job string, runAt time.Time, status, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := jobKey{job, runAt}
	run, ok := s.jobs[key]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	run.FinishedAt = &now
	run.Status = status
	run.Detail = detail
	return nil
}

func (s *Store) IncrementDaily(ctx context.Context, uid, date string, cost float64, requestType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := usageKey{uid, date}
	u := s.usage[key]
	u.UID, u.Date = uid, date
	rt := make(map[string]int64, len(u.RequestTypes)+1)
	for k, v := range u.RequestTypes {
		rt[k] = v
	}
	rt[requestType]++
	u.RequestTypes = rt
	u.TotalCostUsd += cost
	u.TotalCalls++
	s.usage[key] = u
	return nil
}

func (s *Store) GetDaily(ctx context.Context, uid, date string) (store.UserDailyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usage[usageKey{uid, date}]
	if !ok {
		return store.UserDailyUsage{}, store.ErrNotFound
	}
	rt := make(map[string]int64, len(u.RequestTypes))
	for k, v := range u.RequestTypes {
		rt[k] = v
	}
	u.RequestTypes = rt
	return u, nil
}

func (s *Store) Close() error { return nil }

// Ping satisfies internal/health.Pinger; an in-process store is always reachable.
func (s *Store) Ping(ctx context.Context) error { return nil }

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
