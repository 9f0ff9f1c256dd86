package pgstore

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aegis-run/governor/internal/circuitbreaker"
	"github.com/aegis-run/governor/internal/store"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zaptest.NewLogger(t)
	mock.ExpectPing()
	cb := circuitbreaker.NewDatabaseWrapper(db, logger)
	require.NoError(t, cb.PingContext(context.Background()))

	return &Store{db: sqlx.NewDb(db, "postgres"), cb: cb, logger: logger}, mock
}

func TestGetOrCreateInsertsThenReads(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec("INSERT INTO user_ai_budgets").WillReturnResult(sqlmock.NewResult(0, 1))

	cols := []string{"uid", "period", "tier", "budget_usd", "spent_usd", "degraded_spend_usd",
		"max_degraded_usd", "status", "call_count", "call_count_degraded", "last_call_at",
		"reset_at", "degraded_at", "blocked_at", "version"}
	rows := sqlmock.NewRows(cols).AddRow("u1", "2026-07", "pro", 3.0, 0.0, 0.0, 5.0, "premium", 0, 0, nil, time.Now(), nil, nil, 1)
	mock.ExpectQuery("SELECT .* FROM user_ai_budgets WHERE uid=\\$1 AND period=\\$2").WillReturnRows(rows)

	got, err := s.GetOrCreate(context.Background(), "u1", "2026-07", store.UserAIBudget{
		Tier: store.TierPro, BudgetUsd: 3.0, MaxDegradedUsd: 5.0, Status: store.StatusPremium, ResetAt: time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, "u1", got.UID)
	require.NoError(t, mock.ExpectationsWereMet())
}
