package circuitbreaker

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
)

// DatabaseWrapper guards the Postgres connection pool used by
// internal/store/pgstore: every real query in that package goes through
// sqlx directly (transaction semantics and named-parameter binding sqlx
// gives it have no equivalent here), so this wrapper only fronts the two
// operations pgstore actually calls through it — PingContext at startup
// and Close at shutdown — plus the read-only status methods a health
// checker or admin surface needs.
type DatabaseWrapper struct {
	db     *sql.DB
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewDatabaseWrapper creates a database wrapper with circuit breaker
func NewDatabaseWrapper(db *sql.DB, logger *zap.Logger) *DatabaseWrapper {
	config := GetDatabaseConfig().ToConfig()
	cb := NewCircuitBreaker("postgresql", config, logger)

	GlobalMetricsCollector.RegisterCircuitBreaker("postgresql", "database-client", cb)

	return &DatabaseWrapper{
		db:     db,
		cb:     cb,
		logger: logger,
	}
}

// PingContext wraps database ping with circuit breaker
func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	var err error

	cbErr := dw.cb.Execute(ctx, func() error {
		err = dw.db.PingContext(ctx)
		return err
	})

	state := dw.cb.State()
	success := cbErr == nil && err == nil
	GlobalMetricsCollector.RecordRequest("postgresql", "database-client", state, success)

	if cbErr != nil {
		return cbErr
	}
	return err
}

// Stats returns database stats
func (dw *DatabaseWrapper) Stats() sql.DBStats {
	return dw.db.Stats()
}

// Close closes the database connection
func (dw *DatabaseWrapper) Close() error {
	return dw.db.Close()
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (dw *DatabaseWrapper) IsCircuitBreakerOpen() bool {
	return dw.cb.State() == StateOpen
}

// Snapshot reports this connection pool's breaker state, consistent with
// the per-provider breaker's admin/health surfacing (CircuitBreaker.Snapshot).
func (dw *DatabaseWrapper) Snapshot() Snapshot {
	return dw.cb.Snapshot()
}
