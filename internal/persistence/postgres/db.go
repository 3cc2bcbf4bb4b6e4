package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sawpanic/marketdoctor/internal/persistence"
)

// Connect opens a pooled PostgreSQL connection via lib/pq, grounded on the
// teacher's persistence-layer construction pattern (sqlx.Connect + pool
// tuning at startup, never per-call).
func Connect(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	return db, nil
}

// healthChecker implements persistence.RepositoryHealth for a sqlx.DB pool.
type healthChecker struct {
	db *sqlx.DB
}

// NewHealthChecker wraps db for liveness probing.
func NewHealthChecker(db *sqlx.DB) persistence.RepositoryHealth {
	return &healthChecker{db: db}
}

func (h *healthChecker) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.db.PingContext(ctx)
}

func (h *healthChecker) Health(ctx context.Context) persistence.HealthCheck {
	start := time.Now()
	check := persistence.HealthCheck{LastCheck: start, ConnectionPool: map[string]int{}}
	if err := h.Ping(ctx); err != nil {
		check.Healthy = false
		check.Errors = append(check.Errors, err.Error())
	} else {
		check.Healthy = true
	}
	stats := h.db.Stats()
	check.ConnectionPool["open"] = stats.OpenConnections
	check.ConnectionPool["in_use"] = stats.InUse
	check.ConnectionPool["idle"] = stats.Idle
	check.ResponseTimeMS = time.Since(start).Milliseconds()
	return check
}
