package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/xmlongan/jmomden/internal/config"
	"github.com/xmlongan/jmomden/internal/persistence"
)

// Schema creates the snapshot table
const Schema = `
CREATE TABLE IF NOT EXISTS model_snapshots (
	id         TEXT PRIMARY KEY,
	hash       TEXT NOT NULL,
	degree     INTEGER NOT NULL CHECK (degree >= 1),
	family     TEXT NOT NULL,
	c          DOUBLE PRECISION NOT NULL,
	moments    JSONB NOT NULL,
	basis1     JSONB NOT NULL,
	basis2     JSONB NOT NULL,
	tensor     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS model_snapshots_hash_idx ON model_snapshots (hash, created_at DESC);`

// Open connects to PostgreSQL, configures the pool and verifies the
// connection
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate applies Schema
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// healthChecker implements persistence.RepositoryHealth
type healthChecker struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewHealthChecker reports on db with pings bounded by timeout
func NewHealthChecker(db *sqlx.DB, timeout time.Duration) persistence.RepositoryHealth {
	return &healthChecker{db: db, timeout: timeout}
}

// Health pings the database
func (h *healthChecker) Health(ctx context.Context) persistence.HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	check := persistence.HealthCheck{Healthy: true, LastCheck: start.UTC()}
	if err := h.db.PingContext(ctx); err != nil {
		check.Healthy = false
		check.Errors = append(check.Errors, fmt.Sprintf("ping failed: %v", err))
	}
	check.ResponseTimeMS = time.Since(start).Milliseconds()
	check.OpenConns = h.db.Stats().OpenConnections
	return check
}
