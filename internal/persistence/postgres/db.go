// Package postgres implements the persistence interfaces on PostgreSQL via
// sqlx. Every query runs under a per-call timeout, and writes to time-series
// tables prune rows past the retention horizon in the same transaction.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/breadthlab/regimed/internal/config"
	"github.com/breadthlab/regimed/internal/persistence"
)

const schema = `
CREATE TABLE IF NOT EXISTS scan_snapshots (
	ts           TIMESTAMPTZ PRIMARY KEY,
	long_count   INTEGER NOT NULL,
	short_count  INTEGER NOT NULL,
	ratio        DOUBLE PRECISION NOT NULL,
	total_stocks INTEGER NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS breadth_snapshots (
	ts                   TIMESTAMPTZ PRIMARY KEY,
	sma20_percent        DOUBLE PRECISION NOT NULL,
	sma50_percent        DOUBLE PRECISION NOT NULL,
	volume_participation DOUBLE PRECISION NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS regime_predictions (
	id         UUID PRIMARY KEY,
	ts         TIMESTAMPTZ NOT NULL UNIQUE,
	regime     TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	source     TEXT NOT NULL,
	features   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS feedback_records (
	id            BIGSERIAL PRIMARY KEY,
	prediction_id UUID NOT NULL UNIQUE REFERENCES regime_predictions(id) ON DELETE CASCADE,
	actual_regime TEXT NOT NULL,
	score_delta   DOUBLE PRECISION NOT NULL,
	volatility    DOUBLE PRECISION NOT NULL,
	accurate      BOOLEAN NOT NULL,
	feedback_ts   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS model_versions (
	id         UUID PRIMARY KEY,
	trained_at TIMESTAMPTZ NOT NULL,
	accuracy   DOUBLE PRECISION NOT NULL,
	samples    INTEGER NOT NULL,
	features   JSONB NOT NULL,
	weights    BYTEA NOT NULL,
	scaler     BYTEA NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_ts ON regime_predictions (ts DESC);
CREATE INDEX IF NOT EXISTS idx_feedback_ts ON feedback_records (feedback_ts DESC);
`

// Connect opens the pool and verifies connectivity.
func Connect(cfg config.PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// EnsureSchema creates the tables when missing. Idempotent.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// NewRepository wires the concrete repos behind the persistence interfaces.
func NewRepository(db *sqlx.DB, cfg config.PostgresConfig, retention time.Duration) persistence.Repository {
	timeout := cfg.QueryTimeout()
	return persistence.Repository{
		Snapshots:   NewSnapshotRepo(db, timeout, retention),
		Predictions: NewPredictionRepo(db, timeout, retention),
		Feedback:    NewFeedbackRepo(db, timeout),
		Models:      NewModelRepo(db, timeout),
	}
}
