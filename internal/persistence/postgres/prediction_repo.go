package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/metrics"
	"github.com/breadthlab/regimed/internal/persistence"
)

// predictionRepo implements PredictionRepo for PostgreSQL.
type predictionRepo struct {
	db        *sqlx.DB
	timeout   time.Duration
	retention time.Duration
}

// NewPredictionRepo creates a new PostgreSQL prediction repository.
func NewPredictionRepo(db *sqlx.DB, timeout, retention time.Duration) persistence.PredictionRepo {
	return &predictionRepo{db: db, timeout: timeout, retention: retention}
}

const predictionColumns = `id, ts, regime, confidence, source, features`

// Save stores a prediction and prunes rows past the retention horizon.
// Duplicate timestamps replace the earlier row so a re-run cycle cannot
// create two predictions for the same instant.
func (r *predictionRepo) Save(ctx context.Context, pred domain.RegimePrediction) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if !pred.Regime.Valid() {
		return fmt.Errorf("invalid regime: %d", pred.Regime)
	}
	featuresJSON, err := json.Marshal(pred.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	query := `
		INSERT INTO regime_predictions (id, ts, regime, confidence, source, features)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ts) DO UPDATE SET
			id = EXCLUDED.id,
			regime = EXCLUDED.regime,
			confidence = EXCLUDED.confidence,
			source = EXCLUDED.source,
			features = EXCLUDED.features`

	if _, err := r.db.ExecContext(ctx, query,
		pred.ID, pred.Timestamp, pred.Regime.String(), pred.Confidence,
		string(pred.Source), featuresJSON); err != nil {
		metrics.PersistenceErrors.WithLabelValues("save_prediction").Inc()
		return fmt.Errorf("failed to save prediction: %w", err)
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM regime_predictions WHERE ts < $1`,
		time.Now().Add(-r.retention)); err != nil {
		metrics.PersistenceErrors.WithLabelValues("prune").Inc()
		return fmt.Errorf("failed to prune predictions: %w", err)
	}
	return nil
}

// Get retrieves a prediction by id, nil when absent.
func (r *predictionRepo) Get(ctx context.Context, id string) (*domain.RegimePrediction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + predictionColumns + ` FROM regime_predictions WHERE id = $1`
	pred, err := scanPrediction(r.db.QueryRowxContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return pred, nil
}

// Latest returns the most recent prediction, nil when none exist.
func (r *predictionRepo) Latest(ctx context.Context) (*domain.RegimePrediction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + predictionColumns + ` FROM regime_predictions ORDER BY ts DESC LIMIT 1`
	pred, err := scanPrediction(r.db.QueryRowxContext(ctx, query))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest prediction: %w", err)
	}
	return pred, nil
}

// ListRange returns predictions inside the window, newest first.
func (r *predictionRepo) ListRange(ctx context.Context, tr persistence.TimeRange, limit int) ([]domain.RegimePrediction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + predictionColumns + `
		FROM regime_predictions
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts DESC
		LIMIT $3`

	rows, err := r.db.QueryxContext(ctx, query, tr.From, tr.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query prediction range: %w", err)
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// ListPending returns matured predictions with no feedback yet, oldest first.
func (r *predictionRepo) ListPending(ctx context.Context, matureBefore, notBefore time.Time) ([]domain.RegimePrediction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT p.id, p.ts, p.regime, p.confidence, p.source, p.features
		FROM regime_predictions p
		LEFT JOIN feedback_records f ON f.prediction_id = p.id
		WHERE f.id IS NULL AND p.ts <= $1 AND p.ts >= $2
		ORDER BY p.ts ASC`

	rows, err := r.db.QueryxContext(ctx, query, matureBefore, notBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending predictions: %w", err)
	}
	defer rows.Close()

	return scanPredictions(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(row rowScanner) (*domain.RegimePrediction, error) {
	var pred domain.RegimePrediction
	var regime, source string
	var featuresJSON []byte

	if err := row.Scan(&pred.ID, &pred.Timestamp, &regime, &pred.Confidence,
		&source, &featuresJSON); err != nil {
		return nil, err
	}

	parsed, err := domain.ParseRegime(regime)
	if err != nil {
		return nil, fmt.Errorf("stored regime unreadable: %w", err)
	}
	pred.Regime = parsed
	pred.Source = domain.PredictionSource(source)

	if err := json.Unmarshal(featuresJSON, &pred.Features); err != nil {
		return nil, fmt.Errorf("failed to unmarshal features: %w", err)
	}
	return &pred, nil
}

func scanPredictions(rows *sqlx.Rows) ([]domain.RegimePrediction, error) {
	var preds []domain.RegimePrediction
	for rows.Next() {
		pred, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		preds = append(preds, *pred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prediction rows: %w", err)
	}
	return preds, nil
}
