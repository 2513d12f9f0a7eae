package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/metrics"
	"github.com/breadthlab/regimed/internal/persistence"
)

// feedbackRepo implements FeedbackRepo for PostgreSQL.
type feedbackRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewFeedbackRepo creates a new PostgreSQL feedback repository.
func NewFeedbackRepo(db *sqlx.DB, timeout time.Duration) persistence.FeedbackRepo {
	return &feedbackRepo{db: db, timeout: timeout}
}

// Save stores one graded outcome. The unique constraint on prediction_id
// rejects a second grade for the same prediction.
func (r *feedbackRepo) Save(ctx context.Context, rec domain.FeedbackRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if !rec.ActualRegime.Valid() {
		return fmt.Errorf("invalid actual regime: %d", rec.ActualRegime)
	}

	query := `
		INSERT INTO feedback_records
		(prediction_id, actual_regime, score_delta, volatility, accurate, feedback_ts)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.db.ExecContext(ctx, query,
		rec.PredictionID, rec.ActualRegime.String(), rec.ScoreDelta,
		rec.Volatility, rec.Accurate, rec.FeedbackAt); err != nil {
		metrics.PersistenceErrors.WithLabelValues("save_feedback").Inc()
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

// Stats aggregates accuracy over the window, grouped by predicted regime.
func (r *feedbackRepo) Stats(ctx context.Context, tr persistence.TimeRange) (persistence.AccuracyStats, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT p.regime, COUNT(*), COUNT(*) FILTER (WHERE f.accurate)
		FROM feedback_records f
		JOIN regime_predictions p ON p.id = f.prediction_id
		WHERE f.feedback_ts >= $1 AND f.feedback_ts <= $2
		GROUP BY p.regime`

	rows, err := r.db.QueryxContext(ctx, query, tr.From, tr.To)
	if err != nil {
		return persistence.AccuracyStats{}, fmt.Errorf("failed to query accuracy stats: %w", err)
	}
	defer rows.Close()

	stats := persistence.AccuracyStats{ByRegime: make(map[string]persistence.RegimeCounts)}
	for rows.Next() {
		var regime string
		var total, accurate int64
		if err := rows.Scan(&regime, &total, &accurate); err != nil {
			return persistence.AccuracyStats{}, fmt.Errorf("failed to scan accuracy stats: %w", err)
		}
		stats.ByRegime[regime] = persistence.RegimeCounts{Total: total, Accurate: accurate}
		stats.Total += total
		stats.Accurate += accurate
	}
	if err := rows.Err(); err != nil {
		return persistence.AccuracyStats{}, fmt.Errorf("error iterating stats rows: %w", err)
	}
	return stats, nil
}

// TrainingSet joins graded feedback with the features of the prediction it
// graded, oldest first. Labels come from the realized outcome, not the
// original prediction.
func (r *feedbackRepo) TrainingSet(ctx context.Context, tr persistence.TimeRange, limit int) ([]persistence.TrainingSample, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT p.features, f.actual_regime
		FROM feedback_records f
		JOIN regime_predictions p ON p.id = f.prediction_id
		WHERE f.feedback_ts >= $1 AND f.feedback_ts <= $2
		ORDER BY f.feedback_ts ASC
		LIMIT $3`

	rows, err := r.db.QueryxContext(ctx, query, tr.From, tr.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query training set: %w", err)
	}
	defer rows.Close()

	var samples []persistence.TrainingSample
	for rows.Next() {
		var featuresJSON []byte
		var actual string
		if err := rows.Scan(&featuresJSON, &actual); err != nil {
			return nil, fmt.Errorf("failed to scan training sample: %w", err)
		}

		var sample persistence.TrainingSample
		if err := json.Unmarshal(featuresJSON, &sample.Features); err != nil {
			return nil, fmt.Errorf("failed to unmarshal features: %w", err)
		}
		regime, err := domain.ParseRegime(actual)
		if err != nil {
			return nil, fmt.Errorf("stored regime unreadable: %w", err)
		}
		sample.Actual = regime
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating training rows: %w", err)
	}
	return samples, nil
}

// CountSince returns graded outcomes recorded after the cutoff.
func (r *feedbackRepo) CountSince(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM feedback_records WHERE feedback_ts > $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return count, nil
}
