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

// modelRepo implements ModelRepo for PostgreSQL.
type modelRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewModelRepo creates a new PostgreSQL model version repository.
func NewModelRepo(db *sqlx.DB, timeout time.Duration) persistence.ModelRepo {
	return &modelRepo{db: db, timeout: timeout}
}

const modelColumns = `id, trained_at, accuracy, samples, features, weights, scaler`

// Save stores a trained model version. Versions are never overwritten;
// promotion happens at load time by accuracy.
func (r *modelRepo) Save(ctx context.Context, mv domain.ModelVersion) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	featuresJSON, err := json.Marshal(mv.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal feature names: %w", err)
	}

	query := `
		INSERT INTO model_versions (id, trained_at, accuracy, samples, features, weights, scaler)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := r.db.ExecContext(ctx, query,
		mv.ID, mv.TrainedAt, mv.Accuracy, mv.Samples,
		featuresJSON, mv.Weights, mv.Scaler); err != nil {
		metrics.PersistenceErrors.WithLabelValues("save_model").Inc()
		return fmt.Errorf("failed to save model version: %w", err)
	}
	return nil
}

// LoadBest returns the highest-accuracy version, newest winning ties. Nil
// when no version has been trained yet.
func (r *modelRepo) LoadBest(ctx context.Context) (*domain.ModelVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + modelColumns + `
		FROM model_versions
		ORDER BY accuracy DESC, trained_at DESC
		LIMIT 1`

	mv, err := scanModelVersion(r.db.QueryRowxContext(ctx, query))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load best model: %w", err)
	}
	return mv, nil
}

// List returns recorded versions, newest first.
func (r *modelRepo) List(ctx context.Context, limit int) ([]domain.ModelVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + modelColumns + `
		FROM model_versions
		ORDER BY trained_at DESC
		LIMIT $1`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query model versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.ModelVersion
	for rows.Next() {
		mv, err := scanModelVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating model rows: %w", err)
	}
	return versions, nil
}

func scanModelVersion(row rowScanner) (*domain.ModelVersion, error) {
	var mv domain.ModelVersion
	var featuresJSON []byte

	if err := row.Scan(&mv.ID, &mv.TrainedAt, &mv.Accuracy, &mv.Samples,
		&featuresJSON, &mv.Weights, &mv.Scaler); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(featuresJSON, &mv.Features); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feature names: %w", err)
	}
	return &mv, nil
}
