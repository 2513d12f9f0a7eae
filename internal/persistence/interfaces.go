// Package persistence defines the storage contracts for snapshots,
// predictions, feedback, and trained model artifacts. Implementations live in
// subpackages; the pipeline and jobs depend only on these interfaces.
package persistence

import (
	"context"
	"time"

	"github.com/breadthlab/regimed/internal/domain"
)

// TimeRange bounds history queries, inclusive on both ends.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// AccuracyStats aggregates prediction-vs-outcome counts for reporting.
type AccuracyStats struct {
	Total    int64                   `json:"total"`
	Accurate int64                   `json:"accurate"`
	ByRegime map[string]RegimeCounts `json:"by_regime"`
}

// RegimeCounts holds per-predicted-regime accuracy tallies.
type RegimeCounts struct {
	Total    int64 `json:"total"`
	Accurate int64 `json:"accurate"`
}

// Overall returns the blended accuracy, zero when no feedback exists.
func (s AccuracyStats) Overall() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Accurate) / float64(s.Total)
}

// TrainingSample joins a prediction's features with its graded outcome.
type TrainingSample struct {
	Features domain.FeatureVector
	Actual   domain.Regime
}

// SnapshotRepo persists validated scan and breadth snapshots. Writes prune
// rows older than the retention horizon as a side effect.
type SnapshotRepo interface {
	// SaveScan stores a scan snapshot keyed by timestamp (upsert).
	SaveScan(ctx context.Context, snap domain.ScanSnapshot) error

	// SaveBreadth stores a breadth snapshot keyed by timestamp (upsert).
	SaveBreadth(ctx context.Context, snap domain.BreadthSnapshot) error

	// RecentScans returns the newest scan snapshots, newest first.
	RecentScans(ctx context.Context, limit int) ([]domain.ScanSnapshot, error)

	// RecentBreadth returns the newest breadth snapshots, newest first.
	RecentBreadth(ctx context.Context, limit int) ([]domain.BreadthSnapshot, error)
}

// PredictionRepo persists classification outputs.
type PredictionRepo interface {
	// Save stores a prediction; duplicate timestamps replace the earlier row.
	Save(ctx context.Context, pred domain.RegimePrediction) error

	// Get retrieves a prediction by id, nil when absent.
	Get(ctx context.Context, id string) (*domain.RegimePrediction, error)

	// Latest returns the most recent prediction, nil when none exist.
	Latest(ctx context.Context) (*domain.RegimePrediction, error)

	// ListRange returns predictions inside the window, newest first.
	ListRange(ctx context.Context, tr TimeRange, limit int) ([]domain.RegimePrediction, error)

	// ListPending returns predictions older than matureBefore that have no
	// feedback yet, bounded below by the lookback horizon, oldest first.
	ListPending(ctx context.Context, matureBefore, notBefore time.Time) ([]domain.RegimePrediction, error)
}

// FeedbackRepo persists graded outcomes and serves accuracy queries.
type FeedbackRepo interface {
	// Save stores one feedback record; a second grade for the same
	// prediction is rejected by the unique constraint.
	Save(ctx context.Context, rec domain.FeedbackRecord) error

	// Stats aggregates accuracy over the window.
	Stats(ctx context.Context, tr TimeRange) (AccuracyStats, error)

	// TrainingSet joins graded feedback with prediction features, oldest
	// first, capped at limit.
	TrainingSet(ctx context.Context, tr TimeRange, limit int) ([]TrainingSample, error)

	// CountSince returns graded outcomes recorded after the cutoff.
	CountSince(ctx context.Context, cutoff time.Time) (int64, error)
}

// ModelRepo persists trained model versions.
type ModelRepo interface {
	// Save stores a new model version.
	Save(ctx context.Context, mv domain.ModelVersion) error

	// LoadBest returns the highest-accuracy version, nil when none exist.
	LoadBest(ctx context.Context) (*domain.ModelVersion, error)

	// List returns recorded versions, newest first.
	List(ctx context.Context, limit int) ([]domain.ModelVersion, error)
}

// Repository aggregates the storage interfaces handed to the application.
type Repository struct {
	Snapshots   SnapshotRepo
	Predictions PredictionRepo
	Feedback    FeedbackRepo
	Models      ModelRepo
}
