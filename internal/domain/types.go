package domain

import (
	"time"
)

// PredictionSource tags which classification path produced a prediction.
type PredictionSource string

const (
	SourceModel PredictionSource = "model"
	SourceRule  PredictionSource = "rule"
)

// ScanSnapshot is one breadth/signal-count sample produced by the scan feed.
// Read-only to this service; the derived ratio is computed once at ingest.
type ScanSnapshot struct {
	Timestamp   time.Time `json:"ts" db:"ts"`
	LongCount   int       `json:"long_count" db:"long_count"`
	ShortCount  int       `json:"short_count" db:"short_count"`
	Ratio       float64   `json:"ratio" db:"ratio"`
	TotalStocks int       `json:"total_stocks" db:"total_stocks"`
}

// BreadthSnapshot is the independent breadth measure used for cross-checks.
type BreadthSnapshot struct {
	Timestamp           time.Time `json:"ts" db:"ts"`
	SMA20Percent        float64   `json:"sma20_percent" db:"sma20_percent"`
	SMA50Percent        float64   `json:"sma50_percent" db:"sma50_percent"`
	VolumeParticipation float64   `json:"volume_participation" db:"volume_participation"`
}

// FeatureVector is the classifier input derived per scoring cycle.
type FeatureVector struct {
	Ratio               float64 `json:"ratio"`
	RatioMA5            float64 `json:"ratio_ma5"`
	RatioMA10           float64 `json:"ratio_ma10"`
	RatioVolatility     float64 `json:"ratio_volatility"`
	RatioMomentum       float64 `json:"ratio_momentum"`
	SMA20Percent        float64 `json:"sma20_percent"`
	SMA50Percent        float64 `json:"sma50_percent"`
	BreadthMomentum     float64 `json:"breadth_momentum"`
	VolumeParticipation float64 `json:"volume_participation"`
}

// FeatureNames is the canonical feature ordering shared by training and
// inference. Values() must stay aligned with it.
var FeatureNames = []string{
	"ratio", "ratio_ma5", "ratio_ma10", "ratio_volatility", "ratio_momentum",
	"sma20_percent", "sma50_percent", "breadth_momentum", "volume_participation",
}

// Values returns the feature vector in FeatureNames order.
func (f FeatureVector) Values() []float64 {
	return []float64{
		f.Ratio, f.RatioMA5, f.RatioMA10, f.RatioVolatility, f.RatioMomentum,
		f.SMA20Percent, f.SMA50Percent, f.BreadthMomentum, f.VolumeParticipation,
	}
}

// RegimePrediction is one classification event. Immutable after creation.
type RegimePrediction struct {
	ID         string           `json:"id" db:"id"`
	Timestamp  time.Time        `json:"ts" db:"ts"`
	Regime     Regime           `json:"regime"`
	Confidence float64          `json:"confidence" db:"confidence"`
	Source     PredictionSource `json:"source" db:"source"`
	Features   FeatureVector    `json:"features"`
}

// RegimeState is the currently held regime after smoothing. Exactly one live
// instance exists at a time; transitions create a new value rather than
// editing the old one in place.
type RegimeState struct {
	Regime     Regime    `json:"regime"`
	EnteredAt  time.Time `json:"entered_at"`
	Confidence float64   `json:"confidence"`
}

// Dwell returns how long the state has been held as of now.
func (s RegimeState) Dwell(now time.Time) time.Duration {
	return now.Sub(s.EnteredAt)
}

// FeedbackRecord is the realized outcome for a single prediction. Append-only;
// each record references exactly one prediction.
type FeedbackRecord struct {
	ID           int64     `json:"id" db:"id"`
	PredictionID string    `json:"prediction_id" db:"prediction_id"`
	ActualRegime Regime    `json:"actual_regime"`
	ScoreDelta   float64   `json:"score_delta" db:"score_delta"`
	Volatility   float64   `json:"volatility" db:"volatility"`
	Accurate     bool      `json:"accurate" db:"accurate"`
	FeedbackAt   time.Time `json:"feedback_ts" db:"feedback_ts"`
}

// ModelVersion describes a trained classifier artifact. Multiple versions are
// retained; the classifier loads the best by holdout accuracy, never the most
// recent unconditionally.
type ModelVersion struct {
	ID        string    `json:"id" db:"id"`
	TrainedAt time.Time `json:"trained_at" db:"trained_at"`
	Accuracy  float64   `json:"accuracy" db:"accuracy"`
	Samples   int       `json:"samples" db:"samples"`
	Features  []string  `json:"features"`
	Weights   []byte    `json:"weights"`
	Scaler    []byte    `json:"scaler"`
}
