// Package feedback closes the loop between predictions and realized market
// behavior. The tracker grades matured predictions against broker scores; the
// retrainer turns graded history into fresh model versions.
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/breadthlab/regimed/internal/config"
	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/marketdata"
	"github.com/breadthlab/regimed/internal/metrics"
	"github.com/breadthlab/regimed/internal/persistence"
)

// Tracker grades predictions once they are older than the feedback delay.
type Tracker struct {
	cfg         config.FeedbackConfig
	broker      marketdata.Broker
	predictions persistence.PredictionRepo
	feedback    persistence.FeedbackRepo
}

func NewTracker(cfg config.FeedbackConfig, broker marketdata.Broker, repo persistence.Repository) *Tracker {
	return &Tracker{
		cfg:         cfg,
		broker:      broker,
		predictions: repo.Predictions,
		feedback:    repo.Feedback,
	}
}

// ProcessPending grades every matured, ungraded prediction inside the
// lookback window. A prediction stays pending until graded; a broker outage
// leaves the batch for the next tick instead of fabricating outcomes.
// Returns the number of records written.
func (t *Tracker) ProcessPending(ctx context.Context, now time.Time) (int, error) {
	matureBefore := now.Add(-t.cfg.Delay())
	notBefore := now.Add(-t.cfg.Lookback())

	pending, err := t.predictions.ListPending(ctx, matureBefore, notBefore)
	if err != nil {
		return 0, fmt.Errorf("list pending predictions: %w", err)
	}
	metrics.FeedbackPending.Set(float64(len(pending)))
	if len(pending) == 0 {
		return 0, nil
	}

	quote, err := t.broker.Quote(ctx)
	if err != nil {
		return 0, fmt.Errorf("broker unavailable, deferring feedback batch: %w", err)
	}

	graded := 0
	for _, pred := range pending {
		rec, err := t.grade(ctx, pred, quote.Volatility, now)
		if err != nil {
			log.Warn().Err(err).Str("prediction_id", pred.ID).Msg("Failed to grade prediction, will retry")
			continue
		}
		if err := t.feedback.Save(ctx, rec); err != nil {
			log.Error().Err(err).Str("prediction_id", pred.ID).Msg("Failed to save feedback record")
			continue
		}
		metrics.FeedbackProcessed.WithLabelValues(fmt.Sprintf("%t", rec.Accurate)).Inc()
		graded++
	}

	log.Info().Int("graded", graded).Int("pending", len(pending)-graded).Msg("Feedback batch processed")
	return graded, nil
}

// grade compares the market score at prediction time against the score one
// feedback delay later and labels what the market actually did.
func (t *Tracker) grade(ctx context.Context, pred domain.RegimePrediction, volatility float64, now time.Time) (domain.FeedbackRecord, error) {
	before, err := t.broker.ScoreAt(ctx, pred.Timestamp)
	if err != nil {
		return domain.FeedbackRecord{}, fmt.Errorf("score at prediction: %w", err)
	}
	after, err := t.broker.ScoreAt(ctx, pred.Timestamp.Add(t.cfg.Delay()))
	if err != nil {
		return domain.FeedbackRecord{}, fmt.Errorf("score after delay: %w", err)
	}
	if before == 0 {
		return domain.FeedbackRecord{}, fmt.Errorf("zero baseline score at %s", pred.Timestamp.Format(time.RFC3339))
	}

	deltaPct := (after - before) / before * 100
	actual := t.labelOutcome(deltaPct, volatility)

	return domain.FeedbackRecord{
		PredictionID: pred.ID,
		ActualRegime: actual,
		ScoreDelta:   deltaPct,
		Volatility:   volatility,
		Accurate:     actual == pred.Regime,
		FeedbackAt:   now,
	}, nil
}

// labelOutcome maps a realized percent move and volatility to the regime the
// market actually exhibited over the feedback window.
func (t *Tracker) labelOutcome(deltaPct, volPct float64) domain.Regime {
	switch {
	case deltaPct >= t.cfg.StrongDeltaPct:
		return domain.StrongUptrend
	case deltaPct >= t.cfg.NeutralDeltaPct:
		return domain.Uptrend
	case deltaPct <= -t.cfg.StrongDeltaPct:
		return domain.StrongDowntrend
	case deltaPct <= -t.cfg.NeutralDeltaPct:
		return domain.Downtrend
	case volPct > t.cfg.ChoppyVolPct && deltaPct < 0:
		return domain.ChoppyBearish
	default:
		return domain.Choppy
	}
}

// Report aggregates accuracy over the window and refreshes the gauge.
func (t *Tracker) Report(ctx context.Context, tr persistence.TimeRange) (persistence.AccuracyStats, error) {
	stats, err := t.feedback.Stats(ctx, tr)
	if err != nil {
		return persistence.AccuracyStats{}, fmt.Errorf("accuracy stats: %w", err)
	}
	if stats.Total > 0 {
		metrics.OverallAccuracy.Set(stats.Overall())
	}
	return stats, nil
}
