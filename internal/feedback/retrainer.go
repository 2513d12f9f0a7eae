package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/breadthlab/regimed/internal/classifier"
	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/metrics"
	"github.com/breadthlab/regimed/internal/model"
	"github.com/breadthlab/regimed/internal/persistence"
)

// trainingSetCap bounds how many graded samples one retrain pulls. At the
// 15-minute scoring cadence this covers the full retention window.
const trainingSetCap = 25000

// ModelSink receives a freshly selected serving model.
type ModelSink interface {
	SetModel(m classifier.Model)
}

// Retrainer fits a new model version from graded feedback and promotes the
// best stored version into the classifier.
type Retrainer struct {
	window   time.Duration
	feedback persistence.FeedbackRepo
	models   persistence.ModelRepo
	sink     ModelSink
}

func NewRetrainer(window time.Duration, repo persistence.Repository, sink ModelSink) *Retrainer {
	return &Retrainer{
		window:   window,
		feedback: repo.Feedback,
		models:   repo.Models,
		sink:     sink,
	}
}

// Retrain trains on graded history, stores the result as a new version, and
// loads whichever stored version has the best holdout accuracy. Training on
// realized outcomes rather than the model's own predictions keeps the loop
// from reinforcing its mistakes.
func (r *Retrainer) Retrain(ctx context.Context, now time.Time) (*domain.ModelVersion, error) {
	tr := persistence.TimeRange{From: now.Add(-r.window), To: now}
	samples, err := r.feedback.TrainingSet(ctx, tr, trainingSetCap)
	if err != nil {
		metrics.Retrains.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load training set: %w", err)
	}

	features := make([]domain.FeatureVector, len(samples))
	labels := make([]domain.Regime, len(samples))
	for i, s := range samples {
		features[i] = s.Features
		labels[i] = s.Actual
	}

	res, err := model.Train(features, labels, model.DefaultTrainOptions())
	if err != nil {
		metrics.Retrains.WithLabelValues("skipped").Inc()
		return nil, fmt.Errorf("train model: %w", err)
	}

	weights, err := res.Ensemble.Committee.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize committee: %w", err)
	}
	scaler, err := res.Ensemble.Scaler.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize scaler: %w", err)
	}

	mv := domain.ModelVersion{
		ID:        uuid.New().String(),
		TrainedAt: now,
		Accuracy:  res.Accuracy,
		Samples:   res.Samples,
		Features:  domain.FeatureNames,
		Weights:   weights,
		Scaler:    scaler,
	}
	if err := r.models.Save(ctx, mv); err != nil {
		metrics.Retrains.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("save model version: %w", err)
	}

	log.Info().
		Str("version", mv.ID).
		Float64("accuracy", mv.Accuracy).
		Int("samples", mv.Samples).
		Msg("Model version trained")

	// The retrain itself succeeded once the version is stored. Promotion is a
	// separate step; its failure leaves the stored version for the next
	// promotion attempt and is reported alongside the new version.
	metrics.Retrains.WithLabelValues("ok").Inc()

	if err := r.PromoteBest(ctx); err != nil {
		return &mv, fmt.Errorf("promote after retrain: %w", err)
	}
	return &mv, nil
}

// PromoteBest loads the highest-accuracy stored version into the serving
// classifier. Called after retrains and at startup.
func (r *Retrainer) PromoteBest(ctx context.Context) error {
	best, err := r.models.LoadBest(ctx)
	if err != nil {
		return fmt.Errorf("load best model: %w", err)
	}
	if best == nil {
		log.Info().Msg("No trained model available, rule-based classification stays active")
		return nil
	}

	ensemble, err := model.FromVersion(*best)
	if err != nil {
		return fmt.Errorf("rebuild model %s: %w", best.ID, err)
	}
	r.sink.SetModel(ensemble)
	log.Info().
		Str("version", best.ID).
		Float64("accuracy", best.Accuracy).
		Msg("Serving model promoted")
	return nil
}
