package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breadthlab/regimed/internal/classifier"
	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/persistence"
)

type fakeModels struct {
	persistence.ModelRepo
	saved []domain.ModelVersion
}

func (r *fakeModels) Save(_ context.Context, mv domain.ModelVersion) error {
	r.saved = append(r.saved, mv)
	return nil
}

func (r *fakeModels) LoadBest(context.Context) (*domain.ModelVersion, error) {
	if len(r.saved) == 0 {
		return nil, nil
	}
	best := r.saved[0]
	for _, mv := range r.saved[1:] {
		if mv.Accuracy > best.Accuracy {
			best = mv
		}
	}
	return &best, nil
}

type fakeTrainingSet struct {
	persistence.FeedbackRepo
	samples []persistence.TrainingSample
}

func (r *fakeTrainingSet) TrainingSet(context.Context, persistence.TimeRange, int) ([]persistence.TrainingSample, error) {
	return r.samples, nil
}

type fakeSink struct {
	model classifier.Model
}

func (s *fakeSink) SetModel(m classifier.Model) { s.model = m }

// Separable synthetic outcomes: extreme ratios map to trend labels, flat
// ratios to choppy.
func syntheticSamples(n int) []persistence.TrainingSample {
	samples := make([]persistence.TrainingSample, 0, n)
	for i := 0; i < n; i++ {
		jitter := float64(i%5) * 0.01
		samples = append(samples,
			persistence.TrainingSample{
				Features: domain.FeatureVector{Ratio: 2.6 + jitter, RatioMomentum: 0.8, SMA20Percent: 75},
				Actual:   domain.StrongUptrend,
			},
			persistence.TrainingSample{
				Features: domain.FeatureVector{Ratio: 0.35 - jitter/10, RatioMomentum: -0.8, SMA20Percent: 22},
				Actual:   domain.StrongDowntrend,
			},
			persistence.TrainingSample{
				Features: domain.FeatureVector{Ratio: 1.0 + jitter, RatioVolatility: 0.4, SMA20Percent: 50},
				Actual:   domain.Choppy,
			})
	}
	return samples
}

func TestRetrain_TrainsStoresAndPromotes(t *testing.T) {
	models := &fakeModels{}
	sink := &fakeSink{}
	r := NewRetrainer(210*24*time.Hour, persistence.Repository{
		Feedback: &fakeTrainingSet{samples: syntheticSamples(20)},
		Models:   models,
	}, sink)

	mv, err := r.Retrain(context.Background(), time.Now())
	require.NoError(t, err)
	require.NotNil(t, mv)

	assert.Len(t, models.saved, 1)
	assert.Equal(t, 60, mv.Samples)
	assert.Equal(t, domain.FeatureNames, mv.Features)
	assert.NotEmpty(t, mv.Weights)
	assert.NotEmpty(t, mv.Scaler)

	require.NotNil(t, sink.model, "best version promoted into the classifier")
	assert.True(t, sink.model.Fitted())
}

type promoteFailModels struct {
	fakeModels
}

func (r *promoteFailModels) LoadBest(context.Context) (*domain.ModelVersion, error) {
	return nil, errors.New("connection reset by peer")
}

// A promotion failure after a successful train-and-save is not a skipped
// retrain: the version is stored and must be reported to the caller.
func TestRetrain_PromoteFailureStillStoresVersion(t *testing.T) {
	models := &promoteFailModels{}
	sink := &fakeSink{}
	r := NewRetrainer(210*24*time.Hour, persistence.Repository{
		Feedback: &fakeTrainingSet{samples: syntheticSamples(20)},
		Models:   models,
	}, sink)

	mv, err := r.Retrain(context.Background(), time.Now())
	require.Error(t, err)
	require.NotNil(t, mv, "stored version returned alongside the promotion error")
	assert.Len(t, models.saved, 1)
	assert.Nil(t, sink.model, "nothing promoted into the classifier")
}

func TestRetrain_TooFewSamplesSkips(t *testing.T) {
	r := NewRetrainer(time.Hour, persistence.Repository{
		Feedback: &fakeTrainingSet{samples: syntheticSamples(3)},
		Models:   &fakeModels{},
	}, &fakeSink{})

	_, err := r.Retrain(context.Background(), time.Now())
	assert.Error(t, err, "nine graded samples cannot train a model")
}

func TestPromoteBest_NoVersionsLeavesRulesActive(t *testing.T) {
	sink := &fakeSink{}
	r := NewRetrainer(time.Hour, persistence.Repository{Models: &fakeModels{}}, sink)

	require.NoError(t, r.PromoteBest(context.Background()))
	assert.Nil(t, sink.model)
}
