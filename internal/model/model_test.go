package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breadthlab/regimed/internal/domain"
)

func TestScaler_FitTransform(t *testing.T) {
	x := [][]float64{
		{1, 10, 5},
		{3, 10, 7},
		{5, 10, 9},
	}
	s, err := FitScaler(x)
	require.NoError(t, err)
	require.True(t, s.Fitted())

	out, err := s.Transform([]float64{3, 10, 7})
	require.NoError(t, err)
	// Column means transform to zero; the constant column passes through.
	assert.InDelta(t, 0, out[0], 1e-9)
	assert.InDelta(t, 0, out[1], 1e-9)
	assert.InDelta(t, 0, out[2], 1e-9)
}

func TestScaler_RejectsWidthMismatch(t *testing.T) {
	s, err := FitScaler([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)

	_, err = s.Transform([]float64{1, 2, 3})
	assert.Error(t, err)
}

func TestScaler_UnfittedRefuses(t *testing.T) {
	var s *Scaler
	assert.False(t, s.Fitted())

	s2 := &Scaler{}
	_, err := s2.Transform([]float64{1})
	assert.Error(t, err)
}

// syntheticSet builds a separable training set: bullish rows get high ratios
// and breadth, bearish rows the opposite.
func syntheticSet(n int) ([]domain.FeatureVector, []domain.Regime) {
	var features []domain.FeatureVector
	var labels []domain.Regime
	for i := 0; i < n; i++ {
		jitter := float64(i%7) * 0.01
		features = append(features, domain.FeatureVector{
			Ratio: 2.5 + jitter, RatioMA5: 2.4, RatioMA10: 2.2, RatioVolatility: 0.1,
			RatioMomentum: 0.3, SMA20Percent: 75, SMA50Percent: 70, BreadthMomentum: 2, VolumeParticipation: 0.8,
		})
		labels = append(labels, domain.StrongUptrend)

		features = append(features, domain.FeatureVector{
			Ratio: 0.4 - jitter/10, RatioMA5: 0.45, RatioMA10: 0.5, RatioVolatility: 0.1,
			RatioMomentum: -0.3, SMA20Percent: 22, SMA50Percent: 28, BreadthMomentum: -2, VolumeParticipation: 0.7,
		})
		labels = append(labels, domain.StrongDowntrend)

		features = append(features, domain.FeatureVector{
			Ratio: 1.0 + jitter, RatioMA5: 1.0, RatioMA10: 1.0, RatioVolatility: 0.4,
			RatioMomentum: 0, SMA20Percent: 50, SMA50Percent: 50, BreadthMomentum: 0, VolumeParticipation: 0.5,
		})
		labels = append(labels, domain.Choppy)
	}
	return features, labels
}

func TestTrain_SeparableSet(t *testing.T) {
	features, labels := syntheticSet(30)

	res, err := Train(features, labels, DefaultTrainOptions())
	require.NoError(t, err)
	require.True(t, res.Ensemble.Fitted())
	assert.Equal(t, len(features), res.Samples)
	assert.Greater(t, res.Accuracy, 0.8, "separable classes should evaluate well")

	probs, err := res.Ensemble.PredictProba(features[0])
	require.NoError(t, err)
	require.Len(t, probs, len(domain.AllRegimes()))

	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9, "probabilities normalize")
	assert.Equal(t, domain.StrongUptrend, domain.AllRegimes()[argmax(probs)])
}

func TestTrain_RefusesTinySet(t *testing.T) {
	features, labels := syntheticSet(3)
	_, err := Train(features[:9], labels[:9], DefaultTrainOptions())
	assert.Error(t, err)
}

func TestEnsemble_RoundTripThroughVersion(t *testing.T) {
	features, labels := syntheticSet(30)
	res, err := Train(features, labels, DefaultTrainOptions())
	require.NoError(t, err)

	weights, err := res.Ensemble.Committee.MarshalBinary()
	require.NoError(t, err)
	scaler, err := res.Ensemble.Scaler.MarshalBinary()
	require.NoError(t, err)

	restored, err := FromVersion(domain.ModelVersion{ID: "v1", Weights: weights, Scaler: scaler})
	require.NoError(t, err)
	require.True(t, restored.Fitted())

	orig, err := res.Ensemble.PredictProba(features[1])
	require.NoError(t, err)
	back, err := restored.PredictProba(features[1])
	require.NoError(t, err)
	for i := range orig {
		assert.False(t, math.IsNaN(back[i]))
		assert.InDelta(t, orig[i], back[i], 1e-12)
	}
}

func TestEnsemble_UnfittedReportsUnavailable(t *testing.T) {
	e := &Ensemble{Scaler: &Scaler{}, Committee: &Committee{}}
	assert.False(t, e.Fitted())

	_, err := e.PredictProba(domain.FeatureVector{})
	assert.Error(t, err)
}
