package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breadthlab/regimed/internal/calendar"
	"github.com/breadthlab/regimed/internal/classifier"
	"github.com/breadthlab/regimed/internal/config"
	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/persistence"
	"github.com/breadthlab/regimed/internal/validate"
)

type memSnapshots struct {
	persistence.SnapshotRepo
	scans    []domain.ScanSnapshot
	breadths []domain.BreadthSnapshot
}

func (r *memSnapshots) SaveScan(_ context.Context, s domain.ScanSnapshot) error {
	r.scans = append(r.scans, s)
	return nil
}

func (r *memSnapshots) SaveBreadth(_ context.Context, b domain.BreadthSnapshot) error {
	r.breadths = append(r.breadths, b)
	return nil
}

type memPredictions struct {
	persistence.PredictionRepo
	saved []domain.RegimePrediction
}

func (r *memPredictions) Save(_ context.Context, p domain.RegimePrediction) error {
	r.saved = append(r.saved, p)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *memPredictions) {
	t.Helper()
	cfg := config.Default()

	session, err := calendar.NewSession(cfg.Session.Open, cfg.Session.Close, cfg.Session.Timezone)
	require.NoError(t, err)

	preds := &memPredictions{}
	repo := persistence.Repository{
		Snapshots:   &memSnapshots{},
		Predictions: preds,
	}
	engine := NewEngine(cfg, validate.New(cfg.Validator, session), classifier.New(cfg.Classify), repo, Options{})
	return engine, preds
}

// Wednesday 15:00 UTC is 11:00 in New York, inside the trading session.
func tradingTime(minute int) time.Time {
	return time.Date(2026, 4, 1, 15, minute, 0, 0, time.UTC)
}

func scanAt(ts time.Time, long, short int) domain.ScanSnapshot {
	return domain.ScanSnapshot{Timestamp: ts, LongCount: long, ShortCount: short, TotalStocks: long + short + 100}
}

func breadthAt(ts time.Time, sma20 float64) domain.BreadthSnapshot {
	return domain.BreadthSnapshot{Timestamp: ts, SMA20Percent: sma20, SMA50Percent: sma20 - 5, VolumeParticipation: 60}
}

func TestEvaluate_InvalidSnapshotSkipsCycle(t *testing.T) {
	engine, preds := newTestEngine(t)

	weekend := time.Date(2026, 4, 4, 15, 0, 0, 0, time.UTC) // Saturday
	res, err := engine.Evaluate(context.Background(), scanAt(weekend, 80, 40), breadthAt(weekend, 60), weekend)
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.NotEmpty(t, res.Issues)
	assert.Empty(t, preds.saved, "invalid cycles never produce predictions")
}

func TestEvaluate_InsufficientHistorySkips(t *testing.T) {
	engine, _ := newTestEngine(t)

	ts := tradingTime(0)
	res, err := engine.Evaluate(context.Background(), scanAt(ts, 80, 40), breadthAt(ts, 60), ts)
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.Contains(t, res.SkipReason, "insufficient scan history")
}

func TestEvaluate_FullCycleProducesHeldRegime(t *testing.T) {
	engine, preds := newTestEngine(t)
	ctx := context.Background()

	var last *CycleResult
	for i := 0; i < 4; i++ {
		ts := tradingTime(i * 10)
		res, err := engine.Evaluate(ctx, scanAt(ts, 160, 40), breadthAt(ts, 72), ts)
		require.NoError(t, err)
		last = res
	}

	require.False(t, last.Skipped)
	assert.Equal(t, domain.SourceRule, last.Prediction.Source, "no model loaded")
	assert.True(t, last.Prediction.Regime.Bullish(), "4:1 ratio with strong breadth classifies bullish")
	assert.NotEmpty(t, last.Prediction.ID)
	assert.True(t, last.State.Regime.Valid())
	assert.NotEmpty(t, preds.saved)

	state, ok := engine.CurrentState(ctx)
	require.True(t, ok)
	assert.Equal(t, last.State.Regime, state.Regime)
}

// An 80% bearish breadth against a bullish classification triggers the
// override: the held candidate becomes choppy_bearish, not the raw label.
func TestEvaluate_BreadthOverrideReplacesRegime(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	var last *CycleResult
	for i := 0; i < 4; i++ {
		ts := tradingTime(i * 10)
		res, err := engine.Evaluate(ctx, scanAt(ts, 160, 40), breadthAt(ts, 20), ts)
		require.NoError(t, err)
		last = res
	}

	require.False(t, last.Skipped)
	assert.False(t, last.Consistency.IsConsistent)
	assert.Equal(t, domain.ChoppyBearish, last.Prediction.Regime)
}

func TestEvaluate_StatusReflectsHistory(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ts := tradingTime(i * 10)
		_, err := engine.Evaluate(ctx, scanAt(ts, 100, 80), breadthAt(ts, 55), ts)
		require.NoError(t, err)
	}

	status := engine.Status()
	assert.Equal(t, 3, status.ScanHistory)
	assert.InDelta(t, 1.25, status.SmoothedRatio, 1e-9, "identical scans converge to their ratio")
}

func TestBuildFeatures_MovingAverages(t *testing.T) {
	ts := tradingTime(0)
	var scans []domain.ScanSnapshot
	for _, ratio := range []float64{1.0, 2.0, 3.0} {
		scans = append(scans, domain.ScanSnapshot{Timestamp: ts, Ratio: ratio})
	}
	breadths := []domain.BreadthSnapshot{
		breadthAt(ts, 50),
		breadthAt(ts, 58),
	}

	fv := buildFeatures(scans, breadths)
	assert.Equal(t, 3.0, fv.Ratio)
	assert.InDelta(t, 2.0, fv.RatioMA5, 1e-9)
	assert.InDelta(t, 2.0, fv.RatioMA10, 1e-9)
	assert.InDelta(t, 0.5, fv.RatioMomentum, 1e-9, "(3-2)/2")
	assert.InDelta(t, 8.0, fv.BreadthMomentum, 1e-9)
	assert.Equal(t, 58.0, fv.SMA20Percent)
}
