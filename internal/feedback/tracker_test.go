package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breadthlab/regimed/internal/config"
	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/marketdata"
	"github.com/breadthlab/regimed/internal/persistence"
)

type fakeBroker struct {
	quote  marketdata.Quote
	scores map[time.Time]float64
	err    error
}

func (b *fakeBroker) Quote(context.Context) (marketdata.Quote, error) {
	return b.quote, b.err
}

func (b *fakeBroker) ScoreAt(_ context.Context, at time.Time) (float64, error) {
	if b.err != nil {
		return 0, b.err
	}
	score, ok := b.scores[at.UTC()]
	if !ok {
		return 0, errors.New("no score for instant")
	}
	return score, nil
}

type fakePredictions struct {
	persistence.PredictionRepo
	pending []domain.RegimePrediction
}

func (r *fakePredictions) ListPending(_ context.Context, matureBefore, notBefore time.Time) ([]domain.RegimePrediction, error) {
	var out []domain.RegimePrediction
	for _, p := range r.pending {
		if !p.Timestamp.After(matureBefore) && !p.Timestamp.Before(notBefore) {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeFeedback struct {
	persistence.FeedbackRepo
	saved []domain.FeedbackRecord
	stats persistence.AccuracyStats
}

func (r *fakeFeedback) Save(_ context.Context, rec domain.FeedbackRecord) error {
	r.saved = append(r.saved, rec)
	return nil
}

func (r *fakeFeedback) Stats(context.Context, persistence.TimeRange) (persistence.AccuracyStats, error) {
	return r.stats, nil
}

func testFeedbackConfig() config.FeedbackConfig {
	return config.FeedbackConfig{
		DelayMinutes:    45,
		LookbackHours:   24,
		StrongDeltaPct:  0.6,
		NeutralDeltaPct: 0.15,
		ChoppyVolPct:    1.2,
	}
}

func newTestTracker(broker marketdata.Broker, preds *fakePredictions, fb *fakeFeedback) *Tracker {
	return NewTracker(testFeedbackConfig(), broker, persistence.Repository{
		Predictions: preds,
		Feedback:    fb,
	})
}

func TestLabelOutcome_Thresholds(t *testing.T) {
	tracker := newTestTracker(nil, nil, nil)

	cases := []struct {
		name  string
		delta float64
		vol   float64
		want  domain.Regime
	}{
		{"strong rally", 0.9, 0.5, domain.StrongUptrend},
		{"modest rally", 0.3, 0.5, domain.Uptrend},
		{"strong selloff", -0.9, 0.5, domain.StrongDowntrend},
		{"modest selloff", -0.3, 0.5, domain.Downtrend},
		{"flat calm", 0.05, 0.5, domain.Choppy},
		{"flat volatile down", -0.05, 1.8, domain.ChoppyBearish},
		{"flat volatile up", 0.05, 1.8, domain.Choppy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tracker.labelOutcome(tc.delta, tc.vol))
		})
	}
}

func TestProcessPending_GradesMaturedPredictions(t *testing.T) {
	now := time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)
	predTime := now.Add(-time.Hour)

	broker := &fakeBroker{
		quote: marketdata.Quote{Score: 101.0, Volatility: 0.5},
		scores: map[time.Time]float64{
			predTime:                      100.0,
			predTime.Add(45 * time.Minute): 100.8, // +0.8%: strong_uptrend
		},
	}
	preds := &fakePredictions{pending: []domain.RegimePrediction{{
		ID:        "p1",
		Timestamp: predTime,
		Regime:    domain.StrongUptrend,
	}}}
	fb := &fakeFeedback{}

	graded, err := newTestTracker(broker, preds, fb).ProcessPending(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, graded)
	require.Len(t, fb.saved, 1)

	rec := fb.saved[0]
	assert.Equal(t, "p1", rec.PredictionID)
	assert.Equal(t, domain.StrongUptrend, rec.ActualRegime)
	assert.True(t, rec.Accurate)
	assert.InDelta(t, 0.8, rec.ScoreDelta, 1e-9)
	assert.Equal(t, now, rec.FeedbackAt)
}

// A prediction younger than the feedback delay stays pending; nothing is
// written for it until it matures.
func TestProcessPending_YoungPredictionStaysPending(t *testing.T) {
	now := time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

	preds := &fakePredictions{pending: []domain.RegimePrediction{{
		ID:        "fresh",
		Timestamp: now.Add(-10 * time.Minute),
		Regime:    domain.Uptrend,
	}}}
	fb := &fakeFeedback{}
	broker := &fakeBroker{quote: marketdata.Quote{Score: 100}}

	graded, err := newTestTracker(broker, preds, fb).ProcessPending(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, graded)
	assert.Empty(t, fb.saved)
}

func TestProcessPending_BrokerOutageDefersBatch(t *testing.T) {
	now := time.Now()
	preds := &fakePredictions{pending: []domain.RegimePrediction{{
		ID:        "p1",
		Timestamp: now.Add(-2 * time.Hour),
		Regime:    domain.Choppy,
	}}}
	fb := &fakeFeedback{}
	broker := &fakeBroker{err: errors.New("connection refused")}

	_, err := newTestTracker(broker, preds, fb).ProcessPending(context.Background(), now)
	require.Error(t, err)
	assert.Empty(t, fb.saved, "no fabricated outcomes on outage")
}

func TestProcessPending_InaccuratePredictionRecorded(t *testing.T) {
	now := time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)
	predTime := now.Add(-2 * time.Hour)

	broker := &fakeBroker{
		quote: marketdata.Quote{Score: 99, Volatility: 0.4},
		scores: map[time.Time]float64{
			predTime:                      100.0,
			predTime.Add(45 * time.Minute): 99.0, // -1.0%: strong_downtrend
		},
	}
	preds := &fakePredictions{pending: []domain.RegimePrediction{{
		ID:        "wrong",
		Timestamp: predTime,
		Regime:    domain.Uptrend,
	}}}
	fb := &fakeFeedback{}

	graded, err := newTestTracker(broker, preds, fb).ProcessPending(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, graded)
	assert.False(t, fb.saved[0].Accurate)
	assert.Equal(t, domain.StrongDowntrend, fb.saved[0].ActualRegime)
}

func TestReport_ReturnsStats(t *testing.T) {
	fb := &fakeFeedback{stats: persistence.AccuracyStats{Total: 10, Accurate: 7}}
	tracker := newTestTracker(nil, nil, fb)

	stats, err := tracker.Report(context.Background(), persistence.TimeRange{})
	require.NoError(t, err)
	assert.InDelta(t, 0.7, stats.Overall(), 1e-9)
}
