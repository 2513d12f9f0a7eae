package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breadthlab/regimed/internal/calendar"
	"github.com/breadthlab/regimed/internal/config"
	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/feedback"
	"github.com/breadthlab/regimed/internal/persistence"
)

type countingPredictions struct {
	persistence.PredictionRepo
	listPendingCalls int
}

func (r *countingPredictions) ListPending(context.Context, time.Time, time.Time) ([]domain.RegimePrediction, error) {
	r.listPendingCalls++
	return nil, nil
}

func newTestSession(t *testing.T) *calendar.Session {
	t.Helper()
	session, err := calendar.NewSession("09:30", "16:00", "America/New_York")
	require.NoError(t, err)
	return session
}

// The outcome pass only runs during trading hours; the */5 cron fires around
// the clock, so the gate lives in the job, not the schedule.
func TestGradePending_SkipsOutsideTradingHours(t *testing.T) {
	session := newTestSession(t)
	preds := &countingPredictions{}
	tracker := feedback.NewTracker(config.Default().Feedback, nil, persistence.Repository{Predictions: preds})
	s := &Scheduler{session: session, tracker: tracker}

	// Saturday 11:00 New York.
	s.gradePending(context.Background(), time.Date(2026, 4, 4, 15, 0, 0, 0, time.UTC))
	assert.Zero(t, preds.listPendingCalls, "closed session must not touch the store")

	// Wednesday 02:00 UTC is 22:00 Tuesday in New York, after the close.
	s.gradePending(context.Background(), time.Date(2026, 4, 1, 2, 0, 0, 0, time.UTC))
	assert.Zero(t, preds.listPendingCalls)
}

func TestGradePending_RunsDuringTradingHours(t *testing.T) {
	session := newTestSession(t)
	preds := &countingPredictions{}
	tracker := feedback.NewTracker(config.Default().Feedback, nil, persistence.Repository{Predictions: preds})
	s := &Scheduler{session: session, tracker: tracker}

	// Wednesday 15:00 UTC is 11:00 New York, mid-session.
	s.gradePending(context.Background(), time.Date(2026, 4, 1, 15, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, preds.listPendingCalls)
}
