// Package scheduler drives the recurring jobs: scoring, feedback grading,
// the daily quality report, and the weekly retrain. Schedules are cron
// expressions evaluated in the trading-session timezone, and every job is
// wrapped with skip-if-still-running so a slow cycle delays, never overlaps,
// the next one.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/breadthlab/regimed/internal/calendar"
	"github.com/breadthlab/regimed/internal/config"
	"github.com/breadthlab/regimed/internal/feedback"
	"github.com/breadthlab/regimed/internal/persistence"
	"github.com/breadthlab/regimed/internal/pipeline"
)

// Scheduler owns the cron runner and the job implementations.
type Scheduler struct {
	cfg       config.JobsConfig
	cron      *cron.Cron
	engine    *pipeline.Engine
	tracker   *feedback.Tracker
	retrainer *feedback.Retrainer
	session   *calendar.Session
}

func New(cfg config.JobsConfig, loc *time.Location, session *calendar.Session,
	engine *pipeline.Engine, tracker *feedback.Tracker, retrainer *feedback.Retrainer) *Scheduler {

	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
	)
	return &Scheduler{
		cfg:       cfg,
		cron:      c,
		engine:    engine,
		tracker:   tracker,
		retrainer: retrainer,
		session:   session,
	}
}

// Start registers the jobs and launches the runner.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context)
	}{
		{"score", s.cfg.ScoreSchedule, s.runScore},
		{"feedback", s.cfg.FeedbackSchedule, s.runFeedback},
		{"report", s.cfg.ReportSchedule, s.runReport},
		{"retrain", s.cfg.RetrainSchedule, s.runRetrain},
	}

	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.schedule, func() { job.run(ctx) }); err != nil {
			return fmt.Errorf("register %s job (%q): %w", job.name, job.schedule, err)
		}
		log.Info().Str("job", job.name).Str("schedule", job.schedule).Msg("Job registered")
	}

	s.cron.Start()
	return nil
}

// Stop halts the runner and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// runScore executes one scoring cycle. Off-hours ticks are skipped here so
// the validator's off_hours issue stays a signal for bad data, not a routine
// occurrence.
func (s *Scheduler) runScore(ctx context.Context) {
	now := time.Now()
	if !s.session.IsOpen(now) {
		return
	}

	res, err := s.engine.RunCycle(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("Scoring cycle failed")
		return
	}
	if res.Skipped {
		log.Warn().Str("reason", res.SkipReason).Msg("Scoring cycle skipped")
		return
	}
	log.Info().
		Str("regime", res.State.Regime.String()).
		Float64("confidence", res.Prediction.Confidence).
		Bool("changed", res.Changed).
		Msg("Scoring cycle complete")
}

func (s *Scheduler) runFeedback(ctx context.Context) {
	s.gradePending(ctx, time.Now())
}

// gradePending runs the outcome pass. Gated to trading hours like the scoring
// job: outcomes are measured against live broker quotes, and off-hours quotes
// would grade predictions against a stale or synthetic tape.
func (s *Scheduler) gradePending(ctx context.Context, now time.Time) {
	if !s.session.IsOpen(now) {
		return
	}

	if _, err := s.tracker.ProcessPending(ctx, now); err != nil {
		log.Warn().Err(err).Msg("Feedback cycle deferred")
	}
}

// runReport logs the daily accuracy summary after the close.
func (s *Scheduler) runReport(ctx context.Context) {
	now := time.Now()
	stats, err := s.tracker.Report(ctx, persistence.TimeRange{From: now.Add(-24 * time.Hour), To: now})
	if err != nil {
		log.Error().Err(err).Msg("Daily report failed")
		return
	}
	event := log.Info().
		Int64("graded", stats.Total).
		Float64("accuracy", stats.Overall())
	for regime, counts := range stats.ByRegime {
		event = event.Int64(fmt.Sprintf("%s_total", regime), counts.Total)
	}
	event.Msg("Daily accuracy report")
}

func (s *Scheduler) runRetrain(ctx context.Context) {
	mv, err := s.retrainer.Retrain(ctx, time.Now())
	switch {
	case err != nil && mv != nil:
		// The version is stored; the next promotion or restart picks it up.
		log.Error().Err(err).Str("version", mv.ID).Msg("Retrain stored a version but promotion failed")
	case err != nil:
		log.Warn().Err(err).Msg("Weekly retrain skipped")
	default:
		log.Info().Str("version", mv.ID).Float64("accuracy", mv.Accuracy).Msg("Weekly retrain complete")
	}
}

// cronLogger adapts zerolog to the cron logger contract.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logWith(log.Info(), keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logWith(log.Error().Err(err), keysAndValues).Msg(msg)
}

func logWith(event *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		event = event.Interface(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1])
	}
	return event
}
