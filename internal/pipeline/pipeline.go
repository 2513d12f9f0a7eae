// Package pipeline runs the scoring cycle: validate incoming snapshots,
// derive features, classify, cross-check against independent breadth, and
// smooth the result into the held regime. One cycle runs at a time; the
// scheduler's skip-if-still-running wrapper enforces the cadence.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/breadthlab/regimed/internal/cache"
	"github.com/breadthlab/regimed/internal/classifier"
	"github.com/breadthlab/regimed/internal/confidence"
	"github.com/breadthlab/regimed/internal/config"
	"github.com/breadthlab/regimed/internal/consistency"
	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/feeds"
	"github.com/breadthlab/regimed/internal/persistence"
	"github.com/breadthlab/regimed/internal/smoother"
	"github.com/breadthlab/regimed/internal/validate"
)

// CycleResult reports one scoring cycle. Skipped cycles carry the reason and
// no prediction.
type CycleResult struct {
	Skipped     bool                    `json:"skipped"`
	SkipReason  string                  `json:"skip_reason,omitempty"`
	Issues      []validate.Issue        `json:"issues,omitempty"`
	Prediction  domain.RegimePrediction `json:"prediction"`
	Consistency consistency.CheckResult `json:"consistency"`
	State       domain.RegimeState      `json:"state"`
	Changed     bool                    `json:"changed"`
	Reason      string                  `json:"reason,omitempty"`
}

// Engine owns the cycle state: snapshot rings, regime history, and the
// smoother. All mutation happens under one mutex.
type Engine struct {
	cfg        *config.Config
	validator  *validate.Validator
	calculator *confidence.Calculator
	classifier *classifier.Classifier
	checker    *consistency.Checker
	smoother   *smoother.Smoother
	repo       persistence.Repository
	state      *cache.StateCache

	scanFeed    feeds.ScanFeed
	breadthFeed feeds.BreadthFeed

	mu       sync.Mutex
	scans    []domain.ScanSnapshot
	breadths []domain.BreadthSnapshot
	history  []domain.Regime
}

// Options carries the optional collaborators. Feeds are nil in the one-shot
// CLI paths; the state cache is nil when Redis is not configured.
type Options struct {
	ScanFeed    feeds.ScanFeed
	BreadthFeed feeds.BreadthFeed
	StateCache  *cache.StateCache
}

func NewEngine(cfg *config.Config, v *validate.Validator, c *classifier.Classifier, repo persistence.Repository, opts Options) *Engine {
	return &Engine{
		cfg:         cfg,
		validator:   v,
		calculator:  confidence.New(cfg.Classify.StabilityWindowSize),
		classifier:  c,
		checker:     consistency.New(),
		smoother:    smoother.New(cfg.Smoother),
		repo:        repo,
		state:       opts.StateCache,
		scanFeed:    opts.ScanFeed,
		breadthFeed: opts.BreadthFeed,
	}
}

// RunCycle pulls the latest snapshots from the feeds and evaluates them.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) (*CycleResult, error) {
	if e.scanFeed == nil || e.breadthFeed == nil {
		return nil, fmt.Errorf("feeds not configured")
	}
	scan, err := e.scanFeed.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch scan snapshot: %w", err)
	}
	breadth, err := e.breadthFeed.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch breadth snapshot: %w", err)
	}
	return e.Evaluate(ctx, scan, breadth, now)
}

// Evaluate runs one full scoring cycle over the given snapshots. Invalid
// snapshots skip the cycle with their issue list; they are never scored.
func (e *Engine) Evaluate(ctx context.Context, scan domain.ScanSnapshot, breadth domain.BreadthSnapshot, now time.Time) (*CycleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	scan, scanIssues := e.validator.Scan(scan)
	breadth, breadthIssues := e.validator.Breadth(breadth, scan.TotalStocks)

	if issues := append(scanIssues, breadthIssues...); len(issues) > 0 {
		return &CycleResult{Skipped: true, SkipReason: "snapshot failed validation", Issues: issues}, nil
	}

	// Persistence failures degrade to in-memory operation for this cycle;
	// the repos log and count them.
	if err := e.repo.Snapshots.SaveScan(ctx, scan); err != nil {
		log.Error().Err(err).Msg("Failed to persist scan snapshot")
	}
	if err := e.repo.Snapshots.SaveBreadth(ctx, breadth); err != nil {
		log.Error().Err(err).Msg("Failed to persist breadth snapshot")
	}

	e.scans = appendCapped(e.scans, scan, scanHistoryCap)
	e.breadths = appendCapped(e.breadths, breadth, scanHistoryCap)
	e.smoother.Observe(scan)

	if len(e.scans) < minScansForFeatures {
		return &CycleResult{
			Skipped:    true,
			SkipReason: fmt.Sprintf("insufficient scan history: %d of %d", len(e.scans), minScansForFeatures),
		}, nil
	}

	fv := buildFeatures(e.scans, e.breadths)
	res := e.classifier.Classify(fv, now)
	pred := res.Prediction

	conf := e.fuseConfidence(pred, fv)

	ind := consistency.Indicators{
		BullishPercent: breadth.SMA20Percent,
		BearishPercent: 100 - breadth.SMA20Percent,
	}
	check := e.checker.Check(pred.Regime, ind, conf)
	conf = check.AdjustedConfidence

	regime := pred.Regime
	if override, ok := e.checker.RegimeOverride(regime, ind); ok {
		log.Warn().
			Str("from", regime.String()).
			Str("to", override.String()).
			Msg("Breadth override replacing classified regime")
		regime = override
	}

	pred.Regime = regime
	pred.Confidence = conf
	e.history = appendCapped(e.history, regime, e.cfg.Classify.StabilityWindowSize)

	state, changed, reason := e.smoother.Apply(regime, conf, now)

	if err := e.repo.Predictions.Save(ctx, pred); err != nil {
		log.Error().Err(err).Str("prediction_id", pred.ID).Msg("Failed to persist prediction")
	}
	if e.state != nil {
		e.state.SetState(ctx, state)
	}

	return &CycleResult{
		Prediction:  pred,
		Consistency: check,
		State:       state,
		Changed:     changed,
		Reason:      reason,
	}, nil
}

// fuseConfidence blends the calculator's score with the model probability.
// The calculator is authoritative on the rule path; on the model path the two
// estimates average, so neither a cocky model nor a noisy heuristic dominates.
func (e *Engine) fuseConfidence(pred domain.RegimePrediction, fv domain.FeatureVector) float64 {
	trend := math.Min(1, math.Abs(fv.RatioMomentum))
	calc := e.calculator.Score(fv.Ratio, e.history, fv.VolumeParticipation/100, trend)

	if pred.Source == domain.SourceModel {
		return (pred.Confidence + calc) / 2
	}
	return calc
}

// Status summarizes the engine for the HTTP surface.
type Status struct {
	State         *domain.RegimeState `json:"state,omitempty"`
	SmoothedRatio float64             `json:"smoothed_ratio"`
	Volatility    float64             `json:"volatility"`
	ScanHistory   int                 `json:"scan_history"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		SmoothedRatio: e.smoother.SmoothedRatio(),
		Volatility:    e.smoother.Volatility(),
		ScanHistory:   len(e.scans),
	}
	if state, ok := e.smoother.Current(); ok {
		st.State = &state
	}
	return st
}

// CurrentState exposes the held regime, preferring the live smoother and
// falling back to the cache for cold callers.
func (e *Engine) CurrentState(ctx context.Context) (domain.RegimeState, bool) {
	if state, ok := e.smoother.Current(); ok {
		return state, true
	}
	if e.state != nil {
		return e.state.State(ctx)
	}
	return domain.RegimeState{}, false
}

func appendCapped[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}
