// Package smoother is the hysteresis layer between raw classifications and
// the held regime. It owns the single live RegimeState: transitions are
// monotonic events, never edits in place, and a candidate only replaces the
// held regime when it clears the dwell, confidence, and volatility gates,
// or when the ratio is extreme enough to bypass all of them.
package smoother

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/breadthlab/regimed/internal/config"
	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/metrics"
)

// Reasons attached to accept/reject decisions; these surface in logs and in
// the regime_changes_total metric.
const (
	ReasonInitial       = "initial_state"
	ReasonExtremeRatio  = "extreme_ratio_override"
	ReasonAccepted      = "gates_passed"
	ReasonSameRegime    = "same_regime"
	ReasonDwell         = "min_dwell_not_elapsed"
	ReasonConfidence    = "confidence_below_threshold"
	ReasonMinorBar      = "minor_change_bar"
	ReasonVolatility    = "volatility_ceiling"
	ReasonInvalidRegime = "invalid_candidate"
)

// Smoother holds the EWMA of long/short counts and the trailing ratio window
// used for the volatility gate. One instance per process; the scheduler is
// the only writer.
type Smoother struct {
	cfg config.SmootherConfig

	mu        sync.RWMutex
	state     *domain.RegimeState
	ewmaLong  float64
	ewmaShort float64
	seeded    bool
	window    []float64 // trailing smoothed ratios, newest last
	lastRaw   float64   // most recent raw (unsmoothed) ratio
}

func New(cfg config.SmootherConfig) *Smoother {
	return &Smoother{cfg: cfg}
}

// Observe folds a validated scan snapshot into the EWMA and the volatility
// window. The smoothed ratio, not the raw one, feeds the transition gates,
// so a single noisy scan cannot flip the regime on its own.
func (s *Smoother) Observe(snap domain.ScanSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.cfg.EWMAWeight
	if !s.seeded {
		s.ewmaLong = float64(snap.LongCount)
		s.ewmaShort = float64(snap.ShortCount)
		s.seeded = true
	} else {
		s.ewmaLong = w*float64(snap.LongCount) + (1-w)*s.ewmaLong
		s.ewmaShort = w*float64(snap.ShortCount) + (1-w)*s.ewmaShort
	}
	s.lastRaw = snap.Ratio

	s.window = append(s.window, s.smoothedRatioLocked())
	if len(s.window) > s.cfg.VolatilityWindow {
		s.window = s.window[len(s.window)-s.cfg.VolatilityWindow:]
	}
}

// SmoothedRatio returns the EWMA long/short ratio.
func (s *Smoother) SmoothedRatio() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.smoothedRatioLocked()
}

func (s *Smoother) smoothedRatioLocked() float64 {
	if s.ewmaShort <= 0 {
		if s.ewmaLong <= 0 {
			return 1.0
		}
		return s.ewmaLong // shorts died out entirely; treat count as ratio bound upstream
	}
	return s.ewmaLong / s.ewmaShort
}

// Volatility is stddev/mean of the trailing smoothed-ratio window.
func (s *Smoother) Volatility() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volatilityLocked()
}

func (s *Smoother) volatilityLocked() float64 {
	if len(s.window) < 2 {
		return 0
	}
	mean := stat.Mean(s.window, nil)
	if mean == 0 {
		return 0
	}
	return stat.StdDev(s.window, nil) / mean
}

// ShouldChange evaluates the transition gates in order. The extreme-ratio
// override is checked first because it bypasses every other gate.
func (s *Smoother) ShouldChange(current, candidate domain.Regime, conf float64, dwell time.Duration) (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shouldChangeLocked(current, candidate, conf, dwell)
}

func (s *Smoother) shouldChangeLocked(current, candidate domain.Regime, conf float64, dwell time.Duration) (bool, string) {
	if !candidate.Valid() {
		return false, ReasonInvalidRegime
	}
	if candidate == current {
		return false, ReasonSameRegime
	}

	// Rule 5 first: an extreme raw ratio (or its reciprocal) accepts the
	// change immediately, superseding dwell, confidence, and volatility.
	if s.lastRaw >= s.cfg.ExtremeRatio || (s.lastRaw > 0 && s.lastRaw <= 1/s.cfg.ExtremeRatio) {
		return true, ReasonExtremeRatio
	}

	if dwell < s.cfg.MinDwell() {
		return false, ReasonDwell
	}
	if conf < s.cfg.ConfidenceThreshold {
		return false, ReasonConfidence
	}
	if domain.IsMinorChange(current, candidate) && conf < s.cfg.MinorChangeBar {
		return false, ReasonMinorBar
	}
	if s.volatilityLocked() > s.cfg.VolatilityCeiling {
		return false, ReasonVolatility
	}
	return true, ReasonAccepted
}

// Apply runs the gates and, on acceptance, replaces the live state with a
// fresh one. The first classification is accepted unconditionally. Returns
// the (possibly new) state, whether it changed, and the deciding reason.
func (s *Smoother) Apply(candidate domain.Regime, conf float64, at time.Time) (domain.RegimeState, bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		s.state = &domain.RegimeState{Regime: candidate, EnteredAt: at, Confidence: conf}
		s.publishLocked()
		metrics.RegimeChanges.WithLabelValues(ReasonInitial).Inc()
		log.Info().Str("regime", candidate.String()).Float64("confidence", conf).Msg("Initial regime accepted")
		return *s.state, true, ReasonInitial
	}

	dwell := s.state.Dwell(at)
	ok, reason := s.shouldChangeLocked(s.state.Regime, candidate, conf, dwell)
	if !ok {
		if reason != ReasonSameRegime {
			metrics.ChangesRejected.WithLabelValues(reason).Inc()
			log.Debug().
				Str("held", s.state.Regime.String()).
				Str("candidate", candidate.String()).
				Float64("confidence", conf).
				Dur("dwell", dwell).
				Str("reason", reason).
				Msg("Regime change rejected")
		}
		// Refresh confidence on the held regime when the candidate agrees.
		if reason == ReasonSameRegime {
			s.state.Confidence = conf
		}
		return *s.state, false, reason
	}

	prev := s.state.Regime
	s.state = &domain.RegimeState{Regime: candidate, EnteredAt: at, Confidence: conf}
	s.publishLocked()
	metrics.RegimeChanges.WithLabelValues(reason).Inc()
	log.Info().
		Str("from", prev.String()).
		Str("to", candidate.String()).
		Float64("confidence", conf).
		Str("reason", reason).
		Msg("Regime transition accepted")
	return *s.state, true, reason
}

// Current returns a copy of the live state, or false before the first
// accepted classification.
func (s *Smoother) Current() (domain.RegimeState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return domain.RegimeState{}, false
	}
	return *s.state, true
}

func (s *Smoother) publishLocked() {
	metrics.CurrentRegime.Set(float64(s.state.Regime.Tier()))
	metrics.CurrentConfidence.Set(s.state.Confidence)
}

// String describes the smoother for status endpoints.
func (s *Smoother) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return "no regime held"
	}
	return fmt.Sprintf("%s (confidence %.2f, ratio %.2f, vol %.3f)",
		s.state.Regime, s.state.Confidence, s.smoothedRatioLocked(), s.volatilityLocked())
}
