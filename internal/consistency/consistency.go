// Package consistency cross-checks a proposed regime against the independent
// breadth signal. Divergence earns a confidence haircut and a position
// recommendation; only an extreme opposing reading (a deliberately higher
// bar) earns an outright regime override.
package consistency

import (
	"github.com/rs/zerolog/log"

	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/metrics"
)

// Divergence severity, ordered so larger means worse.
type Divergence int

const (
	DivergenceNone Divergence = iota
	DivergenceModerate
	DivergenceExtreme
)

func (d Divergence) String() string {
	switch d {
	case DivergenceModerate:
		return "moderate"
	case DivergenceExtreme:
		return "extreme"
	default:
		return "none"
	}
}

// Recommendation is the position-sizing advice attached to a check.
type Recommendation string

const (
	RecommendProceed       Recommendation = "proceed"
	RecommendReduceSize    Recommendation = "reduce_size"
	RecommendAvoidOrReduce Recommendation = "avoid_or_reduce"
)

// Indicators are the independent breadth readings the checker consumes.
type Indicators struct {
	// BullishPercent is the share of the universe above its moving average.
	BullishPercent float64
	// BearishPercent is the opposing share. Feeds report it directly rather
	// than as 100-bullish because unchanged instruments count in neither.
	BearishPercent float64
	// AdvanceDeclineRatio is advancers over decliners for the session.
	AdvanceDeclineRatio float64
}

// CheckResult carries the severity, the haircut confidence, and the advice.
type CheckResult struct {
	IsConsistent       bool           `json:"is_consistent"`
	Divergence         Divergence     `json:"-"`
	DivergenceType     string         `json:"divergence_type"`
	AdjustedConfidence float64        `json:"adjusted_confidence"`
	Recommendation     Recommendation `json:"recommendation"`
}

// Thresholds for the severity ladder and the separate override bar.
const (
	moderateBreadthPct = 50.0
	extremeBreadthPct  = 60.0
	overrideBreadthPct = 70.0

	moderateHaircut = 0.75
	extremeHaircut  = 0.50
	confidenceFloor = 0.30

	// A/D readings this lopsided against the proposed direction flag a
	// moderate divergence even when the primary breadth check is clean.
	adBearishBound = 0.5
	adBullishBound = 2.0
)

// Checker is stateless; both operations are pure functions over the inputs.
type Checker struct{}

func New() *Checker { return &Checker{} }

// Check classifies divergence severity between the proposed regime and the
// opposing breadth percentage, and applies the confidence haircut. Severity
// is monotonic in the opposing percentage: none, then moderate above 50%,
// then extreme above 60%.
func (c *Checker) Check(regime domain.Regime, ind Indicators, conf float64) CheckResult {
	opposing := opposingBreadth(regime, ind)

	severity := DivergenceNone
	switch {
	case opposing > extremeBreadthPct:
		severity = DivergenceExtreme
	case opposing > moderateBreadthPct:
		severity = DivergenceModerate
	}

	// Secondary check: the A/D ratio can independently raise a clean primary
	// reading to moderate, but never past it.
	if severity == DivergenceNone && adDiverges(regime, ind.AdvanceDeclineRatio) {
		severity = DivergenceModerate
	}

	result := CheckResult{
		IsConsistent:       severity == DivergenceNone,
		Divergence:         severity,
		DivergenceType:     severity.String(),
		AdjustedConfidence: conf,
		Recommendation:     RecommendProceed,
	}

	switch severity {
	case DivergenceModerate:
		result.AdjustedConfidence = haircut(conf, moderateHaircut)
		result.Recommendation = RecommendReduceSize
	case DivergenceExtreme:
		result.AdjustedConfidence = haircut(conf, extremeHaircut)
		result.Recommendation = RecommendAvoidOrReduce
	}

	metrics.DivergenceChecks.WithLabelValues(severity.String()).Inc()
	if severity != DivergenceNone {
		log.Warn().
			Str("regime", regime.String()).
			Str("severity", severity.String()).
			Float64("opposing_breadth", opposing).
			Float64("confidence", conf).
			Float64("adjusted", result.AdjustedConfidence).
			Msg("Regime diverges from independent breadth")
	}
	return result
}

// RegimeOverride proposes an outright replacement regime when the opposing
// breadth clears the stricter 70% bar. Overrides are deliberately rarer than
// confidence penalties. The boolean reports whether an override applies.
func (c *Checker) RegimeOverride(regime domain.Regime, ind Indicators) (domain.Regime, bool) {
	opposing := opposingBreadth(regime, ind)
	if opposing <= overrideBreadthPct {
		return regime, false
	}
	if regime.Bullish() {
		return domain.ChoppyBearish, true
	}
	if regime.Bearish() {
		return domain.Choppy, true
	}
	return regime, false
}

// opposingBreadth picks the breadth reading that argues against the regime.
// Neutral regimes have no opposing side.
func opposingBreadth(regime domain.Regime, ind Indicators) float64 {
	switch {
	case regime.Bullish():
		return ind.BearishPercent
	case regime.Bearish():
		return ind.BullishPercent
	default:
		return 0
	}
}

func adDiverges(regime domain.Regime, adRatio float64) bool {
	if adRatio <= 0 {
		return false
	}
	if regime.Bullish() && adRatio < adBearishBound {
		return true
	}
	if regime.Bearish() && adRatio > adBullishBound {
		return true
	}
	return false
}

func haircut(conf, factor float64) float64 {
	adjusted := conf * factor
	if adjusted < confidenceFloor {
		adjusted = confidenceFloor
	}
	return adjusted
}
