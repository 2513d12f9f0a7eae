// Package confidence turns a scan ratio plus short regime history into a
// single score in [0.1, 0.95]. Scoring failures never block the pipeline: any
// non-finite input degrades to a neutral 0.5.
package confidence

import (
	"math"

	"github.com/breadthlab/regimed/internal/domain"
)

// Fixed blend weights for the four sub-scores.
const (
	weightRatioExtremity = 0.40
	weightStability      = 0.30
	weightVolume         = 0.20
	weightTrend          = 0.10
)

const (
	// Asymmetric extremity thresholds. Short interest runs thinner than long
	// interest in this universe, so the bearish extreme sits above the exact
	// reciprocal of the bullish one.
	bullishExtreme = 3.0
	bearishExtreme = 0.33

	neutralFloor = 0.3
	scoreFloor   = 0.1
	scoreCeiling = 0.95
	neutral      = 0.5
)

// Calculator scores a cycle. Stateless; history is passed in per call.
type Calculator struct {
	historyWindow int
}

func New(historyWindow int) *Calculator {
	if historyWindow < 2 {
		historyWindow = 10
	}
	return &Calculator{historyWindow: historyWindow}
}

// Score combines ratio extremity, historical stability, volume participation,
// and trend strength. volumeParticipation and trendStrength are normalized
// inputs in [0,1]. The result is clamped to [0.1, 0.95] and rounded to three
// decimals.
func (c *Calculator) Score(ratio float64, history []domain.Regime, volumeParticipation, trendStrength float64) float64 {
	if !finite(ratio) || !finite(volumeParticipation) || !finite(trendStrength) {
		return neutral
	}

	score := weightRatioExtremity*ratioExtremity(ratio) +
		weightStability*c.stability(history) +
		weightVolume*volumeScore(volumeParticipation) +
		weightTrend*trendScore(trendStrength)

	if !finite(score) {
		return neutral
	}
	return round3(clamp(score, scoreFloor, scoreCeiling))
}

// ratioExtremity rewards distance from the neutral ratio of 1.0. Ratio zero
// (no longs at all) is the deepest bearish extreme, not a degenerate input.
func ratioExtremity(ratio float64) float64 {
	if ratio >= bullishExtreme || (ratio >= 0 && ratio <= bearishExtreme) {
		return 0.9
	}
	// Inside the neutral band the score grows with distance from 1.0, with a
	// floor so a dead-neutral ratio still contributes something.
	dist := math.Abs(ratio - 1.0)
	span := bullishExtreme - 1.0
	if ratio < 1.0 && ratio > 0 {
		dist = math.Abs(1.0/ratio - 1.0)
		span = 1.0/bearishExtreme - 1.0
	}
	s := neutralFloor + (0.9-neutralFloor)*(dist/span)
	return clamp(s, neutralFloor, 0.9)
}

// stability measures how settled the recent regime labels are: over the last
// N labels, 1 - changes/(N-1), boosted when the most recent three agree.
func (c *Calculator) stability(history []domain.Regime) float64 {
	if len(history) < 2 {
		return neutral
	}
	window := history
	if len(window) > c.historyWindow {
		window = window[len(window)-c.historyWindow:]
	}

	changes := 0
	for i := 1; i < len(window); i++ {
		if window[i] != window[i-1] {
			changes++
		}
	}
	s := 1.0 - float64(changes)/float64(len(window)-1)

	if len(window) >= 3 {
		last := window[len(window)-1]
		if window[len(window)-2] == last && window[len(window)-3] == last {
			s = math.Min(1.0, s+0.1)
		}
	}
	return s
}

// volumeScore maps participation in [0,1] linearly into [0.5, 1.0]. Even dead
// volume does not zero out confidence on its own.
func volumeScore(participation float64) float64 {
	return 0.5 + 0.5*clamp(participation, 0, 1)
}

func trendScore(strength float64) float64 {
	return clamp(strength, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
