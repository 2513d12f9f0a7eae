package consistency

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/breadthlab/regimed/internal/domain"
)

// Thin bullish breadth (sma20=15%, sma50=18%) against a strong_uptrend
// candidate: 85% bearish breadth is an extreme divergence, confidence halved
// with the 0.30 floor, advice avoid_or_reduce.
func TestCheck_ExtremeDivergence(t *testing.T) {
	c := New()

	res := c.Check(domain.StrongUptrend, Indicators{
		BullishPercent: 15,
		BearishPercent: 85,
	}, 0.8)

	assert.False(t, res.IsConsistent)
	assert.Equal(t, "extreme", res.DivergenceType)
	assert.InDelta(t, 0.4, res.AdjustedConfidence, 1e-9)
	assert.Equal(t, RecommendAvoidOrReduce, res.Recommendation)
}

func TestCheck_ExtremeHaircutFloor(t *testing.T) {
	c := New()

	res := c.Check(domain.StrongUptrend, Indicators{BearishPercent: 85}, 0.5)
	assert.Equal(t, 0.30, res.AdjustedConfidence, "halved confidence floors at 0.30")
}

func TestCheck_ModerateDivergence(t *testing.T) {
	c := New()

	res := c.Check(domain.Uptrend, Indicators{BearishPercent: 55}, 0.8)
	assert.Equal(t, "moderate", res.DivergenceType)
	assert.InDelta(t, 0.6, res.AdjustedConfidence, 1e-9)
	assert.Equal(t, RecommendReduceSize, res.Recommendation)
}

func TestCheck_Consistent(t *testing.T) {
	c := New()

	res := c.Check(domain.Uptrend, Indicators{BearishPercent: 30, AdvanceDeclineRatio: 1.4}, 0.8)
	assert.True(t, res.IsConsistent)
	assert.Equal(t, "none", res.DivergenceType)
	assert.Equal(t, 0.8, res.AdjustedConfidence)
	assert.Equal(t, RecommendProceed, res.Recommendation)
}

// Severity never decreases as the opposing breadth grows.
func TestCheck_SeverityMonotonic(t *testing.T) {
	c := New()

	prev := DivergenceNone
	for pct := 0.0; pct <= 100; pct += 2.5 {
		res := c.Check(domain.StrongUptrend, Indicators{BearishPercent: pct}, 0.9)
		assert.GreaterOrEqual(t, int(res.Divergence), int(prev), "severity dropped at %v%%", pct)
		prev = res.Divergence
	}
}

// The A/D ratio can flag a moderate divergence on its own, even when the
// primary breadth check is clean.
func TestCheck_ADRatioSecondary(t *testing.T) {
	c := New()

	res := c.Check(domain.Uptrend, Indicators{BearishPercent: 20, AdvanceDeclineRatio: 0.35}, 0.8)
	assert.Equal(t, "moderate", res.DivergenceType)

	res = c.Check(domain.Downtrend, Indicators{BullishPercent: 20, AdvanceDeclineRatio: 2.8}, 0.8)
	assert.Equal(t, "moderate", res.DivergenceType)
}

func TestCheck_NeutralRegimeHasNoOpposition(t *testing.T) {
	c := New()

	res := c.Check(domain.Choppy, Indicators{BullishPercent: 90, BearishPercent: 90}, 0.7)
	assert.True(t, res.IsConsistent)
}

func TestRegimeOverride_RequiresStricterBar(t *testing.T) {
	c := New()

	// 65% opposing: penalty territory, but no override.
	_, ok := c.RegimeOverride(domain.StrongUptrend, Indicators{BearishPercent: 65})
	assert.False(t, ok)

	// 75% opposing: override fires.
	regime, ok := c.RegimeOverride(domain.StrongUptrend, Indicators{BearishPercent: 75})
	assert.True(t, ok)
	assert.Equal(t, domain.ChoppyBearish, regime)

	regime, ok = c.RegimeOverride(domain.StrongDowntrend, Indicators{BullishPercent: 80})
	assert.True(t, ok)
	assert.Equal(t, domain.Choppy, regime)

	_, ok = c.RegimeOverride(domain.Choppy, Indicators{BullishPercent: 95, BearishPercent: 95})
	assert.False(t, ok)
}
