package confidence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/breadthlab/regimed/internal/domain"
)

func steady(r domain.Regime, n int) []domain.Regime {
	h := make([]domain.Regime, n)
	for i := range h {
		h[i] = r
	}
	return h
}

func TestScore_AlwaysInBounds(t *testing.T) {
	c := New(10)

	ratios := []float64{0.01, 0.33, 0.5, 0.9, 1.0, 1.2, 2.0, 3.0, 5.0, 50.0}
	histories := [][]domain.Regime{
		nil,
		steady(domain.Choppy, 10),
		{domain.Uptrend, domain.Choppy, domain.Uptrend, domain.Downtrend},
	}

	for _, r := range ratios {
		for _, h := range histories {
			for _, vol := range []float64{0, 0.5, 1} {
				for _, trend := range []float64{0, 0.5, 1} {
					s := c.Score(r, h, vol, trend)
					assert.GreaterOrEqual(t, s, 0.1, "ratio=%v", r)
					assert.LessOrEqual(t, s, 0.95, "ratio=%v", r)
				}
			}
		}
	}
}

func TestScore_ExtremeRatioBeatsNeutral(t *testing.T) {
	c := New(10)
	h := steady(domain.Uptrend, 10)

	extreme := c.Score(3.2, h, 0.8, 0.8)
	neutral := c.Score(1.05, h, 0.8, 0.8)
	assert.Greater(t, extreme, neutral)

	bearish := c.Score(0.30, h, 0.8, 0.8)
	assert.Greater(t, bearish, neutral, "bearish extreme scores like bullish extreme")
}

// Ratio zero means every signal is short. It sits at the bearish extreme and
// must never score below a milder bearish reading.
func TestScore_ZeroRatioIsBearishExtreme(t *testing.T) {
	c := New(10)
	h := steady(domain.Downtrend, 10)

	zero := c.Score(0, h, 0.8, 0.8)
	mild := c.Score(0.2, h, 0.8, 0.8)
	assert.Equal(t, zero, mild, "both sit on the extremity plateau")

	assert.Equal(t, 0.9, ratioExtremity(0))
	assert.Equal(t, ratioExtremity(0.33), ratioExtremity(0))
}

func TestScore_StabilityRewardsAgreement(t *testing.T) {
	c := New(10)

	stable := c.Score(1.6, steady(domain.Uptrend, 10), 0.6, 0.5)
	flappy := c.Score(1.6, []domain.Regime{
		domain.Uptrend, domain.Choppy, domain.Uptrend, domain.Choppy,
		domain.Uptrend, domain.Choppy, domain.Uptrend, domain.Choppy,
		domain.Uptrend, domain.Choppy,
	}, 0.6, 0.5)

	assert.Greater(t, stable, flappy)
}

func TestScore_NonFiniteInputsReturnNeutral(t *testing.T) {
	c := New(10)

	assert.Equal(t, 0.5, c.Score(math.NaN(), nil, 0.5, 0.5))
	assert.Equal(t, 0.5, c.Score(math.Inf(1), nil, 0.5, 0.5))
	assert.Equal(t, 0.5, c.Score(1.5, nil, math.NaN(), 0.5))
	assert.Equal(t, 0.5, c.Score(1.5, nil, 0.5, math.Inf(-1)))
}

func TestScore_RoundedToThreeDecimals(t *testing.T) {
	c := New(10)
	s := c.Score(1.37, steady(domain.Choppy, 7), 0.63, 0.41)
	assert.Equal(t, s, math.Round(s*1000)/1000)
}

func TestStability_ShortHistoryIsNeutral(t *testing.T) {
	c := New(10)
	assert.Equal(t, 0.5, c.stability(nil))
	assert.Equal(t, 0.5, c.stability([]domain.Regime{domain.Choppy}))
}
