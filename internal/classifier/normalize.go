package classifier

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/metrics"
)

// normalize bounds a feature vector before either classification path runs.
// Score-like inputs are clipped to [-1,1], anomalous magnitudes are logged,
// the ratio is floored at zero and capped, and non-finite values collapse to
// neutral so one bad upstream number cannot poison a cycle.
func (c *Classifier) normalize(fv domain.FeatureVector) domain.FeatureVector {
	fv.Ratio = c.boundRatio(fv.Ratio)
	fv.RatioMA5 = c.boundRatio(fv.RatioMA5)
	fv.RatioMA10 = c.boundRatio(fv.RatioMA10)

	fv.RatioMomentum = c.clipScore(fv.RatioMomentum, "ratio_momentum")
	fv.BreadthMomentum = c.clipScore(fv.BreadthMomentum/breadthMomentumScale, "breadth_momentum")

	fv.SMA20Percent = clampFinite(fv.SMA20Percent, 0, 100, 50)
	fv.SMA50Percent = clampFinite(fv.SMA50Percent, 0, 100, 50)
	fv.VolumeParticipation = clampFinite(fv.VolumeParticipation, 0, 100, 50)
	fv.RatioVolatility = clampFinite(fv.RatioVolatility, 0, 10, 0)
	return fv
}

// breadthMomentumScale converts the raw percentage-point delta into score
// space before clipping.
const breadthMomentumScale = 10.0

func (c *Classifier) boundRatio(r float64) float64 {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 1.0
	}
	if r < 0 {
		return 0
	}
	if r > c.cfg.ZeroShortRatioCap {
		return c.cfg.ZeroShortRatioCap
	}
	return r
}

func (c *Classifier) clipScore(raw float64, name string) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	if math.Abs(raw) > c.cfg.AnomalyMagnitude {
		metrics.AnomalousInputs.Inc()
		log.Warn().Str("feature", name).Float64("raw", raw).Msg("Anomalous feature magnitude clipped")
	}
	return math.Min(1, math.Max(-1, raw))
}

func clampFinite(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return math.Min(hi, math.Max(lo, v))
}
