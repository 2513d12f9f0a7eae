package classifier

import "github.com/breadthlab/regimed/internal/domain"

// ruleBand maps a half-open ratio interval to a regime with a base
// confidence. The table is ordered bullish to bearish and evaluated against
// the bounded ratio, so every input lands in exactly one band.
type ruleBand struct {
	MinRatio   float64 // inclusive lower bound
	Regime     domain.Regime
	Confidence float64
}

// ruleTable is the deterministic fallback. Bands mirror the tiers the model
// is trained on; confidences stay inside the rule-path clamp of [0.1, 0.95].
var ruleTable = []ruleBand{
	{2.0, domain.StrongUptrend, 0.90},
	{1.5, domain.Uptrend, 0.75},
	{1.1, domain.Choppy, 0.55},
	{0.9, domain.Choppy, 0.50},
	{0.67, domain.ChoppyBearish, 0.55},
	{0.5, domain.Downtrend, 0.75},
	{0, domain.StrongDowntrend, 0.90},
}

const (
	ruleFloor   = 0.10
	ruleCeiling = 0.95
)

// classifyRules resolves the bounded ratio through the lookup table.
func classifyRules(ratio float64) (domain.Regime, float64) {
	for _, band := range ruleTable {
		if ratio >= band.MinRatio {
			conf := band.Confidence
			if conf < ruleFloor {
				conf = ruleFloor
			}
			if conf > ruleCeiling {
				conf = ruleCeiling
			}
			return band.Regime, conf
		}
	}
	// Unreachable: the last band has MinRatio 0 and ratios are floored there.
	return domain.Choppy, 0.5
}
