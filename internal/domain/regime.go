package domain

import (
	"encoding/json"
	"fmt"
)

// Regime represents the current market regime classification
type Regime int

const (
	StrongDowntrend Regime = iota
	Downtrend
	ChoppyBearish
	Choppy
	Uptrend
	StrongUptrend
)

// Unknown marks an unclassified or unparseable regime.
const Unknown Regime = -1

var regimeNames = map[Regime]string{
	StrongDowntrend: "strong_downtrend",
	Downtrend:       "downtrend",
	ChoppyBearish:   "choppy_bearish",
	Choppy:          "choppy",
	Uptrend:         "uptrend",
	StrongUptrend:   "strong_uptrend",
}

func (r Regime) String() string {
	if name, ok := regimeNames[r]; ok {
		return name
	}
	return "unknown"
}

// AllRegimes lists every valid regime in tier order, bearish to bullish.
func AllRegimes() []Regime {
	return []Regime{StrongDowntrend, Downtrend, ChoppyBearish, Choppy, Uptrend, StrongUptrend}
}

// ParseRegime converts a stored label back into a Regime.
func ParseRegime(s string) (Regime, error) {
	for r, name := range regimeNames {
		if name == s {
			return r, nil
		}
	}
	return Unknown, fmt.Errorf("unknown regime label: %q", s)
}

// Valid reports whether r is a member of the closed regime set.
func (r Regime) Valid() bool {
	_, ok := regimeNames[r]
	return ok
}

// Tier returns the ordinal position of the regime on the bearish-to-bullish
// axis. Adjacent tiers are "minor" transitions for smoothing purposes.
func (r Regime) Tier() int {
	return int(r)
}

// Bullish reports whether the regime sits above the neutral band.
func (r Regime) Bullish() bool {
	return r == Uptrend || r == StrongUptrend
}

// Bearish reports whether the regime sits below the neutral band.
func (r Regime) Bearish() bool {
	return r == StrongDowntrend || r == Downtrend || r == ChoppyBearish
}

// MarshalJSON writes the regime as its label; wire and storage formats never
// expose the ordinal.
func (r Regime) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON accepts a regime label.
func (r *Regime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRegime(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// IsMinorChange reports whether moving from a to b crosses exactly one tier.
// Minor transitions require a higher confidence bar in the smoother.
func IsMinorChange(a, b Regime) bool {
	d := a.Tier() - b.Tier()
	if d < 0 {
		d = -d
	}
	return d == 1
}
