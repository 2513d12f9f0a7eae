package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegime_RoundTrip(t *testing.T) {
	for _, r := range AllRegimes() {
		parsed, err := ParseRegime(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}

	_, err := ParseRegime("sideways")
	assert.Error(t, err)
}

func TestRegime_JSONUsesLabels(t *testing.T) {
	data, err := json.Marshal(StrongUptrend)
	require.NoError(t, err)
	assert.Equal(t, `"strong_uptrend"`, string(data))

	var r Regime
	require.NoError(t, json.Unmarshal([]byte(`"choppy_bearish"`), &r))
	assert.Equal(t, ChoppyBearish, r)
}

func TestRegime_TierOrdering(t *testing.T) {
	regimes := AllRegimes()
	for i := 1; i < len(regimes); i++ {
		assert.Greater(t, regimes[i].Tier(), regimes[i-1].Tier())
	}
}

func TestIsMinorChange(t *testing.T) {
	assert.True(t, IsMinorChange(Choppy, Uptrend))
	assert.True(t, IsMinorChange(Uptrend, Choppy))
	assert.False(t, IsMinorChange(Choppy, StrongUptrend))
	assert.False(t, IsMinorChange(Uptrend, Uptrend))
}

func TestRegime_Sides(t *testing.T) {
	assert.True(t, StrongUptrend.Bullish())
	assert.True(t, ChoppyBearish.Bearish())
	assert.False(t, Choppy.Bullish())
	assert.False(t, Choppy.Bearish())
	assert.False(t, Unknown.Valid())
}
