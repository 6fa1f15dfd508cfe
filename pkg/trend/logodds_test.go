package trend

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbLogOddsRoundTrip(t *testing.T) {
	for p := MinProbability; p <= MaxProbability; p += 0.0007 {
		got := LogOddsToProb(ProbToLogOdds(p))
		assert.InDelta(t, p, got, 1e-9, "round trip failed for p=%v", p)
	}
}

func TestProbToLogOddsClampsInput(t *testing.T) {
	assert.Equal(t, ProbToLogOdds(MinProbability), ProbToLogOdds(0))
	assert.Equal(t, ProbToLogOdds(MaxProbability), ProbToLogOdds(1))
	assert.Equal(t, ProbToLogOdds(MinProbability), ProbToLogOdds(-5))
}

func TestLogOddsToProbOverflowSafe(t *testing.T) {
	assert.Equal(t, MaxProbability, LogOddsToProb(1e6))
	assert.Equal(t, MinProbability, LogOddsToProb(-1e6))
	assert.Equal(t, MaxProbability, LogOddsToProb(math.Inf(1)))
	assert.Equal(t, MinProbability, LogOddsToProb(math.Inf(-1)))
}

func TestBaselineConversion(t *testing.T) {
	// baseline_probability=0.08 → baseline_log_odds≈−2.442
	assert.InDelta(t, -2.442, ProbToLogOdds(0.08), 0.001)
}

func TestClampDelta(t *testing.T) {
	assert.Equal(t, 0.1, ClampDelta(0.1))
	assert.Equal(t, MaxDeltaPerEvent, ClampDelta(3.0))
	assert.Equal(t, -MaxDeltaPerEvent, ClampDelta(-3.0))
}

func TestDecaySemigroupLaw(t *testing.T) {
	const (
		baseline = -2.0
		current  = 1.5
		halfLife = 14.0
	)

	// Decay applied n times over split intervals equals one decay over the
	// accumulated age.
	once := Decay(current, baseline, 10, halfLife)

	split := current
	for i := 0; i < 10; i++ {
		split = Decay(split, baseline, 1, halfLife)
	}
	assert.InDelta(t, once, split, 1e-9)
}

func TestDecayHalvesDistanceAtHalfLife(t *testing.T) {
	got := Decay(1.0, 0.0, 14, 14)
	assert.InDelta(t, 0.5, got, 1e-12)
}

func TestDecayNoOpForZeroDays(t *testing.T) {
	assert.Equal(t, 1.23, Decay(1.23, 0, 0, 14))
	assert.Equal(t, 1.23, Decay(1.23, 0, 5, 0))
}

func TestTemporalDecayFactor(t *testing.T) {
	assert.Equal(t, 1.0, TemporalDecayFactor(0, 14))
	assert.InDelta(t, 0.5, TemporalDecayFactor(14, 14), 1e-12)
	assert.InDelta(t, 0.25, TemporalDecayFactor(28, 14), 1e-12)
}
