// Package trend implements the deterministic log-odds evidence engine:
// probability mapping, evidence delta factorization, time decay, and the
// atomic apply/invalidate paths over the evidence ledger.
package trend

import "math"

// Probability clamp bounds. All conversions saturate here so log-odds stay
// finite regardless of accumulated evidence.
const (
	MinProbability = 0.001
	MaxProbability = 0.999
)

// MaxDeltaPerEvent bounds the log-odds contribution of a single
// (trend, event, signal_type) observation.
const MaxDeltaPerEvent = 0.5

// ProbToLogOdds converts a probability to log-odds, clamping the input to
// [MinProbability, MaxProbability] first.
func ProbToLogOdds(p float64) float64 {
	p = clampProb(p)
	return math.Log(p / (1 - p))
}

// LogOddsToProb converts log-odds back to a probability, clamped to
// [MinProbability, MaxProbability]. Overflow-safe for any finite input.
func LogOddsToProb(lo float64) float64 {
	// 1/(1+e^-lo) computed in a form that cannot overflow for large |lo|.
	var p float64
	if lo >= 0 {
		p = 1 / (1 + math.Exp(-lo))
	} else {
		e := math.Exp(lo)
		p = e / (1 + e)
	}
	return clampProb(p)
}

func clampProb(p float64) float64 {
	switch {
	case p < MinProbability:
		return MinProbability
	case p > MaxProbability:
		return MaxProbability
	default:
		return p
	}
}

// ClampDelta bounds a raw evidence delta to ±MaxDeltaPerEvent.
func ClampDelta(raw float64) float64 {
	switch {
	case raw > MaxDeltaPerEvent:
		return MaxDeltaPerEvent
	case raw < -MaxDeltaPerEvent:
		return -MaxDeltaPerEvent
	default:
		return raw
	}
}

// Decay regresses current log-odds toward the baseline over elapsed days:
//
//	new = baseline + (current − baseline) × 0.5^(days / halfLife)
//
// Satisfies the semigroup law: decaying n times over split intervals equals
// one decay over the summed interval.
func Decay(current, baseline, days, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 || days <= 0 {
		return current
	}
	return baseline + (current-baseline)*math.Pow(0.5, days/halfLifeDays)
}

// TemporalDecayFactor dampens evidence by its age at scoring time.
func TemporalDecayFactor(ageDays, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 || ageDays <= 0 {
		return 1
	}
	return math.Pow(0.5, ageDays/halfLifeDays)
}
