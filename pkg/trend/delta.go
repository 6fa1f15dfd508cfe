package trend

import (
	"math"
	"time"

	"github.com/osintlab/trendwatch/pkg/models"
)

// Source tier multipliers applied on top of the configured credibility score.
var tierMultipliers = map[models.SourceTier]float64{
	models.TierPrimary:    1.00,
	models.TierWire:       1.00,
	models.TierMajor:      0.90,
	models.TierRegional:   0.75,
	models.TierAggregator: 0.60,
}

// Reporting type multipliers: relays count for less than firsthand reporting.
var reportingMultipliers = map[models.ReportingType]float64{
	models.ReportingFirsthand:  1.00,
	models.ReportingSecondary:  0.85,
	models.ReportingAggregator: 0.70,
}

// ContradictionPenalty is applied to the effective corroboration mass when
// the event's claim graph contains contradiction links.
const ContradictionPenalty = 0.6

// SourceCredibility combines the configured score with tier and reporting
// multipliers. Unknown enum values fall back to the most conservative weight.
func SourceCredibility(src *models.Source) float64 {
	tm, ok := tierMultipliers[src.Tier]
	if !ok {
		tm = tierMultipliers[models.TierAggregator]
	}
	rm, ok := reportingMultipliers[src.ReportingType]
	if !ok {
		rm = reportingMultipliers[models.ReportingAggregator]
	}
	return src.CredibilityScore * tm * rm
}

// CorroborationFactor maps independence-weighted source mass to [0,1]:
//
//	min(1, sqrt(effective) / 3)
//
// effective = Σ independent source-cluster weights × contradiction penalty.
func CorroborationFactor(independentWeights []float64, contradicted bool) float64 {
	var sum float64
	for _, w := range independentWeights {
		sum += w
	}
	if contradicted {
		sum *= ContradictionPenalty
	}
	if sum <= 0 {
		return 0
	}
	f := math.Sqrt(sum) / 3
	if f > 1 {
		return 1
	}
	return f
}

// NoveltyConfig tunes the recency-aware novelty curve.
type NoveltyConfig struct {
	// RepeatPenalty controls how fast repeats of the same (trend, signal_type)
	// lose novelty: each prior observation halves the variable part
	// RepeatPenalty times over.
	RepeatPenalty float64 `yaml:"repeat_penalty"`
	// RecoveryHours is how long the signal must stay quiet before novelty
	// fully recovers toward 1.0.
	RecoveryHours float64 `yaml:"recovery_hours"`
}

// DefaultNoveltyConfig returns the documented defaults.
func DefaultNoveltyConfig() NoveltyConfig {
	return NoveltyConfig{RepeatPenalty: 1.0, RecoveryHours: 72}
}

// Novelty bounds.
const (
	NoveltyFloor = 0.30
	NoveltyCeil  = 1.00
)

// Novelty computes the recency-aware novelty score over prior evidence for
// this (trend, signal_type). The curve is monotone in both arguments:
// more prior observations → lower, longer silence → higher.
//
//	novelty = floor + (1−floor) × 0.5^(priorCount × repeatPenalty) × lift
//	lift    = min(1, hoursSinceLast / recoveryHours), 1.0 when no prior exists
//
// First observation is exactly 1.0.
func Novelty(cfg NoveltyConfig, priorCount int, lastSeen *time.Time, now time.Time) float64 {
	if priorCount <= 0 || lastSeen == nil {
		return NoveltyCeil
	}
	repeat := math.Pow(0.5, float64(priorCount)*cfg.RepeatPenalty)
	lift := 1.0
	if cfg.RecoveryHours > 0 {
		hours := now.Sub(*lastSeen).Hours()
		if hours < 0 {
			hours = 0
		}
		lift = hours / cfg.RecoveryHours
		if lift > 1 {
			lift = 1
		}
	}
	// lift recovers novelty by interpolating the variable part back toward 1.
	variable := repeat + (1-repeat)*lift
	n := NoveltyFloor + (NoveltyCeil-NoveltyFloor)*variable
	if n > NoveltyCeil {
		return NoveltyCeil
	}
	if n < NoveltyFloor {
		return NoveltyFloor
	}
	return n
}

// DeltaInputs carries every factor of one evidence delta.
type DeltaInputs struct {
	BaseWeight          float64
	Credibility         float64
	CorroborationFactor float64
	Novelty             float64
	EvidenceAgeDays     float64
	TemporalDecayFactor float64
	Severity            float64
	Confidence          float64
	Direction           models.Direction
}

// Delta computes the clamped signed log-odds delta from its factors:
//
//	raw = weight × cred × corroboration × novelty × temporal × severity × confidence × dir
func Delta(in DeltaInputs) float64 {
	raw := in.BaseWeight *
		in.Credibility *
		in.CorroborationFactor *
		in.Novelty *
		in.TemporalDecayFactor *
		in.Severity *
		in.Confidence *
		in.Direction.Multiplier()
	return ClampDelta(raw)
}
