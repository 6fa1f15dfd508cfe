package trend

import (
	"fmt"

	"github.com/osintlab/trendwatch/pkg/models"
)

// Direction band thresholds (probability points over the lookback window).
const (
	fastBand   = 0.05
	stableBand = 0.01
)

// DirectionLabel maps the probability movement over a lookback window to a
// qualitative label with ±5% / ±1% bands.
func DirectionLabel(currentProb, pastProb float64) models.DirectionTrend {
	delta := currentProb - pastProb
	switch {
	case delta >= fastBand:
		return models.TrendRisingFast
	case delta >= stableBand:
		return models.TrendRising
	case delta <= -fastBand:
		return models.TrendFallingFast
	case delta <= -stableBand:
		return models.TrendFalling
	default:
		return models.TrendStable
	}
}

// RiskLevel buckets a probability: low<10%, guarded<25%, elevated<50%,
// high<75%, severe otherwise.
func RiskLevel(p float64) models.RiskLevel {
	switch {
	case p < 0.10:
		return models.RiskLow
	case p < 0.25:
		return models.RiskGuarded
	case p < 0.50:
		return models.RiskElevated
	case p < 0.75:
		return models.RiskHigh
	default:
		return models.RiskSevere
	}
}

// ProbabilityBand renders the decile band containing p, e.g. "20-30%".
func ProbabilityBand(p float64) string {
	bucket := int(p * 10)
	if bucket > 9 {
		bucket = 9
	}
	if bucket < 0 {
		bucket = 0
	}
	return fmt.Sprintf("%d-%d%%", bucket*10, bucket*10+10)
}

// ConfidenceInputs feed the confidence rating: how much active evidence backs
// the probability and how well corroborated it is.
type ConfidenceInputs struct {
	ActiveEvidenceCount int
	// MeanCorroboration is the mean corroboration_factor over active evidence.
	MeanCorroboration float64
	// BandWidthDays is how long the probability has stayed inside its current
	// decile band; longer residence means a steadier estimate.
	BandWidthDays float64
}

// ConfidenceRating grades the estimate from band stability × evidence volume
// × corroboration.
func ConfidenceRating(in ConfidenceInputs) models.ConfidenceRating {
	score := 0
	if in.ActiveEvidenceCount >= 10 {
		score += 2
	} else if in.ActiveEvidenceCount >= 3 {
		score++
	}
	if in.MeanCorroboration >= 0.6 {
		score += 2
	} else if in.MeanCorroboration >= 0.3 {
		score++
	}
	if in.BandWidthDays >= 7 {
		score++
	}
	switch {
	case score >= 4:
		return models.ConfidenceHigh
	case score >= 2:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
