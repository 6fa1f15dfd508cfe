package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/models"
)

func outcome(p float64, occurred bool) *models.TrendOutcome {
	o := &models.TrendOutcome{PredictedProbability: p, Outcome: models.OutcomeDidNotOccur}
	if occurred {
		o.Outcome = models.OutcomeOccurred
	}
	return o
}

func TestBuildPerfectCalibration(t *testing.T) {
	// Twenty outcomes predicted at the bucket midpoint, seven occurred: the
	// observed rate equals the midpoint and the bucket error is zero.
	var outcomes []*models.TrendOutcome
	for i := 0; i < 20; i++ {
		outcomes = append(outcomes, outcome(0.35, i < 7))
	}

	report := Build(outcomes)
	assert.Equal(t, 20, report.SampleCount)

	bucket := report.Buckets[3] // [0.3, 0.4)
	assert.Equal(t, 20, bucket.Count)
	assert.InDelta(t, 0.35, bucket.MeanPredicted, 1e-9)
	assert.InDelta(t, 0.35, bucket.ObservedFrequency, 1e-9)
	assert.InDelta(t, 0, bucket.Error(), 1e-9)

	// Brier for perfect 0.35 calibration: 0.35×0.65² + 0.65×0.35² = 0.2275.
	assert.InDelta(t, 0.2275, report.BrierScore, 1e-9)
}

func TestBucketErrorMeasuredAgainstMidpoint(t *testing.T) {
	// Predictions sit at the bucket's low edge and the observed rate matches
	// them exactly; the reported error is still the distance to the midpoint.
	var outcomes []*models.TrendOutcome
	for i := 0; i < 10; i++ {
		outcomes = append(outcomes, outcome(0.30, i < 3))
	}

	bucket := Build(outcomes).Buckets[3]
	assert.InDelta(t, 0.30, bucket.MeanPredicted, 1e-9)
	assert.InDelta(t, 0.30, bucket.ObservedFrequency, 1e-9)
	assert.InDelta(t, 0.35, bucket.Midpoint(), 1e-9)
	assert.InDelta(t, 0.05, bucket.Error(), 1e-9)
}

func TestBuildIgnoresUnresolvedOutcomes(t *testing.T) {
	outcomes := []*models.TrendOutcome{
		outcome(0.5, true),
		{PredictedProbability: 0.5, Outcome: models.OutcomeOngoing},
		{PredictedProbability: 0.5, Outcome: models.OutcomeSuperseded},
	}

	report := Build(outcomes)
	assert.Equal(t, 1, report.SampleCount)
}

func TestBuildEdgeProbabilities(t *testing.T) {
	report := Build([]*models.TrendOutcome{
		outcome(0.0, false),
		outcome(1.0, true),
	})

	assert.Equal(t, 1, report.Buckets[0].Count)
	// p = 1.0 lands in the top bucket, not out of range.
	assert.Equal(t, 1, report.Buckets[9].Count)
	assert.InDelta(t, 0, report.BrierScore, 1e-9)
}

func TestDetectDriftBelowMinSamplesIsSilent(t *testing.T) {
	cfg := config.DefaultCalibrationConfig()

	var outcomes []*models.TrendOutcome
	for i := 0; i < cfg.MinSamples-1; i++ {
		// Catastrophically wrong: confident predictions that never occur.
		outcomes = append(outcomes, outcome(0.95, false))
	}

	alerts := DetectDrift(cfg, Build(outcomes))
	assert.Empty(t, alerts)
}

func TestDetectDriftCritical(t *testing.T) {
	cfg := config.DefaultCalibrationConfig()

	var outcomes []*models.TrendOutcome
	for i := 0; i < cfg.MinSamples; i++ {
		outcomes = append(outcomes, outcome(0.95, false))
	}

	alerts := DetectDrift(cfg, Build(outcomes))
	require.NotEmpty(t, alerts)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Greater(t, alerts[0].BrierScore, cfg.BrierCritical)
}

func TestDetectDriftWellCalibratedIsQuiet(t *testing.T) {
	cfg := config.DefaultCalibrationConfig()

	var outcomes []*models.TrendOutcome
	for i := 0; i < 100; i++ {
		outcomes = append(outcomes, outcome(0.10, i < 10))
	}

	alerts := DetectDrift(cfg, Build(outcomes))
	assert.Empty(t, alerts)
}
