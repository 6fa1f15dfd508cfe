package calibration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/models"
)

type fakeOutcomeSource struct {
	resolved []*models.TrendOutcome
	counts   map[string]int
}

func (f *fakeOutcomeSource) Resolved(_ context.Context) ([]*models.TrendOutcome, error) {
	return f.resolved, nil
}

func (f *fakeOutcomeSource) ResolvedCountByTrend(_ context.Context) (map[string]int, error) {
	return f.counts, nil
}

type fakeReliabilitySource struct {
	minEventsSeen int
	sources       []*models.SourceReliability
	tiers         []*models.TierReliability
}

func (f *fakeReliabilitySource) SourceReliabilityStats(_ context.Context, minEvents int) ([]*models.SourceReliability, error) {
	f.minEventsSeen = minEvents
	return f.sources, nil
}

func (f *fakeReliabilitySource) TierReliabilityStats(_ context.Context, _ int) ([]*models.TierReliability, error) {
	return f.tiers, nil
}

func TestReportIncludesReliabilityDiagnostics(t *testing.T) {
	cfg := config.DefaultCalibrationConfig()
	reliability := &fakeReliabilitySource{
		sources: []*models.SourceReliability{{
			SourceID: "src-a", Tier: "wire",
			EventCount: 40, ContradictedCount: 10, ContradictedRate: 0.25,
		}},
		tiers: []*models.TierReliability{{
			Tier: "wire", EventCount: 40, ContradictedCount: 10, ContradictedRate: 0.25,
		}},
	}
	svc := NewService(cfg, &fakeOutcomeSource{}, reliability)

	report, err := svc.Report(context.Background())
	require.NoError(t, err)

	require.Len(t, report.SourceReliability, 1)
	assert.Equal(t, "src-a", report.SourceReliability[0].SourceID)
	require.Len(t, report.TierReliability, 1)
	// The sample gate is the configured minimum, applied in the store query.
	assert.Equal(t, cfg.MinSamples, reliability.minEventsSeen)
}

func TestReliabilityDiagnosticsNeverAlert(t *testing.T) {
	cfg := config.DefaultCalibrationConfig()

	// Well past the sample gate and well calibrated: predictions at the
	// bucket midpoint, observed rate matching.
	var outcomes []*models.TrendOutcome
	for i := 0; i < 100; i++ {
		o := &models.TrendOutcome{PredictedProbability: 0.15, Outcome: models.OutcomeDidNotOccur}
		if i < 15 {
			o.Outcome = models.OutcomeOccurred
		}
		outcomes = append(outcomes, o)
	}
	report := Build(outcomes)

	// An awful source cannot trip drift detection on its own.
	report.SourceReliability = []*models.SourceReliability{{
		SourceID: "src-bad", EventCount: 100, ContradictedCount: 90, ContradictedRate: 0.9,
	}}
	assert.Empty(t, DetectDrift(cfg, report))
}
