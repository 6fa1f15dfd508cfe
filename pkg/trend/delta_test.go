package trend

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osintlab/trendwatch/pkg/models"
)

func TestSourceCredibility(t *testing.T) {
	wire := &models.Source{
		CredibilityScore: 0.95,
		Tier:             models.TierWire,
		ReportingType:    models.ReportingFirsthand,
	}
	assert.InDelta(t, 0.95, SourceCredibility(wire), 1e-12)

	aggregator := &models.Source{
		CredibilityScore: 0.95,
		Tier:             models.TierAggregator,
		ReportingType:    models.ReportingAggregator,
	}
	assert.Less(t, SourceCredibility(aggregator), SourceCredibility(wire))
}

func TestSourceCredibilityUnknownEnumsAreConservative(t *testing.T) {
	src := &models.Source{
		CredibilityScore: 1.0,
		Tier:             models.SourceTier("mystery"),
		ReportingType:    models.ReportingType("mystery"),
	}
	assert.InDelta(t, 0.60*0.70, SourceCredibility(src), 1e-12)
}

func TestCorroborationFactor(t *testing.T) {
	// Single independent source: √1/3.
	assert.InDelta(t, math.Sqrt(1)/3, CorroborationFactor([]float64{1}, false), 1e-12)
	// Nine independent sources saturate at 1.
	weights := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1}
	assert.Equal(t, 1.0, CorroborationFactor(weights, false))
	// Contradiction reduces the effective mass.
	assert.Less(t,
		CorroborationFactor([]float64{1, 1}, true),
		CorroborationFactor([]float64{1, 1}, false))
	// No sources, no corroboration.
	assert.Equal(t, 0.0, CorroborationFactor(nil, false))
}

func TestNoveltyFirstObservationIsOne(t *testing.T) {
	cfg := DefaultNoveltyConfig()
	assert.Equal(t, 1.0, Novelty(cfg, 0, nil, time.Now()))
}

func TestNoveltyDecreasesWithRepeats(t *testing.T) {
	cfg := DefaultNoveltyConfig()
	now := time.Now()
	last := now.Add(-time.Hour)

	prev := 1.0
	for count := 1; count <= 8; count++ {
		n := Novelty(cfg, count, &last, now)
		assert.LessOrEqual(t, n, prev, "novelty must be monotone in repeat count")
		assert.GreaterOrEqual(t, n, NoveltyFloor)
		prev = n
	}
}

func TestNoveltyRecoversWithSilence(t *testing.T) {
	cfg := DefaultNoveltyConfig()
	now := time.Now()

	recent := now.Add(-time.Hour)
	quiet := now.Add(-time.Duration(cfg.RecoveryHours) * time.Hour)

	nRecent := Novelty(cfg, 3, &recent, now)
	nQuiet := Novelty(cfg, 3, &quiet, now)
	assert.Greater(t, nQuiet, nRecent)
	assert.Equal(t, NoveltyCeil, nQuiet, "full recovery window restores ceiling")
}

func TestNoveltyBounds(t *testing.T) {
	cfg := NoveltyConfig{RepeatPenalty: 3, RecoveryHours: 72}
	now := time.Now()
	last := now

	n := Novelty(cfg, 1000, &last, now)
	assert.InDelta(t, NoveltyFloor, n, 1e-9)
}

func TestDeltaFreshEscalationScenario(t *testing.T) {
	// Trend eu-russia: weight 0.04, credibility 0.95, one wire source,
	// severity 0.9, confidence 0.95, escalatory.
	in := DeltaInputs{
		BaseWeight:          0.04,
		Credibility:         0.95,
		CorroborationFactor: CorroborationFactor([]float64{1}, false),
		Novelty:             1.0,
		TemporalDecayFactor: 1.0,
		Severity:            0.9,
		Confidence:          0.95,
		Direction:           models.DirectionEscalatory,
	}
	assert.InDelta(t, 0.0103, Delta(in), 0.0001)
}

func TestDeltaDeEscalatoryIsNegative(t *testing.T) {
	in := DeltaInputs{
		BaseWeight:          0.1,
		Credibility:         1,
		CorroborationFactor: 1,
		Novelty:             1,
		TemporalDecayFactor: 1,
		Severity:            1,
		Confidence:          1,
		Direction:           models.DirectionDeEscalatory,
	}
	assert.Equal(t, -0.1, Delta(in))
}

func TestDeltaIsClamped(t *testing.T) {
	in := DeltaInputs{
		BaseWeight:          10,
		Credibility:         1,
		CorroborationFactor: 1,
		Novelty:             1,
		TemporalDecayFactor: 1,
		Severity:            1,
		Confidence:          1,
		Direction:           models.DirectionEscalatory,
	}
	assert.Equal(t, MaxDeltaPerEvent, Delta(in))
}
