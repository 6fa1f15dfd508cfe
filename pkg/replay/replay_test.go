package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/services"
	"github.com/osintlab/trendwatch/pkg/trend"
)

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func row(id, eventID, signal string, delta float64, at time.Time) *models.TrendEvidence {
	return &models.TrendEvidence{
		ID:                  id,
		TrendID:             "trend-a",
		EventID:             eventID,
		SignalType:          signal,
		BaseWeight:          0.30,
		Credibility:         0.90,
		CorroborationFactor: 0.50,
		Novelty:             1.0,
		TemporalDecayFactor: 1.0,
		Severity:            0.70,
		Confidence:          0.80,
		DirectionMultiplier: 1,
		DeltaLogOdds:        delta,
		CreatedAt:           at,
	}
}

func TestRebuildAppliesDecayBetweenRows(t *testing.T) {
	baseline := trend.ProbToLogOdds(0.10)
	evidence := []*models.TrendEvidence{
		row("e1", "ev-1", "troop_movement", 0.20, t0.Add(24*time.Hour)),
		row("e2", "ev-2", "troop_movement", 0.10, t0.Add(2*24*time.Hour)),
	}

	// Half-life of one day: e1's contribution halves before e2 lands.
	points := Rebuild(baseline, baseline, 1, evidence, t0, t0.Add(2*24*time.Hour))
	require.Len(t, points, 3)

	assert.InDelta(t, baseline, points[0].LogOdds, 1e-9)
	assert.InDelta(t, baseline+0.20, points[1].LogOdds, 1e-9)
	assert.InDelta(t, baseline+0.10+0.10, points[2].LogOdds, 1e-9)
	assert.Equal(t, "e2", points[2].EvidenceID)
}

func TestRebuildOrdersOutOfOrderRows(t *testing.T) {
	evidence := []*models.TrendEvidence{
		row("later", "ev-2", "s", 0.10, t0.Add(2*time.Hour)),
		row("earlier", "ev-1", "s", 0.20, t0.Add(time.Hour)),
	}

	points := Rebuild(0, 0, 30, evidence, t0, t0.Add(3*time.Hour))
	require.Len(t, points, 4)
	assert.Equal(t, "earlier", points[1].EvidenceID)
	assert.Equal(t, "later", points[2].EvidenceID)
}

func TestRebuildExcludesRowsOutsideWindow(t *testing.T) {
	evidence := []*models.TrendEvidence{
		row("before", "ev-0", "s", 0.50, t0.Add(-time.Hour)),
		row("inside", "ev-1", "s", 0.20, t0.Add(time.Hour)),
		row("after", "ev-2", "s", 0.50, t0.Add(48*time.Hour)),
	}

	points := Rebuild(0, 0, 30, evidence, t0, t0.Add(24*time.Hour))
	var ids []string
	for _, p := range points {
		if p.EvidenceID != "" {
			ids = append(ids, p.EvidenceID)
		}
	}
	assert.Equal(t, []string{"inside"}, ids)
}

func TestAtDecaysForwardFromLastPoint(t *testing.T) {
	baseline := 0.0
	points := []Point{
		{Time: t0, LogOdds: 0},
		{Time: t0.Add(24 * time.Hour), LogOdds: 0.40, EvidenceID: "e1"},
	}

	// One half-life after the last point: 0.40 → 0.20.
	got := At(points, baseline, 1, t0.Add(2*24*time.Hour))
	assert.InDelta(t, 0.20, got, 1e-9)

	// Exactly at the last point: no decay.
	assert.InDelta(t, 0.40, At(points, baseline, 1, t0.Add(24*time.Hour)), 1e-9)
}

func TestWithoutEventDropsAllRowsForEvent(t *testing.T) {
	evidence := []*models.TrendEvidence{
		row("e1", "ev-1", "a", 0.1, t0),
		row("e2", "ev-1", "b", 0.1, t0),
		row("e3", "ev-2", "a", 0.1, t0),
	}

	kept := WithoutEvent(evidence, "ev-1")
	require.Len(t, kept, 1)
	assert.Equal(t, "e3", kept[0].ID)
}

func TestReweightedRecomputesDeltas(t *testing.T) {
	challenger := &models.TrendDefinition{
		Indicators: map[string]models.Indicator{
			"troop_movement": {Weight: 0.60, Direction: models.DirectionEscalatory},
		},
	}
	evidence := []*models.TrendEvidence{
		row("e1", "ev-1", "troop_movement", 0, t0),
		row("e2", "ev-2", "unknown_signal", 0.3, t0),
	}

	out := Reweighted(evidence, challenger)
	require.Len(t, out, 1, "rows for undefined signal types are dropped")

	// 0.60 × 0.90 × 0.50 × 1.0 × 1.0 × 0.70 × 0.80 = 0.1512
	assert.InDelta(t, 0.1512, out[0].DeltaLogOdds, 1e-9)
	assert.Equal(t, 0.60, out[0].BaseWeight)

	// Originals untouched.
	assert.Equal(t, 0.0, evidence[0].DeltaLogOdds)
}

func TestWithInjectedComputesDeltaFromIndicator(t *testing.T) {
	def := &models.TrendDefinition{
		Indicators: map[string]models.Indicator{
			"sanctions": {Weight: 0.40, Direction: models.DirectionDeEscalatory},
		},
	}

	out := WithInjected(nil, def, InjectedSignal{
		SignalType: "sanctions",
		Severity:   0.5,
		Confidence: 0.8,
		At:         t0,
	})
	require.Len(t, out, 1)

	// 0.40 × 1 × 1 × 1 × 1 × 0.5 × 0.8 × −1 = −0.16
	assert.InDelta(t, -0.16, out[0].DeltaLogOdds, 1e-9)
}

func TestWithInjectedUnknownSignalIsNoop(t *testing.T) {
	def := &models.TrendDefinition{Indicators: map[string]models.Indicator{}}
	out := WithInjected(nil, def, InjectedSignal{SignalType: "nope"})
	assert.Empty(t, out)
}

type fakeTrendStore struct {
	trend    *models.Trend
	evidence []*models.TrendEvidence
	snapshot *models.TrendSnapshot
}

func (f *fakeTrendStore) Get(_ context.Context, id string) (*models.Trend, error) {
	if f.trend == nil || f.trend.ID != id {
		return nil, services.ErrNotFound
	}
	return f.trend, nil
}

func (f *fakeTrendStore) ActiveEvidenceSince(_ context.Context, _ string, since time.Time) ([]*models.TrendEvidence, error) {
	var out []*models.TrendEvidence
	for _, ev := range f.evidence {
		if !ev.CreatedAt.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeTrendStore) SnapshotAtOrBefore(_ context.Context, _ string, _ time.Time) (*models.TrendSnapshot, error) {
	if f.snapshot == nil {
		return nil, services.ErrNotFound
	}
	return f.snapshot, nil
}

type fakeOutcomeStore struct{ outcomes []*models.TrendOutcome }

func (f *fakeOutcomeStore) ForTrend(_ context.Context, _ string) ([]*models.TrendOutcome, error) {
	return f.outcomes, nil
}

func testTrend() *models.Trend {
	return &models.Trend{
		ID:                "trend-a",
		BaselineLogOdds:   trend.ProbToLogOdds(0.10),
		DecayHalfLifeDays: 30,
		Definition: &models.TrendDefinition{
			ID: "trend-a",
			Indicators: map[string]models.Indicator{
				"troop_movement": {Weight: 0.30, Direction: models.DirectionEscalatory},
			},
		},
	}
}

func TestEngineRemoveEvent(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeTrendStore{
		trend: testTrend(),
		evidence: []*models.TrendEvidence{
			row("e1", "ev-1", "troop_movement", 0.30, now.Add(-2*time.Hour)),
			row("e2", "ev-2", "troop_movement", 0.20, now.Add(-time.Hour)),
		},
	}
	engine := NewEngine(store, &fakeOutcomeStore{})

	sim, err := engine.RemoveEvent(context.Background(), "trend-a", "ev-1", now.Add(-24*time.Hour))
	require.NoError(t, err)

	// Removing ev-1 must lower the final probability.
	assert.Less(t, sim.CounterfactualProb, sim.ActualProbability)
	assert.Greater(t, sim.ProbabilityShift, 0.0)
	// Negligible decay over two hours at a 30-day half-life.
	assert.InDelta(t, 0.50, sim.ActualLogOdds-store.trend.BaselineLogOdds, 0.01)
	assert.InDelta(t, 0.20, sim.CounterfactualLogOdds-store.trend.BaselineLogOdds, 0.01)
}

func TestEngineRemoveUnknownEventIsIdentity(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeTrendStore{
		trend:    testTrend(),
		evidence: []*models.TrendEvidence{row("e1", "ev-1", "troop_movement", 0.30, now.Add(-time.Hour))},
	}
	engine := NewEngine(store, &fakeOutcomeStore{})

	sim, err := engine.RemoveEvent(context.Background(), "trend-a", "no-such-event", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0, sim.ProbabilityShift, 1e-9)
}

func TestEngineInjectSignalRejectsUnknownType(t *testing.T) {
	engine := NewEngine(&fakeTrendStore{trend: testTrend()}, &fakeOutcomeStore{})

	_, err := engine.InjectSignal(context.Background(), "trend-a",
		InjectedSignal{SignalType: "undefined_signal"}, t0)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestEngineInjectSignalRaisesProbability(t *testing.T) {
	now := time.Now().UTC()
	engine := NewEngine(&fakeTrendStore{trend: testTrend()}, &fakeOutcomeStore{})

	sim, err := engine.InjectSignal(context.Background(), "trend-a", InjectedSignal{
		SignalType: "troop_movement",
		Severity:   0.9,
		Confidence: 0.9,
		At:         now,
	}, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Greater(t, sim.CounterfactualProb, sim.ActualProbability)
}

func TestEvaluateChallengerPromotesOnBrierImprovement(t *testing.T) {
	now := time.Now().UTC()
	predictionAt := now.Add(-time.Hour)
	// The event occurred; the challenger doubles the indicator weight, so its
	// replayed probability at prediction time is higher and scores better.
	store := &fakeTrendStore{
		trend: testTrend(),
		evidence: []*models.TrendEvidence{
			row("e1", "ev-1", "troop_movement", 0.1512, now.Add(-2*time.Hour)),
		},
	}
	outcomes := &fakeOutcomeStore{outcomes: []*models.TrendOutcome{{
		TrendID:              "trend-a",
		PredictedProbability: 0.12,
		PredictionDate:       predictionAt,
		Outcome:              models.OutcomeOccurred,
	}}}
	engine := NewEngine(store, outcomes)

	challenger := &models.TrendDefinition{
		Indicators: map[string]models.Indicator{
			"troop_movement": {Weight: 0.60, Direction: models.DirectionEscalatory},
		},
	}

	assessment, err := engine.EvaluateChallenger(context.Background(),
		"trend-a", challenger, now.Add(-24*time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, assessment.SampleCount)
	assert.Less(t, assessment.ChallengerBrier, assessment.ChampionBrier)
	assert.True(t, assessment.Promote)
	assert.Equal(t, 1.0, assessment.CostRatio)
	// Both arms carry a measured replay latency.
	assert.Greater(t, assessment.ChampionLatencyMs, 0.0)
	assert.Greater(t, assessment.ChallengerLatencyMs, 0.0)
}

func TestEvaluateChallengerBlocksOnCostRegression(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeTrendStore{
		trend: testTrend(),
		evidence: []*models.TrendEvidence{
			row("e1", "ev-1", "troop_movement", 0.1512, now.Add(-2*time.Hour)),
		},
	}
	outcomes := &fakeOutcomeStore{outcomes: []*models.TrendOutcome{{
		TrendID:              "trend-a",
		PredictedProbability: 0.12,
		PredictionDate:       now.Add(-time.Hour),
		Outcome:              models.OutcomeOccurred,
	}}}
	engine := NewEngine(store, outcomes)

	challenger := &models.TrendDefinition{
		Indicators: map[string]models.Indicator{
			"troop_movement": {Weight: 0.60, Direction: models.DirectionEscalatory},
		},
	}

	assessment, err := engine.EvaluateChallenger(context.Background(),
		"trend-a", challenger, now.Add(-24*time.Hour), 1.5)
	require.NoError(t, err)
	assert.False(t, assessment.Promote)
	assert.Contains(t, assessment.Reason, "cost regression")
}

func TestEvaluateChallengerNoOutcomes(t *testing.T) {
	engine := NewEngine(&fakeTrendStore{trend: testTrend()}, &fakeOutcomeStore{})

	assessment, err := engine.EvaluateChallenger(context.Background(),
		"trend-a", testTrend().Definition, t0, 0)
	require.NoError(t, err)
	assert.False(t, assessment.Promote)
	assert.Zero(t, assessment.SampleCount)
}
