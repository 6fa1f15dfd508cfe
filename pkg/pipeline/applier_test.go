package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/llm"
	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/trend"
)

type fakeTrendStore struct {
	trend      *models.Trend
	priorCount int
	priorLast  *time.Time
	applied    []*models.TrendEvidence
	duplicate  bool
}

func (f *fakeTrendStore) Get(_ context.Context, _ string) (*models.Trend, error) {
	return f.trend, nil
}

func (f *fakeTrendStore) PriorEvidence(_ context.Context, _, _ string) (int, *time.Time, error) {
	return f.priorCount, f.priorLast, nil
}

func (f *fakeTrendStore) ApplyEvidence(_ context.Context, ev *models.TrendEvidence) (bool, error) {
	if f.duplicate {
		return false, nil
	}
	f.applied = append(f.applied, ev)
	return true, nil
}

type fakeGapRecorder struct {
	gaps []*models.TaxonomyGap
}

func (f *fakeGapRecorder) Record(_ context.Context, gap *models.TaxonomyGap) error {
	f.gaps = append(f.gaps, gap)
	return nil
}

func testDefinition() *models.TrendDefinition {
	return &models.TrendDefinition{
		ID:                  "eu-russia",
		Name:                "EU-Russia escalation",
		BaselineProbability: 0.08,
		DecayHalfLifeDays:   30,
		Indicators: map[string]models.Indicator{
			"troop_movement": {Weight: 0.30, Direction: models.DirectionEscalatory},
			"diplomacy":      {Weight: 0.20, Direction: models.DirectionDeEscalatory},
		},
	}
}

func newTestApplier(store *fakeTrendStore, gaps *fakeGapRecorder) *Applier {
	registry := config.NewTrendRegistry([]*models.TrendDefinition{testDefinition()})
	return NewApplier(registry, trend.DefaultNoveltyConfig(), store, gaps)
}

func testEvent() *models.Event {
	return &models.Event{
		ID:                "ev-1",
		UniqueSourceCount: 2,
		FirstSeenAt:       time.Now().Add(-2 * time.Hour),
	}
}

func testSource() *models.Source {
	return &models.Source{
		ID:               "reuters-world",
		CredibilityScore: 0.9,
		Tier:             models.TierWire,
		ReportingType:    models.ReportingFirsthand,
	}
}

func TestApplyValidImpact(t *testing.T) {
	def := testDefinition()
	store := &fakeTrendStore{trend: &models.Trend{
		ID: "eu-russia", Definition: def, DecayHalfLifeDays: 30,
	}}
	gaps := &fakeGapRecorder{}
	a := newTestApplier(store, gaps)

	result, err := a.Apply(context.Background(), testEvent(), testSource(), []llm.Impact{{
		TrendID:    "eu-russia",
		SignalType: "troop_movement",
		Severity:   0.8,
		Confidence: 0.7,
		Reasoning:  "armor photographed at border",
	}}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Applied)
	assert.Zero(t, result.Gaps)
	require.Len(t, store.applied, 1)

	ev := store.applied[0]
	assert.Equal(t, 0.30, ev.BaseWeight)
	assert.Equal(t, 1.0, ev.DirectionMultiplier)
	assert.Positive(t, ev.DeltaLogOdds)
	assert.LessOrEqual(t, ev.DeltaLogOdds, trend.MaxDeltaPerEvent)
	// First observation: full novelty.
	assert.Equal(t, 1.0, ev.Novelty)
	assert.Equal(t, "armor photographed at border", ev.Reasoning)
	assert.NotEmpty(t, ev.TrendDefinitionHash)
}

func TestApplyDeEscalatorySignalMovesDown(t *testing.T) {
	store := &fakeTrendStore{trend: &models.Trend{
		ID: "eu-russia", Definition: testDefinition(), DecayHalfLifeDays: 30,
	}}
	a := newTestApplier(store, &fakeGapRecorder{})

	_, err := a.Apply(context.Background(), testEvent(), testSource(), []llm.Impact{{
		TrendID:    "eu-russia",
		SignalType: "diplomacy",
		Severity:   0.6,
		Confidence: 0.8,
	}}, time.Now())
	require.NoError(t, err)

	require.Len(t, store.applied, 1)
	assert.Negative(t, store.applied[0].DeltaLogOdds)
	assert.Equal(t, -1.0, store.applied[0].DirectionMultiplier)
}

func TestApplyUnknownTrendBecomesGap(t *testing.T) {
	store := &fakeTrendStore{}
	gaps := &fakeGapRecorder{}
	a := newTestApplier(store, gaps)

	result, err := a.Apply(context.Background(), testEvent(), testSource(), []llm.Impact{{
		TrendID:    "made-up-trend",
		SignalType: "troop_movement",
		Severity:   0.5,
		Confidence: 0.5,
	}}, time.Now())
	require.NoError(t, err)

	assert.Zero(t, result.Applied)
	assert.Equal(t, 1, result.Gaps)
	require.Len(t, gaps.gaps, 1)
	assert.Equal(t, models.GapUnknownTrendID, gaps.gaps[0].Reason)
	assert.Empty(t, store.applied)
}

func TestApplyUnknownSignalBecomesGap(t *testing.T) {
	store := &fakeTrendStore{}
	gaps := &fakeGapRecorder{}
	a := newTestApplier(store, gaps)

	result, err := a.Apply(context.Background(), testEvent(), testSource(), []llm.Impact{{
		TrendID:    "eu-russia",
		SignalType: "made_up_signal",
		Severity:   0.5,
		Confidence: 0.5,
	}}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Gaps)
	assert.Equal(t, models.GapUnknownSignalType, gaps.gaps[0].Reason)
}

func TestApplyGapDoesNotBlockOtherImpacts(t *testing.T) {
	store := &fakeTrendStore{trend: &models.Trend{
		ID: "eu-russia", Definition: testDefinition(), DecayHalfLifeDays: 30,
	}}
	gaps := &fakeGapRecorder{}
	a := newTestApplier(store, gaps)

	result, err := a.Apply(context.Background(), testEvent(), testSource(), []llm.Impact{
		{TrendID: "nope", SignalType: "x", Severity: 0.5, Confidence: 0.5},
		{TrendID: "eu-russia", SignalType: "troop_movement", Severity: 0.8, Confidence: 0.7},
	}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Gaps)
}

func TestApplyIdempotentReplayCountsSkipped(t *testing.T) {
	store := &fakeTrendStore{
		trend: &models.Trend{
			ID: "eu-russia", Definition: testDefinition(), DecayHalfLifeDays: 30,
		},
		duplicate: true,
	}
	a := newTestApplier(store, &fakeGapRecorder{})

	result, err := a.Apply(context.Background(), testEvent(), testSource(), []llm.Impact{{
		TrendID:    "eu-russia",
		SignalType: "troop_movement",
		Severity:   0.8,
		Confidence: 0.7,
	}}, time.Now())
	require.NoError(t, err)

	assert.Zero(t, result.Applied)
	assert.Equal(t, 1, result.Skipped)
}

func TestApplyRepeatSignalHasLowerNovelty(t *testing.T) {
	lastSeen := time.Now().Add(-1 * time.Hour)
	store := &fakeTrendStore{
		trend: &models.Trend{
			ID: "eu-russia", Definition: testDefinition(), DecayHalfLifeDays: 30,
		},
		priorCount: 3,
		priorLast:  &lastSeen,
	}
	a := newTestApplier(store, &fakeGapRecorder{})

	_, err := a.Apply(context.Background(), testEvent(), testSource(), []llm.Impact{{
		TrendID:    "eu-russia",
		SignalType: "troop_movement",
		Severity:   0.8,
		Confidence: 0.7,
	}}, time.Now())
	require.NoError(t, err)

	require.Len(t, store.applied, 1)
	assert.Less(t, store.applied[0].Novelty, 1.0)
	assert.GreaterOrEqual(t, store.applied[0].Novelty, trend.NoveltyFloor)
}

func TestApplyContradictedEventWeakensCorroboration(t *testing.T) {
	store := &fakeTrendStore{trend: &models.Trend{
		ID: "eu-russia", Definition: testDefinition(), DecayHalfLifeDays: 30,
	}}
	a := newTestApplier(store, &fakeGapRecorder{})

	clean := testEvent()
	contradicted := testEvent()
	contradicted.Contradicted = true

	impact := llm.Impact{
		TrendID: "eu-russia", SignalType: "troop_movement",
		Severity: 0.8, Confidence: 0.7,
	}

	_, err := a.Apply(context.Background(), clean, testSource(), []llm.Impact{impact}, time.Now())
	require.NoError(t, err)
	cleanDelta := store.applied[0].DeltaLogOdds

	store.applied = nil
	_, err = a.Apply(context.Background(), contradicted, testSource(), []llm.Impact{impact}, time.Now())
	require.NoError(t, err)
	contradictedDelta := store.applied[0].DeltaLogOdds

	assert.Less(t, contradictedDelta, cleanDelta)
}
