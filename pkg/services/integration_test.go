package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/dedup"
	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/services"
	"github.com/osintlab/trendwatch/pkg/trend"
	"github.com/osintlab/trendwatch/test/util"
)

const embedModel = "text-embedding-3-small"

// embeddingVec pads the leading values out to the schema's vector width.
func embeddingVec(vals ...float32) models.Vector {
	v := make(models.Vector, 1536)
	copy(v, vals)
	return v
}

func lineage() models.EmbeddingLineage {
	return models.EmbeddingLineage{Model: embedModel, GeneratedAt: time.Now().UTC()}
}

func seedSource(t *testing.T, pool *pgxpool.Pool, id string) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO sources (id, name, type, credibility_score, source_tier, reporting_type)
		VALUES ($1, $1, 'rss', 0.9, 'wire', 'firsthand')`, id)
	require.NoError(t, err)
}

func seedItem(t *testing.T, items *services.ItemService, sourceID, externalID string) *models.RawItem {
	t.Helper()
	item := &models.RawItem{
		SourceID:    sourceID,
		ExternalID:  externalID,
		Title:       "border crossing closed",
		Text:        "text for " + externalID,
		ContentHash: models.ContentHash("text for " + externalID),
		FetchedAt:   time.Now().UTC(),
	}
	require.NoError(t, items.Create(context.Background(), item, ""))
	return item
}

func seedEvent(t *testing.T, events *services.EventService, seedItemID string) *models.Event {
	t.Helper()
	now := time.Now().UTC()
	event := &models.Event{
		CanonicalSummary: "border crossing closed",
		PrimaryItemID:    seedItemID,
		FirstSeenAt:      now,
		LastMentionAt:    now,
	}
	require.NoError(t, events.Create(context.Background(), event, seedItemID))
	return event
}

func syncTestTrend(t *testing.T, trends *services.TrendService) *models.TrendDefinition {
	t.Helper()
	def := &models.TrendDefinition{
		ID:                  "border-escalation",
		Name:                "Border escalation",
		BaselineProbability: 0.10,
		DecayHalfLifeDays:   30,
		Indicators: map[string]models.Indicator{
			"troop_movement": {Weight: 0.30, Direction: models.DirectionEscalatory},
			"sanctions":      {Weight: 0.20, Direction: models.DirectionDeEscalatory},
		},
	}
	registry := config.NewTrendRegistry([]*models.TrendDefinition{def})
	require.NoError(t, trends.SyncDefinitions(context.Background(), registry, "test"))
	return def
}

func evidenceFor(trendID, eventID, signalType string, delta float64) *models.TrendEvidence {
	return &models.TrendEvidence{
		TrendID:             trendID,
		EventID:             eventID,
		SignalType:          signalType,
		BaseWeight:          0.30,
		Credibility:         0.90,
		CorroborationFactor: 0.50,
		Novelty:             1.0,
		TemporalDecayFactor: 1.0,
		Severity:            0.70,
		Confidence:          0.80,
		DirectionMultiplier: 1,
		DeltaLogOdds:        delta,
	}
}

func TestApplyEvidenceIsIdempotent(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()

	trends := services.NewTrendService(pool)
	items := services.NewItemService(pool)
	events := services.NewEventService(pool)

	syncTestTrend(t, trends)
	seedSource(t, pool, "src-a")
	item := seedItem(t, items, "src-a", "a-1")
	event := seedEvent(t, events, item.ID)

	before, err := trends.Get(ctx, "border-escalation")
	require.NoError(t, err)

	ev := evidenceFor("border-escalation", event.ID, "troop_movement", 0.25)
	applied, err := trends.ApplyEvidence(ctx, ev)
	require.NoError(t, err)
	assert.True(t, applied)

	// Replaying the same (trend, event, signal) moves nothing.
	replay := evidenceFor("border-escalation", event.ID, "troop_movement", 0.25)
	applied, err = trends.ApplyEvidence(ctx, replay)
	require.NoError(t, err)
	assert.False(t, applied)

	after, err := trends.Get(ctx, "border-escalation")
	require.NoError(t, err)
	assert.InDelta(t, before.CurrentLogOdds+0.25, after.CurrentLogOdds, 1e-9)
}

func TestInvalidateEventEvidenceReversesDeltas(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()

	trends := services.NewTrendService(pool)
	items := services.NewItemService(pool)
	events := services.NewEventService(pool)
	feedback := services.NewFeedbackService(pool, events, items, trends)

	syncTestTrend(t, trends)
	seedSource(t, pool, "src-a")
	item := seedItem(t, items, "src-a", "a-1")
	event := seedEvent(t, events, item.ID)

	baseline := trend.ProbToLogOdds(0.10)
	_, err := trends.ApplyEvidence(ctx, evidenceFor("border-escalation", event.ID, "troop_movement", 0.25))
	require.NoError(t, err)
	_, err = trends.ApplyEvidence(ctx, evidenceFor("border-escalation", event.ID, "sanctions", -0.10))
	require.NoError(t, err)

	eventID := event.ID
	err = feedback.Apply(ctx, &models.HumanFeedback{
		Action:  models.FeedbackInvalidate,
		EventID: &eventID,
		Actor:   "analyst",
	})
	require.NoError(t, err)

	// Both deltas reversed: back to the baseline exactly.
	after, err := trends.Get(ctx, "border-escalation")
	require.NoError(t, err)
	assert.InDelta(t, baseline, after.CurrentLogOdds, 1e-9)

	// Ledger rows flipped, never deleted.
	ledger, err := trends.EvidenceForEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	for _, row := range ledger {
		assert.True(t, row.Invalidated)
		assert.NotNil(t, row.InvalidatedAt)
	}

	// The event is suppressed and no longer accepts evidence influence.
	got, err := events.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.True(t, got.Suppressed)
}

func TestBudgetReserveDeniesPastCap(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()

	cfg := &config.BudgetConfig{
		Tier1: config.TierBudget{MaxDailyCalls: 5, MaxDailyTokens: 1 << 40, MaxDailyCostUSD: 1000},
	}
	usage := services.NewUsageService(pool, cfg)

	var granted, denied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := usage.Reserve(ctx, models.Tier1)
			switch {
			case err == nil:
				granted.Add(1)
			case errors.Is(err, services.ErrBudgetExceeded):
				denied.Add(1)
			default:
				t.Errorf("unexpected reserve error: %v", err)
			}
		}()
	}
	wg.Wait()

	// Exactly the cap is granted, no matter how the goroutines interleave.
	assert.Equal(t, int32(5), granted.Load())
	assert.Equal(t, int32(15), denied.Load())
}

func TestClaimReapCycle(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()

	items := services.NewItemService(pool)
	seedSource(t, pool, "src-a")
	created := seedItem(t, items, "src-a", "a-1")

	claimed, err := items.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, created.ID, claimed.ID)
	assert.Equal(t, models.StatusProcessing, claimed.ProcessingStatus)

	// Nothing else is pending.
	_, err = items.Claim(ctx, 10)
	assert.ErrorIs(t, err, services.ErrNoItemsAvailable)

	// A zero timeout makes the claim immediately stale.
	reaped, err := items.ReapStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	reclaimed, err := items.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, created.ID, reclaimed.ID)

	require.NoError(t, items.Finish(ctx, created.ID, models.StatusClassified, ""))
	counts, err := items.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.StatusClassified])
	assert.Zero(t, counts[models.StatusProcessing])
}

func TestClaimRespectsCapacity(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()

	items := services.NewItemService(pool)
	seedSource(t, pool, "src-a")
	seedItem(t, items, "src-a", "a-1")
	seedItem(t, items, "src-a", "a-2")

	_, err := items.Claim(ctx, 1)
	require.NoError(t, err)

	_, err = items.Claim(ctx, 1)
	assert.ErrorIs(t, err, services.ErrAtCapacity)
}

func TestNearestItemByEmbeddingExcludesSelf(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()

	items := services.NewItemService(pool)
	seedSource(t, pool, "src-a")
	first := seedItem(t, items, "src-a", "a-1")
	second := seedItem(t, items, "src-a", "a-2")

	base := embeddingVec(1)
	near := embeddingVec(1, 0.01)
	require.NoError(t, items.SetEmbedding(ctx, first.ID, base, lineage()))
	require.NoError(t, items.SetEmbedding(ctx, second.ID, near, lineage()))

	since := time.Now().UTC().AddDate(0, 0, -1)

	// With no exclusion the second item is its own best match at 1.0.
	match, err := items.NearestItemByEmbedding(ctx, near, embedModel, since, "")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, second.ID, match.ItemID)

	// Excluding its own row surfaces the true near-duplicate.
	match, err = items.NearestItemByEmbedding(ctx, near, embedModel, since, second.ID)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, first.ID, match.ItemID)
	assert.Greater(t, match.Similarity, 0.92)
}

func TestEmbeddingDedupMarksSecondItemNoise(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()

	items := services.NewItemService(pool)
	d := dedup.New(config.DefaultDedupConfig(), items)
	seedSource(t, pool, "src-a")
	first := seedItem(t, items, "src-a", "a-1")
	second := seedItem(t, items, "src-a", "a-2")

	require.NoError(t, items.SetEmbedding(ctx, first.ID, embeddingVec(1), lineage()))
	near := embeddingVec(1, 0.01)
	require.NoError(t, items.SetEmbedding(ctx, second.ID, near, lineage()))

	// The persisted second item dedups against the first, never against its
	// own row.
	verdict, err := d.Check(ctx, dedup.Candidate{
		ItemID:         second.ID,
		Embedding:      near,
		EmbeddingModel: embedModel,
	})
	require.NoError(t, err)
	require.True(t, verdict.Duplicate)
	assert.Equal(t, first.ID, verdict.MatchedItemID)

	require.NoError(t, items.Finish(ctx, second.ID, models.StatusNoise,
		"near-duplicate of "+verdict.MatchedItemID))
	counts, err := items.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.StatusNoise])
}

func TestNearestEventIncludesSuppressedWithinFirstSeenWindow(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()

	items := services.NewItemService(pool)
	events := services.NewEventService(pool)
	seedSource(t, pool, "src-a")
	seed := seedItem(t, items, "src-a", "a-1")

	base := embeddingVec(1)
	now := time.Now().UTC()
	ln := lineage()
	event := &models.Event{
		CanonicalSummary: "border crossing closed",
		PrimaryItemID:    seed.ID,
		Embedding:        base,
		EmbeddingLineage: &ln,
		FirstSeenAt:      now,
		LastMentionAt:    now,
	}
	require.NoError(t, events.Create(ctx, event, seed.ID))
	require.NoError(t, events.Suppress(ctx, event.ID))

	// A suppressed event stays a candidate: matching it is how the pipeline
	// knows to discard a look-alike item instead of seeding a replacement.
	match, err := events.Nearest(ctx, base, embedModel, now.Add(-48*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, event.ID, match.Event.ID)
	assert.True(t, match.Event.Suppressed)

	// The window keys on first sighting, not latest mention: an old story
	// with a fresh mention is no longer a merge candidate.
	_, err = pool.Exec(ctx, `
		UPDATE events SET first_seen_at = now() - interval '10 days', last_mention_at = now()
		WHERE id = $1`, event.ID)
	require.NoError(t, err)

	match, err = events.Nearest(ctx, base, embedModel, now.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestReliabilityStatsAggregateContradictedEvents(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()

	items := services.NewItemService(pool)
	events := services.NewEventService(pool)
	seedSource(t, pool, "src-a")

	itemA := seedItem(t, items, "src-a", "a-1")
	itemB := seedItem(t, items, "src-a", "a-2")
	seedEvent(t, events, itemA.ID)
	bad := seedEvent(t, events, itemB.ID)
	require.NoError(t, events.Suppress(ctx, bad.ID))

	stats, err := events.SourceReliabilityStats(ctx, 1)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "src-a", stats[0].SourceID)
	assert.Equal(t, 2, stats[0].EventCount)
	assert.Equal(t, 1, stats[0].ContradictedCount)
	assert.InDelta(t, 0.5, stats[0].ContradictedRate, 1e-9)

	// Below the sample gate the source is omitted entirely.
	stats, err = events.SourceReliabilityStats(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, stats)

	tiers, err := events.TierReliabilityStats(ctx, 1)
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	assert.Equal(t, "wire", tiers[0].Tier)
	assert.Equal(t, 2, tiers[0].EventCount)
	assert.Equal(t, 1, tiers[0].ContradictedCount)
}

func TestEventLinkRaceFollowsWinner(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()

	items := services.NewItemService(pool)
	events := services.NewEventService(pool)
	seedSource(t, pool, "src-a")
	seedSource(t, pool, "src-b")

	seedA := seedItem(t, items, "src-a", "a-1")
	seedB := seedItem(t, items, "src-b", "b-1")
	eventA := seedEvent(t, events, seedA.ID)
	eventB := seedEvent(t, events, seedB.ID)

	// Linking seedB to eventA loses to its existing membership in eventB.
	winner, err := events.LinkItem(ctx, eventA.ID, seedB.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, eventB.ID, winner)

	// eventA's stats are untouched by the lost race.
	got, err := events.Get(ctx, eventA.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SourceCount)
}
