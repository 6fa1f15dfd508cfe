package embedding

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/services"
)

type fakeProvider struct {
	model  string
	calls  int
	vector models.Vector
}

func (f *fakeProvider) Embed(_ context.Context, input string) (models.Vector, Usage, error) {
	f.calls++
	tokens := EstimateTokens(input)
	return f.vector, Usage{PromptTokens: tokens, TotalTokens: tokens}, nil
}

func (f *fakeProvider) Model() string { return f.model }

type fakeBudget struct {
	reserves int
	denied   bool
	tokens   int64
}

func (f *fakeBudget) Reserve(_ context.Context, _ models.Tier) error {
	f.reserves++
	if f.denied {
		return services.ErrBudgetExceeded
	}
	return nil
}

func (f *fakeBudget) Record(_ context.Context, _ models.Tier, in, _ int64, _ float64) error {
	f.tokens += in
	return nil
}

func newTestEmbedder(provider *fakeProvider, budget *fakeBudget) *Embedder {
	cfg := config.DefaultEmbeddingConfig()
	cfg.Dimensions = 3
	cfg.MaxInputTokens = 100
	return New(cfg, provider, budget, 0.02)
}

func TestEstimateTokensDeterministic(t *testing.T) {
	text := strings.Repeat("geopolitics ", 50)
	first := EstimateTokens(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, EstimateTokens(text))
	}
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
}

func TestEmbedCachesByContentAndModel(t *testing.T) {
	provider := &fakeProvider{model: "text-embedding-3-small", vector: models.Vector{1, 0, 0}}
	budget := &fakeBudget{}
	e := newTestEmbedder(provider, budget)

	first, err := e.Embed(context.Background(), "border incident reported")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := e.Embed(context.Background(), "border incident reported")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Vector, second.Vector)

	// One provider call, one budget reservation.
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, 1, budget.reserves)
}

func TestEmbedBudgetDenialSkipsProvider(t *testing.T) {
	provider := &fakeProvider{model: "m", vector: models.Vector{1, 0, 0}}
	budget := &fakeBudget{denied: true}
	e := newTestEmbedder(provider, budget)

	_, err := e.Embed(context.Background(), "some text")
	require.ErrorIs(t, err, services.ErrBudgetExceeded)
	assert.Zero(t, provider.calls)
}

func TestEmbedCacheHitNeedsNoBudget(t *testing.T) {
	provider := &fakeProvider{model: "m", vector: models.Vector{1, 0, 0}}
	budget := &fakeBudget{}
	e := newTestEmbedder(provider, budget)

	_, err := e.Embed(context.Background(), "cached text")
	require.NoError(t, err)

	// Deny the budget: the cached entry must still be served.
	budget.denied = true
	res, err := e.Embed(context.Background(), "cached text")
	require.NoError(t, err)
	assert.True(t, res.Cached)
}

func TestEmbedTruncatesOverLimitInput(t *testing.T) {
	provider := &fakeProvider{model: "m", vector: models.Vector{1, 0, 0}}
	budget := &fakeBudget{}
	e := newTestEmbedder(provider, budget)

	long := strings.Repeat("a", 1000) // ~250 tokens against a 100-token limit
	res, err := e.Embed(context.Background(), long)
	require.NoError(t, err)

	assert.True(t, res.Lineage.Truncated)
	assert.Equal(t, 250, res.Lineage.InputTokens)
	assert.LessOrEqual(t, res.Lineage.RetainedTokens, 100)
	assert.Equal(t, 1, provider.calls)
}

func TestEmbedChunksAndMeanPools(t *testing.T) {
	provider := &fakeProvider{model: "m", vector: models.Vector{3, 6, 9}}
	budget := &fakeBudget{}

	cfg := config.DefaultEmbeddingConfig()
	cfg.Dimensions = 3
	cfg.MaxInputTokens = 100
	cfg.OverLimitPolicy = config.OverLimitChunk
	e := New(cfg, provider, budget, 0.02)

	long := strings.Repeat("b", 1000)
	res, err := e.Embed(context.Background(), long)
	require.NoError(t, err)

	// All chunks return the same vector, so the mean equals it.
	assert.InDelta(t, 3, float64(res.Vector[0]), 1e-6)
	assert.InDelta(t, 6, float64(res.Vector[1]), 1e-6)
	assert.True(t, res.Lineage.Truncated)
	assert.Equal(t, 3, provider.calls) // 250 tokens in 100-token chunks
}

func TestLRUCacheEvictsOldest(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", cacheEntry{Vector: models.Vector{1}})
	c.put("b", cacheEntry{Vector: models.Vector{2}})
	c.put("c", cacheEntry{Vector: models.Vector{3}})

	_, ok := c.get("a")
	assert.False(t, ok)
	_, ok = c.get("b")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}
