package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTrendsYAML = `
trends:
  - id: eu-russia
    name: EU-Russia escalation
    description: Open conflict between an EU member and Russia
    baseline_probability: 0.08
    decay_half_life_days: 14
    indicators:
      military_movement:
        weight: 0.04
        direction: escalatory
        keywords: [troops, armor, deployment]
      ceasefire_talks:
        weight: 0.05
        direction: de_escalatory
        half_life: 7
`

const testSourcesYAML = `
sources:
  - id: reuters-world
    name: Reuters World
    type: rss
    url: https://example.com/world.rss
    credibility_score: 0.95
    source_tier: wire
    reporting_type: firsthand
  - id: aggregator-x
    name: Aggregator X
    type: api
    url: https://example.com/api
    credibility_score: 0.5
    source_tier: aggregator
    reporting_type: aggregator
    active: false
`

const testProvidersYAML = `
llm_providers:
  fast:
    type: openai
    base_url: https://api.example.com/v1
    model: small-model
    api_key_env: LLM_API_KEY
  deep:
    type: openai
    base_url: https://api.example.com/v1
    model: big-model
    api_key_env: LLM_API_KEY
routing:
  tier1:
    primary: fast
  tier2:
    primary: deep
    failover: fast
pricing:
  fast:small-model: {input_per_mtok: 0.15, output_per_mtok: 0.60}
  deep:big-model: {input_per_mtok: 2.50, output_per_mtok: 10.00}
`

const testSystemYAML = `
pipeline:
  worker_count: 2
dedup:
  recency_window_days: 3
budget:
  tier2:
    max_daily_calls: 10
`

func writeTestConfig(t *testing.T, system string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"trendwatch.yaml":    system,
		"trends.yaml":        testTrendsYAML,
		"sources.yaml":       testSourcesYAML,
		"llm-providers.yaml": testProvidersYAML,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestInitializeLoadsAndMergesDefaults(t *testing.T) {
	dir := writeTestConfig(t, testSystemYAML)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	// User overrides applied.
	assert.Equal(t, 2, cfg.Pipeline.WorkerCount)
	assert.Equal(t, 3, cfg.Dedup.RecencyWindowDays)
	assert.Equal(t, 10, cfg.Budget.Tier2.MaxDailyCalls)

	// Unset values keep built-in defaults.
	assert.Equal(t, 2*time.Second, cfg.Pipeline.PollInterval)
	assert.Equal(t, 0.92, cfg.Dedup.SimilarityThreshold)
	assert.Equal(t, 0.88, cfg.Cluster.SimilarityThreshold)
	assert.Equal(t, 2000, cfg.Budget.Tier1.MaxDailyCalls)

	// Registries built.
	assert.Equal(t, 1, cfg.TrendRegistry.Len())
	assert.Equal(t, 2, cfg.SourceRegistry.Len())
	assert.Equal(t, 2, cfg.ProviderRegistry.Len())
}

func TestInitializeTrendDefinition(t *testing.T) {
	dir := writeTestConfig(t, testSystemYAML)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	def, err := cfg.TrendRegistry.Get("eu-russia")
	require.NoError(t, err)
	assert.Equal(t, 0.08, def.BaselineProbability)
	assert.Equal(t, 14.0, def.DecayHalfLifeDays)

	ind, ok := def.Indicators["military_movement"]
	require.True(t, ok)
	assert.Equal(t, 0.04, ind.Weight)

	assert.True(t, cfg.TrendRegistry.HasSignal("eu-russia", "ceasefire_talks"))
	assert.False(t, cfg.TrendRegistry.HasSignal("eu-russia", "nope"))
	assert.False(t, cfg.TrendRegistry.HasSignal("unknown-trend", "military_movement"))
}

func TestInitializeSourceActivityDefault(t *testing.T) {
	dir := writeTestConfig(t, testSystemYAML)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	reuters, err := cfg.SourceRegistry.Get("reuters-world")
	require.NoError(t, err)
	assert.True(t, reuters.IsActive())

	agg, err := cfg.SourceRegistry.Get("aggregator-x")
	require.NoError(t, err)
	assert.False(t, agg.IsActive())
}

func TestInitializeMissingFileFails(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitializePricingCoverageFailsClosed(t *testing.T) {
	dir := writeTestConfig(t, testSystemYAML)

	// Drop pricing for the tier2 primary.
	providers := `
llm_providers:
  deep:
    type: openai
    base_url: https://api.example.com/v1
    model: big-model
    api_key_env: LLM_API_KEY
routing:
  tier1:
    primary: deep
  tier2:
    primary: deep
pricing: {}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "llm-providers.yaml"), []byte(providers), 0o644))

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pricing")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TW_TEST_VALUE", "hello")

	out := ExpandEnv([]byte("key: {{.TW_TEST_VALUE}}"))
	assert.Equal(t, "key: hello", string(out))

	// Literal dollar signs pass through untouched.
	out = ExpandEnv([]byte(`pattern: "^secret.*$"`))
	assert.Equal(t, `pattern: "^secret.*$"`, string(out))
}

func TestSecretFileVariant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("s3cret-value\n"), 0o600))

	t.Setenv("TW_SECRET_FILE", path)
	t.Setenv("TW_SECRET", "ignored")

	val, err := Secret("TW_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "s3cret-value", val)
}

func TestPricingMapCost(t *testing.T) {
	m := PricingMap{"p:m": {InputPerMTok: 2, OutputPerMTok: 10}}

	cost, ok := m.Cost("p:m", 1_000_000, 500_000)
	require.True(t, ok)
	assert.InDelta(t, 2+5, cost, 1e-9)

	_, ok = m.Cost("p:unpriced", 1, 1)
	assert.False(t, ok)
}
