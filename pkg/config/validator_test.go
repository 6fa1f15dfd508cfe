package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osintlab/trendwatch/pkg/models"
)

func validTestConfig() *Config {
	trends := NewTrendRegistry([]*models.TrendDefinition{{
		ID:                  "t1",
		Name:                "T1",
		BaselineProbability: 0.1,
		DecayHalfLifeDays:   14,
		Indicators: map[string]models.Indicator{
			"sig": {Weight: 0.05, Direction: models.DirectionEscalatory},
		},
	}})
	sources := NewSourceRegistry([]*SourceDefinition{{
		ID:               "s1",
		Type:             models.SourceTypeRSS,
		CredibilityScore: 0.9,
		Tier:             models.TierWire,
		ReportingType:    models.ReportingFirsthand,
	}})
	providers := NewProviderRegistry(map[string]*ProviderConfig{
		"p": {Type: "openai", Model: "m", APIKeyEnv: "K"},
	}, RoutingConfig{
		Tier1: TierRouting{Primary: "p"},
		Tier2: TierRouting{Primary: "p"},
	})

	return &Config{
		Environment:      EnvDevelopment,
		Pipeline:         DefaultPipelineConfig(),
		Scheduler:        DefaultSchedulerConfig(),
		Dedup:            DefaultDedupConfig(),
		Embedding:        DefaultEmbeddingConfig(),
		Cluster:          DefaultClusterConfig(),
		Budget:           DefaultBudgetConfig(),
		Novelty:          DefaultNoveltyConfig(),
		Calibration:      DefaultCalibrationConfig(),
		Retention:        DefaultRetentionConfig(),
		API:              DefaultAPIConfig(),
		TrendRegistry:    trends,
		SourceRegistry:   sources,
		ProviderRegistry: providers,
		Pricing:          PricingMap{"p:m": {InputPerMTok: 1, OutputPerMTok: 1}},
	}
}

func TestValidatorAcceptsValidConfig(t *testing.T) {
	require.NoError(t, NewValidator(validTestConfig()).ValidateAll())
}

func TestValidatorRejectsBadBaseline(t *testing.T) {
	cfg := validTestConfig()
	cfg.TrendRegistry = NewTrendRegistry([]*models.TrendDefinition{{
		ID:                  "t1",
		BaselineProbability: 1.2,
		DecayHalfLifeDays:   14,
		Indicators:          map[string]models.Indicator{"s": {Weight: 1, Direction: models.DirectionEscalatory}},
	}})

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baseline_probability")
}

func TestValidatorRejectsBadIndicatorDirection(t *testing.T) {
	cfg := validTestConfig()
	cfg.TrendRegistry = NewTrendRegistry([]*models.TrendDefinition{{
		ID:                  "t1",
		BaselineProbability: 0.1,
		DecayHalfLifeDays:   14,
		Indicators:          map[string]models.Indicator{"s": {Weight: 1, Direction: "sideways"}},
	}})

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "direction")
}

func TestValidatorRejectsBadSourceTier(t *testing.T) {
	cfg := validTestConfig()
	cfg.SourceRegistry = NewSourceRegistry([]*SourceDefinition{{
		ID:               "s1",
		Type:             models.SourceTypeRSS,
		CredibilityScore: 0.9,
		Tier:             "tabloid",
		ReportingType:    models.ReportingFirsthand,
	}})

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source_tier")
}

func TestValidatorRejectsUnroutedProvider(t *testing.T) {
	cfg := validTestConfig()
	cfg.ProviderRegistry = NewProviderRegistry(map[string]*ProviderConfig{
		"p": {Type: "openai", Model: "m", APIKeyEnv: "K"},
	}, RoutingConfig{
		Tier1: TierRouting{Primary: "ghost"},
		Tier2: TierRouting{Primary: "p"},
	})

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestValidatorRejectsMissingPricing(t *testing.T) {
	cfg := validTestConfig()
	cfg.Pricing = PricingMap{}

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pricing")
}

func TestValidatorProductionRequiresSecrets(t *testing.T) {
	cfg := validTestConfig()
	cfg.Environment = EnvProduction

	t.Setenv(cfg.API.AuthTokenEnv, "")
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth token")

	t.Setenv(cfg.API.AuthTokenEnv, "0123456789abcdef-long-token")
	t.Setenv("DB_PASSWORD", "pw")
	require.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	env, err := LoadEnvironment()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, env)

	t.Setenv("ENVIRONMENT", "staging")
	env, err = LoadEnvironment()
	require.NoError(t, err)
	assert.Equal(t, EnvStaging, env)
	assert.True(t, env.ProductionLike())

	t.Setenv("ENVIRONMENT", "chaos")
	_, err = LoadEnvironment()
	require.Error(t, err)
}
