package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/osintlab/trendwatch/pkg/models"
)

// SystemYAMLConfig is the top-level trendwatch.yaml structure.
type SystemYAMLConfig struct {
	Pipeline    *PipelineConfig    `yaml:"pipeline"`
	Scheduler   *SchedulerConfig   `yaml:"scheduler"`
	Dedup       *DedupConfig       `yaml:"dedup"`
	Embedding   *EmbeddingConfig   `yaml:"embedding"`
	Cluster     *ClusterConfig     `yaml:"cluster"`
	Budget      *BudgetConfig      `yaml:"budget"`
	Novelty     *NoveltyConfig     `yaml:"novelty"`
	Calibration *CalibrationConfig `yaml:"calibration"`
	Retention   *RetentionConfig   `yaml:"retention"`
	API         *APIConfig         `yaml:"api"`
}

// TrendsYAMLConfig is the trends.yaml structure.
type TrendsYAMLConfig struct {
	Trends []*models.TrendDefinition `yaml:"trends"`
}

// SourcesYAMLConfig is the sources.yaml structure.
type SourcesYAMLConfig struct {
	Sources []*SourceDefinition `yaml:"sources"`
}

// ProvidersYAMLConfig is the llm-providers.yaml structure.
type ProvidersYAMLConfig struct {
	Providers map[string]*ProviderConfig `yaml:"llm_providers"`
	Routing   RoutingConfig              `yaml:"routing"`
	Pricing   PricingMap                 `yaml:"pricing"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Resolve ENVIRONMENT
//  2. Load YAML files from configDir ({{.VAR}} env expansion applied)
//  3. Merge user-provided system config over built-in defaults
//  4. Build trend/source/provider registries
//  5. Validate everything (fail fast)
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	env, err := LoadEnvironment()
	if err != nil {
		return nil, err
	}

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Environment = env

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized",
		"environment", env,
		"trends", stats.Trends,
		"sources", stats.Sources,
		"llm_providers", stats.Providers,
		"priced_models", stats.Prices)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	// 1. System config merged over built-in defaults.
	var sys SystemYAMLConfig
	if err := loader.loadYAML("trendwatch.yaml", &sys); err != nil {
		return nil, NewLoadError("trendwatch.yaml", err)
	}

	pipeline := DefaultPipelineConfig()
	scheduler := DefaultSchedulerConfig()
	dedup := DefaultDedupConfig()
	embedding := DefaultEmbeddingConfig()
	cluster := DefaultClusterConfig()
	budget := DefaultBudgetConfig()
	novelty := DefaultNoveltyConfig()
	calibration := DefaultCalibrationConfig()
	retention := DefaultRetentionConfig()
	api := DefaultAPIConfig()

	for _, m := range []struct {
		dst, src any
	}{
		{pipeline, sys.Pipeline},
		{scheduler, sys.Scheduler},
		{dedup, sys.Dedup},
		{embedding, sys.Embedding},
		{cluster, sys.Cluster},
		{budget, sys.Budget},
		{novelty, sys.Novelty},
		{calibration, sys.Calibration},
		{retention, sys.Retention},
		{api, sys.API},
	} {
		if isNil(m.src) {
			continue
		}
		if err := mergo.Merge(m.dst, m.src, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge system config: %w", err)
		}
	}

	// 2. Trend definitions.
	var trends TrendsYAMLConfig
	if err := loader.loadYAML("trends.yaml", &trends); err != nil {
		return nil, NewLoadError("trends.yaml", err)
	}

	// 3. Source catalog.
	var sources SourcesYAMLConfig
	if err := loader.loadYAML("sources.yaml", &sources); err != nil {
		return nil, NewLoadError("sources.yaml", err)
	}

	// 4. LLM providers, routing, pricing.
	var providers ProvidersYAMLConfig
	if err := loader.loadYAML("llm-providers.yaml", &providers); err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}
	if providers.Providers == nil {
		providers.Providers = make(map[string]*ProviderConfig)
	}
	if providers.Pricing == nil {
		providers.Pricing = make(PricingMap)
	}

	return &Config{
		configDir:        configDir,
		Pipeline:         pipeline,
		Scheduler:        scheduler,
		Dedup:            dedup,
		Embedding:        embedding,
		Cluster:          cluster,
		Budget:           budget,
		Novelty:          novelty,
		Calibration:      calibration,
		Retention:        retention,
		API:              api,
		TrendRegistry:    NewTrendRegistry(trends.Trends),
		SourceRegistry:   NewSourceRegistry(sources.Sources),
		ProviderRegistry: NewProviderRegistry(providers.Providers, providers.Routing),
		Pricing:          providers.Pricing,
	}, nil
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
