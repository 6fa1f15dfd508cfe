// Package config loads and validates TrendWatch configuration: system YAML,
// trend definitions, source catalogs, LLM providers, and pricing.
package config

// Config is the umbrella configuration object returned by Initialize() and
// threaded through constructors. It is immutable after load.
type Config struct {
	configDir string

	Environment Environment

	Pipeline    *PipelineConfig
	Scheduler   *SchedulerConfig
	Dedup       *DedupConfig
	Embedding   *EmbeddingConfig
	Cluster     *ClusterConfig
	Budget      *BudgetConfig
	Novelty     *NoveltyConfig
	Calibration *CalibrationConfig
	Retention   *RetentionConfig
	API         *APIConfig

	TrendRegistry    *TrendRegistry
	SourceRegistry   *SourceRegistry
	ProviderRegistry *ProviderRegistry
	Pricing          PricingMap
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Stats contains statistics about loaded configuration.
type Stats struct {
	Trends    int
	Sources   int
	Providers int
	Prices    int
}

// Stats returns configuration statistics for logging.
func (c *Config) Stats() Stats {
	s := Stats{Prices: len(c.Pricing)}
	if c.TrendRegistry != nil {
		s.Trends = c.TrendRegistry.Len()
	}
	if c.SourceRegistry != nil {
		s.Sources = c.SourceRegistry.Len()
	}
	if c.ProviderRegistry != nil {
		s.Providers = c.ProviderRegistry.Len()
	}
	return s
}
