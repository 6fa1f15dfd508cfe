package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/osintlab/trendwatch/pkg/models"
)

// Validator performs cross-cutting validation over loaded configuration.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for a loaded config.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every validation pass and returns the first failure.
func (v *Validator) ValidateAll() error {
	passes := []func() error{
		v.validateTrends,
		v.validateSources,
		v.validateProviders,
		v.validatePricingCoverage,
		v.validateSystem,
		v.validateEnvironmentGates,
	}
	for _, pass := range passes {
		if err := pass(); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateTrends() error {
	for _, t := range v.cfg.TrendRegistry.All() {
		if t.ID == "" {
			return &ValidationError{Component: "trend", ID: t.Name, Field: "id", Err: errors.New("required")}
		}
		if t.BaselineProbability <= 0 || t.BaselineProbability >= 1 {
			return &ValidationError{Component: "trend", ID: t.ID, Field: "baseline_probability",
				Err: fmt.Errorf("must be in (0,1), got %v", t.BaselineProbability)}
		}
		if t.DecayHalfLifeDays <= 0 {
			return &ValidationError{Component: "trend", ID: t.ID, Field: "decay_half_life_days",
				Err: fmt.Errorf("must be positive, got %v", t.DecayHalfLifeDays)}
		}
		if len(t.Indicators) == 0 {
			return &ValidationError{Component: "trend", ID: t.ID, Field: "indicators", Err: errors.New("at least one required")}
		}
		for signal, ind := range t.Indicators {
			if ind.Weight <= 0 {
				return &ValidationError{Component: "trend", ID: t.ID, Field: "indicators." + signal + ".weight",
					Err: fmt.Errorf("must be positive, got %v", ind.Weight)}
			}
			if ind.Direction != models.DirectionEscalatory && ind.Direction != models.DirectionDeEscalatory {
				return &ValidationError{Component: "trend", ID: t.ID, Field: "indicators." + signal + ".direction",
					Err: fmt.Errorf("want escalatory|de_escalatory, got %q", ind.Direction)}
			}
			if ind.HalfLifeDays < 0 {
				return &ValidationError{Component: "trend", ID: t.ID, Field: "indicators." + signal + ".half_life",
					Err: fmt.Errorf("must be non-negative, got %v", ind.HalfLifeDays)}
			}
		}
	}
	return nil
}

func (v *Validator) validateSources() error {
	validTiers := map[models.SourceTier]bool{
		models.TierPrimary: true, models.TierWire: true, models.TierMajor: true,
		models.TierRegional: true, models.TierAggregator: true,
	}
	validReporting := map[models.ReportingType]bool{
		models.ReportingFirsthand: true, models.ReportingSecondary: true, models.ReportingAggregator: true,
	}
	validTypes := map[models.SourceType]bool{
		models.SourceTypeRSS: true, models.SourceTypeGDELT: true,
		models.SourceTypeTelegram: true, models.SourceTypeAPI: true,
	}

	for _, s := range v.cfg.SourceRegistry.All() {
		if s.ID == "" {
			return &ValidationError{Component: "source", ID: s.Name, Field: "id", Err: errors.New("required")}
		}
		if !validTypes[s.Type] {
			return &ValidationError{Component: "source", ID: s.ID, Field: "type",
				Err: fmt.Errorf("want rss|gdelt|telegram|api, got %q", s.Type)}
		}
		if s.CredibilityScore < 0 || s.CredibilityScore > 1 {
			return &ValidationError{Component: "source", ID: s.ID, Field: "credibility_score",
				Err: fmt.Errorf("must be in [0,1], got %v", s.CredibilityScore)}
		}
		if !validTiers[s.Tier] {
			return &ValidationError{Component: "source", ID: s.ID, Field: "source_tier",
				Err: fmt.Errorf("unknown tier %q", s.Tier)}
		}
		if !validReporting[s.ReportingType] {
			return &ValidationError{Component: "source", ID: s.ID, Field: "reporting_type",
				Err: fmt.Errorf("unknown reporting type %q", s.ReportingType)}
		}
	}
	return nil
}

func (v *Validator) validateProviders() error {
	routing := v.cfg.ProviderRegistry.Routing()
	refs := []struct {
		field string
		name  string
	}{
		{"routing.tier1.primary", routing.Tier1.Primary},
		{"routing.tier1.failover", routing.Tier1.Failover},
		{"routing.tier2.primary", routing.Tier2.Primary},
		{"routing.tier2.failover", routing.Tier2.Failover},
	}
	for _, ref := range refs {
		if ref.name == "" {
			if ref.field == "routing.tier1.primary" || ref.field == "routing.tier2.primary" {
				return &ValidationError{Component: "provider", ID: ref.field, Err: errors.New("primary provider required")}
			}
			continue
		}
		if _, err := v.cfg.ProviderRegistry.Get(ref.name); err != nil {
			return &ValidationError{Component: "provider", ID: ref.field, Err: err}
		}
	}

	for _, name := range v.cfg.ProviderRegistry.Names() {
		p, _ := v.cfg.ProviderRegistry.Get(name)
		if p.Model == "" {
			return &ValidationError{Component: "provider", ID: name, Field: "model", Err: errors.New("required")}
		}
		if p.APIKeyEnv == "" {
			return &ValidationError{Component: "provider", ID: name, Field: "api_key_env", Err: errors.New("required")}
		}
	}
	return nil
}

// validatePricingCoverage fails closed: every routed provider:model must be
// priced before any call is allowed.
func (v *Validator) validatePricingCoverage() error {
	routing := v.cfg.ProviderRegistry.Routing()
	for _, name := range []string{routing.Tier1.Primary, routing.Tier1.Failover, routing.Tier2.Primary, routing.Tier2.Failover} {
		if name == "" {
			continue
		}
		p, err := v.cfg.ProviderRegistry.Get(name)
		if err != nil {
			return err
		}
		if !v.cfg.Pricing.Covers(p.PricingKey()) {
			return &ValidationError{Component: "pricing", ID: p.PricingKey(),
				Err: errors.New("no pricing entry for routed model")}
		}
	}
	return nil
}

func (v *Validator) validateSystem() error {
	if v.cfg.Pipeline.WorkerCount <= 0 {
		return &ValidationError{Component: "pipeline", ID: "worker_count", Err: errors.New("must be positive")}
	}
	if v.cfg.Dedup.SimilarityThreshold <= 0 || v.cfg.Dedup.SimilarityThreshold > 1 {
		return &ValidationError{Component: "dedup", ID: "similarity_threshold", Err: errors.New("must be in (0,1]")}
	}
	if v.cfg.Cluster.SimilarityThreshold <= 0 || v.cfg.Cluster.SimilarityThreshold > 1 {
		return &ValidationError{Component: "cluster", ID: "similarity_threshold", Err: errors.New("must be in (0,1]")}
	}
	if v.cfg.Cluster.Searcher != SearcherExact && v.cfg.Cluster.Searcher != SearcherIVFFlat {
		return &ValidationError{Component: "cluster", ID: "searcher",
			Err: fmt.Errorf("want exact|ivfflat, got %q", v.cfg.Cluster.Searcher)}
	}
	if p := v.cfg.Embedding.OverLimitPolicy; p != OverLimitTruncate && p != OverLimitChunk {
		return &ValidationError{Component: "embedding", ID: "over_limit_policy",
			Err: fmt.Errorf("want truncate|chunk, got %q", p)}
	}
	if v.cfg.Embedding.Dimensions <= 0 {
		return &ValidationError{Component: "embedding", ID: "dimensions", Err: errors.New("must be positive")}
	}
	if v.cfg.Novelty.RepeatPenalty <= 0 {
		return &ValidationError{Component: "novelty", ID: "repeat_penalty", Err: errors.New("must be positive")}
	}
	return nil
}

// validateEnvironmentGates enforces production hardening in staging/production.
func (v *Validator) validateEnvironmentGates() error {
	if !v.cfg.Environment.ProductionLike() {
		return nil
	}
	token, err := Secret(v.cfg.API.AuthTokenEnv)
	if err != nil {
		return err
	}
	if len(token) < 16 {
		return &ValidationError{Component: "api", ID: v.cfg.API.AuthTokenEnv,
			Err: fmt.Errorf("%s requires an auth token of at least 16 characters", v.cfg.Environment)}
	}
	if os.Getenv("DB_PASSWORD") == "" && os.Getenv("DB_PASSWORD_FILE") == "" {
		return &ValidationError{Component: "database", ID: "DB_PASSWORD",
			Err: fmt.Errorf("%s requires a database password", v.cfg.Environment)}
	}
	return nil
}
