package config

import (
	"fmt"
	"time"
)

// ProviderConfig describes one LLM provider endpoint.
type ProviderConfig struct {
	// Name is the registry key, referenced by tier routing.
	Name string `yaml:"-"`

	// Type selects the wire dialect ("openai" covers OpenAI-compatible APIs).
	Type string `yaml:"type"`

	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// APIKeyEnv names the env var (or _FILE variant) holding the key.
	APIKeyEnv string `yaml:"api_key_env"`

	Temperature *float64      `yaml:"temperature,omitempty"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	MaxRetries  int           `yaml:"max_retries,omitempty"`
}

// PricingKey builds the operator pricing map key for this provider's model.
func (p *ProviderConfig) PricingKey() string {
	return fmt.Sprintf("%s:%s", p.Name, p.Model)
}

// TierRouting names the primary and failover provider for one tier.
type TierRouting struct {
	Primary  string `yaml:"primary"`
	Failover string `yaml:"failover,omitempty"`
}

// RoutingConfig maps tiers to providers.
type RoutingConfig struct {
	Tier1 TierRouting `yaml:"tier1"`
	Tier2 TierRouting `yaml:"tier2"`
}

// Pricing is USD per 1M tokens for one provider:model.
type Pricing struct {
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
}

// PricingMap is the operator-configured pricing table keyed by
// "provider:model". Calls without coverage fail closed.
type PricingMap map[string]Pricing

// Cost computes the USD cost for a token count pair.
func (m PricingMap) Cost(key string, inputTokens, outputTokens int64) (float64, bool) {
	p, ok := m[key]
	if !ok {
		return 0, false
	}
	return float64(inputTokens)/1e6*p.InputPerMTok +
		float64(outputTokens)/1e6*p.OutputPerMTok, true
}

// Covers reports whether the pricing map covers a provider:model key.
func (m PricingMap) Covers(key string) bool {
	_, ok := m[key]
	return ok
}

// ProviderRegistry is the loaded provider catalog plus tier routing.
type ProviderRegistry struct {
	providers map[string]*ProviderConfig
	routing   RoutingConfig
}

// NewProviderRegistry builds a registry from loaded configs.
func NewProviderRegistry(providers map[string]*ProviderConfig, routing RoutingConfig) *ProviderRegistry {
	for name, p := range providers {
		p.Name = name
	}
	return &ProviderRegistry{providers: providers, routing: routing}
}

// Get returns a provider by name.
func (r *ProviderRegistry) Get(name string) (*ProviderConfig, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// Routing returns the tier routing table.
func (r *ProviderRegistry) Routing() RoutingConfig {
	return r.routing
}

// Len returns the number of registered providers.
func (r *ProviderRegistry) Len() int {
	return len(r.providers)
}

// Names returns all registered provider names.
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
