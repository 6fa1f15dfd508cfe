package config

import (
	"fmt"
	"sort"

	"github.com/osintlab/trendwatch/pkg/models"
)

// TrendRegistry holds the loaded trend definitions keyed by id.
type TrendRegistry struct {
	trends map[string]*models.TrendDefinition
}

// NewTrendRegistry builds a registry from loaded definitions.
func NewTrendRegistry(trends []*models.TrendDefinition) *TrendRegistry {
	m := make(map[string]*models.TrendDefinition, len(trends))
	for _, t := range trends {
		m[t.ID] = t
	}
	return &TrendRegistry{trends: m}
}

// Get returns a trend definition by id.
func (r *TrendRegistry) Get(id string) (*models.TrendDefinition, error) {
	t, ok := r.trends[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTrendNotFound, id)
	}
	return t, nil
}

// Has reports whether the registry contains a trend id.
func (r *TrendRegistry) Has(id string) bool {
	_, ok := r.trends[id]
	return ok
}

// HasSignal reports whether a known trend defines a signal type.
func (r *TrendRegistry) HasSignal(trendID, signalType string) bool {
	t, ok := r.trends[trendID]
	if !ok {
		return false
	}
	_, ok = t.Indicators[signalType]
	return ok
}

// All returns definitions sorted by id for deterministic iteration.
func (r *TrendRegistry) All() []*models.TrendDefinition {
	out := make([]*models.TrendDefinition, 0, len(r.trends))
	for _, t := range r.trends {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered trends.
func (r *TrendRegistry) Len() int {
	return len(r.trends)
}

// SourceDefinition is one feed entry from sources.yaml.
type SourceDefinition struct {
	ID               string               `yaml:"id"`
	Name             string               `yaml:"name"`
	Type             models.SourceType    `yaml:"type"`
	URL              string               `yaml:"url"`
	CredibilityScore float64              `yaml:"credibility_score"`
	Tier             models.SourceTier    `yaml:"source_tier"`
	ReportingType    models.ReportingType `yaml:"reporting_type"`
	Active           *bool                `yaml:"active,omitempty"` // nil means active
}

// IsActive applies the nil-means-active default.
func (s *SourceDefinition) IsActive() bool {
	return s.Active == nil || *s.Active
}

// SourceRegistry holds the loaded source catalog keyed by id.
type SourceRegistry struct {
	sources map[string]*SourceDefinition
}

// NewSourceRegistry builds a registry from loaded definitions.
func NewSourceRegistry(sources []*SourceDefinition) *SourceRegistry {
	m := make(map[string]*SourceDefinition, len(sources))
	for _, s := range sources {
		m[s.ID] = s
	}
	return &SourceRegistry{sources: m}
}

// Get returns a source definition by id.
func (r *SourceRegistry) Get(id string) (*SourceDefinition, error) {
	s, ok := r.sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	return s, nil
}

// All returns definitions sorted by id for deterministic iteration.
func (r *SourceRegistry) All() []*SourceDefinition {
	out := make([]*SourceDefinition, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered sources.
func (r *SourceRegistry) Len() int {
	return len(r.sources)
}
