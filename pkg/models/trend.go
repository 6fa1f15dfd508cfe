package models

import "time"

// Indicator is a named signal type tracked by a trend.
type Indicator struct {
	Weight    float64   `json:"weight" yaml:"weight"`
	Direction Direction `json:"direction" yaml:"direction"`
	Keywords  []string  `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Type      string    `json:"type,omitempty" yaml:"type,omitempty"`
	// HalfLifeDays overrides the trend-level decay half-life for evidence
	// carrying this signal type. Zero means "use the trend default".
	HalfLifeDays float64 `json:"half_life,omitempty" yaml:"half_life,omitempty"`
}

// TrendDefinition is the YAML-sourced definition of a tracked hypothesis.
type TrendDefinition struct {
	ID                   string               `json:"id" yaml:"id"`
	Name                 string               `json:"name" yaml:"name"`
	Description          string               `json:"description" yaml:"description"`
	BaselineProbability  float64              `json:"baseline_probability" yaml:"baseline_probability"`
	DecayHalfLifeDays    float64              `json:"decay_half_life_days" yaml:"decay_half_life_days"`
	Indicators           map[string]Indicator `json:"indicators" yaml:"indicators"`
	Disqualifiers        []string             `json:"disqualifiers,omitempty" yaml:"disqualifiers,omitempty"`
	FalsificationCriteria []string            `json:"falsification_criteria,omitempty" yaml:"falsification_criteria,omitempty"`
}

// Trend is a tracked hypothesis with its live log-odds state.
type Trend struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	Definition *TrendDefinition `json:"definition"`

	// BaselineLogOdds is the canonical decay anchor;
	// Definition.BaselineProbability is synchronized metadata.
	BaselineLogOdds float64 `json:"baseline_log_odds"`
	CurrentLogOdds  float64 `json:"current_log_odds"`

	DecayHalfLifeDays float64 `json:"decay_half_life_days"`
	Active            bool    `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Indicator returns the indicator for a signal type, if defined.
func (t *Trend) Indicator(signalType string) (Indicator, bool) {
	if t.Definition == nil {
		return Indicator{}, false
	}
	ind, ok := t.Definition.Indicators[signalType]
	return ind, ok
}

// IndicatorHalfLife returns the effective half-life for a signal type,
// falling back to the trend-level default.
func (t *Trend) IndicatorHalfLife(signalType string) float64 {
	if ind, ok := t.Indicator(signalType); ok && ind.HalfLifeDays > 0 {
		return ind.HalfLifeDays
	}
	return t.DecayHalfLifeDays
}

// TrendDefinitionVersion is an immutable audit row appended whenever the
// canonicalized definition hash changes.
type TrendDefinitionVersion struct {
	ID             string    `json:"id"`
	TrendID        string    `json:"trend_id"`
	DefinitionJSON []byte    `json:"definition"`
	DefinitionHash string    `json:"definition_hash"`
	Actor          string    `json:"actor"`
	Context        string    `json:"context,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TrendSnapshot is one row of the hourly log-odds time series.
type TrendSnapshot struct {
	TrendID       string    `json:"trend_id"`
	Timestamp     time.Time `json:"timestamp"`
	LogOdds       float64   `json:"log_odds"`
	EventCount24h int       `json:"event_count_24h"`
}
