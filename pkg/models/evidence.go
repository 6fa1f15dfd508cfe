package models

import "time"

// TrendEvidence is one append-only ledger row recording all factorization
// inputs behind a single log-odds delta. Rows are never deleted; invalidation
// flips is_invalidated and applies the reverse delta.
type TrendEvidence struct {
	ID         string `json:"id"`
	TrendID    string `json:"trend_id"`
	EventID    string `json:"event_id"`
	SignalType string `json:"signal_type"`

	BaseWeight          float64 `json:"base_weight"`
	Credibility         float64 `json:"credibility"`
	CorroborationFactor float64 `json:"corroboration_factor"`
	Novelty             float64 `json:"novelty"`
	EvidenceAgeDays     float64 `json:"evidence_age_days"`
	TemporalDecayFactor float64 `json:"temporal_decay_factor"`
	Severity            float64 `json:"severity"`
	Confidence          float64 `json:"confidence"`
	DirectionMultiplier float64 `json:"direction_multiplier"`
	DeltaLogOdds        float64 `json:"delta_log_odds"`

	Reasoning string `json:"reasoning,omitempty"`

	// TrendDefinitionHash pins the definition active at scoring time.
	TrendDefinitionHash string `json:"trend_definition_hash"`

	Invalidated            bool       `json:"is_invalidated"`
	InvalidatedAt          *time.Time `json:"invalidated_at,omitempty"`
	InvalidationFeedbackID *string    `json:"invalidation_feedback_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TrendOutcome records a prediction against reality.
type TrendOutcome struct {
	ID      string `json:"id"`
	TrendID string `json:"trend_id"`

	PredictedProbability float64   `json:"predicted_probability"`
	PredictedRisk        RiskLevel `json:"predicted_risk"`
	PredictedBand        string    `json:"predicted_band"`
	PredictionDate       time.Time `json:"prediction_date"`

	Outcome     Outcome    `json:"outcome"`
	OutcomeDate *time.Time `json:"outcome_date,omitempty"`
	Notes       string     `json:"notes,omitempty"`

	// BrierScore is (p − actual)² for resolved outcomes.
	BrierScore *float64 `json:"brier_score,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// HumanFeedback is one manual operator action.
type HumanFeedback struct {
	ID      string         `json:"id"`
	Action  FeedbackAction `json:"action"`
	EventID *string        `json:"event_id,omitempty"`
	TrendID *string        `json:"trend_id,omitempty"`
	ItemID  *string        `json:"item_id,omitempty"`

	OriginalValue  string `json:"original_value,omitempty"`
	CorrectedValue string `json:"corrected_value,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Actor          string `json:"actor"`

	CreatedAt time.Time `json:"created_at"`
}

// APIUsage is the daily counter row per (date, tier).
type APIUsage struct {
	Date          time.Time `json:"date"` // date-only, UTC
	Tier          Tier      `json:"tier"`
	Calls         int       `json:"calls"`
	InputTokens   int64     `json:"input_tokens"`
	OutputTokens  int64     `json:"output_tokens"`
	EstimatedCost float64   `json:"estimated_cost_usd"`
}

// TaxonomyGap captures a Tier-2 impact naming an unknown trend or signal type.
type TaxonomyGap struct {
	ID         string    `json:"id"`
	Reason     GapReason `json:"reason"`
	TrendID    string    `json:"trend_id"`
	SignalType string    `json:"signal_type,omitempty"`
	EventID    *string   `json:"event_id,omitempty"`
	ItemID     *string   `json:"item_id,omitempty"`
	Payload    string    `json:"payload,omitempty"` // offending impact, verbatim
	Status     GapStatus `json:"status"`
	Resolution string    `json:"resolution,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
