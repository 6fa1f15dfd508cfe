package models

// SourceReliability is one advisory diagnostic row: how often events a source
// contributed to ended up contradicted or suppressed.
type SourceReliability struct {
	SourceID          string  `json:"source_id"`
	Name              string  `json:"name"`
	Tier              string  `json:"tier"`
	EventCount        int     `json:"event_count"`
	ContradictedCount int     `json:"contradicted_count"`
	ContradictedRate  float64 `json:"contradicted_rate"`
}

// TierReliability is the same diagnostic aggregated over a source tier.
type TierReliability struct {
	Tier              string  `json:"tier"`
	EventCount        int     `json:"event_count"`
	ContradictedCount int     `json:"contradicted_count"`
	ContradictedRate  float64 `json:"contradicted_rate"`
}
