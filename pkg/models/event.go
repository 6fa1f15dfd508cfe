package models

import "time"

// ClaimLink relates two claims in an event's claim graph.
type ClaimLink struct {
	FromClaimID string `json:"from_claim_id"`
	ToClaimID   string `json:"to_claim_id"`
	// Relation is "supports" or "contradicts".
	Relation string `json:"relation"`
}

// Claim is one normalized assertion extracted by Tier-2.
type Claim struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	ItemID     string  `json:"item_id,omitempty"` // originating RawItem
}

// ClaimGraph is the normalized claim set with support/contradiction links.
type ClaimGraph struct {
	Claims []Claim     `json:"claims"`
	Links  []ClaimLink `json:"links"`
}

// HasContradiction reports whether any link in the graph is a contradiction.
func (g *ClaimGraph) HasContradiction() bool {
	if g == nil {
		return false
	}
	for _, l := range g.Links {
		if l.Relation == "contradicts" {
			return true
		}
	}
	return false
}

// Extraction holds the structured who/what/where/when pulled from items.
type Extraction struct {
	Who   []string `json:"who,omitempty"`
	What  string   `json:"what,omitempty"`
	Where []string `json:"where,omitempty"`
	When  string   `json:"when,omitempty"`
}

// Event is a cluster of RawItems about one real-world development.
type Event struct {
	ID string `json:"id"`

	// CanonicalSummary is always derived from the current primary item,
	// never simply the newest mention.
	CanonicalSummary string `json:"canonical_summary"`
	PrimaryItemID    string `json:"primary_item_id"`

	Embedding        Vector            `json:"-"`
	EmbeddingLineage *EmbeddingLineage `json:"embedding_lineage,omitempty"`

	Extraction *Extraction `json:"extraction,omitempty"`
	Claims     *ClaimGraph `json:"claims,omitempty"`
	Categories []string    `json:"categories,omitempty"`

	SourceCount       int `json:"source_count"`
	UniqueSourceCount int `json:"unique_source_count"`

	Lifecycle     LifecycleStatus `json:"lifecycle_status"`
	FirstSeenAt   time.Time       `json:"first_seen_at"`
	LastMentionAt time.Time       `json:"last_mention_at"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`

	Contradicted       bool   `json:"contradicted"`
	ContradictionNotes string `json:"contradiction_notes,omitempty"`

	// Suppressed is set by human feedback (mark_noise / invalidate); suppressed
	// events accept no new members and skip lifecycle transitions.
	Suppressed bool `json:"suppressed"`

	// Pinned events are operator-protected from fading and archival.
	Pinned bool `json:"pinned"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
