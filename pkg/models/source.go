package models

import "time"

// Source is the stable configuration for one feed.
// Created by config sync; deactivated (never deleted) to pause collection.
type Source struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Type             SourceType    `json:"type"`
	URL              string        `json:"url"`
	CredibilityScore float64       `json:"credibility_score"` // [0,1]
	Tier             SourceTier    `json:"source_tier"`
	ReportingType    ReportingType `json:"reporting_type"`
	Active           bool          `json:"active"`
	LastFetchedAt    *time.Time    `json:"last_fetched_at,omitempty"`
	// IngestWatermark is the forward-only high-water publication timestamp;
	// collectors never re-ingest items at or before it.
	IngestWatermark *time.Time `json:"ingest_watermark,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// EmbeddingLineage records how an embedding vector was produced.
type EmbeddingLineage struct {
	Model          string    `json:"embedding_model"`
	GeneratedAt    time.Time `json:"generated_at"`
	InputTokens    int       `json:"input_tokens"`
	RetainedTokens int       `json:"retained_tokens"`
	Truncated      bool      `json:"truncated"`
}

// RawItem is one ingested article or post.
type RawItem struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	ExternalID  string     `json:"external_id"` // unique per source
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	FetchedAt   time.Time  `json:"fetched_at"`
	Text        string     `json:"text"`
	ContentHash string     `json:"content_hash"` // SHA-256 of extracted text
	Language    string     `json:"language,omitempty"`

	Embedding        Vector            `json:"-"`
	EmbeddingLineage *EmbeddingLineage `json:"embedding_lineage,omitempty"`

	ProcessingStatus    ProcessingStatus `json:"processing_status"`
	ProcessingStartedAt *time.Time       `json:"processing_started_at,omitempty"`
	ProcessingError     string           `json:"processing_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
