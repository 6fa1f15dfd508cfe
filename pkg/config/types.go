package config

import "time"

// PipelineConfig controls the item worker pool.
type PipelineConfig struct {
	// WorkerCount is the number of pipeline worker goroutines per replica.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentItems is the global limit of items in `processing` across
	// all replicas, enforced by a database COUNT(*) check.
	MaxConcurrentItems int `yaml:"max_concurrent_items"`

	// PollInterval is the base interval for checking pending items.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter randomizes PollInterval to de-synchronize workers.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// ItemTimeout is the maximum wall time for one item's pipeline run.
	ItemTimeout time.Duration `yaml:"item_timeout"`

	// ReaperInterval is how often the stale-item reaper scans.
	ReaperInterval time.Duration `yaml:"reaper_interval"`

	// ReaperTimeout is how long an item may sit in `processing` before the
	// reaper resets it to `pending`.
	ReaperTimeout time.Duration `yaml:"reaper_timeout"`
}

// DefaultPipelineConfig returns the built-in pipeline defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		WorkerCount:        4,
		MaxConcurrentItems: 16,
		PollInterval:       2 * time.Second,
		PollIntervalJitter: 500 * time.Millisecond,
		ItemTimeout:        5 * time.Minute,
		ReaperInterval:     1 * time.Minute,
		ReaperTimeout:      10 * time.Minute,
	}
}

// SchedulerConfig controls periodic job intervals.
type SchedulerConfig struct {
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
	DecayInterval     time.Duration `yaml:"decay_interval"`
	LifecycleInterval time.Duration `yaml:"lifecycle_interval"`
	RetentionInterval time.Duration `yaml:"retention_interval"`
}

// DefaultSchedulerConfig returns the built-in schedule: hourly snapshots and
// lifecycle sweeps, daily decay, twice-daily retention.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		SnapshotInterval:  1 * time.Hour,
		DecayInterval:     24 * time.Hour,
		LifecycleInterval: 1 * time.Hour,
		RetentionInterval: 12 * time.Hour,
	}
}

// DedupConfig controls the duplicate filter.
type DedupConfig struct {
	// RecencyWindowDays bounds URL/hash lookback.
	RecencyWindowDays int `yaml:"recency_window_days"`

	// SimilarityThreshold is the cosine similarity at or above which two
	// same-model embeddings are considered duplicates.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// TrackingParams are query parameters stripped during URL normalization.
	// Operator-maintained; defaults cover the common UTM family.
	TrackingParams []string `yaml:"tracking_params"`

	// PreserveQuery keeps non-tracking query parameters in the normalized URL.
	// When false, the entire query string is dropped.
	PreserveQuery bool `yaml:"preserve_query"`
}

// DefaultDedupConfig returns the built-in dedup defaults.
func DefaultDedupConfig() *DedupConfig {
	return &DedupConfig{
		RecencyWindowDays:   7,
		SimilarityThreshold: 0.92,
		PreserveQuery:       true,
		TrackingParams: []string{
			"utm_source", "utm_medium", "utm_campaign", "utm_term",
			"utm_content", "fbclid", "gclid", "ref", "mc_cid", "mc_eid",
		},
	}
}

// EmbeddingConfig controls the embedding provider and caches.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	// Dimensions of the produced vectors.
	Dimensions int `yaml:"dimensions"`

	// MaxInputTokens is the provider's input limit.
	MaxInputTokens int `yaml:"max_input_tokens"`

	// OverLimitPolicy is "truncate" (drop tail with marker) or "chunk"
	// (mean-pool per-chunk vectors).
	OverLimitPolicy string `yaml:"over_limit_policy"`

	// CacheSize bounds the in-process LRU (entries).
	CacheSize int `yaml:"cache_size"`

	// RedisAddr enables the optional remote cache tier when non-empty.
	RedisAddr string `yaml:"redis_addr"`
	RedisTTL  time.Duration `yaml:"redis_ttl"`

	Timeout time.Duration `yaml:"timeout"`
}

// Over-limit policy values.
const (
	OverLimitTruncate = "truncate"
	OverLimitChunk    = "chunk"
)

// DefaultEmbeddingConfig returns the built-in embedding defaults.
func DefaultEmbeddingConfig() *EmbeddingConfig {
	return &EmbeddingConfig{
		Provider:        "openai",
		Model:           "text-embedding-3-small",
		Dimensions:      1536,
		MaxInputTokens:  8191,
		OverLimitPolicy: OverLimitTruncate,
		CacheSize:       4096,
		RedisTTL:        24 * time.Hour,
		Timeout:         30 * time.Second,
	}
}

// ClusterConfig controls event clustering and lifecycle.
type ClusterConfig struct {
	// WindowHours bounds the first_seen_at lookback for merge candidates.
	WindowHours int `yaml:"window_hours"`

	// SimilarityThreshold is the cosine similarity at or above which an item
	// joins an existing event.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// ConfirmSources is the unique_source_count needed for
	// emerging → confirmed.
	ConfirmSources int `yaml:"confirm_sources"`

	// FadeAfter is the silence needed for confirmed → fading.
	FadeAfter time.Duration `yaml:"fade_after"`

	// ArchiveAfter is the silence needed for fading → archived.
	ArchiveAfter time.Duration `yaml:"archive_after"`

	// Searcher selects the nearest-neighbor strategy: "exact" or "ivfflat".
	Searcher string `yaml:"searcher"`

	// IVFFlatLists is the pgvector index list count.
	IVFFlatLists int `yaml:"ivfflat_lists"`
}

// Nearest-neighbor strategy values.
const (
	SearcherExact   = "exact"
	SearcherIVFFlat = "ivfflat"
)

// DefaultClusterConfig returns the built-in clustering defaults.
func DefaultClusterConfig() *ClusterConfig {
	return &ClusterConfig{
		WindowHours:         48,
		SimilarityThreshold: 0.88,
		ConfirmSources:      3,
		FadeAfter:           48 * time.Hour,
		ArchiveAfter:        7 * 24 * time.Hour,
		Searcher:            SearcherExact,
		IVFFlatLists:        64,
	}
}

// TierBudget caps one tier's daily spend. Zero means "no cap".
type TierBudget struct {
	MaxDailyCalls   int     `yaml:"max_daily_calls"`
	MaxDailyTokens  int64   `yaml:"max_daily_tokens"`
	MaxDailyCostUSD float64 `yaml:"max_daily_cost_usd"`
}

// BudgetConfig caps LLM and embedding spend per tier per day.
type BudgetConfig struct {
	Tier1     TierBudget `yaml:"tier1"`
	Tier2     TierBudget `yaml:"tier2"`
	Embedding TierBudget `yaml:"embedding"`

	// Tier1Threshold is the max-relevance score below which an item is noise.
	Tier1Threshold float64 `yaml:"tier1_threshold"`
}

// DefaultBudgetConfig returns the built-in budget defaults.
func DefaultBudgetConfig() *BudgetConfig {
	return &BudgetConfig{
		Tier1:          TierBudget{MaxDailyCalls: 2000, MaxDailyCostUSD: 5},
		Tier2:          TierBudget{MaxDailyCalls: 500, MaxDailyCostUSD: 20},
		Embedding:      TierBudget{MaxDailyCalls: 5000, MaxDailyCostUSD: 2},
		Tier1Threshold: 5,
	}
}

// NoveltyConfig tunes the recency-aware novelty curve (see pkg/trend).
type NoveltyConfig struct {
	RepeatPenalty float64 `yaml:"repeat_penalty"`
	RecoveryHours float64 `yaml:"recovery_hours"`
}

// DefaultNoveltyConfig returns the documented novelty defaults.
func DefaultNoveltyConfig() *NoveltyConfig {
	return &NoveltyConfig{RepeatPenalty: 1.0, RecoveryHours: 72}
}

// CalibrationConfig controls drift alerting and coverage guardrails.
type CalibrationConfig struct {
	BrierWarn           float64 `yaml:"brier_warn"`
	BrierCritical       float64 `yaml:"brier_critical"`
	BucketErrorWarn     float64 `yaml:"bucket_error_warn"`
	BucketErrorCritical float64 `yaml:"bucket_error_critical"`

	// MinSamples is the resolved-outcome count required before alerting.
	MinSamples int `yaml:"min_samples"`

	// LowSampleTrendThreshold flags trends with fewer resolved outcomes.
	LowSampleTrendThreshold int `yaml:"low_sample_trend_threshold"`

	// WebhookURL receives drift alerts when set.
	WebhookURL        string        `yaml:"webhook_url"`
	WebhookMaxRetries int           `yaml:"webhook_max_retries"`
	WebhookTimeout    time.Duration `yaml:"webhook_timeout"`
}

// DefaultCalibrationConfig returns the built-in calibration defaults.
func DefaultCalibrationConfig() *CalibrationConfig {
	return &CalibrationConfig{
		BrierWarn:               0.20,
		BrierCritical:           0.30,
		BucketErrorWarn:         0.15,
		BucketErrorCritical:     0.25,
		MinSamples:              20,
		LowSampleTrendThreshold: 5,
		WebhookMaxRetries:       4,
		WebhookTimeout:          10 * time.Second,
	}
}

// RetentionConfig controls data retention sweeps.
type RetentionConfig struct {
	// NoiseItemRetentionDays is how long noise/error items are kept.
	NoiseItemRetentionDays int `yaml:"noise_item_retention_days"`

	// SnapshotRetentionDays is the horizon past which hourly snapshots are
	// thinned to dailies.
	SnapshotRetentionDays int `yaml:"snapshot_retention_days"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		NoiseItemRetentionDays: 30,
		SnapshotRetentionDays:  180,
	}
}

// APIConfig controls the HTTP surface.
type APIConfig struct {
	// AuthTokenEnv names the env var holding the bearer token. Required in
	// production-like environments.
	AuthTokenEnv string `yaml:"auth_token_env"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultAPIConfig returns the built-in API defaults.
func DefaultAPIConfig() *APIConfig {
	return &APIConfig{
		AuthTokenEnv:   "TRENDWATCH_API_TOKEN",
		RequestTimeout: 15 * time.Second,
	}
}
