// Package metrics registers the Prometheus instruments shared across the
// pipeline. Exporter wiring lives with the API layer; the core only
// increments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BudgetDenials counts budget guard refusals per tier.
	BudgetDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_budget_denials_total",
		Help: "Number of LLM/embedding calls denied by the daily budget guard.",
	}, []string{"tier"})

	// LLMCalls counts provider invocations per tier and outcome.
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_calls_total",
		Help: "Number of LLM provider calls by tier and outcome.",
	}, []string{"tier", "outcome"})

	// LLMFailovers counts primary→secondary model transitions.
	LLMFailovers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_failovers_total",
		Help: "Number of failovers from the primary to the secondary model.",
	}, []string{"tier"})

	// DedupHits counts skipped ingests per match kind (url, external_id,
	// content_hash, embedding).
	DedupHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_dedup_hits_total",
		Help: "Number of ingest attempts skipped as duplicates, by match kind.",
	}, []string{"kind"})

	// ItemsProcessed counts pipeline completions per terminal status.
	ItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_items_processed_total",
		Help: "Number of items that finished the pipeline, by terminal status.",
	}, []string{"status"})

	// ItemsReaped counts stale processing rows reset to pending.
	ItemsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_items_reaped_total",
		Help: "Number of stale processing items reset to pending by the reaper.",
	})

	// TaxonomyGaps counts recorded gaps per reason.
	TaxonomyGaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxonomy_gaps_total",
		Help: "Number of Tier-2 impacts skipped for unknown trend/signal.",
	}, []string{"reason"})

	// EvidenceApplied counts ledger rows written per trend.
	EvidenceApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_evidence_applied_total",
		Help: "Number of evidence deltas applied to trends.",
	}, []string{"trend_id"})

	// EmbeddingCacheHits counts embedding cache hits per cache tier.
	EmbeddingCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedding_cache_hits_total",
		Help: "Number of embedding cache hits, by tier (lru, redis).",
	}, []string{"tier"})

	// CalibrationAlerts counts drift alerts per severity.
	CalibrationAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calibration_drift_alerts_total",
		Help: "Number of calibration drift alerts raised, by severity.",
	}, []string{"severity"})
)
