package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/models"
)

// truncationMarker is appended to truncated input so the embedded text is
// honest about being a prefix.
const truncationMarker = " [truncated]"

// BudgetGuard gates provider calls against the daily embedding budget.
// Satisfied by services.UsageService.
type BudgetGuard interface {
	Reserve(ctx context.Context, tier models.Tier) error
	Record(ctx context.Context, tier models.Tier, inputTokens, outputTokens int64, costUSD float64) error
}

// Embedder produces vectors with lineage, consulting the local LRU and the
// optional remote tier before spending budget on a provider call.
type Embedder struct {
	cfg      *config.EmbeddingConfig
	provider Provider
	budget   BudgetGuard

	// costPerMTokens prices provider input tokens (USD per million).
	costPerMTokens float64

	local  *lruCache
	remote *remoteCache
	logger *slog.Logger
}

// New creates an Embedder.
func New(cfg *config.EmbeddingConfig, provider Provider, budget BudgetGuard, costPerMTokens float64) *Embedder {
	return &Embedder{
		cfg:            cfg,
		provider:       provider,
		budget:         budget,
		costPerMTokens: costPerMTokens,
		local:          newLRUCache(cfg.CacheSize),
		remote:         newRemoteCache(cfg.RedisAddr, cfg.RedisTTL),
		logger:         slog.With("component", "embedder"),
	}
}

// Result is one produced embedding with its lineage.
type Result struct {
	Vector  models.Vector
	Lineage models.EmbeddingLineage
	Cached  bool
}

// Embed returns the vector for text. Identical content under the same model
// never costs a second provider call: the cache key is the content hash plus
// the model identifier.
func (e *Embedder) Embed(ctx context.Context, text string) (*Result, error) {
	key := e.provider.Model() + ":" + models.ContentHash(text)

	if entry, ok := e.local.get(key); ok {
		recordCacheHit("local")
		return &Result{Vector: entry.Vector, Lineage: entry.Lineage, Cached: true}, nil
	}
	if e.remote != nil {
		if entry, ok := e.remote.get(ctx, key); ok {
			recordCacheHit("remote")
			e.local.put(key, entry)
			return &Result{Vector: entry.Vector, Lineage: entry.Lineage, Cached: true}, nil
		}
	}

	if err := e.budget.Reserve(ctx, models.TierEmbedding); err != nil {
		return nil, err
	}

	result, err := e.embedUncached(ctx, text)
	if err != nil {
		return nil, err
	}

	entry := cacheEntry{Vector: result.Vector, Lineage: result.Lineage}
	e.local.put(key, entry)
	if e.remote != nil {
		e.remote.put(key, entry)
	}
	return result, nil
}

func (e *Embedder) embedUncached(ctx context.Context, text string) (*Result, error) {
	inputTokens := EstimateTokens(text)

	if inputTokens <= e.cfg.MaxInputTokens {
		vec, usage, err := e.call(ctx, text)
		if err != nil {
			return nil, err
		}
		return &Result{
			Vector: vec,
			Lineage: models.EmbeddingLineage{
				Model:          e.provider.Model(),
				GeneratedAt:    time.Now().UTC(),
				InputTokens:    usage.PromptTokens,
				RetainedTokens: usage.PromptTokens,
				Truncated:      false,
			},
		}, nil
	}

	switch e.cfg.OverLimitPolicy {
	case config.OverLimitChunk:
		return e.embedChunked(ctx, text, inputTokens)
	default:
		return e.embedTruncated(ctx, text, inputTokens)
	}
}

// embedTruncated keeps the head of the text, with a marker, and records the
// original token count in the lineage.
func (e *Embedder) embedTruncated(ctx context.Context, text string, inputTokens int) (*Result, error) {
	budget := e.cfg.MaxInputTokens - EstimateTokens(truncationMarker)
	truncated := TruncateToTokens(text, budget) + truncationMarker

	vec, usage, err := e.call(ctx, truncated)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Input truncated for embedding",
		"input_tokens", inputTokens, "retained_tokens", usage.PromptTokens)
	return &Result{
		Vector: vec,
		Lineage: models.EmbeddingLineage{
			Model:          e.provider.Model(),
			GeneratedAt:    time.Now().UTC(),
			InputTokens:    inputTokens,
			RetainedTokens: usage.PromptTokens,
			Truncated:      true,
		},
	}, nil
}

// embedChunked splits the text into max-token chunks, embeds each, and
// mean-pools the vectors. One over-limit item costs multiple budget slots
// only through token accounting; the reservation already made covers the
// call sequence.
func (e *Embedder) embedChunked(ctx context.Context, text string, inputTokens int) (*Result, error) {
	chunks := splitChunks(text, e.cfg.MaxInputTokens)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunking produced no input")
	}

	pooled := make(models.Vector, e.cfg.Dimensions)
	retained := 0
	for _, chunk := range chunks {
		vec, usage, err := e.call(ctx, chunk)
		if err != nil {
			return nil, err
		}
		if len(vec) != len(pooled) {
			return nil, fmt.Errorf("chunk vector has %d dimensions, want %d", len(vec), len(pooled))
		}
		for i, v := range vec {
			pooled[i] += v
		}
		retained += usage.PromptTokens
	}
	for i := range pooled {
		pooled[i] /= float32(len(chunks))
	}

	return &Result{
		Vector: pooled,
		Lineage: models.EmbeddingLineage{
			Model:          e.provider.Model(),
			GeneratedAt:    time.Now().UTC(),
			InputTokens:    inputTokens,
			RetainedTokens: retained,
			Truncated:      true,
		},
	}, nil
}

func (e *Embedder) call(ctx context.Context, input string) (models.Vector, Usage, error) {
	vec, usage, err := e.provider.Embed(ctx, input)
	if err != nil {
		return nil, Usage{}, err
	}

	cost := float64(usage.PromptTokens) / 1e6 * e.costPerMTokens
	if recordErr := e.budget.Record(ctx, models.TierEmbedding, int64(usage.PromptTokens), 0, cost); recordErr != nil {
		// Usage accounting must not fail the embedding itself.
		e.logger.Warn("Failed to record embedding usage", "error", recordErr)
	}
	return vec, usage, nil
}

// splitChunks cuts text into pieces of at most maxTokens each.
func splitChunks(text string, maxTokens int) []string {
	var chunks []string
	remaining := text
	for EstimateTokens(remaining) > maxTokens {
		head := TruncateToTokens(remaining, maxTokens)
		chunks = append(chunks, head)
		remaining = remaining[len(head):]
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}
