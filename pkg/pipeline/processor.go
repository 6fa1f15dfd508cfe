package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/osintlab/trendwatch/pkg/cluster"
	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/dedup"
	"github.com/osintlab/trendwatch/pkg/embedding"
	"github.com/osintlab/trendwatch/pkg/llm"
	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/services"
)

// Processor runs the per-item pipeline: cheap relevance gate, embedding,
// embedding-level dedup, clustering, deep analysis, evidence application.
//
// Budget denial at any stage releases the item back to pending untouched;
// it retries after the daily budget resets. Any other failure parks the item
// in error with the cause recorded.
type Processor struct {
	cfg *config.BudgetConfig

	items   *services.ItemService
	events  *services.EventService
	sources *services.SourceService

	dedup      *dedup.Deduplicator
	embedder   *embedding.Embedder
	classifier *llm.Classifier
	analyst    *llm.Analyst
	clusterer  *cluster.Clusterer
	applier    *Applier

	catalog string
	logger  *slog.Logger
}

// ProcessorDeps bundles the processor's collaborators.
type ProcessorDeps struct {
	Budget     *config.BudgetConfig
	Items      *services.ItemService
	Events     *services.EventService
	Sources    *services.SourceService
	Dedup      *dedup.Deduplicator
	Embedder   *embedding.Embedder
	Classifier *llm.Classifier
	Analyst    *llm.Analyst
	Clusterer  *cluster.Clusterer
	Applier    *Applier
	Catalog    string
}

// NewProcessor creates a Processor.
func NewProcessor(deps ProcessorDeps) *Processor {
	return &Processor{
		cfg:        deps.Budget,
		items:      deps.Items,
		events:     deps.Events,
		sources:    deps.Sources,
		dedup:      deps.Dedup,
		embedder:   deps.Embedder,
		classifier: deps.Classifier,
		analyst:    deps.Analyst,
		clusterer:  deps.Clusterer,
		applier:    deps.Applier,
		catalog:    deps.Catalog,
		logger:     slog.With("component", "processor"),
	}
}

// Process runs one claimed item to a terminal status (or releases it on
// budget denial). The returned error is only for infrastructure failures;
// item-level failures are absorbed into the item's status.
func (p *Processor) Process(ctx context.Context, item *models.RawItem) error {
	logger := p.logger.With("item_id", item.ID, "source_id", item.SourceID)

	err := p.run(ctx, item, logger)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrBudgetExceeded):
		logger.Info("Budget exhausted, releasing item to pending")
		return p.items.Release(ctx, item.ID)
	default:
		logger.Error("Item processing failed", "error", err)
		return p.items.Finish(ctx, item.ID, models.StatusError, err.Error())
	}
}

func (p *Processor) run(ctx context.Context, item *models.RawItem, logger *slog.Logger) error {
	// Cheap relevance gate first: noise never costs an embedding.
	scores, err := p.classifier.Score(ctx, []llm.Tier1Input{{
		ItemID: item.ID,
		Title:  item.Title,
		Text:   item.Text,
	}}, p.catalog)
	if err != nil {
		return fmt.Errorf("relevance gate: %w", err)
	}
	relevance := maxRelevance(scores)
	if relevance < p.cfg.Tier1Threshold {
		logger.Info("Item classified as noise", "relevance", relevance)
		return p.items.Finish(ctx, item.ID, models.StatusNoise, "")
	}

	embedded, err := p.embedder.Embed(ctx, item.Text)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := p.items.SetEmbedding(ctx, item.ID, embedded.Vector, embedded.Lineage); err != nil {
		return err
	}
	item.Embedding = embedded.Vector
	item.EmbeddingLineage = &embedded.Lineage

	// Near-duplicate check now that a vector exists. The item's own row is
	// already persisted, so it must be excluded from the search.
	verdict, err := p.dedup.Check(ctx, dedup.Candidate{
		ItemID:         item.ID,
		Embedding:      item.Embedding,
		EmbeddingModel: embedded.Lineage.Model,
	})
	if err != nil {
		return fmt.Errorf("embedding dedup: %w", err)
	}
	if verdict.Duplicate {
		logger.Info("Near-duplicate item dropped",
			"matched_item_id", verdict.MatchedItemID, "similarity", verdict.Similarity)
		return p.items.Finish(ctx, item.ID, models.StatusNoise,
			fmt.Sprintf("near-duplicate of %s", verdict.MatchedItemID))
	}

	mentionAt := item.FetchedAt
	if item.PublishedAt != nil {
		mentionAt = *item.PublishedAt
	}
	assignment, err := p.clusterer.Assign(ctx, item, mentionAt)
	if err != nil {
		return fmt.Errorf("clustering: %w", err)
	}
	if assignment.Suppressed {
		logger.Info("Item matches suppressed event, finishing as noise",
			"event_id", assignment.EventID)
		return p.items.Finish(ctx, item.ID, models.StatusNoise,
			fmt.Sprintf("matches suppressed event %s", assignment.EventID))
	}

	if err := p.analyzeEvent(ctx, assignment.EventID, item, logger); err != nil {
		return err
	}

	return p.items.Finish(ctx, item.ID, models.StatusClassified, "")
}

func (p *Processor) analyzeEvent(ctx context.Context, eventID string, item *models.RawItem, logger *slog.Logger) error {
	event, err := p.events.Get(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Suppressed {
		logger.Info("Skipping analysis of suppressed event", "event_id", eventID)
		return nil
	}

	analysis, err := p.analyst.Analyze(ctx, llm.EventContext{
		EventID:     event.ID,
		Summary:     event.CanonicalSummary,
		PrimaryText: item.Text,
	}, p.catalog)
	if err != nil {
		return fmt.Errorf("deep analysis: %w", err)
	}

	if err := p.events.UpdateAnalysis(ctx, event.ID,
		analysis.Extraction, analysis.Claims, analysis.Categories, analysis.Summary); err != nil {
		return err
	}

	// Re-read so corroboration sees the post-link counters and contradiction.
	event, err = p.events.Get(ctx, eventID)
	if err != nil {
		return err
	}

	source, err := p.sources.Get(ctx, item.SourceID)
	if err != nil {
		return err
	}

	result, err := p.applier.Apply(ctx, event, source, analysis.Impacts, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("evidence application: %w", err)
	}
	logger.Info("Event analyzed",
		"event_id", event.ID,
		"impacts_applied", result.Applied,
		"impacts_skipped", result.Skipped,
		"taxonomy_gaps", result.Gaps)
	return nil
}

func maxRelevance(scores []llm.Tier1Score) float64 {
	max := 0.0
	for _, s := range scores {
		if s.Relevance > max {
			max = s.Relevance
		}
	}
	return max
}
