package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/osintlab/trendwatch/pkg/models"
)

// Tier1Input is one item offered to the batch classifier.
type Tier1Input struct {
	ItemID string
	Title  string
	Text   string
}

// maxTier1Excerpt bounds how much of each item the cheap classifier sees.
const maxTier1Excerpt = 1500

// Classifier is the Tier-1 relevance gate: one cheap batch call scores many
// items against the tracked trend catalog.
type Classifier struct {
	caller *Caller
	logger *slog.Logger
}

// NewClassifier creates a Classifier.
func NewClassifier(caller *Caller) *Classifier {
	return &Classifier{
		caller: caller,
		logger: slog.With("component", "tier1_classifier"),
	}
}

// Score classifies a batch. If the batch response fails the schema, each item
// is retried individually so one malformed answer cannot discard the whole
// batch. Budget denial aborts immediately and propagates.
func (c *Classifier) Score(ctx context.Context, items []Tier1Input, trendCatalog string) ([]Tier1Score, error) {
	if len(items) == 0 {
		return nil, nil
	}

	scores, err := c.scoreBatch(ctx, items, trendCatalog)
	if err == nil {
		return scores, nil
	}
	if !errors.Is(err, ErrSchemaViolation) {
		return nil, err
	}

	c.logger.Warn("Batch classification failed schema, retrying per item",
		"batch_size", len(items), "error", err)

	scores = make([]Tier1Score, 0, len(items))
	for _, item := range items {
		single, err := c.scoreBatch(ctx, []Tier1Input{item}, trendCatalog)
		if err != nil {
			if errors.Is(err, ErrSchemaViolation) {
				// This item is individually unscorable; let the caller park it.
				return nil, fmt.Errorf("item %s: %w", item.ItemID, err)
			}
			return nil, err
		}
		scores = append(scores, single...)
	}
	return scores, nil
}

func (c *Classifier) scoreBatch(ctx context.Context, items []Tier1Input, trendCatalog string) ([]Tier1Score, error) {
	ids := make([]string, 0, len(items))
	var sb strings.Builder
	for _, item := range items {
		ids = append(ids, item.ItemID)
		excerpt := TruncateRunes(item.Text, maxTier1Excerpt)
		fmt.Fprintf(&sb, "item_id: %s\ntitle: %s\n%s\n\n",
			item.ItemID, item.Title, FenceContent(excerpt))
	}

	schema, _ := json.Marshal(tier1Response{Scores: []Tier1Score{{
		ItemID: "<item_id>", Relevance: 0, Rationale: "<short reason>",
	}}})

	resp, err := c.caller.Call(ctx, models.Tier1, Request{
		System: "You score news items for relevance to tracked geopolitical trends. " +
			"Score 0 (unrelated) to 10 (directly on-topic) against the catalog below. " +
			safetyRule + "\nRespond exactly in this shape: " + string(schema) +
			"\n\nTrend catalog:\n" + trendCatalog,
		User: sb.String(),
	})
	if err != nil {
		return nil, err
	}
	return ParseTier1(resp.Content, ids)
}
