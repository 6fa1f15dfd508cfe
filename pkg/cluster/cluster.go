// Package cluster groups classified items into events by embedding
// similarity within a rolling time window.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/services"
)

// Store is the event persistence surface the clusterer needs. Satisfied by
// services.EventService.
type Store interface {
	Nearest(ctx context.Context, embedding models.Vector, model string, since time.Time) (*services.EventMatch, error)
	NearestApproximate(ctx context.Context, embedding models.Vector, model string, since time.Time, probes int) (*services.EventMatch, error)
	Create(ctx context.Context, event *models.Event, seedItemID string) error
	LinkItem(ctx context.Context, eventID, itemID string, mentionAt time.Time) (string, error)
	EventIDForItem(ctx context.Context, itemID string) (string, error)
	PromotePrimary(ctx context.Context, eventID string) error
	Confirm(ctx context.Context, eventID string, minSources int) (bool, error)
	Revive(ctx context.Context, eventID string) error
	Get(ctx context.Context, id string) (*models.Event, error)
}

// Clusterer assigns one item to an existing event or seeds a new one.
type Clusterer struct {
	cfg    *config.ClusterConfig
	store  Store
	search NearestNeighbor
	logger *slog.Logger
}

// New creates a Clusterer with the configured nearest-neighbor strategy.
func New(cfg *config.ClusterConfig, store Store) *Clusterer {
	return &Clusterer{
		cfg:    cfg,
		store:  store,
		search: newSearcher(cfg, store),
		logger: slog.With("component", "clusterer"),
	}
}

// Assignment is the result of clustering one item.
type Assignment struct {
	EventID string
	Created bool
	// Confirmed is true when this assignment pushed the event over the
	// unique-source threshold in this call.
	Confirmed bool
	// Suppressed is true when the item matched a suppressed event: it joins
	// nothing and must not seed a replacement. The caller discards it.
	Suppressed bool
}

// Assign places an item. Candidates are restricted to same-model embeddings
// first seen inside the window; the best match joins at or above the
// similarity threshold, anything below seeds a new event. A match against a
// suppressed event discards the item instead, so a killed story cannot
// reappear under a new event id. Races with concurrent workers
// resolve through the junction table: whoever links the item first wins, and
// the loser's view is corrected to the winner.
func (c *Clusterer) Assign(ctx context.Context, item *models.RawItem, mentionAt time.Time) (*Assignment, error) {
	if len(item.Embedding) == 0 || item.EmbeddingLineage == nil {
		return nil, fmt.Errorf("item %s has no embedding to cluster on", item.ID)
	}

	since := mentionAt.Add(-time.Duration(c.cfg.WindowHours) * time.Hour)
	match, err := c.search.Nearest(ctx, item.Embedding, item.EmbeddingLineage.Model, since)
	if err != nil {
		return nil, fmt.Errorf("failed to search merge candidates: %w", err)
	}

	if match != nil && match.Similarity >= c.cfg.SimilarityThreshold {
		if match.Event.Suppressed {
			c.logger.Info("Item matches suppressed event, discarding",
				"item_id", item.ID,
				"event_id", match.Event.ID,
				"similarity", match.Similarity)
			return &Assignment{EventID: match.Event.ID, Suppressed: true}, nil
		}
		return c.join(ctx, match, item, mentionAt)
	}
	return c.seed(ctx, item, mentionAt)
}

func (c *Clusterer) join(ctx context.Context, match *services.EventMatch, item *models.RawItem, mentionAt time.Time) (*Assignment, error) {
	winnerID, err := c.store.LinkItem(ctx, match.Event.ID, item.ID, mentionAt)
	if err != nil {
		return nil, fmt.Errorf("failed to join event %s: %w", match.Event.ID, err)
	}

	if winnerID != match.Event.ID {
		c.logger.Debug("Item already clustered elsewhere",
			"item_id", item.ID, "event_id", winnerID)
		return &Assignment{EventID: winnerID}, nil
	}

	if match.Event.Lifecycle == models.LifecycleFading {
		if err := c.store.Revive(ctx, winnerID); err != nil {
			return nil, err
		}
	}
	if err := c.store.PromotePrimary(ctx, winnerID); err != nil {
		return nil, err
	}
	confirmed, err := c.store.Confirm(ctx, winnerID, c.cfg.ConfirmSources)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Item joined event",
		"item_id", item.ID,
		"event_id", winnerID,
		"similarity", match.Similarity,
		"confirmed", confirmed)
	return &Assignment{EventID: winnerID, Confirmed: confirmed}, nil
}

func (c *Clusterer) seed(ctx context.Context, item *models.RawItem, mentionAt time.Time) (*Assignment, error) {
	event := &models.Event{
		CanonicalSummary: item.Title,
		PrimaryItemID:    item.ID,
		Embedding:        item.Embedding,
		EmbeddingLineage: item.EmbeddingLineage,
		Lifecycle:        models.LifecycleEmerging,
		FirstSeenAt:      mentionAt,
		LastMentionAt:    mentionAt,
	}

	err := c.store.Create(ctx, event, item.ID)
	if errors.Is(err, services.ErrAlreadyExists) {
		// A concurrent worker linked this item while we were deciding.
		winnerID, lookupErr := c.store.EventIDForItem(ctx, item.ID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if winnerID == "" {
			return nil, fmt.Errorf("item %s reported clustered but has no event", item.ID)
		}
		return &Assignment{EventID: winnerID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to seed event: %w", err)
	}

	c.logger.Info("New event seeded", "event_id", event.ID, "item_id", item.ID)
	return &Assignment{EventID: event.ID, Created: true}, nil
}
