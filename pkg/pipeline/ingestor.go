package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/osintlab/trendwatch/pkg/dedup"
	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/services"
)

// Ingestor admits collector output into the raw_items queue. Cheap dedup
// filters (URL, external id, content hash) run here; embedding-level dedup
// waits until the item earns a vector in the pipeline.
type Ingestor struct {
	items   *services.ItemService
	sources *services.SourceService
	dedup   *dedup.Deduplicator
	logger  *slog.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(items *services.ItemService, sources *services.SourceService, d *dedup.Deduplicator) *Ingestor {
	return &Ingestor{
		items:   items,
		sources: sources,
		dedup:   d,
		logger:  slog.With("component", "ingestor"),
	}
}

// Ingest stores one collected item unless dedup rejects it. Returns true when
// the item was admitted. The source watermark advances either way: a
// duplicate still proves the source delivered up to that timestamp.
func (i *Ingestor) Ingest(ctx context.Context, item *models.RawItem) (bool, error) {
	if item.ContentHash == "" {
		item.ContentHash = models.ContentHash(item.Text)
	}

	verdict, err := i.dedup.Check(ctx, dedup.Candidate{
		SourceID:    item.SourceID,
		ExternalID:  item.ExternalID,
		URL:         item.URL,
		ContentHash: item.ContentHash,
	})
	if err != nil {
		return false, fmt.Errorf("ingest dedup: %w", err)
	}

	admitted := false
	if !verdict.Duplicate {
		err = i.items.Create(ctx, item, i.dedup.NormalizeURL(item.URL))
		switch {
		case errors.Is(err, services.ErrAlreadyExists):
			// Raced another replica on (source, external_id); same as a dup.
			i.logger.Debug("Item lost ingest race", "source_id", item.SourceID, "external_id", item.ExternalID)
		case err != nil:
			return false, err
		default:
			admitted = true
		}
	}

	if item.PublishedAt != nil {
		if err := i.sources.AdvanceWatermark(ctx, item.SourceID, *item.PublishedAt); err != nil {
			return admitted, err
		}
	}
	return admitted, nil
}
