package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osintlab/trendwatch/pkg/dedup"
	"github.com/osintlab/trendwatch/pkg/metrics"
	"github.com/osintlab/trendwatch/pkg/models"
)

// ItemService persists raw items and implements the pending-work queue: items
// are claimed with FOR UPDATE SKIP LOCKED so concurrent workers never grab the
// same row, and stale claims are reaped back to pending.
type ItemService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewItemService creates an ItemService.
func NewItemService(pool *pgxpool.Pool) *ItemService {
	return &ItemService{
		pool:   pool,
		logger: slog.With("component", "item_service"),
	}
}

const itemColumns = `
	id, source_id, external_id, url, title, author, published_at, fetched_at,
	text, content_hash, language,
	embedding::text, embedding_model, embedding_generated_at,
	embedding_input_tokens, embedding_retained_tokens, embedding_truncated,
	processing_status, processing_started_at, processing_error, created_at`

// Create inserts a new pending item. The normalized URL is stored alongside
// the raw URL so dedup lookups hit the index directly.
func (s *ItemService) Create(ctx context.Context, item *models.RawItem, normalizedURL string) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.ProcessingStatus == "" {
		item.ProcessingStatus = models.StatusPending
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO raw_items (
			id, source_id, external_id, url, url_normalized, title, author,
			published_at, fetched_at, text, content_hash, language,
			processing_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		item.ID, item.SourceID, item.ExternalID, item.URL, normalizedURL,
		item.Title, item.Author, item.PublishedAt, item.FetchedAt,
		item.Text, item.ContentHash, item.Language, item.ProcessingStatus,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("item (%s, %s): %w", item.SourceID, item.ExternalID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// Get returns one item by id.
func (s *ItemService) Get(ctx context.Context, id string) (*models.RawItem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM raw_items WHERE id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return item, err
}

// Claim atomically takes the oldest pending item and marks it processing.
// maxConcurrent bounds the number of items in processing at once; when the
// bound is reached Claim returns ErrAtCapacity without claiming.
func (s *ItemService) Claim(ctx context.Context, maxConcurrent int) (*models.RawItem, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if maxConcurrent > 0 {
		var inFlight int
		err = tx.QueryRow(ctx,
			`SELECT count(*) FROM raw_items WHERE processing_status = 'processing'`,
		).Scan(&inFlight)
		if err != nil {
			return nil, fmt.Errorf("failed to count in-flight items: %w", err)
		}
		if inFlight >= maxConcurrent {
			return nil, ErrAtCapacity
		}
	}

	row := tx.QueryRow(ctx, `
		UPDATE raw_items SET
			processing_status = 'processing',
			processing_started_at = now()
		WHERE id = (
			SELECT id FROM raw_items
			WHERE processing_status = 'pending'
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+itemColumns)

	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoItemsAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim item: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return item, nil
}

// Release returns a claimed item to pending without recording an error, used
// when processing is denied by the budget guard rather than failed.
func (s *ItemService) Release(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE raw_items SET
			processing_status = 'pending',
			processing_started_at = NULL
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to release item %s: %w", id, err)
	}
	return nil
}

// Finish sets the terminal status for a processed item.
func (s *ItemService) Finish(ctx context.Context, id string, status models.ProcessingStatus, processingError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE raw_items SET
			processing_status = $2,
			processing_started_at = NULL,
			processing_error = $3
		WHERE id = $1`, id, status, processingError)
	if err != nil {
		return fmt.Errorf("failed to finish item %s: %w", id, err)
	}
	metrics.ItemsProcessed.WithLabelValues(string(status)).Inc()
	return nil
}

// SetEmbedding stores the vector and its full lineage.
func (s *ItemService) SetEmbedding(ctx context.Context, id string, vec models.Vector, lineage models.EmbeddingLineage) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE raw_items SET
			embedding = $2::vector,
			embedding_model = $3,
			embedding_generated_at = $4,
			embedding_input_tokens = $5,
			embedding_retained_tokens = $6,
			embedding_truncated = $7
		WHERE id = $1`,
		id, vec.String(), lineage.Model, lineage.GeneratedAt,
		lineage.InputTokens, lineage.RetainedTokens, lineage.Truncated)
	if err != nil {
		return fmt.Errorf("failed to set embedding for item %s: %w", id, err)
	}
	return nil
}

// ReapStale resets items stuck in processing longer than timeout back to
// pending. Returns the number of items reaped.
func (s *ItemService) ReapStale(ctx context.Context, timeout time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE raw_items SET
			processing_status = 'pending',
			processing_started_at = NULL
		WHERE processing_status = 'processing'
		  AND processing_started_at < now() - $1::interval`,
		timeout.String())
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale items: %w", err)
	}
	n := int(tag.RowsAffected())
	if n > 0 {
		metrics.ItemsReaped.Add(float64(n))
		s.logger.Warn("Reaped stale processing items", "count", n, "timeout", timeout)
	}
	return n, nil
}

// CountByStatus returns item counts grouped by processing status.
func (s *ItemService) CountByStatus(ctx context.Context) (map[models.ProcessingStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT processing_status, count(*) FROM raw_items GROUP BY processing_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ProcessingStatus]int)
	for rows.Next() {
		var status models.ProcessingStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan item count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// PurgeNoise deletes noise items older than the cutoff that belong to no
// event, for retention. Returns the number of rows deleted.
func (s *ItemService) PurgeNoise(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM raw_items
		WHERE processing_status = 'noise'
		  AND created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM event_items WHERE item_id = raw_items.id)`,
		olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge noise items: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// --- dedup.Store implementation -----------------------------------------

var _ dedup.Store = (*ItemService)(nil)

// FindItemIDByNormalizedURL returns the newest recent item with the same
// normalized URL, or "".
func (s *ItemService) FindItemIDByNormalizedURL(ctx context.Context, normalizedURL string, since time.Time) (string, error) {
	return s.findItemID(ctx, `
		SELECT id FROM raw_items
		WHERE url_normalized = $1 AND url_normalized <> '' AND created_at >= $2
		ORDER BY created_at DESC LIMIT 1`, normalizedURL, since)
}

// FindItemIDByExternalID returns the item with the same (source, external_id),
// or "". No recency bound: the pair is unique forever.
func (s *ItemService) FindItemIDByExternalID(ctx context.Context, sourceID, externalID string) (string, error) {
	return s.findItemID(ctx,
		`SELECT id FROM raw_items WHERE source_id = $1 AND external_id = $2`,
		sourceID, externalID)
}

// FindItemIDByContentHash returns the newest recent item with the same
// content hash, or "".
func (s *ItemService) FindItemIDByContentHash(ctx context.Context, hash string, since time.Time) (string, error) {
	return s.findItemID(ctx, `
		SELECT id FROM raw_items
		WHERE content_hash = $1 AND created_at >= $2
		ORDER BY created_at DESC LIMIT 1`, hash, since)
}

// NearestItemByEmbedding returns the most cosine-similar same-model item
// within the window, or nil. The candidate's own persisted row is excluded,
// otherwise an already embedded item would always match itself at 1.0.
func (s *ItemService) NearestItemByEmbedding(ctx context.Context, embedding models.Vector, model string, since time.Time, excludeItemID string) (*dedup.EmbeddingMatch, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, 1 - (embedding <=> $1::vector) AS similarity
		FROM raw_items
		WHERE embedding IS NOT NULL
		  AND embedding_model = $2
		  AND created_at >= $3
		  AND id::text <> $4
		ORDER BY embedding <=> $1::vector
		LIMIT 1`, embedding.String(), model, since, excludeItemID)

	var match dedup.EmbeddingMatch
	err := row.Scan(&match.ItemID, &match.Similarity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest item: %w", err)
	}
	return &match, nil
}

func (s *ItemService) findItemID(ctx context.Context, sql string, args ...any) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, sql, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query item id: %w", err)
	}
	return id, nil
}

func scanItem(row pgx.Row) (*models.RawItem, error) {
	var (
		item           models.RawItem
		embeddingText  *string
		embeddingModel *string
		generatedAt    *time.Time
		inputTokens    *int
		retainedTokens *int
		truncated      *bool
	)
	err := row.Scan(
		&item.ID, &item.SourceID, &item.ExternalID, &item.URL, &item.Title,
		&item.Author, &item.PublishedAt, &item.FetchedAt, &item.Text,
		&item.ContentHash, &item.Language,
		&embeddingText, &embeddingModel, &generatedAt,
		&inputTokens, &retainedTokens, &truncated,
		&item.ProcessingStatus, &item.ProcessingStartedAt,
		&item.ProcessingError, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if embeddingText != nil {
		vec, err := models.ParseVector(*embeddingText)
		if err != nil {
			return nil, fmt.Errorf("failed to parse item embedding: %w", err)
		}
		item.Embedding = vec
	}
	if embeddingModel != nil && generatedAt != nil {
		item.EmbeddingLineage = &models.EmbeddingLineage{
			Model:       *embeddingModel,
			GeneratedAt: *generatedAt,
		}
		if inputTokens != nil {
			item.EmbeddingLineage.InputTokens = *inputTokens
		}
		if retainedTokens != nil {
			item.EmbeddingLineage.RetainedTokens = *retainedTokens
		}
		if truncated != nil {
			item.EmbeddingLineage.Truncated = *truncated
		}
	}
	return &item, nil
}
