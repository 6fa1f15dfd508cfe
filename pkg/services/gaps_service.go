package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osintlab/trendwatch/pkg/metrics"
	"github.com/osintlab/trendwatch/pkg/models"
)

// GapService records Tier-2 impacts that named an unknown trend or signal
// type. Gaps queue taxonomy review; they never mutate trend state.
type GapService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewGapService creates a GapService.
func NewGapService(pool *pgxpool.Pool) *GapService {
	return &GapService{
		pool:   pool,
		logger: slog.With("component", "gap_service"),
	}
}

// Record inserts an open gap with the offending impact preserved verbatim.
func (s *GapService) Record(ctx context.Context, gap *models.TaxonomyGap) error {
	if gap.ID == "" {
		gap.ID = uuid.NewString()
	}
	if gap.Status == "" {
		gap.Status = models.GapOpen
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO taxonomy_gaps (id, reason, trend_id, signal_type, event_id, item_id, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		gap.ID, gap.Reason, gap.TrendID, gap.SignalType,
		gap.EventID, gap.ItemID, gap.Payload, gap.Status)
	if err != nil {
		return fmt.Errorf("failed to record taxonomy gap: %w", err)
	}

	metrics.TaxonomyGaps.WithLabelValues(string(gap.Reason)).Inc()
	s.logger.Warn("Taxonomy gap recorded",
		"reason", gap.Reason, "trend_id", gap.TrendID, "signal_type", gap.SignalType)
	return nil
}

// List returns gaps by status (empty means all), newest first.
func (s *GapService) List(ctx context.Context, status models.GapStatus, limit int) ([]*models.TaxonomyGap, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, reason, trend_id, signal_type, event_id, item_id,
		       payload, status, resolution, created_at, updated_at
		FROM taxonomy_gaps
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list taxonomy gaps: %w", err)
	}
	defer rows.Close()

	var gaps []*models.TaxonomyGap
	for rows.Next() {
		var gap models.TaxonomyGap
		err := rows.Scan(&gap.ID, &gap.Reason, &gap.TrendID, &gap.SignalType,
			&gap.EventID, &gap.ItemID, &gap.Payload, &gap.Status,
			&gap.Resolution, &gap.CreatedAt, &gap.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan taxonomy gap: %w", err)
		}
		gaps = append(gaps, &gap)
	}
	return gaps, rows.Err()
}

// Resolve closes a gap with a resolution note.
func (s *GapService) Resolve(ctx context.Context, id string, status models.GapStatus, resolution string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE taxonomy_gaps SET status = $2, resolution = $3, updated_at = now()
		WHERE id = $1`, id, status, resolution)
	if err != nil {
		return fmt.Errorf("failed to resolve gap %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("gap %s: %w", id, ErrNotFound)
	}
	return nil
}
