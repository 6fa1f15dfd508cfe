package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/models"
)

// SourceService syncs the sources table from YAML and maintains per-source
// ingest watermarks. Sources are deactivated, never deleted, so credibility
// history behind existing evidence stays resolvable.
type SourceService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSourceService creates a SourceService.
func NewSourceService(pool *pgxpool.Pool) *SourceService {
	return &SourceService{
		pool:   pool,
		logger: slog.With("component", "source_service"),
	}
}

// SyncFromRegistry upserts every configured source and deactivates the rest.
func (s *SourceService) SyncFromRegistry(ctx context.Context, registry *config.SourceRegistry) error {
	defs := registry.All()
	ids := make([]string, 0, len(defs))

	for _, def := range defs {
		ids = append(ids, def.ID)
		_, err := s.pool.Exec(ctx, `
			INSERT INTO sources (id, name, type, url, credibility_score, source_tier, reporting_type, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				type = EXCLUDED.type,
				url = EXCLUDED.url,
				credibility_score = EXCLUDED.credibility_score,
				source_tier = EXCLUDED.source_tier,
				reporting_type = EXCLUDED.reporting_type,
				active = EXCLUDED.active,
				updated_at = now()`,
			def.ID, def.Name, def.Type, def.URL, def.CredibilityScore,
			def.Tier, def.ReportingType, def.IsActive())
		if err != nil {
			return fmt.Errorf("failed to sync source %s: %w", def.ID, err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE sources SET active = FALSE, updated_at = now()
		WHERE active = TRUE AND NOT (id = ANY($1))`, ids)
	if err != nil {
		return fmt.Errorf("failed to deactivate removed sources: %w", err)
	}

	s.logger.Info("Sources synced", "configured", len(defs))
	return nil
}

// Get returns one source by id.
func (s *SourceService) Get(ctx context.Context, id string) (*models.Source, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, type, url, credibility_score, source_tier, reporting_type,
		       active, last_fetched_at, ingest_watermark, created_at, updated_at
		FROM sources WHERE id = $1`, id)

	var src models.Source
	err := row.Scan(&src.ID, &src.Name, &src.Type, &src.URL,
		&src.CredibilityScore, &src.Tier, &src.ReportingType, &src.Active,
		&src.LastFetchedAt, &src.IngestWatermark, &src.CreatedAt, &src.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load source: %w", err)
	}
	return &src, nil
}

// AdvanceWatermark moves the ingest watermark forward only; an older
// timestamp is a no-op.
func (s *SourceService) AdvanceWatermark(ctx context.Context, id string, publishedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sources SET
			ingest_watermark = GREATEST(COALESCE(ingest_watermark, 'epoch'::timestamptz), $2),
			last_fetched_at = now(),
			updated_at = now()
		WHERE id = $1`, id, publishedAt)
	if err != nil {
		return fmt.Errorf("failed to advance watermark for %s: %w", id, err)
	}
	return nil
}
