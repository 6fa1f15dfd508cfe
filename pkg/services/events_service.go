package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osintlab/trendwatch/pkg/models"
)

// EventService persists event clusters and their item membership. Membership
// writes go through the event_items junction first (item_id is the primary
// key there, so an item can never join two events), and event metadata is
// recomputed from the junction afterwards.
type EventService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewEventService creates an EventService.
func NewEventService(pool *pgxpool.Pool) *EventService {
	return &EventService{
		pool:   pool,
		logger: slog.With("component", "event_service"),
	}
}

const eventColumns = `
	id, canonical_summary, primary_item_id, embedding::text, embedding_model,
	embedding_generated_at, extraction, claims, categories,
	source_count, unique_source_count, lifecycle_status,
	first_seen_at, last_mention_at, confirmed_at,
	contradicted, contradiction_notes, suppressed, pinned,
	created_at, updated_at`

// EventMatch is one nearest-neighbor candidate for clustering.
type EventMatch struct {
	Event      *models.Event
	Similarity float64
}

// Create inserts a new emerging event seeded from one item. The item link is
// written in the same transaction, so a conflicting concurrent link makes the
// whole creation roll back and the caller retries against the winner.
func (s *EventService) Create(ctx context.Context, event *models.Event, seedItemID string) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Lifecycle == "" {
		event.Lifecycle = models.LifecycleEmerging
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin event create tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var model *string
	var generatedAt *time.Time
	if event.EmbeddingLineage != nil {
		model = &event.EmbeddingLineage.Model
		generatedAt = &event.EmbeddingLineage.GeneratedAt
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO events (
			id, canonical_summary, primary_item_id, embedding, embedding_model,
			embedding_generated_at, lifecycle_status, first_seen_at,
			last_mention_at, source_count, unique_source_count
		) VALUES ($1, $2, $3, $4::vector, $5, $6, $7, $8, $9, 1, 1)`,
		event.ID, event.CanonicalSummary, nullIfEmpty(event.PrimaryItemID),
		vectorOrNil(event.Embedding), model, generatedAt,
		event.Lifecycle, event.FirstSeenAt, event.LastMentionAt)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO event_items (item_id, event_id) VALUES ($1, $2)`,
		seedItemID, event.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("item %s already clustered: %w", seedItemID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to link seed item: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit event create: %w", err)
	}
	return nil
}

// Get returns one event by id.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	event, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return event, err
}

// LinkItem attaches an item to an event. The junction insert uses ON CONFLICT
// DO NOTHING on the item primary key: if a concurrent worker linked the item
// first, the existing winner event id is returned and no metadata changes.
func (s *EventService) LinkItem(ctx context.Context, eventID, itemID string, mentionAt time.Time) (winnerEventID string, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin link tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `
		INSERT INTO event_items (item_id, event_id) VALUES ($1, $2)
		ON CONFLICT (item_id) DO NOTHING`, itemID, eventID)
	if err != nil {
		return "", fmt.Errorf("failed to link item %s: %w", itemID, err)
	}

	if tag.RowsAffected() == 0 {
		// Lost the race: surface the winner so the caller can re-target.
		err = tx.QueryRow(ctx,
			`SELECT event_id FROM event_items WHERE item_id = $1`, itemID,
		).Scan(&winnerEventID)
		if err != nil {
			return "", fmt.Errorf("failed to resolve winning event: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return "", fmt.Errorf("failed to commit link: %w", err)
		}
		s.logger.Debug("Item link race resolved to existing event",
			"item_id", itemID, "event_id", winnerEventID)
		return winnerEventID, nil
	}

	if err := s.recomputeStats(ctx, tx, eventID, mentionAt); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit link: %w", err)
	}
	return eventID, nil
}

// recomputeStats refreshes the counters derived from the junction and bumps
// last_mention_at. Runs inside the caller's transaction.
func (s *EventService) recomputeStats(ctx context.Context, db DB, eventID string, mentionAt time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE events SET
			source_count = sub.total,
			unique_source_count = sub.uniq,
			last_mention_at = GREATEST(last_mention_at, $2),
			updated_at = now()
		FROM (
			SELECT count(*) AS total, count(DISTINCT ri.source_id) AS uniq
			FROM event_items ei
			JOIN raw_items ri ON ri.id = ei.item_id
			WHERE ei.event_id = $1
		) sub
		WHERE id = $1`, eventID, mentionAt)
	if err != nil {
		return fmt.Errorf("failed to recompute event stats: %w", err)
	}
	return nil
}

// PromotePrimary re-elects the primary item as the member from the most
// credible source (ties broken by earlier publication) and rewrites the
// canonical summary from it.
func (s *EventService) PromotePrimary(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE events SET
			primary_item_id = best.id,
			canonical_summary = best.title,
			updated_at = now()
		FROM (
			SELECT ri.id, ri.title
			FROM event_items ei
			JOIN raw_items ri ON ri.id = ei.item_id
			JOIN sources src ON src.id = ri.source_id
			WHERE ei.event_id = $1
			ORDER BY src.credibility_score DESC,
			         COALESCE(ri.published_at, ri.fetched_at) ASC
			LIMIT 1
		) best
		WHERE events.id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("failed to promote primary item: %w", err)
	}
	return nil
}

// UpdateAnalysis stores the Tier-2 output on the event.
func (s *EventService) UpdateAnalysis(ctx context.Context, eventID string, extraction *models.Extraction, claims *models.ClaimGraph, categories []string, summary string) error {
	extractionJSON, err := marshalOrNil(extraction)
	if err != nil {
		return fmt.Errorf("failed to marshal extraction: %w", err)
	}
	claimsJSON, err := marshalOrNil(claims)
	if err != nil {
		return fmt.Errorf("failed to marshal claims: %w", err)
	}

	contradicted := claims.HasContradiction()
	if categories == nil {
		categories = []string{}
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE events SET
			extraction = $2,
			claims = $3,
			categories = $4,
			canonical_summary = CASE WHEN $5 <> '' THEN $5 ELSE canonical_summary END,
			contradicted = $6,
			updated_at = now()
		WHERE id = $1`,
		eventID, extractionJSON, claimsJSON, categories, summary, contradicted)
	if err != nil {
		return fmt.Errorf("failed to update event analysis: %w", err)
	}
	return nil
}

// SetCategories overwrites the category list, recording nothing else. Used by
// the correct_category feedback action.
func (s *EventService) SetCategories(ctx context.Context, eventID string, categories []string) error {
	if categories == nil {
		categories = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE events SET categories = $2, updated_at = now() WHERE id = $1`,
		eventID, categories)
	if err != nil {
		return fmt.Errorf("failed to set event categories: %w", err)
	}
	return nil
}

// Suppress marks an event suppressed so it accepts no new members and is
// skipped by lifecycle sweeps.
func (s *EventService) Suppress(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE events SET suppressed = TRUE, updated_at = now() WHERE id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("failed to suppress event %s: %w", eventID, err)
	}
	return nil
}

// Pin protects an event from fading and archival.
func (s *EventService) Pin(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE events SET pinned = TRUE, updated_at = now() WHERE id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("failed to pin event %s: %w", eventID, err)
	}
	return nil
}

// nearestEventSQL finds the closest same-model candidate first seen inside
// the window. Suppressed events stay in the candidate set on purpose: a match
// against one tells the clusterer to discard the item rather than seed a
// fresh copy of a killed story. Cross-model candidates are excluded at the
// SQL level, never compared. Equidistant candidates resolve to the oldest.
const nearestEventSQL = `
	SELECT ` + eventColumns + `, 1 - (embedding <=> $1::vector) AS similarity
	FROM events
	WHERE embedding IS NOT NULL
	  AND embedding_model = $2
	  AND first_seen_at >= $3
	  AND lifecycle_status <> 'archived'
	ORDER BY embedding <=> $1::vector, first_seen_at ASC
	LIMIT 1`

// Nearest returns the best merge candidate via an exact scan, or nil.
func (s *EventService) Nearest(ctx context.Context, embedding models.Vector, model string, since time.Time) (*EventMatch, error) {
	row := s.pool.QueryRow(ctx, nearestEventSQL, embedding.String(), model, since)

	event, similarity, err := scanEventWithSimilarity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest event: %w", err)
	}
	return &EventMatch{Event: event, Similarity: similarity}, nil
}

// NearestApproximate is Nearest through the IVFFlat index: the probe count is
// pinned for the statement so recall does not depend on server defaults.
func (s *EventService) NearestApproximate(ctx context.Context, embedding models.Vector, model string, since time.Time, probes int) (*EventMatch, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin nearest-event tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("failed to set ivfflat probes: %w", err)
	}

	row := tx.QueryRow(ctx, nearestEventSQL, embedding.String(), model, since)
	event, similarity, err := scanEventWithSimilarity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tx.Commit(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit nearest-event tx: %w", err)
	}
	return &EventMatch{Event: event, Similarity: similarity}, nil
}

// Confirm promotes an emerging event once enough distinct sources mention it.
// Returns true when the transition happened in this call.
func (s *EventService) Confirm(ctx context.Context, eventID string, minSources int) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE events SET
			lifecycle_status = 'confirmed',
			confirmed_at = now(),
			updated_at = now()
		WHERE id = $1
		  AND lifecycle_status = 'emerging'
		  AND suppressed = FALSE
		  AND unique_source_count >= $2`, eventID, minSources)
	if err != nil {
		return false, fmt.Errorf("failed to confirm event %s: %w", eventID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Revive returns a fading event to confirmed after a fresh mention.
func (s *EventService) Revive(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE events SET lifecycle_status = 'confirmed', updated_at = now()
		WHERE id = $1 AND lifecycle_status = 'fading'`, eventID)
	if err != nil {
		return fmt.Errorf("failed to revive event %s: %w", eventID, err)
	}
	return nil
}

// SweepLifecycles runs the periodic fading and archival transitions. Pinned
// and suppressed events are untouched. Returns (faded, archived) counts.
func (s *EventService) SweepLifecycles(ctx context.Context, fadeAfter, archiveAfter time.Duration) (int, int, error) {
	fadedTag, err := s.pool.Exec(ctx, `
		UPDATE events SET lifecycle_status = 'fading', updated_at = now()
		WHERE lifecycle_status IN ('emerging', 'confirmed')
		  AND suppressed = FALSE AND pinned = FALSE
		  AND last_mention_at < now() - $1::interval`,
		fadeAfter.String())
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fade events: %w", err)
	}

	archivedTag, err := s.pool.Exec(ctx, `
		UPDATE events SET lifecycle_status = 'archived', updated_at = now()
		WHERE lifecycle_status = 'fading'
		  AND suppressed = FALSE AND pinned = FALSE
		  AND last_mention_at < now() - $1::interval`,
		archiveAfter.String())
	if err != nil {
		return 0, 0, fmt.Errorf("failed to archive events: %w", err)
	}

	faded, archived := int(fadedTag.RowsAffected()), int(archivedTag.RowsAffected())
	if faded > 0 || archived > 0 {
		s.logger.Info("Event lifecycle sweep complete", "faded", faded, "archived", archived)
	}
	return faded, archived, nil
}

// EventFilter narrows List. Zero values mean "no constraint".
type EventFilter struct {
	Lifecycle    models.LifecycleStatus
	Category     string
	TrendID      string
	Contradicted *bool
	Since        time.Time
	Limit        int
}

// List returns non-suppressed events matching the filter, newest first.
// TrendID matches events with active evidence on that trend.
func (s *EventService) List(ctx context.Context, f EventFilter) ([]*models.Event, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	var since *time.Time
	if !f.Since.IsZero() {
		since = &f.Since
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM events e
		WHERE suppressed = FALSE
		  AND ($1 = '' OR lifecycle_status = $1)
		  AND ($2 = '' OR $2 = ANY(categories))
		  AND ($3::boolean IS NULL OR contradicted = $3)
		  AND ($4::timestamptz IS NULL OR last_mention_at >= $4)
		  AND ($5 = '' OR EXISTS (
			SELECT 1 FROM trend_evidence te
			WHERE te.event_id = e.id AND te.trend_id = $5 AND te.is_invalidated = FALSE))
		ORDER BY last_mention_at DESC
		LIMIT $6`,
		string(f.Lifecycle), f.Category, f.Contradicted, since, f.TrendID, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// ReviewQueue returns live events that need analyst attention: contradicted
// ones and confirmed events still resting on a single source.
func (s *EventService) ReviewQueue(ctx context.Context, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE suppressed = FALSE
		  AND lifecycle_status NOT IN ('archived')
		  AND (contradicted = TRUE
		       OR (lifecycle_status = 'confirmed' AND unique_source_count < 2))
		ORDER BY last_mention_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query review queue: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// SourceReliabilityStats aggregates, per source, how many of its member
// events ended contradicted or suppressed. Sources with fewer than minEvents
// member events are omitted: too small to read anything into.
func (s *EventService) SourceReliabilityStats(ctx context.Context, minEvents int) ([]*models.SourceReliability, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT src.id, src.name, src.source_tier,
		       COUNT(DISTINCT e.id) AS events,
		       COUNT(DISTINCT e.id) FILTER (WHERE e.contradicted OR e.suppressed) AS contradicted
		FROM sources src
		JOIN raw_items ri ON ri.source_id = src.id
		JOIN event_items ei ON ei.item_id = ri.id
		JOIN events e ON e.id = ei.event_id
		GROUP BY src.id, src.name, src.source_tier
		HAVING COUNT(DISTINCT e.id) >= $1
		ORDER BY src.id`, minEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to query source reliability: %w", err)
	}
	defer rows.Close()

	var stats []*models.SourceReliability
	for rows.Next() {
		var r models.SourceReliability
		if err := rows.Scan(&r.SourceID, &r.Name, &r.Tier, &r.EventCount, &r.ContradictedCount); err != nil {
			return nil, fmt.Errorf("failed to scan source reliability: %w", err)
		}
		r.ContradictedRate = float64(r.ContradictedCount) / float64(r.EventCount)
		stats = append(stats, &r)
	}
	return stats, rows.Err()
}

// TierReliabilityStats is SourceReliabilityStats aggregated per source tier.
func (s *EventService) TierReliabilityStats(ctx context.Context, minEvents int) ([]*models.TierReliability, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT src.source_tier,
		       COUNT(DISTINCT e.id) AS events,
		       COUNT(DISTINCT e.id) FILTER (WHERE e.contradicted OR e.suppressed) AS contradicted
		FROM sources src
		JOIN raw_items ri ON ri.source_id = src.id
		JOIN event_items ei ON ei.item_id = ri.id
		JOIN events e ON e.id = ei.event_id
		GROUP BY src.source_tier
		HAVING COUNT(DISTINCT e.id) >= $1
		ORDER BY src.source_tier`, minEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to query tier reliability: %w", err)
	}
	defer rows.Close()

	var stats []*models.TierReliability
	for rows.Next() {
		var r models.TierReliability
		if err := rows.Scan(&r.Tier, &r.EventCount, &r.ContradictedCount); err != nil {
			return nil, fmt.Errorf("failed to scan tier reliability: %w", err)
		}
		r.ContradictedRate = float64(r.ContradictedCount) / float64(r.EventCount)
		stats = append(stats, &r)
	}
	return stats, rows.Err()
}

// EventIDForItem returns the event an item belongs to, or "" when unlinked.
func (s *EventService) EventIDForItem(ctx context.Context, itemID string) (string, error) {
	var eventID string
	err := s.pool.QueryRow(ctx,
		`SELECT event_id FROM event_items WHERE item_id = $1`, itemID).Scan(&eventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve event for item: %w", err)
	}
	return eventID, nil
}

// MemberItemIDs returns the item ids linked to an event, oldest first.
func (s *EventService) MemberItemIDs(ctx context.Context, eventID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT item_id FROM event_items WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list event members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EventCountSince counts events linked to a trend's active evidence created
// after the cutoff, for snapshot event_count_24h.
func (s *EventService) EventCountSince(ctx context.Context, trendID string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(DISTINCT event_id) FROM trend_evidence
		WHERE trend_id = $1 AND created_at >= $2 AND is_invalidated = FALSE`,
		trendID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count trend events: %w", err)
	}
	return n, nil
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	event, _, err := scanEventFields(row, false)
	return event, err
}

func scanEventWithSimilarity(row pgx.Row) (*models.Event, float64, error) {
	return scanEventFields(row, true)
}

func scanEventFields(row pgx.Row, withSimilarity bool) (*models.Event, float64, error) {
	var (
		event          models.Event
		primaryItemID  *string
		embeddingText  *string
		embeddingModel *string
		generatedAt    *time.Time
		extractionJSON []byte
		claimsJSON     []byte
		similarity     float64
	)

	dest := []any{
		&event.ID, &event.CanonicalSummary, &primaryItemID,
		&embeddingText, &embeddingModel, &generatedAt,
		&extractionJSON, &claimsJSON, &event.Categories,
		&event.SourceCount, &event.UniqueSourceCount, &event.Lifecycle,
		&event.FirstSeenAt, &event.LastMentionAt, &event.ConfirmedAt,
		&event.Contradicted, &event.ContradictionNotes,
		&event.Suppressed, &event.Pinned,
		&event.CreatedAt, &event.UpdatedAt,
	}
	if withSimilarity {
		dest = append(dest, &similarity)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, 0, err
	}

	if primaryItemID != nil {
		event.PrimaryItemID = *primaryItemID
	}
	if embeddingText != nil {
		vec, err := models.ParseVector(*embeddingText)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to parse event embedding: %w", err)
		}
		event.Embedding = vec
	}
	if embeddingModel != nil && generatedAt != nil {
		event.EmbeddingLineage = &models.EmbeddingLineage{
			Model:       *embeddingModel,
			GeneratedAt: *generatedAt,
		}
	}
	if len(extractionJSON) > 0 {
		if err := json.Unmarshal(extractionJSON, &event.Extraction); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal extraction: %w", err)
		}
	}
	if len(claimsJSON) > 0 {
		if err := json.Unmarshal(claimsJSON, &event.Claims); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal claims: %w", err)
		}
	}
	return &event, similarity, nil
}

func marshalOrNil(v any) ([]byte, error) {
	switch typed := v.(type) {
	case *models.Extraction:
		if typed == nil {
			return nil, nil
		}
	case *models.ClaimGraph:
		if typed == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func vectorOrNil(v models.Vector) *string {
	if len(v) == 0 {
		return nil
	}
	text := v.String()
	return &text
}
