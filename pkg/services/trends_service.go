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

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/metrics"
	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/trend"
)

// TrendService owns the trends table and the evidence ledger. All log-odds
// mutations are relative SQL increments (current_log_odds + delta) so
// concurrent appliers serialize on the row instead of losing updates, and
// every applied delta is backed by exactly one ledger row.
type TrendService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewTrendService creates a TrendService.
func NewTrendService(pool *pgxpool.Pool) *TrendService {
	return &TrendService{
		pool:   pool,
		logger: slog.With("component", "trend_service"),
	}
}

// SyncDefinitions reconciles the trends table with the YAML registry on
// startup. New trends start at their baseline; changed definitions append an
// immutable version row; trends absent from YAML are deactivated, never
// deleted.
func (s *TrendService) SyncDefinitions(ctx context.Context, registry *config.TrendRegistry, actor string) error {
	for _, def := range registry.All() {
		if err := s.syncOne(ctx, def, actor); err != nil {
			return fmt.Errorf("failed to sync trend %s: %w", def.ID, err)
		}
	}

	ids := make([]string, 0, len(registry.All()))
	for _, def := range registry.All() {
		ids = append(ids, def.ID)
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE trends SET active = FALSE, updated_at = now()
		WHERE active = TRUE AND NOT (id = ANY($1))`, ids)
	if err != nil {
		return fmt.Errorf("failed to deactivate removed trends: %w", err)
	}
	return nil
}

func (s *TrendService) syncOne(ctx context.Context, def *models.TrendDefinition, actor string) error {
	defJSON, err := def.CanonicalJSON()
	if err != nil {
		return err
	}
	hash, err := def.Hash()
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin sync tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var existingHash string
	err = tx.QueryRow(ctx,
		`SELECT definition_hash FROM trends WHERE id = $1 FOR UPDATE`, def.ID,
	).Scan(&existingHash)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		baseline := trend.ProbToLogOdds(def.BaselineProbability)
		_, err = tx.Exec(ctx, `
			INSERT INTO trends (
				id, name, description, definition, definition_hash,
				baseline_log_odds, current_log_odds, decay_half_life_days, active
			) VALUES ($1, $2, $3, $4, $5, $6, $6, $7, TRUE)`,
			def.ID, def.Name, def.Description, defJSON, hash,
			baseline, def.DecayHalfLifeDays)
		if err != nil {
			return fmt.Errorf("failed to insert trend: %w", err)
		}
		if err := s.appendVersion(ctx, tx, def.ID, defJSON, hash, actor, "initial definition"); err != nil {
			return err
		}
		s.logger.Info("Registered new trend", "trend_id", def.ID, "baseline_log_odds", baseline)

	case err != nil:
		return fmt.Errorf("failed to load trend for sync: %w", err)

	case existingHash != hash:
		// Definition changed: metadata and decay parameters follow the YAML,
		// but current_log_odds is untouched so accumulated evidence survives.
		_, err = tx.Exec(ctx, `
			UPDATE trends SET
				name = $2, description = $3, definition = $4,
				definition_hash = $5, decay_half_life_days = $6,
				baseline_log_odds = $7, active = TRUE, updated_at = now()
			WHERE id = $1`,
			def.ID, def.Name, def.Description, defJSON, hash,
			def.DecayHalfLifeDays, trend.ProbToLogOdds(def.BaselineProbability))
		if err != nil {
			return fmt.Errorf("failed to update trend definition: %w", err)
		}
		if err := s.appendVersion(ctx, tx, def.ID, defJSON, hash, actor, "definition changed"); err != nil {
			return err
		}
		s.logger.Info("Trend definition updated", "trend_id", def.ID, "definition_hash", hash)

	default:
		_, err = tx.Exec(ctx,
			`UPDATE trends SET active = TRUE, updated_at = now() WHERE id = $1 AND active = FALSE`,
			def.ID)
		if err != nil {
			return fmt.Errorf("failed to reactivate trend: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *TrendService) appendVersion(ctx context.Context, db DB, trendID string, defJSON []byte, hash, actor, context_ string) error {
	_, err := db.Exec(ctx, `
		INSERT INTO trend_definition_versions (id, trend_id, definition, definition_hash, actor, context)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), trendID, defJSON, hash, actor, context_)
	if err != nil {
		return fmt.Errorf("failed to append definition version: %w", err)
	}
	return nil
}

// DefinitionHistory returns the audit trail of definition versions for a
// trend, newest first.
func (s *TrendService) DefinitionHistory(ctx context.Context, trendID string) ([]*models.TrendDefinitionVersion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, trend_id, definition, definition_hash, actor, context, created_at
		FROM trend_definition_versions
		WHERE trend_id = $1 ORDER BY created_at DESC`, trendID)
	if err != nil {
		return nil, fmt.Errorf("failed to query definition history: %w", err)
	}
	defer rows.Close()

	var versions []*models.TrendDefinitionVersion
	for rows.Next() {
		var v models.TrendDefinitionVersion
		err := rows.Scan(&v.ID, &v.TrendID, &v.DefinitionJSON, &v.DefinitionHash,
			&v.Actor, &v.Context, &v.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition version: %w", err)
		}
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

const trendColumns = `
	id, name, description, definition, definition_hash, baseline_log_odds,
	current_log_odds, decay_half_life_days, active, created_at, updated_at`

// Get returns one trend by id.
func (s *TrendService) Get(ctx context.Context, id string) (*models.Trend, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+trendColumns+` FROM trends WHERE id = $1`, id)
	t, err := scanTrend(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("trend %s: %w", id, ErrNotFound)
	}
	return t, err
}

// List returns all trends, active first, then by id.
func (s *TrendService) List(ctx context.Context) ([]*models.Trend, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+trendColumns+` FROM trends ORDER BY active DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trends: %w", err)
	}
	defer rows.Close()

	var trends []*models.Trend
	for rows.Next() {
		t, err := scanTrend(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trend: %w", err)
		}
		trends = append(trends, t)
	}
	return trends, rows.Err()
}

// PriorEvidence returns how many active ledger rows exist for (trend, signal)
// and when the newest was created, feeding the novelty discount.
func (s *TrendService) PriorEvidence(ctx context.Context, trendID, signalType string) (int, *time.Time, error) {
	var count int
	var last *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT count(*), max(created_at) FROM trend_evidence
		WHERE trend_id = $1 AND signal_type = $2 AND is_invalidated = FALSE`,
		trendID, signalType).Scan(&count, &last)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to query prior evidence: %w", err)
	}
	return count, last, nil
}

// ApplyEvidence atomically records a ledger row and applies its delta to the
// trend. The UNIQUE (trend_id, event_id, signal_type) constraint makes the
// operation idempotent: a replayed apply inserts nothing and moves nothing.
// Returns false when the evidence already existed.
func (s *TrendService) ApplyEvidence(ctx context.Context, ev *models.TrendEvidence) (bool, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin evidence tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `
		INSERT INTO trend_evidence (
			id, trend_id, event_id, signal_type,
			base_weight, credibility, corroboration_factor, novelty,
			evidence_age_days, temporal_decay_factor, severity, confidence,
			direction_multiplier, delta_log_odds, reasoning, trend_definition_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (trend_id, event_id, signal_type) DO NOTHING`,
		ev.ID, ev.TrendID, ev.EventID, ev.SignalType,
		ev.BaseWeight, ev.Credibility, ev.CorroborationFactor, ev.Novelty,
		ev.EvidenceAgeDays, ev.TemporalDecayFactor, ev.Severity, ev.Confidence,
		ev.DirectionMultiplier, ev.DeltaLogOdds, ev.Reasoning, ev.TrendDefinitionHash)
	if err != nil {
		return false, fmt.Errorf("failed to insert evidence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already applied for this (trend, event, signal): skip the increment.
		if err := tx.Commit(ctx); err != nil {
			return false, fmt.Errorf("failed to commit no-op evidence: %w", err)
		}
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE trends SET
			current_log_odds = current_log_odds + $2,
			updated_at = now()
		WHERE id = $1`, ev.TrendID, ev.DeltaLogOdds)
	if err != nil {
		return false, fmt.Errorf("failed to apply delta: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit evidence: %w", err)
	}

	metrics.EvidenceApplied.WithLabelValues(ev.TrendID).Inc()
	s.logger.Info("Evidence applied",
		"trend_id", ev.TrendID,
		"event_id", ev.EventID,
		"signal_type", ev.SignalType,
		"delta_log_odds", ev.DeltaLogOdds)
	return true, nil
}

// ApplyDecay relaxes every active trend toward its baseline using the elapsed
// time since the trend's last decay. Each trend is row-locked so decay and
// evidence application serialize.
func (s *TrendService) ApplyDecay(ctx context.Context, now time.Time) error {
	ids, err := s.activeTrendIDs(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.decayOne(ctx, id, now); err != nil {
			return fmt.Errorf("failed to decay trend %s: %w", id, err)
		}
	}
	return nil
}

func (s *TrendService) decayOne(ctx context.Context, trendID string, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin decay tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		current, baseline, halfLife float64
		lastDecayAt                 time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT current_log_odds, baseline_log_odds, decay_half_life_days, last_decay_at
		FROM trends WHERE id = $1 FOR UPDATE`, trendID,
	).Scan(&current, &baseline, &halfLife, &lastDecayAt)
	if err != nil {
		return fmt.Errorf("failed to lock trend for decay: %w", err)
	}

	elapsedDays := now.Sub(lastDecayAt).Hours() / 24
	if elapsedDays <= 0 {
		return tx.Commit(ctx)
	}

	decayed := trend.Decay(current, baseline, elapsedDays, halfLife)
	_, err = tx.Exec(ctx, `
		UPDATE trends SET current_log_odds = $2, last_decay_at = $3, updated_at = now()
		WHERE id = $1`, trendID, decayed, now)
	if err != nil {
		return fmt.Errorf("failed to write decayed log-odds: %w", err)
	}
	return tx.Commit(ctx)
}

// RecordSnapshots appends one snapshot row per active trend.
func (s *TrendService) RecordSnapshots(ctx context.Context, now time.Time, eventCount func(ctx context.Context, trendID string) (int, error)) error {
	trends, err := s.List(ctx)
	if err != nil {
		return err
	}

	for _, t := range trends {
		if !t.Active {
			continue
		}
		count := 0
		if eventCount != nil {
			count, err = eventCount(ctx, t.ID)
			if err != nil {
				return fmt.Errorf("failed to count events for snapshot: %w", err)
			}
		}
		_, err = s.pool.Exec(ctx, `
			INSERT INTO trend_snapshots (trend_id, "timestamp", log_odds, event_count_24h)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (trend_id, "timestamp") DO NOTHING`,
			t.ID, now, t.CurrentLogOdds, count)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot for %s: %w", t.ID, err)
		}
	}
	return nil
}

// History returns snapshots for a trend in [since, until], oldest first.
func (s *TrendService) History(ctx context.Context, trendID string, since, until time.Time) ([]models.TrendSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT trend_id, "timestamp", log_odds, event_count_24h
		FROM trend_snapshots
		WHERE trend_id = $1 AND "timestamp" >= $2 AND "timestamp" <= $3
		ORDER BY "timestamp"`, trendID, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var snaps []models.TrendSnapshot
	for rows.Next() {
		var snap models.TrendSnapshot
		if err := rows.Scan(&snap.TrendID, &snap.Timestamp, &snap.LogOdds, &snap.EventCount24h); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// SnapshotAtOrBefore returns the newest snapshot at or before ts, used to
// resolve outcomes against what the system believed at prediction time.
func (s *TrendService) SnapshotAtOrBefore(ctx context.Context, trendID string, ts time.Time) (*models.TrendSnapshot, error) {
	var snap models.TrendSnapshot
	err := s.pool.QueryRow(ctx, `
		SELECT trend_id, "timestamp", log_odds, event_count_24h
		FROM trend_snapshots
		WHERE trend_id = $1 AND "timestamp" <= $2
		ORDER BY "timestamp" DESC LIMIT 1`, trendID, ts,
	).Scan(&snap.TrendID, &snap.Timestamp, &snap.LogOdds, &snap.EventCount24h)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no snapshot for trend %s at %s: %w", trendID, ts, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return &snap, nil
}

// InvalidateEventEvidence flips every active ledger row for an event and
// applies the reverse delta to each affected trend, all in one transaction.
// Rows are never deleted. Returns the number of rows invalidated.
func (s *TrendService) InvalidateEventEvidence(ctx context.Context, eventID, feedbackID string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin invalidation tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, `
		UPDATE trend_evidence SET
			is_invalidated = TRUE,
			invalidated_at = now(),
			invalidation_feedback_id = $2
		WHERE event_id = $1 AND is_invalidated = FALSE
		RETURNING trend_id, delta_log_odds`, eventID, feedbackID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate evidence: %w", err)
	}

	reversals := make(map[string]float64)
	count := 0
	for rows.Next() {
		var trendID string
		var delta float64
		if err := rows.Scan(&trendID, &delta); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan invalidated row: %w", err)
		}
		reversals[trendID] += delta
		count++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read invalidated rows: %w", err)
	}

	for trendID, total := range reversals {
		_, err = tx.Exec(ctx, `
			UPDATE trends SET
				current_log_odds = current_log_odds - $2,
				updated_at = now()
			WHERE id = $1`, trendID, total)
		if err != nil {
			return 0, fmt.Errorf("failed to reverse delta on %s: %w", trendID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit invalidation: %w", err)
	}

	if count > 0 {
		s.logger.Info("Invalidated event evidence",
			"event_id", eventID, "rows", count, "trends", len(reversals))
	}
	return count, nil
}

// NudgeLogOdds applies a clamped manual delta directly to a trend, for the
// override_delta feedback action. The audit trail is the feedback row itself.
func (s *TrendService) NudgeLogOdds(ctx context.Context, trendID string, delta float64) (float64, error) {
	clamped := trend.ClampDelta(delta)
	var current float64
	err := s.pool.QueryRow(ctx, `
		UPDATE trends SET current_log_odds = current_log_odds + $2, updated_at = now()
		WHERE id = $1
		RETURNING current_log_odds`, trendID, clamped,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("trend %s: %w", trendID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to nudge trend %s: %w", trendID, err)
	}
	return current, nil
}

// EvidenceForTrend returns ledger rows for a trend, newest first, including
// invalidated rows (the ledger is the audit trail).
func (s *TrendService) EvidenceForTrend(ctx context.Context, trendID string, limit int) ([]*models.TrendEvidence, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryEvidence(ctx, `
		SELECT `+evidenceColumns+` FROM trend_evidence
		WHERE trend_id = $1 ORDER BY created_at DESC LIMIT $2`, trendID, limit)
}

// EvidenceForEvent returns ledger rows produced by one event.
func (s *TrendService) EvidenceForEvent(ctx context.Context, eventID string) ([]*models.TrendEvidence, error) {
	return s.queryEvidence(ctx, `
		SELECT `+evidenceColumns+` FROM trend_evidence
		WHERE event_id = $1 ORDER BY created_at`, eventID)
}

// ActiveEvidenceSince returns active ledger rows for a trend created after the
// cutoff, oldest first. Replay uses this to rebuild trajectories.
func (s *TrendService) ActiveEvidenceSince(ctx context.Context, trendID string, since time.Time) ([]*models.TrendEvidence, error) {
	return s.queryEvidence(ctx, `
		SELECT `+evidenceColumns+` FROM trend_evidence
		WHERE trend_id = $1 AND created_at >= $2 AND is_invalidated = FALSE
		ORDER BY created_at`, trendID, since)
}

const evidenceColumns = `
	id, trend_id, event_id, signal_type, base_weight, credibility,
	corroboration_factor, novelty, evidence_age_days, temporal_decay_factor,
	severity, confidence, direction_multiplier, delta_log_odds, reasoning,
	trend_definition_hash, is_invalidated, invalidated_at,
	invalidation_feedback_id, created_at`

func (s *TrendService) queryEvidence(ctx context.Context, sql string, args ...any) ([]*models.TrendEvidence, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}
	defer rows.Close()

	var evidence []*models.TrendEvidence
	for rows.Next() {
		var ev models.TrendEvidence
		err := rows.Scan(
			&ev.ID, &ev.TrendID, &ev.EventID, &ev.SignalType,
			&ev.BaseWeight, &ev.Credibility, &ev.CorroborationFactor, &ev.Novelty,
			&ev.EvidenceAgeDays, &ev.TemporalDecayFactor, &ev.Severity, &ev.Confidence,
			&ev.DirectionMultiplier, &ev.DeltaLogOdds, &ev.Reasoning,
			&ev.TrendDefinitionHash, &ev.Invalidated, &ev.InvalidatedAt,
			&ev.InvalidationFeedbackID, &ev.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		evidence = append(evidence, &ev)
	}
	return evidence, rows.Err()
}

// RetainSnapshots deletes snapshot rows older than the cutoff.
func (s *TrendService) RetainSnapshots(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trend_snapshots WHERE "timestamp" < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *TrendService) activeTrendIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM trends WHERE active = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active trends: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan trend id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanTrend(row pgx.Row) (*models.Trend, error) {
	var t models.Trend
	var defJSON []byte
	var defHash string
	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &defJSON, &defHash,
		&t.BaselineLogOdds, &t.CurrentLogOdds, &t.DecayHalfLifeDays,
		&t.Active, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(defJSON) > 0 {
		if err := unmarshalDefinition(defJSON, &t); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func unmarshalDefinition(data []byte, t *models.Trend) error {
	var def models.TrendDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("failed to unmarshal trend definition: %w", err)
	}
	t.Definition = &def
	return nil
}
