package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/trend"
)

// OutcomeService records predictions against reality for calibration. The
// predicted probability is always taken from the newest snapshot at or before
// the prediction date, never from live state.
type OutcomeService struct {
	pool   *pgxpool.Pool
	trends *TrendService
	logger *slog.Logger
}

// NewOutcomeService creates an OutcomeService.
func NewOutcomeService(pool *pgxpool.Pool, trends *TrendService) *OutcomeService {
	return &OutcomeService{
		pool:   pool,
		trends: trends,
		logger: slog.With("component", "outcome_service"),
	}
}

// Record resolves the prediction snapshot for (trendID, predictionDate),
// derives the predicted probability/risk/band from it, and stores the
// outcome. Brier score is computed only for resolved outcomes.
func (s *OutcomeService) Record(ctx context.Context, trendID string, predictionDate time.Time, outcome models.Outcome, outcomeDate *time.Time, notes string) (*models.TrendOutcome, error) {
	snap, err := s.trends.SnapshotAtOrBefore(ctx, trendID, predictionDate)
	if err != nil {
		return nil, err
	}

	p := trend.LogOddsToProb(snap.LogOdds)
	result := &models.TrendOutcome{
		ID:                   uuid.NewString(),
		TrendID:              trendID,
		PredictedProbability: p,
		PredictedRisk:        trend.RiskLevel(p),
		PredictedBand:        trend.ProbabilityBand(p),
		PredictionDate:       snap.Timestamp,
		Outcome:              outcome,
		OutcomeDate:          outcomeDate,
		Notes:                notes,
	}

	if outcome.Resolved() {
		actual := 0.0
		if outcome == models.OutcomeOccurred {
			actual = 1.0
		}
		brier := (p - actual) * (p - actual)
		result.BrierScore = &brier
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO trend_outcomes (
			id, trend_id, predicted_probability, predicted_risk, predicted_band,
			prediction_date, outcome, outcome_date, notes, brier_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		result.ID, result.TrendID, result.PredictedProbability,
		result.PredictedRisk, result.PredictedBand, result.PredictionDate,
		result.Outcome, result.OutcomeDate, result.Notes, result.BrierScore)
	if err != nil {
		return nil, fmt.Errorf("failed to record outcome: %w", err)
	}

	s.logger.Info("Outcome recorded",
		"trend_id", trendID,
		"outcome", outcome,
		"predicted_probability", p)
	return result, nil
}

// Resolved returns all resolved outcomes, oldest first.
func (s *OutcomeService) Resolved(ctx context.Context) ([]*models.TrendOutcome, error) {
	return s.query(ctx, `
		SELECT `+outcomeColumns+` FROM trend_outcomes
		WHERE outcome IN ('occurred', 'did_not_occur')
		ORDER BY prediction_date`)
}

// ForTrend returns all outcomes for one trend, newest first.
func (s *OutcomeService) ForTrend(ctx context.Context, trendID string) ([]*models.TrendOutcome, error) {
	return s.query(ctx, `
		SELECT `+outcomeColumns+` FROM trend_outcomes
		WHERE trend_id = $1 ORDER BY prediction_date DESC`, trendID)
}

// ResolvedCountByTrend returns resolved-outcome counts per trend, for
// low-sample coverage warnings.
func (s *OutcomeService) ResolvedCountByTrend(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT trend_id, count(*) FROM trend_outcomes
		WHERE outcome IN ('occurred', 'did_not_occur')
		GROUP BY trend_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var trendID string
		var n int
		if err := rows.Scan(&trendID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[trendID] = n
	}
	return counts, rows.Err()
}

const outcomeColumns = `
	id, trend_id, predicted_probability, predicted_risk, predicted_band,
	prediction_date, outcome, outcome_date, notes, brier_score, created_at`

func (s *OutcomeService) query(ctx context.Context, sql string, args ...any) ([]*models.TrendOutcome, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*models.TrendOutcome
	for rows.Next() {
		var o models.TrendOutcome
		err := rows.Scan(&o.ID, &o.TrendID, &o.PredictedProbability,
			&o.PredictedRisk, &o.PredictedBand, &o.PredictionDate,
			&o.Outcome, &o.OutcomeDate, &o.Notes, &o.BrierScore, &o.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, &o)
	}
	return outcomes, rows.Err()
}
