package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/metrics"
	"github.com/osintlab/trendwatch/pkg/models"
)

// UsageService tracks daily API spend per tier and enforces the budget caps.
// Reservation is a single conditional upsert, so N workers racing for the
// last slot of the day produce exactly one grant and N-1 denials with no
// read-then-write window.
type UsageService struct {
	pool   *pgxpool.Pool
	cfg    *config.BudgetConfig
	logger *slog.Logger
}

// NewUsageService creates a UsageService.
func NewUsageService(pool *pgxpool.Pool, cfg *config.BudgetConfig) *UsageService {
	return &UsageService{
		pool:   pool,
		cfg:    cfg,
		logger: slog.With("component", "usage_service"),
	}
}

// Reserve claims one call slot for the tier today. Returns ErrBudgetExceeded
// when any cap (calls, tokens, or estimated cost) is already reached. Budget
// days roll over at midnight UTC.
func (s *UsageService) Reserve(ctx context.Context, tier models.Tier) error {
	budget := s.tierBudget(tier)

	callCap := positiveOrUnlimited(float64(budget.MaxDailyCalls))
	tokenCap := positiveOrUnlimited(float64(budget.MaxDailyTokens))
	costCap := positiveOrUnlimited(budget.MaxDailyCostUSD)

	var calls int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO api_usage AS u (usage_date, tier, calls)
		VALUES (CURRENT_DATE, $1, 1)
		ON CONFLICT (usage_date, tier) DO UPDATE SET calls = u.calls + 1
		WHERE u.calls < $2
		  AND u.input_tokens + u.output_tokens < $3
		  AND u.estimated_cost < $4
		RETURNING calls`,
		tier, callCap, int64(tokenCap), costCap,
	).Scan(&calls)

	if errors.Is(err, pgx.ErrNoRows) {
		metrics.BudgetDenials.WithLabelValues(string(tier)).Inc()
		s.logger.Warn("Budget reservation denied", "tier", tier)
		return fmt.Errorf("tier %s: %w", tier, ErrBudgetExceeded)
	}
	if err != nil {
		return fmt.Errorf("failed to reserve budget for %s: %w", tier, err)
	}
	return nil
}

// Record adds actual token counts and cost after a call completes. Failed
// calls keep their reserved slot; only tokens and cost are added here.
func (s *UsageService) Record(ctx context.Context, tier models.Tier, inputTokens, outputTokens int64, costUSD float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_usage AS u (usage_date, tier, input_tokens, output_tokens, estimated_cost)
		VALUES (CURRENT_DATE, $1, $2, $3, $4)
		ON CONFLICT (usage_date, tier) DO UPDATE SET
			input_tokens = u.input_tokens + EXCLUDED.input_tokens,
			output_tokens = u.output_tokens + EXCLUDED.output_tokens,
			estimated_cost = u.estimated_cost + EXCLUDED.estimated_cost`,
		tier, inputTokens, outputTokens, costUSD)
	if err != nil {
		return fmt.Errorf("failed to record usage for %s: %w", tier, err)
	}
	return nil
}

// Today returns the usage rows for the current UTC date, one per tier that
// has spent anything.
func (s *UsageService) Today(ctx context.Context) ([]models.APIUsage, error) {
	return s.usageForDate(ctx, time.Now().UTC())
}

// UsageForDate returns usage rows for a specific date.
func (s *UsageService) UsageForDate(ctx context.Context, date time.Time) ([]models.APIUsage, error) {
	return s.usageForDate(ctx, date)
}

func (s *UsageService) usageForDate(ctx context.Context, date time.Time) ([]models.APIUsage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT usage_date, tier, calls, input_tokens, output_tokens, estimated_cost
		FROM api_usage WHERE usage_date = $1::date ORDER BY tier`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	var usage []models.APIUsage
	for rows.Next() {
		var u models.APIUsage
		err := rows.Scan(&u.Date, &u.Tier, &u.Calls,
			&u.InputTokens, &u.OutputTokens, &u.EstimatedCost)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// CostSince sums estimated cost across tiers from a date onward, feeding the
// challenger promotion cost comparison.
func (s *UsageService) CostSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(sum(estimated_cost), 0) FROM api_usage WHERE usage_date >= $1::date`,
		since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum cost: %w", err)
	}
	return total, nil
}

// Budget returns the configured caps for a tier, for the budget endpoint.
func (s *UsageService) Budget(tier models.Tier) config.TierBudget {
	return s.tierBudget(tier)
}

func (s *UsageService) tierBudget(tier models.Tier) config.TierBudget {
	switch tier {
	case models.Tier1:
		return s.cfg.Tier1
	case models.Tier2:
		return s.cfg.Tier2
	default:
		return s.cfg.Embedding
	}
}

// positiveOrUnlimited maps a zero/negative cap ("no cap configured") to an
// effectively infinite one so the SQL predicate stays uniform.
func positiveOrUnlimited(cap_ float64) float64 {
	if cap_ <= 0 {
		return math.MaxInt32
	}
	return cap_
}
