package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osintlab/trendwatch/pkg/models"
)

// FeedbackService records operator actions and dispatches their side effects.
// Every action writes a human_feedback row first so the audit trail exists
// even if a side effect fails partway.
type FeedbackService struct {
	pool   *pgxpool.Pool
	events *EventService
	items  *ItemService
	trends *TrendService
	logger *slog.Logger
}

// NewFeedbackService creates a FeedbackService.
func NewFeedbackService(pool *pgxpool.Pool, events *EventService, items *ItemService, trends *TrendService) *FeedbackService {
	return &FeedbackService{
		pool:   pool,
		events: events,
		items:  items,
		trends: trends,
		logger: slog.With("component", "feedback_service"),
	}
}

// Apply records the feedback and runs its action.
func (s *FeedbackService) Apply(ctx context.Context, fb *models.HumanFeedback) error {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO human_feedback (
			id, action, event_id, trend_id, item_id,
			original_value, corrected_value, reason, actor
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		fb.ID, fb.Action, fb.EventID, fb.TrendID, fb.ItemID,
		fb.OriginalValue, fb.CorrectedValue, fb.Reason, fb.Actor)
	if err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}

	if err := s.dispatch(ctx, fb); err != nil {
		return fmt.Errorf("feedback %s action %s: %w", fb.ID, fb.Action, err)
	}

	s.logger.Info("Feedback applied", "feedback_id", fb.ID, "action", fb.Action, "actor", fb.Actor)
	return nil
}

func (s *FeedbackService) dispatch(ctx context.Context, fb *models.HumanFeedback) error {
	switch fb.Action {
	case models.FeedbackPin:
		if fb.EventID == nil {
			return fmt.Errorf("pin requires event_id")
		}
		return s.events.Pin(ctx, *fb.EventID)

	case models.FeedbackMarkNoise:
		return s.markNoise(ctx, fb)

	case models.FeedbackInvalidate:
		if fb.EventID == nil {
			return fmt.Errorf("invalidate requires event_id")
		}
		if err := s.events.Suppress(ctx, *fb.EventID); err != nil {
			return err
		}
		n, err := s.trends.InvalidateEventEvidence(ctx, *fb.EventID, fb.ID)
		if err != nil {
			return err
		}
		s.logger.Info("Evidence invalidated by feedback",
			"feedback_id", fb.ID, "event_id", *fb.EventID, "rows", n)
		return nil

	case models.FeedbackOverrideDelta:
		if fb.TrendID == nil {
			return fmt.Errorf("override_delta requires trend_id")
		}
		delta, err := strconv.ParseFloat(fb.CorrectedValue, 64)
		if err != nil {
			return fmt.Errorf("override_delta corrected_value must be numeric: %w", err)
		}
		current, err := s.trends.NudgeLogOdds(ctx, *fb.TrendID, delta)
		if err != nil {
			return err
		}
		s.logger.Info("Log-odds overridden",
			"trend_id", *fb.TrendID, "delta", delta, "current_log_odds", current)
		return nil

	case models.FeedbackCorrectCategory:
		if fb.EventID == nil {
			return fmt.Errorf("correct_category requires event_id")
		}
		return s.events.SetCategories(ctx, *fb.EventID, splitCategories(fb.CorrectedValue))

	default:
		return fmt.Errorf("unknown feedback action %q", fb.Action)
	}
}

// markNoise suppresses the event (when given) and marks its items noise, or
// marks a single item noise when only item_id is set.
func (s *FeedbackService) markNoise(ctx context.Context, fb *models.HumanFeedback) error {
	if fb.EventID != nil {
		if err := s.events.Suppress(ctx, *fb.EventID); err != nil {
			return err
		}
		ids, err := s.events.MemberItemIDs(ctx, *fb.EventID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := s.items.Finish(ctx, id, models.StatusNoise, "marked noise by operator"); err != nil {
				return err
			}
		}
		return nil
	}
	if fb.ItemID != nil {
		return s.items.Finish(ctx, *fb.ItemID, models.StatusNoise, "marked noise by operator")
	}
	return fmt.Errorf("mark_noise requires event_id or item_id")
}

// List returns recent feedback rows, newest first.
func (s *FeedbackService) List(ctx context.Context, limit int) ([]*models.HumanFeedback, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, action, event_id, trend_id, item_id,
		       original_value, corrected_value, reason, actor, created_at
		FROM human_feedback ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var feedback []*models.HumanFeedback
	for rows.Next() {
		var fb models.HumanFeedback
		err := rows.Scan(&fb.ID, &fb.Action, &fb.EventID, &fb.TrendID, &fb.ItemID,
			&fb.OriginalValue, &fb.CorrectedValue, &fb.Reason, &fb.Actor, &fb.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		feedback = append(feedback, &fb)
	}
	return feedback, rows.Err()
}

func splitCategories(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
