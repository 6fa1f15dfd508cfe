package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/trend"
)

// directionLookback is the window used for the qualitative direction label.
const directionLookback = 7 * 24 * time.Hour

// TrendSummary is the list/detail representation of a tracked hypothesis.
type TrendSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Probability     float64                 `json:"probability"`
	ProbabilityBand string                  `json:"probability_band"`
	LogOdds         float64                 `json:"log_odds"`
	RiskLevel       models.RiskLevel        `json:"risk_level"`
	Direction       models.DirectionTrend   `json:"direction"`
	Confidence      models.ConfidenceRating `json:"confidence"`

	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) listTrendsHandler(c *gin.Context) {
	trends, err := s.trends.List(c.Request.Context())
	if err != nil {
		abortServiceError(c, err)
		return
	}

	summaries := make([]TrendSummary, 0, len(trends))
	for _, t := range trends {
		summaries = append(summaries, s.summarize(c.Request.Context(), t))
	}
	c.JSON(http.StatusOK, gin.H{"trends": summaries})
}

func (s *Server) getTrendHandler(c *gin.Context) {
	t, err := s.trends.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	summary := s.summarize(c.Request.Context(), t)
	c.JSON(http.StatusOK, gin.H{
		"trend":      summary,
		"definition": t.Definition,
	})
}

// summarize derives the qualitative view: probability, risk, direction over
// the lookback window, and a confidence rating from the active evidence.
func (s *Server) summarize(ctx context.Context, t *models.Trend) TrendSummary {
	p := trend.LogOddsToProb(t.CurrentLogOdds)
	summary := TrendSummary{
		ID:              t.ID,
		Name:            t.Name,
		Description:     t.Description,
		Probability:     p,
		ProbabilityBand: trend.ProbabilityBand(p),
		LogOdds:         t.CurrentLogOdds,
		RiskLevel:       trend.RiskLevel(p),
		Direction:       models.TrendStable,
		Confidence:      models.ConfidenceLow,
		Active:          t.Active,
		UpdatedAt:       t.UpdatedAt,
	}

	now := time.Now().UTC()
	if snap, err := s.trends.SnapshotAtOrBefore(ctx, t.ID, now.Add(-directionLookback)); err == nil {
		summary.Direction = trend.DirectionLabel(p, trend.LogOddsToProb(snap.LogOdds))
	}

	evidence, err := s.trends.ActiveEvidenceSince(ctx, t.ID, now.Add(-30*24*time.Hour))
	if err != nil || len(evidence) == 0 {
		return summary
	}
	var corroboration float64
	for _, ev := range evidence {
		corroboration += ev.CorroborationFactor
	}
	summary.Confidence = trend.ConfidenceRating(trend.ConfidenceInputs{
		ActiveEvidenceCount: len(evidence),
		MeanCorroboration:   corroboration / float64(len(evidence)),
		BandWidthDays:       now.Sub(evidence[len(evidence)-1].CreatedAt).Hours() / 24,
	})
	return summary
}

func (s *Server) trendHistoryHandler(c *gin.Context) {
	now := time.Now().UTC()
	since := now.Add(-30 * 24 * time.Hour)
	if days, err := strconv.Atoi(c.DefaultQuery("days", "30")); err == nil && days > 0 {
		since = now.AddDate(0, 0, -days)
	}

	history, err := s.trends.History(c.Request.Context(), c.Param("id"), since, now)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trend_id": c.Param("id"), "snapshots": history})
}

func (s *Server) trendDefinitionHistoryHandler(c *gin.Context) {
	versions, err := s.trends.DefinitionHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	out := make([]gin.H, 0, len(versions))
	for _, v := range versions {
		out = append(out, gin.H{
			"id":              v.ID,
			"definition":      json.RawMessage(v.DefinitionJSON),
			"definition_hash": v.DefinitionHash,
			"actor":           v.Actor,
			"context":         v.Context,
			"created_at":      v.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"trend_id": c.Param("id"), "versions": out})
}

func (s *Server) trendEvidenceHandler(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		abortBadRequest(c, "limit must be in [1, 1000]")
		return
	}

	evidence, err := s.trends.EvidenceForTrend(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trend_id": c.Param("id"), "evidence": evidence})
}
