package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osintlab/trendwatch/pkg/models"
)

// TierBudgetStatus reports one tier's spend against its daily caps.
type TierBudgetStatus struct {
	Tier models.Tier `json:"tier"`

	Calls        int     `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`

	MaxDailyCalls   int     `json:"max_daily_calls"`
	MaxDailyTokens  int64   `json:"max_daily_tokens"`
	MaxDailyCostUSD float64 `json:"max_daily_cost_usd"`
}

func (s *Server) budgetHandler(c *gin.Context) {
	usage, err := s.usage.Today(c.Request.Context())
	if err != nil {
		abortServiceError(c, err)
		return
	}

	byTier := make(map[models.Tier]models.APIUsage, len(usage))
	for _, u := range usage {
		byTier[u.Tier] = u
	}

	statuses := make([]TierBudgetStatus, 0, 3)
	for _, tier := range []models.Tier{models.Tier1, models.Tier2, models.TierEmbedding} {
		budget := s.usage.Budget(tier)
		u := byTier[tier]
		statuses = append(statuses, TierBudgetStatus{
			Tier:            tier,
			Calls:           u.Calls,
			InputTokens:     u.InputTokens,
			OutputTokens:    u.OutputTokens,
			CostUSD:         u.EstimatedCost,
			MaxDailyCalls:   budget.MaxDailyCalls,
			MaxDailyTokens:  budget.MaxDailyTokens,
			MaxDailyCostUSD: budget.MaxDailyCostUSD,
		})
	}
	c.JSON(http.StatusOK, gin.H{"budget": statuses})
}

func (s *Server) calibrationHandler(c *gin.Context) {
	report, err := s.calibration.Report(c.Request.Context())
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
