package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/osintlab/trendwatch/pkg/models"
)

var validOutcomes = map[models.Outcome]bool{
	models.OutcomeOccurred:    true,
	models.OutcomeDidNotOccur: true,
	models.OutcomePartial:     true,
	models.OutcomeSuperseded:  true,
	models.OutcomeOngoing:     true,
}

// RecordOutcomeRequest is the body for POST /api/v1/trends/:id/outcomes.
// PredictionDate selects the snapshot whose probability is being judged.
type RecordOutcomeRequest struct {
	PredictionDate time.Time      `json:"prediction_date" binding:"required"`
	Outcome        models.Outcome `json:"outcome" binding:"required"`
	OutcomeDate    *time.Time     `json:"outcome_date,omitempty"`
	Notes          string         `json:"notes,omitempty"`
}

func (s *Server) recordOutcomeHandler(c *gin.Context) {
	var req RecordOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	if !validOutcomes[req.Outcome] {
		abortBadRequest(c, "unknown outcome: "+string(req.Outcome))
		return
	}
	if req.PredictionDate.After(time.Now()) {
		abortBadRequest(c, "prediction_date must not be in the future")
		return
	}

	outcome, err := s.outcomes.Record(c.Request.Context(), c.Param("id"),
		req.PredictionDate, req.Outcome, req.OutcomeDate, req.Notes)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"outcome": outcome})
}

func (s *Server) trendOutcomesHandler(c *gin.Context) {
	outcomes, err := s.outcomes.ForTrend(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trend_id": c.Param("id"), "outcomes": outcomes})
}
