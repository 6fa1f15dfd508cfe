package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/osintlab/trendwatch/pkg/models"
)

var validFeedbackActions = map[models.FeedbackAction]bool{
	models.FeedbackPin:             true,
	models.FeedbackMarkNoise:       true,
	models.FeedbackInvalidate:      true,
	models.FeedbackOverrideDelta:   true,
	models.FeedbackCorrectCategory: true,
}

// CreateFeedbackRequest is the body for POST /api/v1/feedback.
type CreateFeedbackRequest struct {
	Action         models.FeedbackAction `json:"action" binding:"required"`
	EventID        *string               `json:"event_id,omitempty"`
	TrendID        *string               `json:"trend_id,omitempty"`
	ItemID         *string               `json:"item_id,omitempty"`
	OriginalValue  string                `json:"original_value,omitempty"`
	CorrectedValue string                `json:"corrected_value,omitempty"`
	Reason         string                `json:"reason,omitempty"`
}

func (s *Server) createFeedbackHandler(c *gin.Context) {
	var req CreateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	if !validFeedbackActions[req.Action] {
		abortBadRequest(c, "unknown feedback action: "+string(req.Action))
		return
	}
	if req.Action == models.FeedbackOverrideDelta {
		if _, err := strconv.ParseFloat(req.CorrectedValue, 64); err != nil {
			abortBadRequest(c, "override_delta requires a numeric corrected_value")
			return
		}
	}

	fb := &models.HumanFeedback{
		Action:         req.Action,
		EventID:        req.EventID,
		TrendID:        req.TrendID,
		ItemID:         req.ItemID,
		OriginalValue:  req.OriginalValue,
		CorrectedValue: req.CorrectedValue,
		Reason:         req.Reason,
		Actor:          extractActor(c),
	}
	if err := s.feedback.Apply(c.Request.Context(), fb); err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"feedback_id": fb.ID})
}

func (s *Server) listFeedbackHandler(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		abortBadRequest(c, "limit must be in [1, 1000]")
		return
	}

	feedback, err := s.feedback.List(c.Request.Context(), limit)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": feedback})
}
