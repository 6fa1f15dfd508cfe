package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/replay"
)

// defaultReplayWindowDays bounds how far back a replay rebuilds by default.
const defaultReplayWindowDays = 90

func replayWindow(days int) time.Time {
	if days <= 0 {
		days = defaultReplayWindowDays
	}
	return time.Now().UTC().AddDate(0, 0, -days)
}

// RemoveEventRequest is the body for POST /trends/:id/replay/remove-event.
type RemoveEventRequest struct {
	EventID    string `json:"event_id" binding:"required"`
	WindowDays int    `json:"window_days,omitempty"`
}

func (s *Server) replayRemoveEventHandler(c *gin.Context) {
	var req RemoveEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}

	sim, err := s.replay.RemoveEvent(c.Request.Context(), c.Param("id"),
		req.EventID, replayWindow(req.WindowDays))
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sim)
}

// InjectSignalRequest is the body for POST /trends/:id/replay/inject-signal.
type InjectSignalRequest struct {
	SignalType string  `json:"signal_type" binding:"required"`
	Severity   float64 `json:"severity" binding:"required"`
	Confidence float64 `json:"confidence" binding:"required"`
	WindowDays int     `json:"window_days,omitempty"`
}

func (s *Server) replayInjectSignalHandler(c *gin.Context) {
	var req InjectSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	if req.Severity < 0 || req.Severity > 1 || req.Confidence < 0 || req.Confidence > 1 {
		abortBadRequest(c, "severity and confidence must be in [0, 1]")
		return
	}

	sim, err := s.replay.InjectSignal(c.Request.Context(), c.Param("id"), replay.InjectedSignal{
		SignalType: req.SignalType,
		Severity:   req.Severity,
		Confidence: req.Confidence,
	}, replayWindow(req.WindowDays))
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sim)
}

// ChallengerRequest is the body for POST /trends/:id/replay/challenger.
type ChallengerRequest struct {
	Definition *models.TrendDefinition `json:"definition" binding:"required"`
	WindowDays int                     `json:"window_days,omitempty"`
	// CostRatio is projected challenger spend over champion spend; omit or
	// set ≤ 0 when the candidate changes weights only.
	CostRatio float64 `json:"cost_ratio,omitempty"`
}

func (s *Server) replayChallengerHandler(c *gin.Context) {
	var req ChallengerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	if len(req.Definition.Indicators) == 0 {
		abortBadRequest(c, "challenger definition must declare indicators")
		return
	}

	assessment, err := s.replay.EvaluateChallenger(c.Request.Context(), c.Param("id"),
		req.Definition, replayWindow(req.WindowDays), req.CostRatio)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}
