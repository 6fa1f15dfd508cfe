package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/osintlab/trendwatch/pkg/models"
)

// reviewQueueHandler surfaces everything waiting on an analyst: contradicted
// or thinly-sourced events plus open taxonomy gaps.
func (s *Server) reviewQueueHandler(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		abortBadRequest(c, "limit must be in [1, 500]")
		return
	}

	events, err := s.events.ReviewQueue(c.Request.Context(), limit)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	gaps, err := s.gaps.List(c.Request.Context(), models.GapOpen, limit)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":    events,
		"open_gaps": gaps,
	})
}
