package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/osintlab/trendwatch/pkg/models"
)

func (s *Server) listGapsHandler(c *gin.Context) {
	status := models.GapStatus(c.DefaultQuery("status", string(models.GapOpen)))
	if status != models.GapOpen && status != models.GapResolved && status != models.GapRejected {
		abortBadRequest(c, "status must be one of open, resolved, rejected")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		abortBadRequest(c, "limit must be in [1, 1000]")
		return
	}

	gaps, err := s.gaps.List(c.Request.Context(), status, limit)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gaps": gaps})
}

// ResolveGapRequest is the body for POST /api/v1/gaps/:id/resolve.
type ResolveGapRequest struct {
	Status     models.GapStatus `json:"status" binding:"required"`
	Resolution string           `json:"resolution,omitempty"`
}

func (s *Server) resolveGapHandler(c *gin.Context) {
	var req ResolveGapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	if req.Status != models.GapResolved && req.Status != models.GapRejected {
		abortBadRequest(c, "status must be resolved or rejected")
		return
	}

	if err := s.gaps.Resolve(c.Request.Context(), c.Param("id"), req.Status, req.Resolution); err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gap_id": c.Param("id"), "status": req.Status})
}
