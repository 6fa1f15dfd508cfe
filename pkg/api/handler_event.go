package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/services"
)

var validLifecycles = map[models.LifecycleStatus]bool{
	models.LifecycleEmerging:  true,
	models.LifecycleConfirmed: true,
	models.LifecycleFading:    true,
	models.LifecycleArchived:  true,
}

func (s *Server) listEventsHandler(c *gin.Context) {
	lifecycle := models.LifecycleStatus(c.DefaultQuery("lifecycle", string(models.LifecycleConfirmed)))
	if !validLifecycles[lifecycle] {
		abortBadRequest(c, "lifecycle must be one of emerging, confirmed, fading, archived")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		abortBadRequest(c, "limit must be in [1, 500]")
		return
	}

	filter := services.EventFilter{
		Lifecycle: lifecycle,
		Category:  c.Query("category"),
		TrendID:   c.Query("trend_id"),
		Limit:     limit,
	}
	if raw, ok := c.GetQuery("contradicted"); ok {
		contradicted, err := strconv.ParseBool(raw)
		if err != nil {
			abortBadRequest(c, "contradicted must be true or false")
			return
		}
		filter.Contradicted = &contradicted
	}
	if raw, ok := c.GetQuery("days"); ok {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			abortBadRequest(c, "days must be a positive integer")
			return
		}
		filter.Since = time.Now().UTC().AddDate(0, 0, -days)
	}

	events, err := s.events.List(c.Request.Context(), filter)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) getEventHandler(c *gin.Context) {
	event, err := s.events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	memberIDs, err := s.events.MemberItemIDs(c.Request.Context(), event.ID)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": event, "member_item_ids": memberIDs})
}

// eventEvidenceHandler shows what a single event did to the trend board.
func (s *Server) eventEvidenceHandler(c *gin.Context) {
	evidence, err := s.trends.EvidenceForEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_id": c.Param("id"), "evidence": evidence})
}
