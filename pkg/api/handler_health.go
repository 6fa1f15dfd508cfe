package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/osintlab/trendwatch/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /healthz. Only the database is checked: external
// LLM and embedding providers are excluded so an upstream outage does not get
// the service restarted by its orchestrator.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	db := s.db.Health(ctx)
	status, httpStatus := healthStatusHealthy, http.StatusOK
	if !db.Reachable {
		status, httpStatus = healthStatusUnhealthy, http.StatusServiceUnavailable
	}

	queue, err := s.items.CountByStatus(ctx)
	if err != nil {
		queue = nil
	}

	c.JSON(httpStatus, gin.H{
		"status":   status,
		"version":  version.Full(),
		"database": db,
		"queue":    queue,
	})
}
