package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osintlab/trendwatch/pkg/services"
)

// abortServiceError maps service-layer errors to HTTP responses.
func abortServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "resource not found"})
	case errors.Is(err, services.ErrAlreadyExists):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "resource already exists"})
	case errors.Is(err, services.ErrBudgetExceeded):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "daily budget exhausted"})
	default:
		slog.Error("Unexpected service error", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func abortBadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
