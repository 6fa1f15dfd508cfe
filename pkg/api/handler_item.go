package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/osintlab/trendwatch/pkg/models"
)

// IngestItemRequest is the body for POST /api/v1/items: one collected
// article or post handed to the pipeline.
type IngestItemRequest struct {
	SourceID    string     `json:"source_id" binding:"required"`
	ExternalID  string     `json:"external_id" binding:"required"`
	URL         string     `json:"url"`
	Title       string     `json:"title" binding:"required"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Text        string     `json:"text" binding:"required"`
	Language    string     `json:"language,omitempty"`
}

func (s *Server) ingestItemHandler(c *gin.Context) {
	var req IngestItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}

	item := &models.RawItem{
		SourceID:    req.SourceID,
		ExternalID:  req.ExternalID,
		URL:         req.URL,
		Title:       req.Title,
		Author:      req.Author,
		PublishedAt: req.PublishedAt,
		FetchedAt:   time.Now().UTC(),
		Text:        req.Text,
		Language:    req.Language,
	}

	accepted, err := s.ingestor.Ingest(c.Request.Context(), item)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	if !accepted {
		c.JSON(http.StatusOK, gin.H{"accepted": false})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "item_id": item.ID})
}
