// Package api exposes the read/operate HTTP surface: trends, events,
// feedback, outcomes, taxonomy gaps, budget, calibration, and replay.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osintlab/trendwatch/pkg/calibration"
	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/database"
	"github.com/osintlab/trendwatch/pkg/pipeline"
	"github.com/osintlab/trendwatch/pkg/replay"
	"github.com/osintlab/trendwatch/pkg/services"
)

// Server holds the handler dependencies.
type Server struct {
	cfg *config.Config

	db          *database.Client
	ingestor    *pipeline.Ingestor
	trends      *services.TrendService
	events      *services.EventService
	items       *services.ItemService
	outcomes    *services.OutcomeService
	feedback    *services.FeedbackService
	gaps        *services.GapService
	usage       *services.UsageService
	calibration *calibration.Service
	replay      *replay.Engine

	logger *slog.Logger
}

// Deps bundles the server's dependencies.
type Deps struct {
	Config      *config.Config
	DB          *database.Client
	Ingestor    *pipeline.Ingestor
	Trends      *services.TrendService
	Events      *services.EventService
	Items       *services.ItemService
	Outcomes    *services.OutcomeService
	Feedback    *services.FeedbackService
	Gaps        *services.GapService
	Usage       *services.UsageService
	Calibration *calibration.Service
	Replay      *replay.Engine
}

// NewServer creates the API server.
func NewServer(deps Deps) *Server {
	return &Server{
		cfg:         deps.Config,
		db:          deps.DB,
		ingestor:    deps.Ingestor,
		trends:      deps.Trends,
		events:      deps.Events,
		items:       deps.Items,
		outcomes:    deps.Outcomes,
		feedback:    deps.Feedback,
		gaps:        deps.Gaps,
		usage:       deps.Usage,
		calibration: deps.Calibration,
		replay:      deps.Replay,
		logger:      slog.With("component", "api"),
	}
}

// Router builds the gin engine with all routes mounted. Health and metrics
// stay outside auth so orchestrators and scrapers reach them unauthenticated.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger), securityHeaders())

	router.GET("/healthz", s.healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	if s.cfg.Environment.ProductionLike() {
		v1.Use(authRequired(s.cfg.API.AuthTokenEnv))
	}

	v1.POST("/items", s.ingestItemHandler)

	v1.GET("/trends", s.listTrendsHandler)
	v1.GET("/trends/:id", s.getTrendHandler)
	v1.GET("/trends/:id/history", s.trendHistoryHandler)
	v1.GET("/trends/:id/evidence", s.trendEvidenceHandler)
	v1.GET("/trends/:id/definition-history", s.trendDefinitionHistoryHandler)
	v1.GET("/trends/:id/outcomes", s.trendOutcomesHandler)
	v1.POST("/trends/:id/outcomes", s.recordOutcomeHandler)
	v1.POST("/trends/:id/replay/remove-event", s.replayRemoveEventHandler)
	v1.POST("/trends/:id/replay/inject-signal", s.replayInjectSignalHandler)
	v1.POST("/trends/:id/replay/challenger", s.replayChallengerHandler)

	v1.GET("/events", s.listEventsHandler)
	v1.GET("/events/:id", s.getEventHandler)
	v1.GET("/events/:id/evidence", s.eventEvidenceHandler)

	v1.POST("/feedback", s.createFeedbackHandler)
	v1.GET("/feedback", s.listFeedbackHandler)

	v1.GET("/review-queue", s.reviewQueueHandler)
	v1.GET("/gaps", s.listGapsHandler)
	v1.POST("/gaps/:id/resolve", s.resolveGapHandler)

	v1.GET("/budget", s.budgetHandler)
	v1.GET("/calibration", s.calibrationHandler)

	return router
}
