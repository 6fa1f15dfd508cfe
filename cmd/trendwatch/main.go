// TrendWatch server — ingests collected items, runs the classification
// pipeline, maintains the trend board, and serves the HTTP API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/osintlab/trendwatch/pkg/api"
	"github.com/osintlab/trendwatch/pkg/calibration"
	"github.com/osintlab/trendwatch/pkg/cluster"
	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/database"
	"github.com/osintlab/trendwatch/pkg/dedup"
	"github.com/osintlab/trendwatch/pkg/embedding"
	"github.com/osintlab/trendwatch/pkg/llm"
	"github.com/osintlab/trendwatch/pkg/pipeline"
	"github.com/osintlab/trendwatch/pkg/replay"
	"github.com/osintlab/trendwatch/pkg/scheduler"
	"github.com/osintlab/trendwatch/pkg/services"
	"github.com/osintlab/trendwatch/pkg/trend"
	"github.com/osintlab/trendwatch/pkg/version"
)

// calibrationCheckInterval is how often calibration drift is evaluated.
const calibrationCheckInterval = 6 * time.Hour

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	podID := resolvePodID()

	slog.Info("Starting TrendWatch",
		"version", version.Full(),
		"http_port", httpPort,
		"pod_id", podID,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database and run migrations
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbConfig.StrictSchema = dbConfig.StrictSchema || cfg.Environment.ProductionLike()

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Domain services
	pool := dbClient.Pool()
	itemService := services.NewItemService(pool)
	eventService := services.NewEventService(pool)
	trendService := services.NewTrendService(pool)
	sourceService := services.NewSourceService(pool)
	usageService := services.NewUsageService(pool, cfg.Budget)
	outcomeService := services.NewOutcomeService(pool, trendService)
	gapService := services.NewGapService(pool)
	feedbackService := services.NewFeedbackService(pool, eventService, itemService, trendService)

	// 4. Sync YAML registries into the database
	if err := trendService.SyncDefinitions(ctx, cfg.TrendRegistry, "startup"); err != nil {
		slog.Error("Failed to sync trend definitions", "error", err)
		os.Exit(1)
	}
	if err := sourceService.SyncFromRegistry(ctx, cfg.SourceRegistry); err != nil {
		slog.Error("Failed to sync source catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("Registries synced",
		"trends", cfg.TrendRegistry.Len(), "sources", cfg.SourceRegistry.Len())

	// 5. LLM clients and tier routing
	clients := make(map[string]llm.Client)
	for _, name := range cfg.ProviderRegistry.Names() {
		provider, err := cfg.ProviderRegistry.Get(name)
		if err != nil {
			slog.Error("Provider lookup failed", "provider", name, "error", err)
			os.Exit(1)
		}
		client, err := llm.NewHTTPClient(provider)
		if err != nil {
			slog.Error("Failed to initialize LLM client", "provider", name, "error", err)
			os.Exit(1)
		}
		clients[name] = client
	}
	caller := llm.NewCaller(clients, cfg.ProviderRegistry.Routing(), cfg.Pricing, usageService)
	classifier := llm.NewClassifier(caller)
	analyst := llm.NewAnalyst(caller)
	catalog := llm.CatalogPrompt(cfg.TrendRegistry.All())

	// 6. Embedding provider with cache tiers
	embedProviderCfg, err := cfg.ProviderRegistry.Get(cfg.Embedding.Provider)
	if err != nil {
		slog.Error("Embedding provider not configured", "provider", cfg.Embedding.Provider, "error", err)
		os.Exit(1)
	}
	embedKey, err := config.RequireSecret(embedProviderCfg.APIKeyEnv)
	if err != nil {
		slog.Error("Embedding provider key unavailable", "error", err)
		os.Exit(1)
	}
	embedCost := cfg.Pricing[cfg.Embedding.Provider+":"+cfg.Embedding.Model].InputPerMTok
	embedder := embedding.New(cfg.Embedding,
		embedding.NewHTTPProvider(embedProviderCfg.BaseURL, embedKey,
			cfg.Embedding.Model, cfg.Embedding.Dimensions, cfg.Embedding.Timeout),
		usageService, embedCost)

	// 7. Pipeline: dedup, clustering, evidence application, worker pool
	deduplicator := dedup.New(cfg.Dedup, itemService)
	clusterer := cluster.New(cfg.Cluster, eventService)
	applier := pipeline.NewApplier(cfg.TrendRegistry,
		trend.NoveltyConfig{
			RepeatPenalty: cfg.Novelty.RepeatPenalty,
			RecoveryHours: cfg.Novelty.RecoveryHours,
		}, trendService, gapService)
	processor := pipeline.NewProcessor(pipeline.ProcessorDeps{
		Budget:     cfg.Budget,
		Items:      itemService,
		Events:     eventService,
		Sources:    sourceService,
		Dedup:      deduplicator,
		Embedder:   embedder,
		Classifier: classifier,
		Analyst:    analyst,
		Clusterer:  clusterer,
		Applier:    applier,
		Catalog:    catalog,
	})
	ingestor := pipeline.NewIngestor(itemService, sourceService, deduplicator)

	workerPool := pipeline.NewWorkerPool(podID, cfg.Pipeline, itemService, processor)
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 8. Background maintenance: scheduler and calibration watchdog
	sched := scheduler.New(cfg.Scheduler, cfg.Cluster, cfg.Retention,
		trendService, eventService, itemService)
	sched.Start(ctx)

	calibrationService := calibration.NewService(cfg.Calibration, outcomeService, eventService)
	calibrationCtx, calibrationCancel := context.WithCancel(ctx)
	defer calibrationCancel()
	go calibrationService.RunPeriodic(calibrationCtx, calibrationCheckInterval)

	// 9. HTTP server
	replayEngine := replay.NewEngine(trendService, outcomeService)
	server := api.NewServer(api.Deps{
		Config:      cfg,
		DB:          dbClient,
		Ingestor:    ingestor,
		Trends:      trendService,
		Events:      eventService,
		Items:       itemService,
		Outcomes:    outcomeService,
		Feedback:    feedbackService,
		Gaps:        gapService,
		Usage:       usageService,
		Calibration: calibrationService,
		Replay:      replayEngine,
	})

	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      server.Router(),
		ReadTimeout:  cfg.API.RequestTimeout,
		WriteTimeout: cfg.API.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("TrendWatch started",
		"pod_id", podID,
		"workers", cfg.Pipeline.WorkerCount,
		"environment", cfg.Environment)

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown: stop intake, drain workers, then the API
	calibrationCancel()
	sched.Stop()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-time.After(cfg.Pipeline.ItemTimeout + 5*time.Second):
		slog.Warn("Worker shutdown timeout exceeded, in-flight items will be reaped")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
