package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm/logger"

	"github.com/dcwatch/dcwatch/internal/aggregator"
	"github.com/dcwatch/dcwatch/internal/alerts"
	"github.com/dcwatch/dcwatch/internal/config"
	"github.com/dcwatch/dcwatch/internal/database"
	"github.com/dcwatch/dcwatch/internal/handlers"
	"github.com/dcwatch/dcwatch/internal/jobs"
	"github.com/dcwatch/dcwatch/internal/middleware"
	"github.com/dcwatch/dcwatch/internal/notify"
	"github.com/dcwatch/dcwatch/internal/registry"
	"github.com/dcwatch/dcwatch/internal/reports"
	"github.com/dcwatch/dcwatch/internal/services"
	"github.com/dcwatch/dcwatch/internal/source"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting dcwatch...")

	// Initialize database connection
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Printf("Database connection established")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Load source registry
	reg, err := registry.Load(cfg.SourcesFile)
	if err != nil {
		log.Fatalf("Failed to load alert sources: %v", err)
	}
	sources := reg.Sources()
	log.Printf("Loaded %d alert sources from %s", len(sources), cfg.SourcesFile)
	for _, s := range sources {
		if s.Token == "" && s.User == "" {
			log.Printf("Warning: no token or user set for source %s", s.Name)
		}
	}

	// Normalizer with DC detection configuration
	normalizer := alerts.NewNormalizer(cfg.DCLabelKeys, cfg.NameKeys, cfg.SeverityKeys, cfg.IgnoredLabels)
	normalizer.SetCanonicalDCs(reg.CanonicalDCs(), reg.DCSynonyms())

	// Source client, snapshot store, view holder
	client := source.NewClient(cfg.FetchTimeout, cfg.InsecureSkipVerify)
	store := database.NewSnapshotStore(database.GetDB())
	holder := aggregator.NewViewHolder()

	// Slack notifier for source health transitions (optional)
	notifier := notify.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertsChannel)
	if notifier.Enabled() {
		log.Printf("Slack notifications enabled (channel %s)", cfg.SlackAlertsChannel)
	}

	// Report engine
	reportEngine, err := reports.NewEngine(store, cfg.ReportTimezone, cfg.ReportTopN)
	if err != nil {
		log.Fatalf("Failed to initialize report engine: %v", err)
	}

	// Silence command handler
	silenceService := services.NewSilenceService(reg, client)

	// Poller
	poller := jobs.NewPoller(reg, client, normalizer, store, holder, notifier, jobs.Options{
		CycleMaxDuration: cfg.CycleMaxDuration,
		FetchRetries:     cfg.FetchRetries,
		FetchRetryDelay:  cfg.FetchRetryDelay,
		RetentionDays:    cfg.RetentionDays,
	})

	// HTTP API
	apiHandler := handlers.NewAPIHandler(holder, reg, reportEngine, silenceService)
	apiHandler.SetRefresher(func() {
		if err := poller.RunCycle(context.Background()); err != nil {
			log.Printf("Forced refresh failed: %v", err)
		}
	})

	wsHub := handlers.NewWSHub(holder, cfg.PollInterval/4)

	mux := http.NewServeMux()
	apiHandler.SetupRoutes(mux)
	mux.Handle("GET /api/ws", wsHub)
	mux.Handle("GET /metrics", promhttp.Handler())

	corsMiddleware := middleware.NewCORSMiddleware()
	handler := corsMiddleware.Wrap(middleware.RequestIDMiddleware(mux))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	ctx, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()

	stop := make(chan struct{})
	go poller.Start(cfg.PollInterval, stop)
	go wsHub.Run(ctx)

	log.Printf("Poll interval: %s, fetch timeout: %s", cfg.PollInterval, cfg.FetchTimeout)
	log.Printf("Alerts endpoint: http://localhost:%d/api/alerts", cfg.HTTPPort)
	log.Printf("Health check endpoint: http://localhost:%d/healthz", cfg.HTTPPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Received shutdown signal, cleaning up...")
	close(stop)
	ctxCancel()

	if err := httpServer.Close(); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
	log.Println("Shutdown complete")
}
