// Engagic ingestion daemon: schedules city syncs, drives the fetcher and
// processor pools, and serves the operational HTTP API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/engagic/engagic/pkg/api"
	"github.com/engagic/engagic/pkg/conductor"
	"github.com/engagic/engagic/pkg/config"
	"github.com/engagic/engagic/pkg/database"
	"github.com/engagic/engagic/pkg/extract"
	"github.com/engagic/engagic/pkg/ingest"
	"github.com/engagic/engagic/pkg/llm"
	"github.com/engagic/engagic/pkg/matter"
	"github.com/engagic/engagic/pkg/models"
	"github.com/engagic/engagic/pkg/queue"
	"github.com/engagic/engagic/pkg/store"
	"github.com/engagic/engagic/pkg/topics"
	"github.com/engagic/engagic/pkg/vendors"
	"github.com/engagic/engagic/pkg/version"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to .env file (optional)")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Info("No .env file loaded, using process environment", "path", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Configuration invalid", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))
	// instance id distinguishes replicas in logs and worker names
	instanceID := uuid.NewString()[:8]
	slog.Info("Starting engagic", "version", version.Full(), "instance", instanceID)

	if cfg.LogLevel > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg)
	if err != nil {
		slog.Error("Database initialisation failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Connected to database, schema up to date")

	// repositories
	cityRepo := store.NewCityRepo()
	meetingRepo := store.NewMeetingRepo()
	itemRepo := store.NewItemRepo()
	matterRepo := store.NewMatterRepo()
	queueRepo := store.NewQueueRepo(cfg.JobMaxAttempts)
	searchRepo := store.NewSearchRepo()
	cacheRepo := store.NewCacheRepo()

	// shared services
	normalizer := topics.NewNormalizer()
	tracker := matter.NewTracker(matterRepo)
	vendorClient := vendors.NewClient(cfg.HTTPTimeout)
	registry := vendors.DefaultRegistry(vendorClient)
	limiter := vendors.NewRateLimiter(cfg.VendorMinDelay)
	extractor := extract.New(vendorClient)
	summarizer := llm.New(cfg, normalizer)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	metrics := queue.NewMetrics(promRegistry)

	// executors and pools
	fetcher := ingest.NewFetcher(db, cityRepo, meetingRepo, itemRepo, queueRepo, tracker, registry, limiter)
	processor := ingest.NewProcessor(db, meetingRepo, itemRepo, cacheRepo, tracker, extractor, summarizer, normalizer, metrics)

	fetcherPool := queue.NewPool("fetcher-"+instanceID, db, queueRepo,
		map[models.JobKind]queue.Executor{models.JobSyncCity: fetcher},
		cfg.FetcherWorkers, cfg.JobLease, cfg.ShutdownDrain, metrics)
	processorPool := queue.NewPool("processor-"+instanceID, db, queueRepo,
		map[models.JobKind]queue.Executor{
			models.JobProcessMeeting: processor,
			models.JobProcessItem:    processor,
		},
		cfg.ProcessorWorkers, cfg.JobLease, cfg.ShutdownDrain, metrics)
	sweeper := queue.NewSweeper(db, queueRepo, cfg.JobLease)

	cond := conductor.New(cfg, db, cityRepo, queueRepo, matterRepo, fetcherPool, processorPool, sweeper, metrics)
	server := api.NewServer(db, cityRepo, meetingRepo, itemRepo, searchRepo, cond, promRegistry)

	cond.Start(ctx)
	defer cond.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.HTTPPort)
	})

	slog.Info("HTTP server listening", "port", cfg.HTTPPort)
	if err := g.Wait(); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
