package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ledger-reconciler/internal/advisor"
	"github.com/dvloznov/ledger-reconciler/internal/api/handlers"
	"github.com/dvloznov/ledger-reconciler/internal/api/middleware"
	"github.com/dvloznov/ledger-reconciler/internal/config"
	"github.com/dvloznov/ledger-reconciler/internal/gcs"
	"github.com/dvloznov/ledger-reconciler/internal/gcsuploader"
	infraBQ "github.com/dvloznov/ledger-reconciler/internal/infra/bigquery"
	"github.com/dvloznov/ledger-reconciler/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-reconciler/internal/localfs"
	"github.com/dvloznov/ledger-reconciler/internal/logger"
	"github.com/dvloznov/ledger-reconciler/internal/metrics"
	"github.com/dvloznov/ledger-reconciler/internal/pipeline"
)

func main() {
	var (
		port    = flag.String("port", "8080", "HTTP server port")
		dataDir = flag.String("data-dir", "data", "Local document directory, used when GCS_BUCKET is not set")
	)
	flag.Parse()

	cfg, err := config.ProcessEnvironmentVariables()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)

	profiles, err := cfg.Profiles()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load profiles")
	}

	// Document storage
	var storage gcs.StorageService
	if cfg.Bucket != "" {
		gcsStorage, err := gcsuploader.NewGCSStorageService(ctx, cfg.Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS client")
		}
		defer gcsStorage.Close()
		storage = gcsStorage
		log.Info().Str("bucket", cfg.Bucket).Msg("Using GCS document storage")
	} else {
		storage = localfs.NewStore(*dataDir)
		log.Warn().Str("dir", *dataDir).Msg("No GCS bucket configured - using local document storage")
	}

	collector := metrics.NewCollector("recon")

	runner := &pipeline.Runner{
		Storage: storage,
		Metrics: collector,
		Workers: cfg.Workers,
		Publish: true,
	}

	var runsHandler *handlers.RunsHandler
	if cfg.RunHistoryEnabled() {
		repo, err := infraBQ.NewBigQueryRunRepository(ctx, cfg.ProjectID, cfg.Dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create run repository")
		}
		defer repo.Close()
		runner.Repo = repo
		runsHandler = handlers.NewRunsHandler(repo)
	} else {
		log.Warn().Msg("No GCP project configured - run history will not be recorded")
	}

	if cfg.AdvisorEnabled {
		gen, err := advisor.NewGeminiGenerator(ctx, cfg.AdvisorModel)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create advisor")
		}
		runner.Advisor = advisor.New(gen)
		log.Info().Str("model", cfg.AdvisorModel).Msg("Advisor enabled")
	}

	// Inline runs answer in the response and never publish
	inline := *runner
	inline.Publish = false

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore, inmemory.WithWorkers(cfg.Workers))

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Int("workers", cfg.Workers).Msg("Starting job workers")
		if err := jobQueue.Start(workerCtx, runner.JobHandler(profiles)); err != nil {
			log.Error().Err(err).Msg("Job workers stopped with error")
		}
	}()

	mux := handlers.Router{
		Reconcile: handlers.NewReconcileHandler(profiles, jobQueue, &inline),
		Documents: handlers.NewDocumentsHandler(storage),
		Jobs:      handlers.NewJobsHandler(jobStore),
		Runs:      runsHandler,
		Metrics:   collector.Handler(),
	}.Mux()

	// Metrics sits next to the mux so it sees the matched route pattern
	handler := middleware.RequestID(
		middleware.Recovery(log)(
			middleware.Logger(log)(
				middleware.Metrics(collector)(
					middleware.CORS(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Int("profiles", len(profiles)).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
