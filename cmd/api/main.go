package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/otavio/clientsync/internal/api"
	"github.com/otavio/clientsync/internal/config"
	"github.com/otavio/clientsync/internal/logger"
	"github.com/otavio/clientsync/internal/repository"
	"github.com/otavio/clientsync/internal/service"
	"github.com/otavio/clientsync/internal/upstream"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault()
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db)
	tenantRepo := repository.NewTenantRepository(db)
	customerRepo := repository.NewCustomerRepository(db)

	// Initialize upstream client
	fetcher := upstream.NewClient(&upstream.Config{
		BaseURL:       cfg.Upstream.BaseURL,
		AppCredential: cfg.Upstream.AppCredential,
		PageSize:      cfg.Upstream.PageSize,
		Timeout:       cfg.Upstream.Timeout,
		MaxAttempts:   cfg.Upstream.MaxAttempts,
		PagePause:     cfg.Upstream.PagePause,
	})

	// Initialize services
	importer := service.NewImporter(customerRepo, log)
	processor := service.NewBatchProcessor(cfg.Queue.ChunkSize, cfg.Queue.ChunkPause, log)
	admission := service.NewAdmissionService(jobRepo, tenantRepo, log)
	syncService := service.NewSyncService(tenantRepo, fetcher, importer, log, &service.SyncConfig{
		WindowDays: cfg.Sync.WindowDays,
		MaxRecords: cfg.Sync.MaxRecords,
	})

	// The API binary runs the worker loop in-process so a single deployment
	// is fully functional; a dedicated worker binary exists for split setups.
	dispatcher := service.NewDispatcher(jobRepo, tenantRepo, fetcher, processor, importer, log, &service.DispatcherConfig{
		PollInterval: cfg.Queue.PollInterval,
	})
	cleanup := service.NewCleanupService(jobRepo, log, &service.CleanupConfig{
		RetentionDays: cfg.Queue.RetentionDays,
		Interval:      cfg.Queue.CleanupInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher.Start(ctx)
	cleanup.Start(ctx)

	// Setup router
	router := api.SetupRouter(admission, syncService, tenantRepo, cfg, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(logger.Fields{
			"port":               cfg.Server.Port,
			"mode":               cfg.Server.Mode,
			logger.FieldWorkerID: dispatcher.WorkerID(),
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Stop background loops before the HTTP listener so in-flight jobs get
	// their final status writes in
	cancel()
	dispatcher.Stop()
	cleanup.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("Server forced to shutdown")
	}

	log.Info("Server exited")
}
