package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/otavio/clientsync/internal/config"
	"github.com/otavio/clientsync/internal/logger"
	"github.com/otavio/clientsync/internal/repository"
	"github.com/otavio/clientsync/internal/service"
	"github.com/otavio/clientsync/internal/upstream"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "clientsync-worker",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	syncOnce := flag.Bool("sync", false, "Run one sync pass for all auto-sync tenants and exit")
	syncEvery := flag.Duration("sync-every", 0, "Also run the auto-sync pass on this interval (0 disables)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
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
	importer := service.NewImporter(customerRepo, appLogger)
	processor := service.NewBatchProcessor(cfg.Queue.ChunkSize, cfg.Queue.ChunkPause, appLogger)
	syncService := service.NewSyncService(tenantRepo, fetcher, importer, appLogger, &service.SyncConfig{
		WindowDays: cfg.Sync.WindowDays,
		MaxRecords: cfg.Sync.MaxRecords,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	if *syncOnce {
		synced, err := syncService.RunAll(ctx)
		if err != nil {
			appLogger.WithError(err).Fatal("Sync run failed")
		}
		appLogger.WithField(logger.FieldCount, synced).Info("Sync run completed")
		return
	}

	dispatcher := service.NewDispatcher(jobRepo, tenantRepo, fetcher, processor, importer, appLogger, &service.DispatcherConfig{
		PollInterval: cfg.Queue.PollInterval,
	})
	cleanup := service.NewCleanupService(jobRepo, appLogger, &service.CleanupConfig{
		RetentionDays: cfg.Queue.RetentionDays,
		Interval:      cfg.Queue.CleanupInterval,
	})

	dispatcher.Start(ctx)
	cleanup.Start(ctx)

	if *syncEvery > 0 {
		go runPeriodicSync(ctx, syncService, appLogger, *syncEvery)
	}

	appLogger.WithField(logger.FieldWorkerID, dispatcher.WorkerID()).Info("Worker running")

	<-ctx.Done()

	dispatcher.Stop()
	cleanup.Stop()
	appLogger.Info("Worker exited")
}

func runPeriodicSync(ctx context.Context, syncService *service.SyncService, log *logger.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := syncService.RunAll(ctx); err != nil {
				log.WithError(err).Error("Periodic sync run failed")
			}
		}
	}
}
