package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/otavio/clientsync/internal/domain"
	"github.com/otavio/clientsync/internal/logger"
	"github.com/otavio/clientsync/internal/repository"
	"github.com/otavio/clientsync/internal/upstream"
)

// Fetcher retrieves all upstream records matching the filters, reporting
// cumulative fetch progress page by page.
type Fetcher interface {
	FetchAll(ctx context.Context, token string, filters upstream.Filters, progress upstream.ProgressFunc) ([]upstream.ExternalClient, error)
}

// DispatcherConfig holds configuration for the worker loop.
type DispatcherConfig struct {
	PollInterval time.Duration
	WorkerID     string
}

// Dispatcher is the worker loop: it periodically claims the oldest queued
// job and drives fetch, processing, and progress tracking to a terminal
// state. It is an explicitly constructed instance with an explicit
// Start/Stop lifecycle; nothing starts it lazily.
type Dispatcher struct {
	jobs      *repository.JobRepository
	tenants   *repository.TenantRepository
	fetcher   Fetcher
	processor *BatchProcessor
	importer  *Importer
	logger    *logger.Logger

	workerID     string
	pollInterval time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewDispatcher creates a new Dispatcher with injected dependencies.
func NewDispatcher(
	jobs *repository.JobRepository,
	tenants *repository.TenantRepository,
	fetcher Fetcher,
	processor *BatchProcessor,
	importer *Importer,
	log *logger.Logger,
	cfg *DispatcherConfig,
) *Dispatcher {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		hostname, _ := os.Hostname()
		workerID = fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
	}

	return &Dispatcher{
		jobs:         jobs,
		tenants:      tenants,
		fetcher:      fetcher,
		processor:    processor,
		importer:     importer,
		logger:       log,
		workerID:     workerID,
		pollInterval: pollInterval,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// WorkerID returns the dispatcher's worker identity.
func (d *Dispatcher) WorkerID() string {
	return d.workerID
}

// Start launches the polling loop. Safe to call once; subsequent calls are
// no-ops.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.logger.WithFields(logger.Fields{
			logger.FieldWorkerID: d.workerID,
			"poll_interval":      d.pollInterval.String(),
		}).Info("Dispatcher started")
		go d.run(ctx)
	})
}

// Stop halts the polling loop and waits for the current tick to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)
		<-d.done
		d.logger.WithField(logger.FieldWorkerID, d.workerID).Info("Dispatcher stopped")
	})
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick attempts one claim-and-process cycle. A failed claim is a no-op; any
// error or panic is contained here so a single bad job never kills the loop.
func (d *Dispatcher) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField(logger.FieldWorkerID, d.workerID).
				Errorf("Recovered from panic in dispatcher tick: %v", r)
		}
	}()

	job, err := d.jobs.ClaimNext(ctx, d.workerID)
	if err != nil {
		d.logger.WithError(err).Warn("Claim attempt failed")
		return
	}
	if job == nil {
		return
	}

	d.runJob(ctx, job)
}

func (d *Dispatcher) runJob(ctx context.Context, job *domain.ImportJob) {
	ctx = logger.SetJobID(logger.SetTenantID(ctx, job.TenantID), job.ID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("internal error: %v", r)
			d.failJob(ctx, job.ID, start, msg, nil)
		}
	}()

	if err := d.jobs.AppendLog(ctx, job.ID, "info",
		fmt.Sprintf("claimed by worker %s", d.workerID)); err != nil {
		logger.CtxWarn(ctx, "Failed to append claim log: %v", err)
	}

	tenant, err := d.tenants.GetByID(ctx, job.TenantID)
	if err != nil {
		d.failJob(ctx, job.ID, start, fmt.Sprintf("failed to load tenant: %v", err), nil)
		return
	}
	if tenant == nil {
		d.failJob(ctx, job.ID, start, fmt.Sprintf("tenant %s not found", job.TenantID), nil)
		return
	}

	tracker := NewProgressTracker(d.jobs, job.ID, d.logger)

	tracker.Publish(ctx, ProgressUpdate{Message: ptrString("fetching records from upstream")})
	records, err := d.fetcher.FetchAll(ctx, job.Config.CredentialRef, filtersFromConfig(job.Config),
		func(fetched int, phase string) {
			tracker.Publish(ctx, ProgressUpdate{
				TotalRecords: ptrInt(fetched),
				Message:      ptrString(phase),
			})
		})
	if err != nil {
		d.failJob(ctx, job.ID, start, err.Error(), nil)
		return
	}

	total := len(records)
	tracker.Publish(ctx, ProgressUpdate{
		TotalRecords: ptrInt(total),
		Message:      ptrString(fmt.Sprintf("processing %d records", total)),
	})

	batch, err := d.processor.ProcessAll(ctx, records, d.importer.ProcessFunc(tenant, job.Config), tracker)
	if err != nil {
		d.failJob(ctx, job.ID, start, err.Error(), resultFromBatch(batch, start))
		return
	}

	result := resultFromBatch(batch, start)
	if batch.LimitReached {
		d.failJob(ctx, job.ID, start, domain.ErrPlanLimitExceeded.Error(), result)
		return
	}

	if err := d.jobs.Complete(ctx, job.ID, result); err != nil {
		logger.CtxError(ctx, "Failed to mark job completed: %v", err)
		return
	}

	elapsed := time.Since(start)
	summary := fmt.Sprintf("import completed in %.0fs: processed=%d created=%d updated=%d errors=%d",
		elapsed.Seconds(), result.Processed, result.Created, result.Updated, result.Errors)
	if err := d.jobs.AppendLog(ctx, job.ID, "info", summary); err != nil {
		logger.CtxWarn(ctx, "Failed to append completion log: %v", err)
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: elapsed.Milliseconds(),
		logger.FieldCount:      result.Processed,
		logger.FieldStatus:     string(domain.JobStatusCompleted),
	}).Info(ctx, "Import job finished")
}

func (d *Dispatcher) failJob(ctx context.Context, jobID string, start time.Time, message string, result *domain.JobResult) {
	elapsed := time.Since(start)

	if err := d.jobs.Fail(ctx, jobID, message, result); err != nil {
		logger.CtxError(ctx, "Failed to mark job failed: %v", err)
	}
	line := fmt.Sprintf("import failed after %.0fs: %s", elapsed.Seconds(), message)
	if err := d.jobs.AppendLog(ctx, jobID, "error", line); err != nil {
		logger.CtxWarn(ctx, "Failed to append failure log: %v", err)
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: elapsed.Milliseconds(),
		logger.FieldStatus:     string(domain.JobStatusFailed),
	}).Warn(ctx, "Import job failed: %s", message)
}

func resultFromBatch(batch *BatchResult, start time.Time) *domain.JobResult {
	if batch == nil {
		return nil
	}
	return &domain.JobResult{
		Processed:      batch.Processed,
		Created:        batch.Created,
		Updated:        batch.Updated,
		Errors:         batch.Errors,
		ElapsedSeconds: time.Since(start).Seconds(),
		ErrorDetails:   batch.ErrorDetails,
	}
}

func filtersFromConfig(cfg domain.JobConfig) upstream.Filters {
	filters := upstream.Filters{
		ActiveOnly: cfg.ActiveOnly,
	}
	if cfg.Mode == domain.ImportModeFiltered {
		filters.ChangedWithinDays = cfg.ActivityWindowDays
		filters.RegisteredFrom = cfg.RegisteredFrom
		filters.RegisteredTo = cfg.RegisteredTo
	}
	return filters
}
