package service

import (
	"context"
	"sync"
	"time"

	"github.com/otavio/clientsync/internal/logger"
	"github.com/otavio/clientsync/internal/repository"
)

// CleanupConfig holds configuration for the retention cleanup loop.
type CleanupConfig struct {
	RetentionDays int
	Interval      time.Duration
}

// CleanupService periodically deletes terminal jobs older than the retention
// window. Housekeeping only; no correctness depends on it.
type CleanupService struct {
	jobs   *repository.JobRepository
	logger *logger.Logger

	retention time.Duration
	interval  time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewCleanupService creates a new CleanupService.
func NewCleanupService(jobs *repository.JobRepository, log *logger.Logger, cfg *CleanupConfig) *CleanupService {
	retentionDays := cfg.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 7
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupService{
		jobs:      jobs,
		logger:    log,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the cleanup loop.
func (s *CleanupService) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.run(ctx)
	})
}

// Stop halts the cleanup loop.
func (s *CleanupService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}

func (s *CleanupService) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce deletes terminal jobs finished before the retention cutoff.
func (s *CleanupService) RunOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.retention)
	removed, err := s.jobs.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Warn("Retention cleanup failed")
		return
	}
	if removed > 0 {
		s.logger.WithField(logger.FieldCount, removed).Info("Removed expired import jobs")
	}
}
