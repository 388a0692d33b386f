package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/otavio/clientsync/internal/domain"
	"github.com/otavio/clientsync/internal/logger"
	"github.com/otavio/clientsync/internal/repository"
)

// ProgressUpdate is one progress event flowing from the fetcher or the
// batch processor toward the job row. Nil fields mean "unchanged" and must
// never overwrite a previously known value.
type ProgressUpdate struct {
	TotalRecords *int
	Processed    *int
	Created      *int
	Updated      *int
	Errors       *int
	Percent      *float64
	ETASeconds   *int
	Message      *string
}

// ProgressSink receives progress events. The Dispatcher threads a single
// sink through fetch and processing instead of ad hoc callback chaining.
type ProgressSink interface {
	Publish(ctx context.Context, update ProgressUpdate)
}

// ProgressTracker coalesces progress events into a snapshot, enforces
// monotonic counters and a clamped percentage, persists the snapshot on the
// job row, and appends a log line roughly every 10% of progress.
type ProgressTracker struct {
	jobs  *repository.JobRepository
	jobID string
	log   *logger.Logger

	mu          sync.Mutex
	snapshot    domain.ImportJob
	lastLogged  float64
	lastMessage string
}

// NewProgressTracker creates a tracker bound to one job.
func NewProgressTracker(jobs *repository.JobRepository, jobID string, log *logger.Logger) *ProgressTracker {
	return &ProgressTracker{
		jobs:  jobs,
		jobID: jobID,
		log:   log,
	}
}

// Publish coalesces the update into the tracked snapshot and persists it.
// Persistence failures are logged, never surfaced: losing one progress row
// must not fail the run.
func (t *ProgressTracker) Publish(ctx context.Context, update ProgressUpdate) {
	t.mu.Lock()

	coalesceInt(&t.snapshot.TotalRecords, update.TotalRecords)
	coalesceInt(&t.snapshot.Processed, update.Processed)
	coalesceInt(&t.snapshot.Created, update.Created)
	coalesceInt(&t.snapshot.Updated, update.Updated)
	coalesceInt(&t.snapshot.Errors, update.Errors)

	if update.Percent != nil {
		percent := *update.Percent
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		if percent > t.snapshot.Percent {
			t.snapshot.Percent = percent
		}
	}

	// ETA is only meaningful once something has been processed
	if update.ETASeconds != nil && t.snapshot.Processed > 0 {
		eta := *update.ETASeconds
		t.snapshot.ETASeconds = &eta
	}

	if update.Message != nil && *update.Message != "" {
		t.snapshot.Message = *update.Message
	}

	snapshot := t.snapshot
	logLine := ""
	if snapshot.Percent-t.lastLogged >= 10 {
		t.lastLogged = snapshot.Percent
		logLine = fmt.Sprintf("processed %d/%d records (%.0f%%)",
			snapshot.Processed, snapshot.TotalRecords, snapshot.Percent)
	} else if update.Message != nil && *update.Message != t.lastMessage {
		t.lastMessage = *update.Message
		logLine = *update.Message
	}
	t.mu.Unlock()

	if err := t.jobs.UpdateProgress(ctx, t.jobID, &snapshot); err != nil {
		t.log.WithError(err).WithField(logger.FieldJobID, t.jobID).Warn("Failed to persist progress")
	}
	if logLine != "" {
		if err := t.jobs.AppendLog(ctx, t.jobID, "info", logLine); err != nil {
			t.log.WithError(err).WithField(logger.FieldJobID, t.jobID).Warn("Failed to append progress log")
		}
	}
}

// Snapshot returns a copy of the current coalesced state.
func (t *ProgressTracker) Snapshot() domain.ImportJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot
}

// coalesceInt applies the incoming value only when present and not smaller
// than the known one, keeping counters monotonic while running.
func coalesceInt(dst *int, src *int) {
	if src != nil && *src > *dst {
		*dst = *src
	}
}

func ptrInt(v int) *int           { return &v }
func ptrFloat(v float64) *float64 { return &v }
func ptrString(v string) *string  { return &v }
