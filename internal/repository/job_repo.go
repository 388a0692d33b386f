package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/otavio/clientsync/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobRepository handles import job persistence: enqueue, claim, progress,
// terminal transitions, and the append-only job log.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Enqueue atomically persists a new queued job for the tenant.
// The job gets the next queue position among queued jobs and an initial log
// entry recording it. Fails with domain.ErrDuplicateActiveJob when the tenant
// already has a queued or running job.
func (r *JobRepository) Enqueue(ctx context.Context, job *domain.ImportJob) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&domain.ImportJob{}).
			Where("tenant_id = ? AND status IN ?", job.TenantID,
				[]domain.JobStatus{domain.JobStatusQueued, domain.JobStatusRunning}).
			Count(&active).Error; err != nil {
			return fmt.Errorf("failed to check active jobs: %w", err)
		}
		if active > 0 {
			return domain.ErrDuplicateActiveJob
		}

		var maxPosition int
		if err := tx.Model(&domain.ImportJob{}).
			Where("status = ?", domain.JobStatusQueued).
			Select("COALESCE(MAX(queue_position), 0)").
			Scan(&maxPosition).Error; err != nil {
			return fmt.Errorf("failed to compute queue position: %w", err)
		}

		job.Status = domain.JobStatusQueued
		job.QueuePosition = maxPosition + 1

		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("failed to create import job: %w", err)
		}

		entry := &domain.JobLog{
			JobID:   job.ID,
			Level:   "info",
			Message: fmt.Sprintf("job queued at position %d", job.QueuePosition),
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to write initial job log: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ImportJob, error) {
	var job domain.ImportJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// GetLogs retrieves the ordered log entries of a job.
func (r *JobRepository) GetLogs(ctx context.Context, jobID string) ([]domain.JobLog, error) {
	var logs []domain.JobLog
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id").
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// ActiveByTenant returns the tenant's queued or running job, or nil when the
// tenant has no active job.
func (r *JobRepository) ActiveByTenant(ctx context.Context, tenantID string) (*domain.ImportJob, error) {
	var job domain.ImportJob
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status IN ?", tenantID,
			[]domain.JobStatus{domain.JobStatusQueued, domain.JobStatusRunning}).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// QueuePosition reports the tenant's live rank in the queue.
// Returns nil when the tenant has no active job, 0 when the job is running,
// and otherwise 1 + the number of queued jobs ahead of it. The rank is
// recomputed from still-queued jobs so it shrinks as earlier jobs finish.
func (r *JobRepository) QueuePosition(ctx context.Context, tenantID string) (*int, error) {
	job, err := r.ActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	if job.Status == domain.JobStatusRunning {
		zero := 0
		return &zero, nil
	}

	var ahead int64
	if err := r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("status = ? AND queue_position < ?", domain.JobStatusQueued, job.QueuePosition).
		Count(&ahead).Error; err != nil {
		return nil, err
	}
	position := int(ahead) + 1
	return &position, nil
}

// ClaimNext atomically claims the oldest queued job for the given worker.
// Returns nil when there is nothing to claim or another worker won the race.
// On PostgreSQL the candidate row is locked with SKIP LOCKED so concurrent
// workers never block each other on the same row.
func (r *JobRepository) ClaimNext(ctx context.Context, workerID string) (*domain.ImportJob, error) {
	var claimed *domain.ImportJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.
			Where("status = ?", domain.JobStatusQueued).
			Order("queue_position, created_at")
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var job domain.ImportJob
		if err := query.First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		now := time.Now()
		res := tx.Model(&domain.ImportJob{}).
			Where("id = ? AND status = ?", job.ID, domain.JobStatusQueued).
			Updates(map[string]interface{}{
				"status":     domain.JobStatusRunning,
				"worker_id":  workerID,
				"started_at": now,
				"message":    "import started",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race to a concurrent worker
			return nil
		}

		job.Status = domain.JobStatusRunning
		job.WorkerID = workerID
		job.StartedAt = &now
		job.Message = "import started"
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return claimed, nil
}

// AppendLog appends one entry to a job's log.
func (r *JobRepository) AppendLog(ctx context.Context, jobID, level, message string) error {
	entry := &domain.JobLog{JobID: jobID, Level: level, Message: message}
	return r.db.WithContext(ctx).Create(entry).Error
}

// UpdateProgress writes a full progress snapshot to a running job.
// Callers coalesce partial events into the snapshot first (see
// service/progress); the update is a no-op once the job left the running
// state, so terminal rows are never touched by late events.
func (r *JobRepository) UpdateProgress(ctx context.Context, jobID string, snapshot *domain.ImportJob) error {
	return r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ? AND status = ?", jobID, domain.JobStatusRunning).
		Select("total_records", "processed", "created", "updated", "errors", "percent", "eta_seconds", "message").
		Updates(snapshot).Error
}

// Complete transitions a running job to completed and persists its result.
// The update is conditional on the job still being running, so a terminal
// transition happens exactly once.
func (r *JobRepository) Complete(ctx context.Context, jobID string, result *domain.JobResult) error {
	return r.finish(ctx, jobID, domain.JobStatusCompleted, "import completed", result)
}

// Fail transitions a running job to failed, storing the classified error
// message and whatever partial result is available.
func (r *JobRepository) Fail(ctx context.Context, jobID, message string, result *domain.JobResult) error {
	return r.finish(ctx, jobID, domain.JobStatusFailed, message, result)
}

func (r *JobRepository) finish(ctx context.Context, jobID string, status domain.JobStatus, message string, result *domain.JobResult) error {
	now := time.Now()
	update := domain.ImportJob{
		Status:     status,
		FinishedAt: &now,
		Message:    message,
	}
	columns := []string{"status", "finished_at", "message"}
	if result != nil {
		update.Result = result
		update.Processed = result.Processed
		update.Created = result.Created
		update.Updated = result.Updated
		update.Errors = result.Errors
		columns = append(columns, "result", "processed", "created", "updated", "errors")
	}
	if status == domain.JobStatusCompleted {
		update.Percent = 100
		columns = append(columns, "percent")
	}

	res := r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ? AND status = ?", jobID, domain.JobStatusRunning).
		Select(columns[0], toInterfaces(columns[1:])...).
		Updates(&update)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s is not running", jobID)
	}
	return nil
}

func toInterfaces(columns []string) []interface{} {
	out := make([]interface{}, len(columns))
	for i, c := range columns {
		out[i] = c
	}
	return out
}

// CancelQueued removes a job that has not been claimed yet.
// Fails with domain.ErrNotCancelable once the job left the queued state.
func (r *JobRepository) CancelQueued(ctx context.Context, jobID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND status = ?", jobID, domain.JobStatusQueued).
			Delete(&domain.ImportJob{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&domain.ImportJob{}).Where("id = ?", jobID).Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return domain.ErrJobNotFound
			}
			return domain.ErrNotCancelable
		}
		return tx.Where("job_id = ?", jobID).Delete(&domain.JobLog{}).Error
	})
}

// DeleteTerminalBefore removes terminal jobs (and their logs) finished before
// the cutoff. Used by the retention cleanup loop.
func (r *JobRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&domain.ImportJob{}).
			Where("status IN ? AND finished_at < ?",
				[]domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed}, cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("job_id IN ?", ids).Delete(&domain.JobLog{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&domain.ImportJob{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return nil
	})
	return removed, err
}
