package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/otavio/clientsync/internal/domain"
	"github.com/otavio/clientsync/internal/logger"
	"github.com/otavio/clientsync/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidRequest marks a rejected enqueue configuration. The job is
// never created.
var ErrInvalidRequest = errors.New("invalid import configuration")

// minPasswordLength is the minimum accepted default-password length.
const minPasswordLength = 6

// EnqueueRequest is the caller-facing enqueue payload. DefaultPassword is
// hashed before storage and never logged.
type EnqueueRequest struct {
	TenantID           string
	DefaultPassword    string
	Mode               domain.ImportMode
	ActiveOnly         bool
	ActivityWindowDays int
	RegisteredFrom     string
	RegisteredTo       string
	CredentialRef      string
}

// AdmissionService enqueues new import jobs, reports queue positions, and
// cancels jobs that have not been claimed yet.
type AdmissionService struct {
	jobs    *repository.JobRepository
	tenants *repository.TenantRepository
	logger  *logger.Logger
}

// NewAdmissionService creates a new AdmissionService.
func NewAdmissionService(jobs *repository.JobRepository, tenants *repository.TenantRepository, log *logger.Logger) *AdmissionService {
	return &AdmissionService{
		jobs:    jobs,
		tenants: tenants,
		logger:  log,
	}
}

// Enqueue validates the request, hashes the default password, and persists a
// queued job. Fails with ErrInvalidRequest on bad configuration and
// domain.ErrDuplicateActiveJob when the tenant already has an active job.
func (s *AdmissionService) Enqueue(ctx context.Context, req *EnqueueRequest) (*domain.ImportJob, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidRequest)
	}
	if req.Mode != domain.ImportModeFull && req.Mode != domain.ImportModeFiltered {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}
	if len(req.DefaultPassword) < minPasswordLength {
		return nil, fmt.Errorf("%w: default password must have at least %d characters", ErrInvalidRequest, minPasswordLength)
	}

	tenant, err := s.tenants.GetByID(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("%w: tenant %s not found", ErrInvalidRequest, req.TenantID)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash default password: %w", err)
	}

	job := &domain.ImportJob{
		ID:       uuid.New().String(),
		TenantID: req.TenantID,
		Config: domain.JobConfig{
			Mode:                req.Mode,
			ActiveOnly:          req.ActiveOnly,
			ActivityWindowDays:  req.ActivityWindowDays,
			RegisteredFrom:      req.RegisteredFrom,
			RegisteredTo:        req.RegisteredTo,
			DefaultPasswordHash: string(hash),
			CredentialRef:       req.CredentialRef,
		},
		Message: "waiting in queue",
	}

	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, err
	}

	s.logger.WithFields(logger.Fields{
		logger.FieldJobID:    job.ID,
		logger.FieldTenantID: job.TenantID,
		"queue_position":     job.QueuePosition,
		"mode":               job.Config.Mode,
	}).Info("Import job enqueued")

	return job, nil
}

// Position reports the tenant's live queue rank per the job store rules.
func (s *AdmissionService) Position(ctx context.Context, tenantID string) (*int, error) {
	return s.jobs.QueuePosition(ctx, tenantID)
}

// Status returns the full job projection including its ordered logs.
func (s *AdmissionService) Status(ctx context.Context, jobID string) (*domain.ImportJob, []domain.JobLog, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	logs, err := s.jobs.GetLogs(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return job, logs, nil
}

// Cancel removes a job that is still queued. Cancellation of a running job
// is not supported; that surfaces as domain.ErrNotCancelable, never as a
// silent success.
func (s *AdmissionService) Cancel(ctx context.Context, jobID string) error {
	if err := s.jobs.CancelQueued(ctx, jobID); err != nil {
		return err
	}
	s.logger.WithField(logger.FieldJobID, jobID).Info("Queued import job cancelled")
	return nil
}
