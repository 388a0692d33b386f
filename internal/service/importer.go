package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/otavio/clientsync/internal/domain"
	"github.com/otavio/clientsync/internal/logger"
	"github.com/otavio/clientsync/internal/repository"
	"github.com/otavio/clientsync/internal/upstream"
)

// Importer maps upstream records into a tenant's customer store, enforcing
// the plan limit on inserts and refusing to overwrite partner accounts.
type Importer struct {
	customers *repository.CustomerRepository
	logger    *logger.Logger
}

// NewImporter creates a new Importer.
func NewImporter(customers *repository.CustomerRepository, log *logger.Logger) *Importer {
	return &Importer{
		customers: customers,
		logger:    log,
	}
}

// ProcessFunc returns the per-record function the batch processor runs for
// the given tenant and job configuration.
func (im *Importer) ProcessFunc(tenant *domain.Tenant, cfg domain.JobConfig) ProcessFunc {
	return func(ctx context.Context, record upstream.ExternalClient) (RecordOutcome, error) {
		return im.ImportRecord(ctx, tenant, cfg.DefaultPasswordHash, record)
	}
}

// ImportRecord upserts one upstream record keyed by email, falling back to a
// key synthesized from the national ID when the record has no email.
// A plan-limit breach on insert returns domain.ErrPlanLimitExceeded; an
// existing partner account returns domain.ErrTypeConflict. Both are
// per-record errors from the caller's perspective; the processor decides
// which of them stops the run.
func (im *Importer) ImportRecord(ctx context.Context, tenant *domain.Tenant, passwordHash string, record upstream.ExternalClient) (RecordOutcome, error) {
	email := strings.ToLower(strings.TrimSpace(record.Email))
	nationalID := digitsOnly(record.NationalID)

	var existing *domain.Customer
	var err error
	switch {
	case email != "":
		existing, err = im.customers.GetByEmail(ctx, tenant.ID, email)
	case nationalID != "":
		existing, err = im.customers.GetByNationalID(ctx, tenant.ID, nationalID)
		email = synthesizedEmail(nationalID)
	default:
		return RecordOutcome{}, domain.ErrMissingIdentity
	}
	if err != nil {
		return RecordOutcome{}, fmt.Errorf("customer lookup failed: %w", err)
	}

	if existing == nil {
		if tenant.MaxCustomers > 0 {
			count, err := im.customers.CountByTenant(ctx, tenant.ID)
			if err != nil {
				return RecordOutcome{}, fmt.Errorf("plan limit check failed: %w", err)
			}
			if count >= int64(tenant.MaxCustomers) {
				return RecordOutcome{}, domain.ErrPlanLimitExceeded
			}
		}

		customer := &domain.Customer{
			ID:             uuid.New().String(),
			TenantID:       tenant.ID,
			Email:          email,
			Name:           record.Name,
			NationalID:     nationalID,
			Type:           domain.CustomerTypeCustomer,
			Active:         record.Active,
			ContractActive: record.ContractActive,
			PasswordHash:   passwordHash,
			UpstreamID:     record.ID,
		}
		if err := im.customers.Create(ctx, customer); err != nil {
			return RecordOutcome{}, fmt.Errorf("failed to create customer: %w", err)
		}
		return RecordOutcome{Created: true}, nil
	}

	if existing.Type == domain.CustomerTypePartner {
		return RecordOutcome{}, fmt.Errorf("%s: %w", existing.Email, domain.ErrTypeConflict)
	}

	existing.Name = record.Name
	existing.Active = record.Active
	existing.ContractActive = record.ContractActive
	if nationalID != "" {
		existing.NationalID = nationalID
	}
	if record.ID != "" {
		existing.UpstreamID = record.ID
	}
	if err := im.customers.Update(ctx, existing); err != nil {
		return RecordOutcome{}, fmt.Errorf("failed to update customer: %w", err)
	}
	return RecordOutcome{Updated: true}, nil
}

// synthesizedEmail builds a stable placeholder address for records that
// carry only a national ID.
func synthesizedEmail(nationalID string) string {
	return nationalID + "@imported.local"
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
