package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/otavio/clientsync/internal/domain"
	"github.com/otavio/clientsync/internal/logger"
	"github.com/otavio/clientsync/internal/repository"
	"github.com/otavio/clientsync/internal/upstream"
)

// SyncConfig holds configuration for the recurring incremental sync.
type SyncConfig struct {
	WindowDays int
	MaxRecords int
}

// SyncService runs the recurring incremental sync pass for tenants with
// automatic integration enabled. It is deliberately separate from the job
// queue: each pass is a synchronous, bounded operation that fetches only
// recently changed active-contract records and applies the same plan-limit
// and classification rules as a queued import.
type SyncService struct {
	tenants  *repository.TenantRepository
	fetcher  Fetcher
	importer *Importer
	logger   *logger.Logger

	windowDays int
	maxRecords int
}

// NewSyncService creates a new SyncService.
func NewSyncService(tenants *repository.TenantRepository, fetcher Fetcher, importer *Importer, log *logger.Logger, cfg *SyncConfig) *SyncService {
	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = 2
	}
	maxRecords := cfg.MaxRecords
	if maxRecords <= 0 {
		maxRecords = 500
	}
	return &SyncService{
		tenants:    tenants,
		fetcher:    fetcher,
		importer:   importer,
		logger:     log,
		windowDays: windowDays,
		maxRecords: maxRecords,
	}
}

// RunTenantSync runs one inline sync pass for the tenant and persists the
// resulting statistics on the tenant's integration record.
func (s *SyncService) RunTenantSync(ctx context.Context, tenant *domain.Tenant) (*domain.SyncStats, error) {
	ctx = logger.SetTenantID(ctx, tenant.ID)

	filters := upstream.Filters{
		ActiveOnly:          true,
		ActiveContractsOnly: true,
		ChangedWithinDays:   s.windowDays,
		MaxRecords:          s.maxRecords,
	}

	records, err := s.fetcher.FetchAll(ctx, tenant.CredentialRef, filters, nil)
	if err != nil {
		return nil, fmt.Errorf("sync fetch failed: %w", err)
	}

	stats := &domain.SyncStats{
		RanAt:     time.Now(),
		Fetched:   len(records),
		WindowDay: s.windowDays,
	}

	for _, record := range records {
		outcome, err := s.importer.ImportRecord(ctx, tenant, tenant.DefaultPasswordHash, record)
		if err != nil {
			stats.Errors++
			logger.CtxWarn(ctx, "Sync record failed: %v", err)
			if errors.Is(err, domain.ErrPlanLimitExceeded) {
				// Every remaining record would hit the same limit
				break
			}
			continue
		}
		if outcome.Created {
			stats.Created++
		} else if outcome.Updated {
			stats.Updated++
		}
	}

	if err := s.tenants.SaveSyncStats(ctx, tenant.ID, stats); err != nil {
		return stats, fmt.Errorf("failed to persist sync stats: %w", err)
	}

	logger.With(logger.Fields{
		logger.FieldCount: stats.Fetched,
	}).Info(ctx, "Sync pass finished: created=%d updated=%d errors=%d",
		stats.Created, stats.Updated, stats.Errors)

	return stats, nil
}

// RunAll runs a sync pass for every tenant with automatic integration
// enabled. A failed tenant does not stop the others. Returns the number of
// tenants synced successfully.
func (s *SyncService) RunAll(ctx context.Context) (int, error) {
	tenants, err := s.tenants.ListAutoSync(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list auto-sync tenants: %w", err)
	}

	synced := 0
	for i := range tenants {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if _, err := s.RunTenantSync(ctx, &tenants[i]); err != nil {
			s.logger.WithError(err).WithField(logger.FieldTenantID, tenants[i].ID).
				Error("Tenant sync failed")
			continue
		}
		synced++
	}
	return synced, nil
}
