package repository

import (
	"context"
	"errors"
	"time"

	"github.com/otavio/clientsync/internal/domain"
	"gorm.io/gorm"
)

// TenantRepository handles tenant and integration settings persistence.
type TenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new TenantRepository.
func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// GetByID retrieves a tenant by its ID.
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

// ListAutoSync retrieves tenants with the recurring sync enabled.
func (r *TenantRepository) ListAutoSync(ctx context.Context) ([]domain.Tenant, error) {
	var tenants []domain.Tenant
	if err := r.db.WithContext(ctx).
		Where("auto_sync = ?", true).
		Order("id").
		Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

// SaveSyncStats persists the outcome of an inline sync pass on the tenant row.
func (r *TenantRepository) SaveSyncStats(ctx context.Context, tenantID string, stats *domain.SyncStats) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.Tenant{}).
		Where("id = ?", tenantID).
		Select("last_sync_at", "last_sync_stats").
		Updates(&domain.Tenant{LastSyncAt: &now, LastSyncStats: stats}).Error
}
