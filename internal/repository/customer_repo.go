package repository

import (
	"context"
	"errors"

	"github.com/otavio/clientsync/internal/domain"
	"gorm.io/gorm"
)

// CustomerRepository handles tenant-scoped customer data operations.
type CustomerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository creates a new CustomerRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CustomerRepository: repository instance bound to db.
func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// Create inserts a new customer record.
func (r *CustomerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

// Update updates an existing customer record.
func (r *CustomerRepository) Update(ctx context.Context, customer *domain.Customer) error {
	return r.db.WithContext(ctx).Save(customer).Error
}

// GetByEmail retrieves a tenant's customer by email.
// Returns (nil, nil) when no record matches.
func (r *CustomerRepository) GetByEmail(ctx context.Context, tenantID, email string) (*domain.Customer, error) {
	var customer domain.Customer
	err := r.db.WithContext(ctx).
		First(&customer, "tenant_id = ? AND email = ?", tenantID, email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

// GetByNationalID retrieves a tenant's customer by national ID.
// Returns (nil, nil) when no record matches.
func (r *CustomerRepository) GetByNationalID(ctx context.Context, tenantID, nationalID string) (*domain.Customer, error) {
	var customer domain.Customer
	err := r.db.WithContext(ctx).
		First(&customer, "tenant_id = ? AND national_id = ?", tenantID, nationalID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

// CountByTenant counts a tenant's customer records, used for plan-limit checks.
func (r *CustomerRepository) CountByTenant(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Customer{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
