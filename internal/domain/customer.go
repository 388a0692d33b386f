package domain

import "time"

// CustomerType distinguishes regular customers from partner accounts.
// A record reclassified to partner upstream must not be overwritten by an
// import; that surfaces as a per-record error.
type CustomerType string

const (
	CustomerTypeCustomer CustomerType = "customer"
	CustomerTypePartner  CustomerType = "partner"
)

// Customer is one tenant-scoped customer record, keyed naturally by email
// (or a synthesized address derived from the national ID when no email
// exists upstream).
type Customer struct {
	ID             string       `gorm:"type:text;primaryKey" json:"id"`
	TenantID       string       `gorm:"type:text;not null;index:idx_customers_tenant_email,unique" json:"tenant_id"`
	Email          string       `gorm:"type:text;not null;index:idx_customers_tenant_email,unique" json:"email"`
	Name           string       `json:"name"`
	NationalID     string       `gorm:"index" json:"national_id,omitempty"`
	Type           CustomerType `gorm:"default:customer" json:"type"`
	Active         bool         `gorm:"default:true" json:"active"`
	ContractActive bool         `gorm:"default:false" json:"contract_active"`
	PasswordHash   string       `json:"-"`
	UpstreamID     string       `gorm:"index" json:"upstream_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// TableName returns the database table name for Customer.
func (Customer) TableName() string {
	return "customers"
}
