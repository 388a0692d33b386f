package domain

import "time"

// SyncStats is the summary persisted on a tenant after an inline
// incremental sync pass.
type SyncStats struct {
	RanAt     time.Time `json:"ran_at"`
	Fetched   int       `json:"fetched"`
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	Errors    int       `json:"errors"`
	WindowDay int       `json:"window_days"`
}

// Tenant holds per-tenant plan limits and integration settings.
type Tenant struct {
	ID   string `gorm:"type:text;primaryKey" json:"id"`
	Name string `json:"name"`

	// MaxCustomers is the plan limit for customer records; 0 means unlimited.
	MaxCustomers int `gorm:"default:0" json:"max_customers"`

	// AutoSync enables the recurring incremental sync pass for this tenant.
	AutoSync      bool   `gorm:"default:false" json:"auto_sync"`
	CredentialRef string `json:"credential_ref,omitempty"`

	// DefaultPasswordHash is the bcrypt credential applied to customers
	// created outside a queued import (the incremental sync path).
	DefaultPasswordHash string `json:"-"`

	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	LastSyncStats *SyncStats `gorm:"serializer:json" json:"last_sync_stats,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Tenant.
func (Tenant) TableName() string {
	return "tenants"
}
