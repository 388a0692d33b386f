package service

import (
	"context"
	"testing"

	"github.com/otavio/clientsync/internal/domain"
	"github.com/otavio/clientsync/internal/repository"
)

func newSyncFixture(t *testing.T, fetcher *fakeFetcher, cfg *SyncConfig) (*SyncService, *dispatcherFixture) {
	t.Helper()
	db := newTestDB(t)
	log := quietLogger()
	fx := &dispatcherFixture{
		db:        db,
		tenants:   repository.NewTenantRepository(db),
		customers: repository.NewCustomerRepository(db),
		fetcher:   fetcher,
	}
	importer := NewImporter(fx.customers, log)
	return NewSyncService(fx.tenants, fetcher, importer, log, cfg), fx
}

func TestRunTenantSyncPersistsStats(t *testing.T) {
	fetcher := &fakeFetcher{records: makeRecords(4)}
	sync, fx := newSyncFixture(t, fetcher, &SyncConfig{WindowDays: 3, MaxRecords: 500})
	ctx := context.Background()

	tenant := createTenant(t, fx.db, &domain.Tenant{
		ID: "t1", AutoSync: true, CredentialRef: "sync-token",
		DefaultPasswordHash: "tenant-hash",
	})
	// One of the fetched records already exists
	if err := fx.customers.Create(ctx, &domain.Customer{
		ID: "c1", TenantID: "t1", Email: "client1@example.com", Type: domain.CustomerTypeCustomer,
	}); err != nil {
		t.Fatalf("Seed create failed: %v", err)
	}

	stats, err := sync.RunTenantSync(ctx, tenant)
	if err != nil {
		t.Fatalf("RunTenantSync failed: %v", err)
	}

	if stats.Fetched != 4 || stats.Created != 3 || stats.Updated != 1 || stats.Errors != 0 {
		t.Errorf("Stats = %+v, want fetched=4 created=3 updated=1 errors=0", stats)
	}
	if stats.WindowDay != 3 {
		t.Errorf("WindowDay = %d, want 3", stats.WindowDay)
	}

	// The sync path always narrows the fetch to recent active contracts
	if !fetcher.lastFilters.ActiveOnly || !fetcher.lastFilters.ActiveContractsOnly {
		t.Errorf("Filters = %+v, want active-only with active contracts", fetcher.lastFilters)
	}
	if fetcher.lastFilters.ChangedWithinDays != 3 {
		t.Errorf("ChangedWithinDays = %d, want 3", fetcher.lastFilters.ChangedWithinDays)
	}
	if fetcher.lastFilters.MaxRecords != 500 {
		t.Errorf("MaxRecords = %d, want 500", fetcher.lastFilters.MaxRecords)
	}
	if fetcher.lastToken != "sync-token" {
		t.Errorf("Token = %s, want sync-token", fetcher.lastToken)
	}

	stored, err := fx.tenants.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.LastSyncAt == nil {
		t.Error("LastSyncAt not persisted")
	}
	if stored.LastSyncStats == nil || stored.LastSyncStats.Created != 3 {
		t.Errorf("LastSyncStats = %+v, want created=3", stored.LastSyncStats)
	}

	// Sync-created customers get the tenant's default credential
	created, err := fx.customers.GetByEmail(ctx, "t1", "client2@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if created == nil {
		t.Fatal("Sync-created customer not found")
	}
	if created.PasswordHash != "tenant-hash" {
		t.Errorf("PasswordHash = %q, want %q", created.PasswordHash, "tenant-hash")
	}
}

func TestRunTenantSyncStopsAtPlanLimit(t *testing.T) {
	fetcher := &fakeFetcher{records: makeRecords(5)}
	sync, fx := newSyncFixture(t, fetcher, &SyncConfig{})
	ctx := context.Background()

	tenant := createTenant(t, fx.db, &domain.Tenant{ID: "t1", MaxCustomers: 2})

	stats, err := sync.RunTenantSync(ctx, tenant)
	if err != nil {
		t.Fatalf("RunTenantSync failed: %v", err)
	}

	// Two inserts fit the plan; the first breach stops the pass
	if stats.Created != 2 {
		t.Errorf("Created = %d, want 2", stats.Created)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}

	count, err := fx.customers.CountByTenant(ctx, "t1")
	if err != nil {
		t.Fatalf("CountByTenant failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Customer count = %d, want 2", count)
	}
}

func TestRunAllCoversOnlyAutoSyncTenants(t *testing.T) {
	fetcher := &fakeFetcher{records: makeRecords(1)}
	sync, fx := newSyncFixture(t, fetcher, &SyncConfig{})
	ctx := context.Background()

	createTenant(t, fx.db, &domain.Tenant{ID: "t1", AutoSync: true})
	createTenant(t, fx.db, &domain.Tenant{ID: "t2", AutoSync: false})
	createTenant(t, fx.db, &domain.Tenant{ID: "t3", AutoSync: true})

	synced, err := sync.RunAll(ctx)
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	// Only the auto-sync tenants run
	if synced != 2 {
		t.Errorf("Synced = %d, want 2", synced)
	}
	if fetcher.calls != 2 {
		t.Errorf("Fetch calls = %d, want 2", fetcher.calls)
	}
}
