package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/otavio/clientsync/internal/domain"
	"github.com/otavio/clientsync/internal/logger"
	"github.com/otavio/clientsync/internal/repository"
	"github.com/otavio/clientsync/internal/upstream"
	"gorm.io/gorm"
)

type dispatcherFixture struct {
	db        *gorm.DB
	jobs      *repository.JobRepository
	tenants   *repository.TenantRepository
	customers *repository.CustomerRepository
	fetcher   *fakeFetcher
}

func newDispatcher(t *testing.T, fetcher *fakeFetcher, chunkSize int) (*Dispatcher, *dispatcherFixture) {
	t.Helper()
	db := newTestDB(t)
	log := quietLogger()
	fx := &dispatcherFixture{
		db:        db,
		jobs:      repository.NewJobRepository(db),
		tenants:   repository.NewTenantRepository(db),
		customers: repository.NewCustomerRepository(db),
		fetcher:   fetcher,
	}
	importer := NewImporter(fx.customers, log)
	processor := NewBatchProcessor(chunkSize, 0, log)
	d := NewDispatcher(fx.jobs, fx.tenants, fetcher, processor, importer, log, &DispatcherConfig{
		WorkerID: "test-worker",
	})
	return d, fx
}

func enqueueTestJob(t *testing.T, fx *dispatcherFixture, tenantID string) *domain.ImportJob {
	t.Helper()
	job := &domain.ImportJob{
		ID:       "job-" + tenantID,
		TenantID: tenantID,
		Config: domain.JobConfig{
			Mode:                domain.ImportModeFull,
			DefaultPasswordHash: "hash",
			CredentialRef:       "tenant-token",
		},
	}
	if err := fx.jobs.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return job
}

func TestTickRunsJobToCompletion(t *testing.T) {
	fetcher := &fakeFetcher{records: makeRecords(5)}
	d, fx := newDispatcher(t, fetcher, 2)
	ctx := context.Background()

	createTenant(t, fx.db, &domain.Tenant{ID: "t1", Name: "Tenant One"})

	// client1 already exists and gets updated; client2 is a partner and fails
	if err := fx.customers.Create(ctx, &domain.Customer{
		ID: "c1", TenantID: "t1", Email: "client1@example.com", Type: domain.CustomerTypeCustomer,
	}); err != nil {
		t.Fatalf("Seed create failed: %v", err)
	}
	if err := fx.customers.Create(ctx, &domain.Customer{
		ID: "c2", TenantID: "t1", Email: "client2@example.com", Type: domain.CustomerTypePartner,
	}); err != nil {
		t.Fatalf("Seed create failed: %v", err)
	}

	job := enqueueTestJob(t, fx, "t1")
	d.Tick(ctx)

	stored, err := fx.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != domain.JobStatusCompleted {
		t.Fatalf("Status = %s (message %q), want completed", stored.Status, stored.Message)
	}
	if stored.Processed != 5 || stored.Created != 3 || stored.Updated != 1 || stored.Errors != 1 {
		t.Errorf("Counters = %d/%d/%d/%d, want 5/3/1/1",
			stored.Processed, stored.Created, stored.Updated, stored.Errors)
	}
	if stored.Percent != 100 {
		t.Errorf("Percent = %.1f, want 100", stored.Percent)
	}
	if stored.WorkerID != "test-worker" {
		t.Errorf("WorkerID = %s, want test-worker", stored.WorkerID)
	}
	if stored.Result == nil || len(stored.Result.ErrorDetails) != 1 {
		t.Fatalf("Result = %+v, want one error detail", stored.Result)
	}
	if stored.Result.ErrorDetails[0].Record != "client2@example.com" {
		t.Errorf("Failed record = %s, want client2@example.com", stored.Result.ErrorDetails[0].Record)
	}

	// The fetch used the job's stored credential
	if fetcher.lastToken != "tenant-token" {
		t.Errorf("Fetch token = %s, want tenant-token", fetcher.lastToken)
	}

	// Created customers carry the password hash from the store-reloaded config
	created, err := fx.customers.GetByEmail(ctx, "t1", "client3@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if created == nil {
		t.Fatal("Created customer not found")
	}
	if created.PasswordHash != "hash" {
		t.Errorf("Created customer PasswordHash = %q, want %q", created.PasswordHash, "hash")
	}

	logs, err := fx.jobs.GetLogs(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetLogs failed: %v", err)
	}
	var claimed, summary bool
	for _, entry := range logs {
		if strings.Contains(entry.Message, "claimed by worker test-worker") {
			claimed = true
		}
		if strings.Contains(entry.Message, "import completed in") {
			summary = true
		}
	}
	if !claimed {
		t.Error("Claim log entry missing")
	}
	if !summary {
		t.Error("Completion summary log entry missing")
	}
}

func TestTickFailsJobOnFetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: &upstream.Error{Kind: upstream.KindAuth, Status: 401, Msg: "invalid token"}}
	d, fx := newDispatcher(t, fetcher, 2)
	ctx := context.Background()

	createTenant(t, fx.db, &domain.Tenant{ID: "t1"})
	job := enqueueTestJob(t, fx, "t1")

	d.Tick(ctx)

	stored, err := fx.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != domain.JobStatusFailed {
		t.Fatalf("Status = %s, want failed", stored.Status)
	}
	if !strings.Contains(stored.Message, "invalid token") {
		t.Errorf("Message = %q, want classified upstream error", stored.Message)
	}
}

func TestTickFailsJobOnPlanLimit(t *testing.T) {
	fetcher := &fakeFetcher{records: makeRecords(3)}
	// Serial chunks make the stop point deterministic
	d, fx := newDispatcher(t, fetcher, 1)
	ctx := context.Background()

	createTenant(t, fx.db, &domain.Tenant{ID: "t1", MaxCustomers: 1})
	job := enqueueTestJob(t, fx, "t1")

	d.Tick(ctx)

	stored, err := fx.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != domain.JobStatusFailed {
		t.Fatalf("Status = %s, want failed", stored.Status)
	}
	if stored.Message != domain.ErrPlanLimitExceeded.Error() {
		t.Errorf("Message = %q, want plan limit message", stored.Message)
	}
	// The partial result survives: one created before the breach stopped the run
	if stored.Result == nil {
		t.Fatal("Result missing on plan-limit failure")
	}
	if stored.Result.Created != 1 || stored.Result.Errors != 1 || stored.Result.Processed != 2 {
		t.Errorf("Result = %+v, want created=1 errors=1 processed=2", stored.Result)
	}
}

func TestTickFailsJobOnMissingTenant(t *testing.T) {
	fetcher := &fakeFetcher{records: makeRecords(1)}
	d, fx := newDispatcher(t, fetcher, 2)
	ctx := context.Background()

	job := enqueueTestJob(t, fx, "ghost")
	d.Tick(ctx)

	stored, err := fx.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != domain.JobStatusFailed {
		t.Fatalf("Status = %s, want failed", stored.Status)
	}
	if !strings.Contains(stored.Message, "not found") {
		t.Errorf("Message = %q, want tenant-not-found", stored.Message)
	}
	if fetcher.calls != 0 {
		t.Errorf("Fetch calls = %d, want 0", fetcher.calls)
	}
}

func TestTickContainsPanicsAndLogsTheValue(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "error", Format: "text", Output: &buf})

	// Nil dependencies make the claim panic; the tick must absorb it
	d := NewDispatcher(nil, nil, nil, nil, nil, log, &DispatcherConfig{WorkerID: "test-worker"})
	d.Tick(context.Background())

	out := buf.String()
	if !strings.Contains(out, "Recovered from panic in dispatcher tick") {
		t.Fatalf("Panic not logged: %q", out)
	}
	// The recovered value is formatted into the line, not left as a verb
	if strings.Contains(out, "%!") || strings.Contains(out, "%v") {
		t.Errorf("Panic value not formatted: %q", out)
	}
	if !strings.Contains(out, "runtime error") {
		t.Errorf("Log line missing panic value: %q", out)
	}
}

func TestTickIsNoOpOnEmptyQueue(t *testing.T) {
	fetcher := &fakeFetcher{}
	d, _ := newDispatcher(t, fetcher, 2)

	d.Tick(context.Background())

	if fetcher.calls != 0 {
		t.Errorf("Fetch calls = %d, want 0", fetcher.calls)
	}
}
