package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/otavio/clientsync/internal/domain"
	"github.com/otavio/clientsync/internal/logger"
	"github.com/otavio/clientsync/internal/repository"
	"github.com/otavio/clientsync/internal/upstream"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := repository.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

func quietLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Output: io.Discard})
}

func createTenant(t *testing.T, db *gorm.DB, tenant *domain.Tenant) *domain.Tenant {
	t.Helper()
	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("Failed to create tenant: %v", err)
	}
	return tenant
}

// makeRecords builds n sequential upstream records with distinct emails.
func makeRecords(n int) []upstream.ExternalClient {
	records := make([]upstream.ExternalClient, n)
	for i := range records {
		records[i] = upstream.ExternalClient{
			ID:     fmt.Sprintf("%d", i+1),
			Name:   fmt.Sprintf("Client %d", i+1),
			Email:  fmt.Sprintf("client%d@example.com", i+1),
			Active: true,
		}
	}
	return records
}

// fakeFetcher returns a canned record set (or error) and captures the
// filters of the last fetch.
type fakeFetcher struct {
	records []upstream.ExternalClient
	err     error

	mu          sync.Mutex
	lastToken   string
	lastFilters upstream.Filters
	calls       int
}

func (f *fakeFetcher) FetchAll(ctx context.Context, token string, filters upstream.Filters, progress upstream.ProgressFunc) ([]upstream.ExternalClient, error) {
	f.mu.Lock()
	f.lastToken = token
	f.lastFilters = filters
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	records := f.records
	if filters.MaxRecords > 0 && len(records) > filters.MaxRecords {
		records = records[:filters.MaxRecords]
	}
	if progress != nil {
		progress(len(records), fmt.Sprintf("fetched %d records from upstream", len(records)))
	}
	return records, nil
}

// captureSink records every published update for assertions.
type captureSink struct {
	mu      sync.Mutex
	updates []ProgressUpdate
}

func (s *captureSink) Publish(ctx context.Context, update ProgressUpdate) {
	s.mu.Lock()
	s.updates = append(s.updates, update)
	s.mu.Unlock()
}

func (s *captureSink) all() []ProgressUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ProgressUpdate(nil), s.updates...)
}
