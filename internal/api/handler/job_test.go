package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/otavio/clientsync/internal/domain"
	"github.com/otavio/clientsync/internal/logger"
	"github.com/otavio/clientsync/internal/repository"
	"github.com/otavio/clientsync/internal/service"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type handlerFixture struct {
	router *gin.Engine
	jobs   *repository.JobRepository
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	if err := db.Create(&domain.Tenant{ID: "t1", Name: "Tenant One"}).Error; err != nil {
		t.Fatalf("Failed to create tenant: %v", err)
	}

	jobs := repository.NewJobRepository(db)
	tenants := repository.NewTenantRepository(db)
	log := logger.New(&logger.Config{Level: "error", Output: io.Discard})
	admission := service.NewAdmissionService(jobs, tenants, log)

	jobHandler := NewJobHandler(admission)
	router := gin.New()
	router.POST("/api/v1/tenants/:tenantID/imports", jobHandler.Enqueue)
	router.GET("/api/v1/tenants/:tenantID/imports/position", jobHandler.Position)
	router.GET("/api/v1/imports/:id", jobHandler.Get)
	router.DELETE("/api/v1/imports/:id", jobHandler.Cancel)

	return &handlerFixture{router: router, jobs: jobs}
}

func (fx *handlerFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func TestEnqueueEndpoint(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(t, http.MethodPost, "/api/v1/tenants/t1/imports",
		`{"default_password":"secret1","mode":"full"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Status = %d (%s), want 202", w.Code, w.Body.String())
	}

	var resp struct {
		JobID         string `json:"job_id"`
		QueuePosition int    `json:"queue_position"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.JobID == "" {
		t.Error("Response missing job_id")
	}
	if resp.QueuePosition != 1 {
		t.Errorf("queue_position = %d, want 1", resp.QueuePosition)
	}

	// A second enqueue for the same tenant conflicts
	w = fx.do(t, http.MethodPost, "/api/v1/tenants/t1/imports",
		`{"default_password":"secret1","mode":"full"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("Duplicate status = %d, want 409", w.Code)
	}
}

func TestEnqueueEndpointRejectsBadRequests(t *testing.T) {
	fx := newHandlerFixture(t)

	testCases := []struct {
		name string
		body string
	}{
		{name: "missing body", body: `{}`},
		{name: "short password", body: `{"default_password":"abc","mode":"full"}`},
		{name: "unknown mode", body: `{"default_password":"secret1","mode":"partial"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := fx.do(t, http.MethodPost, "/api/v1/tenants/t1/imports", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d (%s), want 400", w.Code, w.Body.String())
			}
		})
	}
}

func TestStatusAndPositionEndpoints(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(t, http.MethodGet, "/api/v1/imports/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Status of missing job = %d, want 404", w.Code)
	}

	// No active job means a null position
	w = fx.do(t, http.MethodGet, "/api/v1/tenants/t1/imports/position", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Position status = %d, want 200", w.Code)
	}
	var posResp struct {
		Position *int `json:"position"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &posResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if posResp.Position != nil {
		t.Errorf("position = %d, want null", *posResp.Position)
	}

	w = fx.do(t, http.MethodPost, "/api/v1/tenants/t1/imports",
		`{"default_password":"secret1","mode":"full"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Enqueue status = %d, want 202", w.Code)
	}
	var enq struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &enq); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	w = fx.do(t, http.MethodGet, "/api/v1/tenants/t1/imports/position", "")
	if err := json.Unmarshal(w.Body.Bytes(), &posResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if posResp.Position == nil || *posResp.Position != 1 {
		t.Errorf("position = %v, want 1", posResp.Position)
	}

	w = fx.do(t, http.MethodGet, "/api/v1/imports/"+enq.JobID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Job status code = %d, want 200", w.Code)
	}
	var statusResp struct {
		Job  domain.ImportJob `json:"job"`
		Logs []domain.JobLog  `json:"logs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &statusResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if statusResp.Job.Status != domain.JobStatusQueued {
		t.Errorf("Job status = %s, want queued", statusResp.Job.Status)
	}
	if len(statusResp.Logs) != 1 {
		t.Errorf("Log count = %d, want 1", len(statusResp.Logs))
	}

	// The stored credential hash is stripped from the rendered job
	if strings.Contains(w.Body.String(), "default_password_hash") {
		t.Errorf("Status response leaks the credential hash: %s", w.Body.String())
	}
	if statusResp.Job.Config.DefaultPasswordHash != "" {
		t.Error("Rendered job carries the credential hash")
	}
}

func TestCancelEndpoint(t *testing.T) {
	fx := newHandlerFixture(t)
	ctx := context.Background()

	w := fx.do(t, http.MethodPost, "/api/v1/tenants/t1/imports",
		`{"default_password":"secret1","mode":"full"}`)
	var enq struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &enq); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	w = fx.do(t, http.MethodDelete, "/api/v1/imports/"+enq.JobID, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("Cancel status = %d, want 204", w.Code)
	}

	w = fx.do(t, http.MethodDelete, "/api/v1/imports/"+enq.JobID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Second cancel status = %d, want 404", w.Code)
	}

	// A claimed job can no longer be cancelled
	w = fx.do(t, http.MethodPost, "/api/v1/tenants/t1/imports",
		`{"default_password":"secret1","mode":"full"}`)
	if err := json.Unmarshal(w.Body.Bytes(), &enq); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if _, err := fx.jobs.ClaimNext(ctx, "w1"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	w = fx.do(t, http.MethodDelete, "/api/v1/imports/"+enq.JobID, "")
	if w.Code != http.StatusConflict {
		t.Errorf("Cancel of running job = %d, want 409", w.Code)
	}
}
