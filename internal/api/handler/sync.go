package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/otavio/clientsync/internal/repository"
	"github.com/otavio/clientsync/internal/service"
)

// SyncHandler triggers incremental sync passes on demand. The same passes
// run on a schedule in the worker; this endpoint exists for operators.
type SyncHandler struct {
	sync    *service.SyncService
	tenants *repository.TenantRepository
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(sync *service.SyncService, tenants *repository.TenantRepository) *SyncHandler {
	return &SyncHandler{
		sync:    sync,
		tenants: tenants,
	}
}

// RunAll handles POST /api/v1/sync/run. Runs a sync pass for every tenant
// with automatic integration enabled.
func (h *SyncHandler) RunAll(c *gin.Context) {
	synced, err := h.sync.RunAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sync run failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenants_synced": synced,
	})
}

// RunTenant handles POST /api/v1/tenants/:tenantID/sync.
func (h *SyncHandler) RunTenant(c *gin.Context) {
	tenant, err := h.tenants.GetByID(c.Request.Context(), c.Param("tenantID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load tenant: " + err.Error()})
		return
	}
	if tenant == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
		return
	}

	stats, err := h.sync.RunTenantSync(c.Request.Context(), tenant)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sync pass failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats": stats,
	})
}
