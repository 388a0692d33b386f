package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/otavio/clientsync/internal/domain"
	"github.com/otavio/clientsync/internal/service"
)

// JobHandler handles import job endpoints: enqueue, status, queue position,
// and cancellation.
type JobHandler struct {
	admission *service.AdmissionService
}

// NewJobHandler creates a new job handler.
func NewJobHandler(admission *service.AdmissionService) *JobHandler {
	return &JobHandler{
		admission: admission,
	}
}

// enqueueRequest is the JSON body of POST /tenants/:tenantID/imports.
// DefaultPassword is hashed before storage and never logged.
type enqueueRequest struct {
	DefaultPassword    string `json:"default_password" binding:"required"`
	Mode               string `json:"mode" binding:"required"`
	ActiveOnly         bool   `json:"active_only"`
	ActivityWindowDays int    `json:"activity_window_days"`
	RegisteredFrom     string `json:"registered_from"`
	RegisteredTo       string `json:"registered_to"`
	CredentialRef      string `json:"credential_ref"`
}

// Enqueue handles POST /api/v1/tenants/:tenantID/imports.
func (h *JobHandler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	job, err := h.admission.Enqueue(c.Request.Context(), &service.EnqueueRequest{
		TenantID:           c.Param("tenantID"),
		DefaultPassword:    req.DefaultPassword,
		Mode:               domain.ImportMode(req.Mode),
		ActiveOnly:         req.ActiveOnly,
		ActivityWindowDays: req.ActivityWindowDays,
		RegisteredFrom:     req.RegisteredFrom,
		RegisteredTo:       req.RegisteredTo,
		CredentialRef:      req.CredentialRef,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrDuplicateActiveJob):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue import: " + err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":         job.ID,
		"queue_position": job.QueuePosition,
	})
}

// Get handles GET /api/v1/imports/:id.
func (h *JobHandler) Get(c *gin.Context) {
	job, logs, err := h.admission.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Import job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load import job: " + err.Error()})
		return
	}

	// The stored credential hash never leaves the service
	job.Config.DefaultPasswordHash = ""

	c.JSON(http.StatusOK, gin.H{
		"job":  job,
		"logs": logs,
	})
}

// Position handles GET /api/v1/tenants/:tenantID/imports/position.
// The position is null when the tenant has no active job and 0 when its job
// is already running.
func (h *JobHandler) Position(c *gin.Context) {
	position, err := h.admission.Position(c.Request.Context(), c.Param("tenantID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute queue position: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"position": position,
	})
}

// Cancel handles DELETE /api/v1/imports/:id. Only queued jobs can be
// cancelled; running jobs are reported as a conflict, not silently accepted.
func (h *JobHandler) Cancel(c *gin.Context) {
	err := h.admission.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Import job not found"})
		case errors.Is(err, domain.ErrNotCancelable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel import job: " + err.Error()})
		}
		return
	}

	c.Status(http.StatusNoContent)
}
