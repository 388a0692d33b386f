package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/otavio/clientsync/internal/domain"
	"github.com/otavio/clientsync/internal/service"
)

// FeedConfig holds configuration for the live progress feed.
type FeedConfig struct {
	PollInterval time.Duration
	MaxDuration  time.Duration
}

// FeedHandler serves a best-effort server-sent-event progress feed. It
// shadows the job store by polling it and forwarding deltas; it is never
// the source of truth and closes after a bounded monitoring window,
// directing callers back to the status endpoint.
type FeedHandler struct {
	admission    *service.AdmissionService
	pollInterval time.Duration
	maxDuration  time.Duration
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(admission *service.AdmissionService, cfg *FeedConfig) *FeedHandler {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	maxDuration := cfg.MaxDuration
	if maxDuration <= 0 {
		maxDuration = 30 * time.Second
	}
	return &FeedHandler{
		admission:    admission,
		pollInterval: pollInterval,
		maxDuration:  maxDuration,
	}
}

type feedSnapshot struct {
	Status       domain.JobStatus `json:"status"`
	TotalRecords int              `json:"total_records"`
	Processed    int              `json:"processed"`
	Created      int              `json:"created"`
	Updated      int              `json:"updated"`
	Errors       int              `json:"errors"`
	Percent      float64          `json:"percent"`
	ETASeconds   *int             `json:"eta_seconds,omitempty"`
	Message      string           `json:"message,omitempty"`
}

func snapshotOf(job *domain.ImportJob) feedSnapshot {
	return feedSnapshot{
		Status:       job.Status,
		TotalRecords: job.TotalRecords,
		Processed:    job.Processed,
		Created:      job.Created,
		Updated:      job.Updated,
		Errors:       job.Errors,
		Percent:      job.Percent,
		ETASeconds:   job.ETASeconds,
		Message:      job.Message,
	}
}

func (a feedSnapshot) equal(b feedSnapshot) bool {
	return a.Status == b.Status &&
		a.TotalRecords == b.TotalRecords &&
		a.Processed == b.Processed &&
		a.Created == b.Created &&
		a.Updated == b.Updated &&
		a.Errors == b.Errors &&
		a.Percent == b.Percent &&
		a.Message == b.Message
}

// Stream handles GET /api/v1/imports/:id/feed.
func (h *FeedHandler) Stream(c *gin.Context) {
	jobID := c.Param("id")

	job, _, err := h.admission.Status(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Import job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load import job: " + err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	last := snapshotOf(job)
	c.SSEvent("progress", last)
	c.Writer.Flush()

	if job.Status.IsTerminal() {
		c.SSEvent("done", gin.H{"status": job.Status})
		c.Writer.Flush()
		return
	}

	deadline := time.Now().Add(h.maxDuration)
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}

		job, _, err := h.admission.Status(c.Request.Context(), jobID)
		if err != nil {
			return
		}

		snapshot := snapshotOf(job)
		if !snapshot.equal(last) {
			last = snapshot
			c.SSEvent("progress", snapshot)
			c.Writer.Flush()
		}

		if job.Status.IsTerminal() {
			c.SSEvent("done", gin.H{"status": job.Status})
			c.Writer.Flush()
			return
		}

		if time.Now().After(deadline) {
			// Bounded monitoring window: direct the caller to the status endpoint
			c.SSEvent("timeout", gin.H{"message": "feed window elapsed, poll the status endpoint"})
			c.Writer.Flush()
			return
		}
	}
}
