package domain

import (
	"time"
)

// JobStatus represents the lifecycle state of an import job.
// Values include JobStatusQueued, JobStatusRunning, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status is completed or failed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ImportMode selects which upstream records a job fetches.
type ImportMode string

const (
	ImportModeFull     ImportMode = "full"
	ImportModeFiltered ImportMode = "filtered"
)

// JobConfig is the job-specific configuration captured at enqueue time.
// It is persisted verbatim with the job and never mutated afterwards.
// DefaultPasswordHash must survive the JSON round-trip through the job row
// so the worker sees it after a claim; API handlers strip it before
// rendering a job.
type JobConfig struct {
	Mode                ImportMode `json:"mode"`
	ActiveOnly          bool       `json:"active_only"`
	ActivityWindowDays  int        `json:"activity_window_days,omitempty"`
	RegisteredFrom      string     `json:"registered_from,omitempty"`
	RegisteredTo        string     `json:"registered_to,omitempty"`
	DefaultPasswordHash string     `json:"default_password_hash,omitempty"`
	CredentialRef       string     `json:"credential_ref,omitempty"`
}

// ImportJob represents one bulk-import run and its persisted progress.
type ImportJob struct {
	ID            string    `gorm:"type:text;primaryKey" json:"id"`
	TenantID      string    `gorm:"type:text;not null;index" json:"tenant_id"`
	Status        JobStatus `gorm:"default:queued;index" json:"status"`
	QueuePosition int       `gorm:"not null" json:"-"`
	WorkerID      string    `json:"worker_id,omitempty"`

	// Config is the JSON-serialized JobConfig, immutable after enqueue.
	Config JobConfig `gorm:"serializer:json" json:"config"`

	TotalRecords int     `gorm:"default:0" json:"total_records"`
	Processed    int     `gorm:"default:0" json:"processed"`
	Created      int     `gorm:"default:0" json:"created"`
	Updated      int     `gorm:"default:0" json:"updated"`
	Errors       int     `gorm:"default:0" json:"errors"`
	Percent      float64 `gorm:"default:0" json:"percent"`
	ETASeconds   *int    `json:"eta_seconds,omitempty"`
	Message      string  `json:"message,omitempty"`

	Result *JobResult `gorm:"serializer:json" json:"result,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ImportJob.
func (ImportJob) TableName() string {
	return "import_jobs"
}

// JobLog is one append-only log entry attached to a job.
// Entries are never updated; retention cleanup removes them with their job.
type JobLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	JobID     string    `gorm:"type:text;not null;index" json:"-"`
	Level     string    `gorm:"type:text;not null" json:"level"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for JobLog.
func (JobLog) TableName() string {
	return "import_job_logs"
}

// ErrorDetail describes one record-level failure inside a run.
type ErrorDetail struct {
	Record string `json:"record"`
	Reason string `json:"reason"`
}

// JobResult is the structured summary persisted when a job reaches a
// terminal status.
type JobResult struct {
	Processed      int           `json:"processed"`
	Created        int           `json:"created"`
	Updated        int           `json:"updated"`
	Errors         int           `json:"errors"`
	ElapsedSeconds float64       `json:"elapsed_seconds"`
	ErrorDetails   []ErrorDetail `json:"error_details,omitempty"`
}
