package domain

import "errors"

var (
	// ErrDuplicateActiveJob is returned by enqueue when the tenant already
	// has a queued or running job.
	ErrDuplicateActiveJob = errors.New("tenant already has an active import job")

	// ErrJobNotFound is returned when a job lookup matches no row.
	ErrJobNotFound = errors.New("import job not found")

	// ErrNotCancelable is returned when cancellation is requested for a job
	// that is no longer queued. Cancelling a running job is not supported.
	ErrNotCancelable = errors.New("job can only be cancelled while queued")

	// ErrPlanLimitExceeded marks a plan-limit breach while creating a new
	// customer. The first occurrence stops the rest of the run.
	ErrPlanLimitExceeded = errors.New("tenant customer plan limit exceeded")

	// ErrTypeConflict marks an update refused because the existing record
	// was reclassified as a partner account.
	ErrTypeConflict = errors.New("existing record has a conflicting account type")

	// ErrMissingIdentity marks an upstream record with neither email nor
	// national ID to key on.
	ErrMissingIdentity = errors.New("record has no email or national id")
)
