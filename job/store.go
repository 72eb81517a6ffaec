package job

import (
	"context"

	"github.com/xraph/mediaq/id"
)

// ListOpts controls pagination and filtering for job listing.
type ListOpts struct {
	// Status filters by job status. Empty means all statuses.
	Status Status
	// Kind filters by job kind. Empty means all kinds.
	Kind Kind
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// CountOpts controls filtering for job counting.
type CountOpts struct {
	Status Status
	Kind   Kind
}

// Store defines the persistence contract for jobs.
type Store interface {
	// CreateJob persists a new job. Returns mediaq.ErrJobAlreadyExists
	// when the ID is taken.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob returns a snapshot of a job. Returns mediaq.ErrJobNotFound if
	// absent.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob atomically applies fn to the stored job. fn receives a
	// copy; the store validates the status transition and entity
	// invariants before committing it and returns the committed snapshot.
	// Waiters are released when the job enters a terminal status.
	UpdateJob(ctx context.Context, jobID id.JobID, fn func(*Job) error) (*Job, error)

	// DeleteJob removes a job that was never run: it must be queued at
	// attempt 0, otherwise mediaq.ErrInvalidTransition is returned.
	// Waiters are released and then see mediaq.ErrJobNotFound.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// ListJobs returns jobs in creation order.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching opts.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// WaitJob blocks until the job is terminal, ctx is done, or the store
	// is closed. It always returns the latest snapshot it has; the error
	// is nil only when the snapshot is terminal.
	WaitJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// Close releases all waiters with mediaq.ErrStoreClosed.
	Close() error
}
