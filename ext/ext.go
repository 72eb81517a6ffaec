// Package ext defines the extension system for mediaq.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/mediaq/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobCreated is called after a job is stored and before it is queued.
type JobCreated interface {
	OnJobCreated(ctx context.Context, j *job.Job) error
}

// JobEnqueued is called each time a job ID is placed on the pending-work
// channel, including re-enqueues after a backoff delay.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker claims a job for a new attempt.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobProgress is called after a processor progress report is committed.
type JobProgress interface {
	OnJobProgress(ctx context.Context, j *job.Job) error
}

// JobSucceeded is called after a job reaches succeeded.
type JobSucceeded interface {
	OnJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when an attempt failed transiently and the job
// will be queued again after delay.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, delay time.Duration) error
}

// JobFailed is called when a job reaches failed, either from a permanent
// error or after its last attempt.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
