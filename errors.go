package mediaq

import "errors"

var (
	// Not found errors.
	ErrJobNotFound = errors.New("mediaq: job not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("mediaq: job already exists")

	// Result access errors.
	ErrJobNotCompleted = errors.New("mediaq: job not completed")
	ErrJobFailed       = errors.New("mediaq: job failed")

	// State errors.
	ErrInvalidTransition = errors.New("mediaq: invalid state transition")
	ErrUnknownKind       = errors.New("mediaq: no processor registered for job kind")

	// Lifecycle errors.
	ErrPoolStopped = errors.New("mediaq: worker pool stopped")
	ErrNotStarted  = errors.New("mediaq: engine not started")
	ErrStoreClosed = errors.New("mediaq: store closed")
)
