package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/mediaq"
	"github.com/xraph/mediaq/id"
)

// Kind selects the processor that handles a job.
type Kind string

// Media job kinds.
const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Job represents a unit of work processed by a worker.
type Job struct {
	mediaq.Entity

	ID          id.JobID        `json:"id"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      Status          `json:"status"`
	Progress    int             `json:"progress"`
	Message     string          `json:"message"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   *Failure        `json:"last_error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Timeout     time.Duration   `json:"timeout,omitempty"`
}

// Failure is the detail recorded for a failed attempt.
type Failure struct {
	Message string `json:"message"`
	Trace   string `json:"trace,omitempty"`
}

// New builds a queued job with a fresh ID.
func New(kind Kind, payload []byte, opts ...Option) *Job {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Job{
		Entity:      mediaq.NewEntity(),
		ID:          id.NewJobID(),
		Kind:        kind,
		Payload:     payload,
		Status:      StatusQueued,
		Message:     "Queued",
		MaxAttempts: o.MaxAttempts,
		Timeout:     o.Timeout,
	}
}

// Clone returns a copy safe to hand to another goroutine. Payload and
// Result are never mutated in place, so their backing arrays are shared.
func (j *Job) Clone() *Job {
	cp := *j
	if j.LastError != nil {
		f := *j.LastError
		cp.LastError = &f
	}
	return &cp
}

// Validate checks the entity invariants that must hold after every
// mutation.
func (j *Job) Validate() error {
	if !j.Status.Valid() {
		return fmt.Errorf("job %s: unknown status %q", j.ID, j.Status)
	}
	if j.Progress < 0 || j.Progress > 100 {
		return fmt.Errorf("job %s: progress %d out of range", j.ID, j.Progress)
	}
	if j.MaxAttempts < 1 {
		return fmt.Errorf("job %s: max_attempts must be positive, got %d", j.ID, j.MaxAttempts)
	}
	if j.Attempt > j.MaxAttempts {
		return fmt.Errorf("job %s: attempt %d exceeds max_attempts %d", j.ID, j.Attempt, j.MaxAttempts)
	}
	if (j.Result != nil) != (j.Status == StatusSucceeded) {
		return fmt.Errorf("job %s: result must be set iff status is %s", j.ID, StatusSucceeded)
	}
	return nil
}
