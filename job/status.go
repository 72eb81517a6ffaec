package job

import (
	"fmt"

	"github.com/xraph/mediaq"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusQueued means the job is waiting on the pending-work channel.
	StatusQueued Status = "queued"
	// StatusRunning means a worker is executing the job.
	StatusRunning Status = "running"
	// StatusRetrying means the last attempt failed transiently and the
	// job is sleeping out its backoff delay.
	StatusRetrying Status = "retrying"
	// StatusSucceeded means the job finished and Result is set.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the job failed and will not be retried.
	StatusFailed Status = "failed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusQueued, StatusRunning, StatusRetrying, StatusSucceeded, StatusFailed}

var transitions = map[Status][]Status{
	StatusQueued:   {StatusRunning},
	StatusRunning:  {StatusSucceeded, StatusRetrying, StatusFailed},
	StatusRetrying: {StatusQueued},
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusRetrying, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether s is succeeded or failed.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransition reports whether a job may move from one status to another.
// Non-terminal statuses may also be rewritten in place (progress and
// message updates); terminal statuses never change.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns mediaq.ErrInvalidTransition wrapped with the
// offending edge when CanTransition is false.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s → %s", mediaq.ErrInvalidTransition, from, to)
	}
	return nil
}
