package job

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/mediaq"
	"github.com/xraph/mediaq/id"
)

// PermanentError marks a failure that retrying cannot fix. The executor
// fails the job immediately without consuming further attempts.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	switch {
	case e.Err == nil:
		return e.Reason
	case e.Reason == "":
		return e.Err.Error()
	default:
		return e.Reason + ": " + e.Err.Error()
	}
}

func (e *PermanentError) Unwrap() error { return e.Err }

// TransientError explicitly marks a failure as retryable. Untagged errors
// are already treated as transient; the tag exists so that a wrapper can
// override a permanent cause further down the chain.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Permanent wraps err as non-retryable. A nil err yields nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Permanentf formats a non-retryable error.
func Permanentf(format string, args ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

// Transient wraps err as retryable. A nil err yields nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Class is the retry classification of a processor error.
type Class int

const (
	// ClassTransient errors are retried while attempts remain.
	ClassTransient Class = iota
	// ClassPermanent errors fail the job immediately.
	ClassPermanent
)

func (c Class) String() string {
	if c == ClassPermanent {
		return "permanent"
	}
	return "transient"
}

// Classify walks the error chain and returns the class of the outermost
// tagged error. Untagged chains are transient.
func Classify(err error) Class {
	for err != nil {
		switch e := err.(type) {
		case *PermanentError:
			return ClassPermanent
		case *TransientError:
			return ClassTransient
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				if Classify(inner) == ClassPermanent {
					return ClassPermanent
				}
			}
			return ClassTransient
		}
		err = errors.Unwrap(err)
	}
	return ClassTransient
}

// IsPermanent reports whether err classifies as permanent.
func IsPermanent(err error) bool {
	return Classify(err) == ClassPermanent
}

// Tracer is implemented by errors that carry their own diagnostic trace,
// such as recovered panics with a goroutine stack.
type Tracer interface {
	Trace() string
}

// NewFailure captures err as a stored failure. The trace is the error's
// own trace when it has one, otherwise the typed unwrap chain.
func NewFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var t Tracer
	if errors.As(err, &t) {
		return &Failure{Message: err.Error(), Trace: t.Trace()}
	}
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(&b, "%T: %s\n", e, e.Error())
	}
	return &Failure{Message: err.Error(), Trace: b.String()}
}

// FailedError is returned when the result of a failed job is requested.
// It matches mediaq.ErrJobFailed with errors.Is.
type FailedError struct {
	JobID   id.JobID
	Failure *Failure
}

func (e *FailedError) Error() string {
	if e.Failure == nil {
		return fmt.Sprintf("mediaq: job %s failed", e.JobID)
	}
	return fmt.Sprintf("mediaq: job %s failed: %s", e.JobID, e.Failure.Message)
}

func (e *FailedError) Unwrap() error { return mediaq.ErrJobFailed }
