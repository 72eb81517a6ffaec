package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/mediaq/job"
)

// PanicError is a recovered processor panic. It is retryable and carries
// the goroutine stack as its trace.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Trace returns the stack captured at the panic site.
func (e *PanicError) Trace() string { return e.Stack }

func recovered(r any) *PanicError {
	return &PanicError{Value: r, Stack: string(debug.Stack())}
}

// Recover returns middleware that converts panics in the chain into
// *PanicError so the worker survives any single attempt.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				perr := recovered(r)
				logger.Error("processor panicked",
					slog.String("job_id", j.ID.String()),
					slog.String("kind", string(j.Kind)),
					slog.Int("attempt", j.Attempt),
					slog.Any("panic", r),
					slog.String("stack", perr.Stack),
				)
				retErr = perr
			}
		}()
		return next(ctx)
	}
}
