package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/mediaq/job"
)

// Timeout returns middleware that bounds one attempt. The job's own
// Timeout wins over fallback; when both are zero the attempt is unbounded.
//
// The handler runs on its own goroutine so a processor that ignores ctx
// cannot pin the worker. On expiry the attempt returns a transient error
// and the abandoned goroutine is left to finish on its own; its progress
// reports are discarded because the attempt is no longer current.
func Timeout(logger *slog.Logger, fallback time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		d := j.Timeout
		if d <= 0 {
			d = fallback
		}
		if d <= 0 {
			return next(ctx)
		}

		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- recovered(r)
				}
			}()
			done <- next(ctx)
		}()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				logger.Warn("attempt timed out",
					slog.String("job_id", j.ID.String()),
					slog.String("kind", string(j.Kind)),
					slog.Int("attempt", j.Attempt),
					slog.Duration("timeout", d),
				)
				return job.Transient(fmt.Errorf("attempt exceeded %s timeout: %w", d, ctx.Err()))
			}
			return ctx.Err()
		}
	}
}
