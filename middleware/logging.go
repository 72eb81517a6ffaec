package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/mediaq/job"
)

// Logging returns middleware that logs attempt start and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.Info("attempt started",
			slog.String("job_id", j.ID.String()),
			slog.String("kind", string(j.Kind)),
			slog.Int("attempt", j.Attempt),
			slog.Int("max_attempts", j.MaxAttempts),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("attempt failed",
				slog.String("job_id", j.ID.String()),
				slog.String("kind", string(j.Kind)),
				slog.Int("attempt", j.Attempt),
				slog.String("class", job.Classify(err).String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("attempt completed",
				slog.String("job_id", j.ID.String()),
				slog.String("kind", string(j.Kind)),
				slog.Int("attempt", j.Attempt),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
