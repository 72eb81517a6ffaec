// Package worker runs the retry state machine. The Executor performs one
// attempt of one job and commits its outcome; the Pool owns the
// pending-work channel, the worker goroutines and the retry timers.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/mediaq"
	"github.com/xraph/mediaq/backoff"
	"github.com/xraph/mediaq/ext"
	"github.com/xraph/mediaq/id"
	"github.com/xraph/mediaq/job"
	"github.com/xraph/mediaq/middleware"
)

// errStaleAttempt rejects progress reports from an attempt that is no
// longer the job's current running attempt.
var errStaleAttempt = errors.New("worker: attempt is no longer current")

// Outcome is the committed result of one attempt.
type Outcome struct {
	// Job is the snapshot committed at the end of the attempt.
	Job *job.Job
	// Retry is true when the job moved to retrying and must be queued
	// again after Delay.
	Retry bool
	Delay time.Duration
	// Abandoned is true when the attempt was cancelled from outside
	// (pool shutdown) and no outcome was committed.
	Abandoned bool
}

// Executor runs a single attempt through middleware and the registered
// processor, then commits the state transition and emits lifecycle
// events.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	backoff    backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	bo backoff.Strategy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		backoff:    bo,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute claims the queued job, runs one attempt, and commits the
// outcome. Store writes are not bound to ctx; ctx only cancels the
// processor.
func (e *Executor) Execute(ctx context.Context, jobID id.JobID) (*Outcome, error) {
	claimed, err := e.store.UpdateJob(context.Background(), jobID, claim)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", jobID, err)
	}
	e.extensions.EmitJobStarted(ctx, claimed)

	start := time.Now()
	result, runErr := e.run(ctx, claimed)
	elapsed := time.Since(start)

	if runErr != nil && ctx.Err() != nil {
		e.logger.Warn("attempt abandoned",
			slog.String("job_id", jobID.String()),
			slog.Int("attempt", claimed.Attempt),
			slog.String("error", runErr.Error()),
		)
		return &Outcome{Job: claimed, Abandoned: true}, nil
	}

	if runErr != nil {
		return e.handleFailure(claimed, runErr)
	}
	return e.handleSuccess(claimed, result, elapsed)
}

// claim moves a queued job into a new running attempt.
func claim(j *job.Job) error {
	if j.Status != job.StatusQueued {
		return fmt.Errorf("%w: job is %s, not %s", mediaq.ErrInvalidTransition, j.Status, job.StatusQueued)
	}
	j.Attempt++
	j.Status = job.StatusRunning
	j.Progress = max(j.Progress, 1)
	j.Message = "Starting"
	j.LastError = nil
	return nil
}

func (e *Executor) run(ctx context.Context, j *job.Job) (json.RawMessage, error) {
	handler, ok := e.registry.Get(j.Kind)
	if !ok {
		return nil, job.Permanent(fmt.Errorf("%w: %q", mediaq.ErrUnknownKind, j.Kind))
	}

	ctx = job.WithReporter(ctx, e.reporter(j.ID, j.Attempt))

	var result json.RawMessage
	err := e.mw(ctx, j, func(ctx context.Context) error {
		out, err := handler(ctx, j.Payload)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = json.RawMessage("null")
	}
	return result, nil
}

// reporter returns a progress sink bound to one attempt. Reports are
// dropped once that attempt is no longer running.
func (e *Executor) reporter(jobID id.JobID, attempt int) job.Reporter {
	return job.ReporterFunc(func(pct int, msg string) {
		updated, err := e.store.UpdateJob(context.Background(), jobID, func(j *job.Job) error {
			if j.Status != job.StatusRunning || j.Attempt != attempt {
				return errStaleAttempt
			}
			j.Progress = max(j.Progress, pct)
			if msg != "" {
				j.Message = msg
			}
			return nil
		})
		if err != nil {
			e.logger.Debug("progress report dropped",
				slog.String("job_id", jobID.String()),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return
		}
		e.extensions.EmitJobProgress(context.Background(), updated)
	})
}

func (e *Executor) handleSuccess(j *job.Job, result json.RawMessage, elapsed time.Duration) (*Outcome, error) {
	committed, err := e.store.UpdateJob(context.Background(), j.ID, func(j *job.Job) error {
		j.Status = job.StatusSucceeded
		j.Progress = 100
		j.Message = "Completed"
		j.Result = result
		return nil
	})
	if err != nil {
		e.logger.Error("failed to commit job success",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	e.extensions.EmitJobSucceeded(context.Background(), committed, elapsed)
	e.logger.Info("job succeeded",
		slog.String("job_id", j.ID.String()),
		slog.String("kind", string(j.Kind)),
		slog.Int("attempt", j.Attempt),
		slog.Duration("elapsed", elapsed),
	)
	return &Outcome{Job: committed}, nil
}

func (e *Executor) handleFailure(j *job.Job, runErr error) (*Outcome, error) {
	failure := job.NewFailure(runErr)

	switch {
	case job.Classify(runErr) == job.ClassPermanent:
		return e.fail(j, runErr, failure, "Failed")
	case j.Attempt >= j.MaxAttempts:
		return e.fail(j, runErr, failure, fmt.Sprintf("Failed after %d attempts", j.Attempt))
	default:
		return e.retry(j, runErr, failure)
	}
}

func (e *Executor) retry(j *job.Job, runErr error, failure *job.Failure) (*Outcome, error) {
	delay := e.backoff.Delay(j.Attempt)

	committed, err := e.store.UpdateJob(context.Background(), j.ID, func(j *job.Job) error {
		j.Status = job.StatusRetrying
		j.LastError = failure
		j.Message = fmt.Sprintf("Retrying in %.1fs (attempt %d/%d)", delay.Seconds(), j.Attempt, j.MaxAttempts)
		return nil
	})
	if err != nil {
		e.logger.Error("failed to commit job retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	e.extensions.EmitJobRetrying(context.Background(), committed, delay)
	e.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("kind", string(j.Kind)),
		slog.Int("attempt", j.Attempt),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("delay", delay),
		slog.String("error", runErr.Error()),
	)
	return &Outcome{Job: committed, Retry: true, Delay: delay}, nil
}

func (e *Executor) fail(j *job.Job, runErr error, failure *job.Failure, message string) (*Outcome, error) {
	committed, err := e.store.UpdateJob(context.Background(), j.ID, func(j *job.Job) error {
		j.Status = job.StatusFailed
		j.LastError = failure
		j.Message = message
		return nil
	})
	if err != nil {
		e.logger.Error("failed to commit job failure",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	e.extensions.EmitJobFailed(context.Background(), committed, runErr)
	e.logger.Warn("job failed",
		slog.String("job_id", j.ID.String()),
		slog.String("kind", string(j.Kind)),
		slog.Int("attempt", j.Attempt),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.String("class", job.Classify(runErr).String()),
		slog.String("error", runErr.Error()),
	)
	return &Outcome{Job: committed}, nil
}
