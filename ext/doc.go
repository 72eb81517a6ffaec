// Package ext defines the extension system for mediaq.
//
// Extensions are notified of job lifecycle events and can react to them,
// for example by recording metrics or publishing to live subscribers.
//
// # Implementing an Extension
//
//	type Notifier struct{}
//
//	func (n *Notifier) Name() string { return "notifier" }
//
//	func (n *Notifier) OnJobFailed(ctx context.Context, j *job.Job, err error) error {
//	    return page(ctx, j.ID, err)
//	}
//
// # Hooks
//
//   - [JobCreated] job was stored
//   - [JobEnqueued] job ID was placed on the pending-work channel
//   - [JobStarted] a worker claimed the job for a new attempt
//   - [JobProgress] the processor reported progress
//   - [JobSucceeded] job reached succeeded
//   - [JobRetrying] attempt failed and a retry is scheduled
//   - [JobFailed] job reached failed
//   - [Shutdown] the engine is shutting down
//
// Hook errors and panics are logged by the [Registry] and never affect
// job execution.
package ext
