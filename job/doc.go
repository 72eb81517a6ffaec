// Package job defines the job entity, its status state machine, the
// retryable/non-retryable error taxonomy, typed processor definitions, and
// the store interface.
//
// # Job Entity
//
// A [Job] is one unit of media processing work. Its ID, Kind and Payload
// are fixed at construction; everything else is lifecycle state owned by
// the worker executing the job:
//
//	queued → running → succeeded
//	queued → running → retrying → queued → ...
//	queued → running → failed
//
// Result is set only on success. LastError holds the most recent failure
// and is cleared when a new attempt starts.
//
// # Processors
//
// Processors are ordinary Go functions registered per kind:
//
//	var Transcribe = job.NewDefinition("audio",
//	    func(ctx context.Context, in AudioInput) (*Transcript, error) {
//	        job.ReportProgress(ctx, 20, "Preprocessing audio")
//	        ...
//	    },
//	)
//	job.RegisterDefinition(registry, Transcribe)
//
// A processor returns [Permanent] for conditions retrying cannot fix. Any
// other error is treated as transient.
package job
