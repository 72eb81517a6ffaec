// Package mediaq provides an in-process job queue for long-running media
// processing. Uploaded audio and video are turned into jobs, a fixed pool of
// workers runs them through kind-specific processors, and callers poll status
// and results or wait for completion.
//
// mediaq is designed as a library first. The engine package wires the job
// store, worker pool, retry policy, and lifecycle hooks together; the api
// package exposes them over HTTP.
//
// # Quick Start
//
//	eng, err := engine.New(
//	    engine.WithConcurrency(4),
//	    engine.WithLogger(logger),
//	)
//	engine.Register(eng, job.NewDefinition("audio", transcribe))
//	_ = eng.Start(ctx)
//
//	j, err := engine.Enqueue(ctx, eng, "audio", input)
//	final, err := eng.Await(ctx, j.ID)
//
// # Job Lifecycle
//
// Every job moves along a fixed set of edges:
//
//	queued → running → succeeded
//	queued → running → retrying → queued → ...
//	queued → running → failed
//
// Processors fail with [job.Permanent] for conditions retrying cannot fix
// (missing input, missing model assets). Any other failure is retried with
// capped exponential backoff until the job's attempt budget is spent.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers such as "job_01h2xcejqtf2nbrexx3vqjhp41".
package mediaq
