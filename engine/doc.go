// Package engine is the mediaq queue manager. It wires the job store,
// processor registry, middleware chain, worker pool, lifecycle hooks and
// event broker together, and exposes create/submit/get/result/await.
//
// Engine sits above every subsystem package so the root mediaq package
// (Config, Entity, sentinel errors) never imports them back.
//
// # Building an Engine
//
//	eng, err := engine.New(
//	    engine.WithConfig(cfg),
//	    engine.WithLogger(logger),
//	    engine.WithExtension(myExtension),
//	)
//
// # Registering Processors
//
//	engine.Register(eng, job.NewDefinition(job.KindAudio, transcribe,
//	    job.WithMaxAttempts(3),
//	))
//
// # Submitting Jobs
//
//	j, err := engine.Enqueue(ctx, eng, job.KindAudio, AudioInput{FilePath: p})
//
//	// Or in two steps.
//	j := eng.NewJob(job.KindVideo, payload)
//	_ = eng.Create(ctx, j)
//	_ = eng.Submit(ctx, j.ID)
//
//	final, err := eng.Await(ctx, j.ID)
//
// # Options
//
//   - [WithConfig]: replace the configuration
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware after the default chain
//   - [WithBackoff]: set the retry backoff strategy
//   - [WithSubmitRate]: limit the submission rate
//   - [WithTracerProvider]: set the OpenTelemetry tracer provider
//   - [WithMeterProvider]: set the OpenTelemetry meter provider
//   - [WithMetricFactory]: set the lifecycle counter factory
package engine
