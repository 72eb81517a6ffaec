// Package observability provides the lifecycle metrics extension. It
// records queue-wide counters for job creation, enqueue, start, success,
// retry and failure.
//
// For per-attempt tracing and metrics, see middleware.Tracing and
// middleware.Metrics.
package observability
