// Package middleware provides composable middleware around processor
// attempts.
//
// A [Middleware] wraps one attempt of one job. The engine builds its
// default chain as:
//
//	Recover → Tracing → Metrics → Logging → Timeout → processor
//
// # Built-in Middleware
//
//   - [Recover] turns panics into retryable *PanicError values with a stack
//   - [Timeout] bounds an attempt and reports expiry as a transient error
//   - [Logging] logs attempt start and outcome with slog
//   - [Tracing] wraps the attempt in an OpenTelemetry span
//   - [Metrics] records attempt duration and outcome counters
//
// Middleware MUST call next unless intentionally short-circuiting.
package middleware
