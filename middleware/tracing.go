package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/mediaq/job"
)

// tracerName is the instrumentation scope name for mediaq tracing.
const tracerName = "github.com/xraph/mediaq"

// Tracing returns middleware that wraps each attempt in a span from the
// global TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
//
// Span attributes: mediaq.job.id, mediaq.job.kind, mediaq.attempt,
// mediaq.max_attempts, and mediaq.error.class on failure.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "mediaq.job.attempt",
			trace.WithAttributes(
				attribute.String("mediaq.job.id", j.ID.String()),
				attribute.String("mediaq.job.kind", string(j.Kind)),
				attribute.Int("mediaq.attempt", j.Attempt),
				attribute.Int("mediaq.max_attempts", j.MaxAttempts),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("mediaq.error.class", job.Classify(err).String()))
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
