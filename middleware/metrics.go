package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/mediaq/job"
)

// meterName is the instrumentation scope name for mediaq metrics.
const meterName = "github.com/xraph/mediaq"

// Metrics returns middleware that records per-attempt metrics using the
// global MeterProvider.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
//
// Instruments:
//   - mediaq.attempt.duration (Float64Histogram): attempt time in seconds
//   - mediaq.attempt.count (Int64Counter): attempts run
//
// Both carry kind and outcome ("ok", "transient" or "permanent").
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API hands back noop instruments.
	duration, _ := meter.Float64Histogram(
		"mediaq.attempt.duration",
		metric.WithDescription("Duration of a processor attempt in seconds"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(
		"mediaq.attempt.count",
		metric.WithDescription("Total number of processor attempts"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		outcome := "ok"
		if err != nil {
			outcome = job.Classify(err).String()
		}

		attrs := metric.WithAttributes(
			attribute.String("kind", string(j.Kind)),
			attribute.String("outcome", outcome),
		)
		duration.Record(ctx, elapsed, attrs)
		attempts.Add(ctx, 1, attrs)

		return err
	}
}
