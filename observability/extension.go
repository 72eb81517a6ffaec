package observability

import (
	"context"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/mediaq/ext"
	"github.com/xraph/mediaq/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobCreated   = (*MetricsExtension)(nil)
	_ ext.JobEnqueued  = (*MetricsExtension)(nil)
	_ ext.JobStarted   = (*MetricsExtension)(nil)
	_ ext.JobSucceeded = (*MetricsExtension)(nil)
	_ ext.JobRetrying  = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
)

// MetricsExtension records queue-wide lifecycle counters via a go-utils
// MetricFactory.
type MetricsExtension struct {
	JobCreated   gu.Counter
	JobEnqueued  gu.Counter
	JobStarted   gu.Counter
	JobSucceeded gu.Counter
	JobRetried   gu.Counter
	JobFailed    gu.Counter
	// JobFailedPermanent counts failures caused by a non-retryable error.
	// JobFailed minus this is the number of jobs that exhausted attempts.
	JobFailedPermanent gu.Counter
}

// NewMetricsExtension creates a MetricsExtension using a default metrics
// collector.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithFactory(gu.NewMetricsCollector("mediaq/observability"))
}

// NewMetricsExtensionWithFactory creates a MetricsExtension with the
// provided MetricFactory.
func NewMetricsExtensionWithFactory(factory gu.MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		JobCreated:         factory.Counter("mediaq.job.created"),
		JobEnqueued:        factory.Counter("mediaq.job.enqueued"),
		JobStarted:         factory.Counter("mediaq.job.started"),
		JobSucceeded:       factory.Counter("mediaq.job.succeeded"),
		JobRetried:         factory.Counter("mediaq.job.retried"),
		JobFailed:          factory.Counter("mediaq.job.failed"),
		JobFailedPermanent: factory.Counter("mediaq.job.failed_permanent"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnJobCreated implements ext.JobCreated.
func (m *MetricsExtension) OnJobCreated(_ context.Context, _ *job.Job) error {
	m.JobCreated.Inc()
	return nil
}

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	m.JobEnqueued.Inc()
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(_ context.Context, _ *job.Job) error {
	m.JobStarted.Inc()
	return nil
}

// OnJobSucceeded implements ext.JobSucceeded.
func (m *MetricsExtension) OnJobSucceeded(_ context.Context, _ *job.Job, _ time.Duration) error {
	m.JobSucceeded.Inc()
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(_ context.Context, _ *job.Job, _ time.Duration) error {
	m.JobRetried.Inc()
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(_ context.Context, _ *job.Job, err error) error {
	m.JobFailed.Inc()
	if job.IsPermanent(err) {
		m.JobFailedPermanent.Inc()
	}
	return nil
}
