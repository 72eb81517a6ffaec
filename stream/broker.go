package stream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/mediaq/ext"
	"github.com/xraph/mediaq/id"
	"github.com/xraph/mediaq/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*Broker)(nil)
	_ ext.JobCreated   = (*Broker)(nil)
	_ ext.JobEnqueued  = (*Broker)(nil)
	_ ext.JobStarted   = (*Broker)(nil)
	_ ext.JobProgress  = (*Broker)(nil)
	_ ext.JobSucceeded = (*Broker)(nil)
	_ ext.JobRetrying  = (*Broker)(nil)
	_ ext.JobFailed    = (*Broker)(nil)
	_ ext.Shutdown     = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker receives lifecycle events as an extension and fans them out to
// subscribers via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	subscribers sync.Map // subscriberID → *Subscriber

	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeJob creates a subscriber with a fresh ID on a single job's
// topic. Callers must RemoveSubscriber when done.
func (b *Broker) SubscribeJob(jobID id.JobID) *Subscriber {
	return b.Subscribe(id.NewSubscriberID().String(), JobTopic(jobID.String()))
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		b.totalDropped.Add(sub.Dropped())
		sub.Close()
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// Stats returns broker statistics. TotalDropped includes drops on live
// subscribers.
func (b *Broker) Stats() BrokerStats {
	count := 0
	dropped := b.totalDropped.Load()
	b.subscribers.Range(func(_, v any) bool {
		count++
		dropped += v.(*Subscriber).Dropped() //nolint:errcheck // sync.Map always stores *Subscriber
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    dropped,
	}
}

func (b *Broker) publish(evt *Event) {
	delivered := b.topics.Broadcast(resolveTopics(evt), evt)
	b.totalPublished.Add(int64(delivered))
}

// OnJobCreated implements ext.JobCreated.
func (b *Broker) OnJobCreated(_ context.Context, j *job.Job) error {
	b.publish(NewJobEvent(EventJobCreated, j))
	return nil
}

// OnJobEnqueued implements ext.JobEnqueued.
func (b *Broker) OnJobEnqueued(_ context.Context, j *job.Job) error {
	b.publish(NewJobEvent(EventJobEnqueued, j))
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (b *Broker) OnJobStarted(_ context.Context, j *job.Job) error {
	b.publish(NewJobEvent(EventJobStarted, j))
	return nil
}

// OnJobProgress implements ext.JobProgress.
func (b *Broker) OnJobProgress(_ context.Context, j *job.Job) error {
	b.publish(NewJobEvent(EventJobProgress, j))
	return nil
}

// OnJobSucceeded implements ext.JobSucceeded.
func (b *Broker) OnJobSucceeded(_ context.Context, j *job.Job, elapsed time.Duration) error {
	evt := NewJobEvent(EventJobSucceeded, j)
	evt.Data.ElapsedMs = elapsed.Milliseconds()
	b.publish(evt)
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (b *Broker) OnJobRetrying(_ context.Context, j *job.Job, delay time.Duration) error {
	evt := NewJobEvent(EventJobRetrying, j)
	evt.Data.DelayMs = delay.Milliseconds()
	b.publish(evt)
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (b *Broker) OnJobFailed(_ context.Context, j *job.Job, jobErr error) error {
	evt := NewJobEvent(EventJobFailed, j)
	if evt.Data.Error == "" && jobErr != nil {
		evt.Data.Error = jobErr.Error()
	}
	b.publish(evt)
	return nil
}

// OnShutdown implements ext.Shutdown. Every subscriber channel is closed so
// watchers unblock.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, _ any) bool {
		b.RemoveSubscriber(key.(string)) //nolint:errcheck // keys are always strings
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
