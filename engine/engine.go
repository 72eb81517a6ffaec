package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	gu "github.com/xraph/go-utils/metrics"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/xraph/mediaq"
	"github.com/xraph/mediaq/backoff"
	"github.com/xraph/mediaq/ext"
	"github.com/xraph/mediaq/id"
	"github.com/xraph/mediaq/job"
	mw "github.com/xraph/mediaq/middleware"
	"github.com/xraph/mediaq/observability"
	"github.com/xraph/mediaq/store"
	"github.com/xraph/mediaq/store/memory"
	"github.com/xraph/mediaq/stream"
	"github.com/xraph/mediaq/worker"
)

// Engine is the queue manager. It owns the job store, the processor
// registry, the worker pool and the lifecycle hook registry.
type Engine struct {
	config     mediaq.Config
	logger     *slog.Logger
	store      store.Store
	extensions *ext.Registry
	registry   *job.Registry
	broker     *stream.Broker
	bo         backoff.Strategy
	pool       *worker.Pool
	mws        []mw.Middleware
	limiter    *rate.Limiter
	obs        *observability.MetricsExtension

	// Deferred until New so options can be applied in any order.
	pendingExts   []ext.Extension
	metricFactory gu.MetricFactory

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu      sync.Mutex
	started bool
	stopped bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the engine configuration.
func WithConfig(cfg mediaq.Config) Option {
	return func(eng *Engine) { eng.config = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithStore sets the job store. Defaults to an in-memory store.
func WithStore(s store.Store) Option {
	return func(eng *Engine) { eng.store = s }
}

// WithConcurrency overrides Config.Concurrency.
func WithConcurrency(n int) Option {
	return func(eng *Engine) {
		if n > 0 {
			eng.config.Concurrency = n
		}
	}
}

// WithSubmitRate overrides Config.SubmitRate and Config.SubmitBurst.
func WithSubmitRate(perSecond float64, burst int) Option {
	return func(eng *Engine) {
		eng.config.SubmitRate = perSecond
		eng.config.SubmitBurst = burst
	}
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.pendingExts = append(eng.pendingExts, e) }
}

// WithMiddleware appends middleware after the default chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the retry backoff strategy. If not set, the strategy
// named by Config.BackoffStrategy is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithMetricFactory sets the go-utils factory backing the lifecycle
// counters.
func WithMetricFactory(f gu.MetricFactory) Option {
	return func(eng *Engine) { eng.metricFactory = f }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware. If not set, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New creates an Engine. Workers do not run until Start.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{
		config:   mediaq.DefaultConfig(),
		logger:   slog.Default(),
		registry: job.NewRegistry(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.store == nil {
		eng.store = memory.New()
	}
	if eng.bo == nil {
		bo, err := backoff.FromConfig(eng.config)
		if err != nil {
			return nil, err
		}
		eng.bo = bo
	}
	if eng.config.SubmitRate > 0 {
		burst := max(eng.config.SubmitBurst, 1)
		eng.limiter = rate.NewLimiter(rate.Limit(eng.config.SubmitRate), burst)
	}

	eng.extensions = ext.NewRegistry(eng.logger)

	if eng.metricFactory != nil {
		eng.obs = observability.NewMetricsExtensionWithFactory(eng.metricFactory)
	} else {
		eng.obs = observability.NewMetricsExtension()
	}
	eng.extensions.Register(eng.obs)

	eng.broker = stream.NewBroker(eng.logger)
	eng.extensions.Register(eng.broker)

	for _, e := range eng.pendingExts {
		eng.extensions.Register(e)
	}
	eng.pendingExts = nil

	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/xraph/mediaq"))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/xraph/mediaq"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default chain: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.Timeout(eng.logger, eng.config.AttemptTimeout),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(eng.registry, eng.extensions, eng.store, eng.bo, eng.logger, allMws...)
	eng.pool = worker.NewPool(eng.store, executor, eng.extensions, eng.logger,
		worker.WithPoolConcurrency(eng.config.Concurrency),
		worker.WithQueueSize(eng.config.QueueSize),
	)

	return eng, nil
}

// Register registers a typed processor definition with the engine.
func Register[In, Out any](eng *Engine, def *job.Definition[In, Out]) {
	job.RegisterDefinition(eng.registry, def)
}

// RegisterFunc registers a raw processor for kind.
func (eng *Engine) RegisterFunc(kind job.Kind, h job.HandlerFunc, opts ...job.Option) {
	eng.registry.Register(kind, h, opts...)
}

// Enqueue marshals payload, creates a job of kind and submits it.
func Enqueue[T any](ctx context.Context, eng *Engine, kind job.Kind, payload T, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for kind %q: %w", kind, err)
	}
	return eng.EnqueueRaw(ctx, kind, data, opts...)
}

// EnqueueRaw creates a job with a pre-serialized payload and submits it.
// Options apply in order: Config.MaxAttempts, the kind's registered
// defaults, then opts. Admission is checked before the job is stored, and
// a job whose submission fails is removed again, so a failed call leaves
// nothing behind.
func (eng *Engine) EnqueueRaw(ctx context.Context, kind job.Kind, payload []byte, opts ...job.Option) (*job.Job, error) {
	if err := eng.admit(ctx); err != nil {
		return nil, err
	}
	j := eng.NewJob(kind, payload, opts...)
	if err := eng.Create(ctx, j); err != nil {
		return nil, err
	}
	if err := eng.submit(ctx, j.ID); err != nil {
		if delErr := eng.store.DeleteJob(context.Background(), j.ID); delErr != nil {
			eng.logger.Error("failed to discard unsubmitted job",
				slog.String("job_id", j.ID.String()),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, err
	}
	return j, nil
}

// NewJob builds a queued job with the engine's defaults applied. It is
// not stored until Create.
func (eng *Engine) NewJob(kind job.Kind, payload []byte, opts ...job.Option) *job.Job {
	all := []job.Option{job.WithMaxAttempts(eng.config.MaxAttempts)}
	if defaults, ok := eng.registry.Defaults(kind); ok {
		all = append(all, defaults...)
	}
	all = append(all, opts...)
	return job.New(kind, payload, all...)
}

// Create stores a new job. It does not queue it.
func (eng *Engine) Create(ctx context.Context, j *job.Job) error {
	if j.Status != job.StatusQueued || j.Attempt != 0 {
		return fmt.Errorf("%w: new job must be %s with attempt 0", mediaq.ErrInvalidTransition, job.StatusQueued)
	}
	if err := eng.store.CreateJob(ctx, j); err != nil {
		return err
	}
	eng.extensions.EmitJobCreated(ctx, j)
	return nil
}

// Submit places a created job on the pending-work channel. It is the
// single entry point for initial submission; retries are re-queued by the
// pool. Submitting a job that is not queued fails with
// mediaq.ErrInvalidTransition.
func (eng *Engine) Submit(ctx context.Context, jobID id.JobID) error {
	if err := eng.admit(ctx); err != nil {
		return err
	}
	return eng.submit(ctx, jobID)
}

// admit waits for the submission rate limiter, if any.
func (eng *Engine) admit(ctx context.Context) error {
	if eng.limiter == nil {
		return nil
	}
	if err := eng.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("submit rate limit: %w", err)
	}
	return nil
}

func (eng *Engine) submit(ctx context.Context, jobID id.JobID) error {
	j, err := eng.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status != job.StatusQueued || j.Attempt != 0 {
		return fmt.Errorf("%w: job %s is %s at attempt %d", mediaq.ErrInvalidTransition, jobID, j.Status, j.Attempt)
	}
	return eng.pool.Submit(ctx, jobID)
}

// Get returns a snapshot of a job.
func (eng *Engine) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return eng.store.GetJob(ctx, jobID)
}

// Result returns the result of a succeeded job. A job that is still in
// progress yields mediaq.ErrJobNotCompleted; a failed job yields a
// *job.FailedError that matches mediaq.ErrJobFailed.
func (eng *Engine) Result(ctx context.Context, jobID id.JobID) (json.RawMessage, error) {
	j, err := eng.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch j.Status {
	case job.StatusSucceeded:
		return j.Result, nil
	case job.StatusFailed:
		return nil, &job.FailedError{JobID: j.ID, Failure: j.LastError}
	default:
		return nil, fmt.Errorf("%w: job %s is %s", mediaq.ErrJobNotCompleted, jobID, j.Status)
	}
}

// Await blocks until the job is terminal and returns its final snapshot.
// If the engine shuts down first, the last snapshot is returned together
// with mediaq.ErrPoolStopped.
func (eng *Engine) Await(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := eng.store.WaitJob(ctx, jobID)
	if errors.Is(err, mediaq.ErrStoreClosed) {
		return j, mediaq.ErrPoolStopped
	}
	return j, err
}

// List returns jobs in creation order.
func (eng *Engine) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return eng.store.ListJobs(ctx, opts)
}

// Counts returns the number of jobs in each status.
func (eng *Engine) Counts(ctx context.Context, kind job.Kind) (map[job.Status]int64, error) {
	counts := make(map[job.Status]int64, len(job.Statuses))
	for _, s := range job.Statuses {
		n, err := eng.store.CountJobs(ctx, job.CountOpts{Status: s, Kind: kind})
		if err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, nil
}

// Start launches the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.stopped {
		return mediaq.ErrPoolStopped
	}
	if eng.started {
		return nil
	}
	if err := eng.pool.Start(ctx); err != nil {
		return err
	}
	eng.started = true
	eng.logger.Info("mediaq engine started",
		slog.Int("concurrency", eng.config.Concurrency),
		slog.Any("kinds", eng.registry.Kinds()),
	)
	return nil
}

// Shutdown stops the pool, notifies extensions and closes the store,
// which releases every waiter. It is safe to call more than once.
func (eng *Engine) Shutdown(ctx context.Context) error {
	eng.mu.Lock()
	if eng.stopped {
		eng.mu.Unlock()
		return nil
	}
	eng.stopped = true
	eng.mu.Unlock()

	poolErr := eng.pool.Stop(ctx)
	eng.extensions.EmitShutdown(ctx)
	closeErr := eng.store.Close()

	eng.logger.Info("mediaq engine stopped")
	return errors.Join(poolErr, closeErr)
}

// Ping reports whether the engine is accepting and executing work.
func (eng *Engine) Ping(ctx context.Context) error {
	eng.mu.Lock()
	started, stopped := eng.started, eng.stopped
	eng.mu.Unlock()
	switch {
	case stopped:
		return mediaq.ErrPoolStopped
	case !started:
		return mediaq.ErrNotStarted
	}
	return eng.store.Ping(ctx)
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Pool   worker.Stats       `json:"pool"`
	Stream stream.BrokerStats `json:"stream"`
}

// Stats returns pool and stream counters.
func (eng *Engine) Stats() Stats {
	return Stats{Pool: eng.pool.Stats(), Stream: eng.broker.Stats()}
}

// Config returns the effective configuration.
func (eng *Engine) Config() mediaq.Config { return eng.config }

// Logger returns the engine logger.
func (eng *Engine) Logger() *slog.Logger { return eng.logger }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the processor registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Broker returns the lifecycle event broker.
func (eng *Engine) Broker() *stream.Broker { return eng.broker }

// Metrics returns the lifecycle counters.
func (eng *Engine) Metrics() *observability.MetricsExtension { return eng.obs }
