package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/mediaq"
	"github.com/xraph/mediaq/ext"
	"github.com/xraph/mediaq/id"
	"github.com/xraph/mediaq/job"
)

// abandonGrace bounds the wait for cancelled attempts once the shutdown
// deadline has passed. Attempts still running after it are abandoned.
const abandonGrace = 2 * time.Second

// Pool runs a fixed number of workers over a shared pending-work channel.
// Each job ID on the channel is delivered to exactly one worker, and an ID
// is on the channel at most once.
type Pool struct {
	store       job.Store
	executor    *Executor
	extensions  *ext.Registry
	concurrency int
	queueSize   int
	workerID    id.WorkerID
	logger      *slog.Logger

	pending chan id.JobID
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
	timers  map[string]*time.Timer
	queued  map[string]struct{}

	activeMu   sync.Mutex
	activeJobs map[string]context.CancelFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithQueueSize sets the pending-work channel buffer. Submissions block
// while it is full.
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n >= 0 {
			p.queueSize = n
		}
	}
}

// NewPool creates a worker pool. Workers are not started until Start.
func NewPool(
	store job.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		store:       store,
		executor:    executor,
		extensions:  extensions,
		concurrency: 4,
		queueSize:   1024,
		workerID:    id.NewWorkerID(),
		logger:      logger,
		stopCh:      make(chan struct{}),
		timers:      make(map[string]*time.Timer),
		queued:      make(map[string]struct{}),
		activeJobs:  make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.pending = make(chan id.JobID, p.queueSize)
	return p
}

// WorkerID returns the pool's unique identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return mediaq.ErrPoolStopped
	}
	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Int("queue_size", p.queueSize),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.workLoop()
	}
	return nil
}

// Submit places jobID on the pending-work channel. It blocks while the
// channel is full and fails with mediaq.ErrPoolStopped once Stop has been
// called. Submitting before Start is allowed; the ID waits in the buffer.
// Submitting an ID that is already waiting on the channel is a no-op.
func (p *Pool) Submit(ctx context.Context, jobID id.JobID) error {
	key := jobID.String()

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return mediaq.ErrPoolStopped
	}
	if _, dup := p.queued[key]; dup {
		p.mu.Unlock()
		p.logger.Debug("job already pending", slog.String("job_id", key))
		return nil
	}
	p.queued[key] = struct{}{}
	p.mu.Unlock()

	select {
	case p.pending <- jobID:
	case <-p.stopCh:
		p.unmark(key)
		return mediaq.ErrPoolStopped
	case <-ctx.Done():
		p.unmark(key)
		return ctx.Err()
	}
	p.emitEnqueued(jobID)
	return nil
}

func (p *Pool) unmark(key string) {
	p.mu.Lock()
	delete(p.queued, key)
	p.mu.Unlock()
}

func (p *Pool) emitEnqueued(jobID id.JobID) {
	if j, err := p.store.GetJob(context.Background(), jobID); err == nil {
		p.extensions.EmitJobEnqueued(context.Background(), j)
	}
}

// Stop signals workers to stop taking new work, cancels pending retry
// timers and waits for in-flight attempts. When ctx expires first, active
// attempts are cancelled and given a short grace period before being
// abandoned in their last committed state. IDs still on the channel are
// left queued.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	for key, t := range p.timers {
		t.Stop()
		delete(p.timers, key)
	}
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
	}

	p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
	p.cancelActiveJobs()

	select {
	case <-done:
	case <-time.After(abandonGrace):
		p.logger.Warn("abandoning attempts that ignored cancellation")
	}
	return ctx.Err()
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Concurrency    int `json:"concurrency"`
	Pending        int `json:"pending"`
	Active         int `json:"active"`
	RetriesWaiting int `json:"retries_waiting"`
}

// Stats returns the current pool counters.
func (p *Pool) Stats() Stats {
	p.activeMu.Lock()
	active := len(p.activeJobs)
	p.activeMu.Unlock()

	p.mu.Lock()
	waiting := len(p.timers)
	p.mu.Unlock()

	return Stats{
		Concurrency:    p.concurrency,
		Pending:        len(p.pending),
		Active:         active,
		RetriesWaiting: waiting,
	}
}

func (p *Pool) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// workLoop is run by each worker goroutine.
func (p *Pool) workLoop() {
	defer p.wg.Done()

	for {
		// Prefer the stop signal when both are ready.
		select {
		case <-p.stopCh:
			return
		default:
		}

		select {
		case <-p.stopCh:
			return
		case jobID := <-p.pending:
			p.unmark(jobID.String())
			p.process(jobID)
		}
	}
}

func (p *Pool) process(jobID id.JobID) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	key := jobID.String()
	p.trackJob(key, cancel)
	defer p.untrackJob(key)

	outcome, err := p.executor.Execute(ctx, jobID)
	if errors.Is(err, mediaq.ErrInvalidTransition) {
		// Another delivery already claimed it.
		p.logger.Debug("job claim rejected",
			slog.String("job_id", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if err != nil {
		p.logger.Error("job execution error",
			slog.String("job_id", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if outcome.Retry {
		p.scheduleRetry(jobID, outcome.Delay)
	}
}

// scheduleRetry arms a timer that queues the job again after delay.
// Nothing is armed once the pool is stopping.
func (p *Pool) scheduleRetry(jobID id.JobID, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := jobID.String()
	if p.stopped {
		p.logger.Info("retry abandoned by shutdown", slog.String("job_id", key))
		return
	}
	p.timers[key] = time.AfterFunc(delay, func() { p.fireRetry(jobID) })
}

func (p *Pool) fireRetry(jobID id.JobID) {
	key := jobID.String()

	p.mu.Lock()
	delete(p.timers, key)
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return
	}

	_, err := p.store.UpdateJob(context.Background(), jobID, func(j *job.Job) error {
		j.Status = job.StatusQueued
		j.Message = "Queued for retry"
		return nil
	})
	if err != nil {
		p.logger.Error("failed to requeue job for retry",
			slog.String("job_id", key),
			slog.String("error", err.Error()),
		)
		return
	}

	p.mu.Lock()
	p.queued[key] = struct{}{}
	p.mu.Unlock()

	select {
	case p.pending <- jobID:
		p.emitEnqueued(jobID)
	case <-p.stopCh:
		p.unmark(key)
		p.logger.Info("retry abandoned by shutdown", slog.String("job_id", key))
	}
}

func (p *Pool) trackJob(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
