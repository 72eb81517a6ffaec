// Package memory provides the in-memory job store. It is the only backend:
// queue state lives for the lifetime of the process.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/mediaq"
	"github.com/xraph/mediaq/id"
	"github.com/xraph/mediaq/job"
	"github.com/xraph/mediaq/store"
)

var _ store.Store = (*Store)(nil)

type record struct {
	job  *job.Job
	seq  uint64
	done chan struct{}
}

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Every read and write goes through a copy so
// callers never share memory with the stored record.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*record
	seq  uint64

	closed    chan struct{}
	closeOnce sync.Once
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:   make(map[string]*record),
		closed: make(chan struct{}),
	}
}

// Ping returns mediaq.ErrStoreClosed once Close has been called.
func (m *Store) Ping(_ context.Context) error {
	if m.isClosed() {
		return mediaq.ErrStoreClosed
	}
	return nil
}

// Close releases every WaitJob caller. Reads keep working; writes fail
// with mediaq.ErrStoreClosed.
func (m *Store) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *Store) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// CreateJob persists a new job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isClosed() {
		return mediaq.ErrStoreClosed
	}
	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return mediaq.ErrJobAlreadyExists
	}
	m.seq++
	rec := &record{job: j.Clone(), seq: m.seq, done: make(chan struct{})}
	if j.Status.IsTerminal() {
		close(rec.done)
	}
	m.jobs[key] = rec
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, mediaq.ErrJobNotFound
	}
	return rec.job.Clone(), nil
}

// UpdateJob applies fn to a copy of the job under the write lock and
// commits it if the transition and invariants hold.
func (m *Store) UpdateJob(_ context.Context, jobID id.JobID, fn func(*job.Job) error) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isClosed() {
		return nil, mediaq.ErrStoreClosed
	}
	rec, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, mediaq.ErrJobNotFound
	}

	cp := rec.job.Clone()
	if err := fn(cp); err != nil {
		return nil, err
	}
	// Identity and creation time are immutable.
	cp.ID = rec.job.ID
	cp.Kind = rec.job.Kind
	cp.Payload = rec.job.Payload
	cp.CreatedAt = rec.job.CreatedAt

	if err := job.CheckTransition(rec.job.Status, cp.Status); err != nil {
		return nil, err
	}
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	cp.Touch()

	rec.job = cp
	if cp.Status.IsTerminal() {
		close(rec.done)
	}
	return cp.Clone(), nil
}

// DeleteJob removes a queued job that has not started an attempt.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isClosed() {
		return mediaq.ErrStoreClosed
	}
	key := jobID.String()
	rec, ok := m.jobs[key]
	if !ok {
		return mediaq.ErrJobNotFound
	}
	if rec.job.Status != job.StatusQueued || rec.job.Attempt != 0 {
		return fmt.Errorf("%w: cannot delete job that is %s at attempt %d",
			mediaq.ErrInvalidTransition, rec.job.Status, rec.job.Attempt)
	}
	delete(m.jobs, key)
	close(rec.done)
	return nil
}

// ListJobs returns jobs in creation order, filtered and paginated by opts.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]*record, 0, len(m.jobs))
	for _, rec := range m.jobs {
		if matches(rec.job, opts.Status, opts.Kind) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, k int) bool { return recs[i].seq < recs[k].seq })

	if opts.Offset > 0 {
		if opts.Offset >= len(recs) {
			return []*job.Job{}, nil
		}
		recs = recs[opts.Offset:]
	}
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}

	result := make([]*job.Job, len(recs))
	for i, rec := range recs {
		result[i] = rec.job.Clone()
	}
	return result, nil
}

// CountJobs returns the number of jobs matching opts.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, rec := range m.jobs {
		if matches(rec.job, opts.Status, opts.Kind) {
			n++
		}
	}
	return n, nil
}

// WaitJob blocks until the job reaches a terminal status.
func (m *Store) WaitJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	rec, ok := m.jobs[jobID.String()]
	m.mu.RUnlock()
	if !ok {
		return nil, mediaq.ErrJobNotFound
	}

	var waitErr error
	select {
	case <-rec.done:
	case <-ctx.Done():
		waitErr = ctx.Err()
	case <-m.closed:
		waitErr = mediaq.ErrStoreClosed
	}

	snap, err := m.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if snap.Status.IsTerminal() {
		return snap, nil
	}
	return snap, waitErr
}

func matches(j *job.Job, status job.Status, kind job.Kind) bool {
	if status != "" && j.Status != status {
		return false
	}
	if kind != "" && j.Kind != kind {
		return false
	}
	return true
}
