package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/faceswap/internal/adapter/metrics"
	"github.com/pscheid92/faceswap/internal/domain"
	"github.com/pscheid92/faceswap/internal/progress"
)

// Tracker maps job ids to status records.
//
// Locking: mu guards the table structure (insert, delete, iterate); each
// record has its own mutex for field updates. Every record has exactly one
// writer (the worker running the job) and any number of status readers.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*record

	clock     clockwork.Clock
	metrics   *metrics.JobMetrics
	observers []domain.JobObserver
}

type record struct {
	mu       sync.Mutex
	status   domain.JobStatus
	progress *progress.Sink
}

// NewTracker creates an empty tracker. m may be nil.
func NewTracker(clock clockwork.Clock, m *metrics.JobMetrics, observers ...domain.JobObserver) *Tracker {
	return &Tracker{
		jobs:      make(map[string]*record),
		clock:     clock,
		metrics:   m,
		observers: observers,
	}
}

// Create registers a new pending job and returns its id.
func (t *Tracker) Create(ctx context.Context) string {
	id := uuid.NewString()
	rec := &record{
		status: domain.JobStatus{
			ID:        id,
			State:     domain.JobPending,
			CreatedAt: t.clock.Now(),
		},
		progress: progress.NewSink(nil),
	}

	t.mu.Lock()
	t.jobs[id] = rec
	t.mu.Unlock()

	t.recordTransition(domain.JobPending)
	t.notify(ctx, rec.snapshot())
	return id
}

// Update records progress. The first update moves a pending job to
// processing. Updates on a terminal job are ignored.
func (t *Tracker) Update(ctx context.Context, id string, percent int) error {
	rec, err := t.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	if rec.status.State.Terminal() {
		rec.mu.Unlock()
		return nil
	}

	changed := false
	if rec.status.State == domain.JobPending {
		rec.status.State = domain.JobProcessing
		rec.status.StartedAt = t.clock.Now()
		changed = true
		t.recordTransition(domain.JobProcessing)
	}
	if rec.progress.Set(percent) {
		changed = true
	}
	snap := rec.snapshotLocked()
	rec.mu.Unlock()

	if changed {
		t.notify(ctx, snap)
	}
	return nil
}

// Complete moves the job to completed. Only the first terminal transition
// takes effect.
func (t *Tracker) Complete(ctx context.Context, id string, result domain.ResultLocations) error {
	return t.finish(ctx, id, func(s *domain.JobStatus, p *progress.Sink) {
		s.State = domain.JobCompleted
		s.Result = &result
		p.Set(100)
	})
}

// Fail moves the job to failed with a user-facing message. Only the first
// terminal transition takes effect.
func (t *Tracker) Fail(ctx context.Context, id string, message string) error {
	return t.finish(ctx, id, func(s *domain.JobStatus, _ *progress.Sink) {
		s.State = domain.JobFailed
		s.Error = message
	})
}

func (t *Tracker) finish(ctx context.Context, id string, apply func(*domain.JobStatus, *progress.Sink)) error {
	rec, err := t.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	if rec.status.State.Terminal() {
		rec.mu.Unlock()
		return nil
	}

	now := t.clock.Now()
	if rec.status.StartedAt.IsZero() {
		rec.status.StartedAt = now
	}
	rec.status.FinishedAt = now
	apply(&rec.status, rec.progress)
	snap := rec.snapshotLocked()
	rec.mu.Unlock()

	t.recordTransition(snap.State)
	if t.metrics != nil {
		t.metrics.Duration.WithLabelValues(string(snap.State)).Observe(snap.FinishedAt.Sub(snap.StartedAt).Seconds())
	}
	t.notify(ctx, snap)
	return nil
}

// Status returns a copy of the job record, or domain.ErrJobNotFound.
func (t *Tracker) Status(id string) (domain.JobStatus, error) {
	rec, err := t.lookup(id)
	if err != nil {
		return domain.JobStatus{}, err
	}
	return rec.snapshot(), nil
}

// EvictFinishedBefore removes terminal jobs that finished before cutoff and
// returns how many were removed. Active jobs are never evicted.
func (t *Tracker) EvictFinishedBefore(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for id, rec := range t.jobs {
		rec.mu.Lock()
		expired := rec.status.State.Terminal() && rec.status.FinishedAt.Before(cutoff)
		rec.mu.Unlock()

		if expired {
			delete(t.jobs, id)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked jobs.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}

func (t *Tracker) lookup(id string) (*record, error) {
	t.mu.RLock()
	rec, ok := t.jobs[id]
	t.mu.RUnlock()
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return rec, nil
}

func (t *Tracker) recordTransition(state domain.JobState) {
	if t.metrics != nil {
		t.metrics.Transitions.WithLabelValues(string(state)).Inc()
	}
}

func (t *Tracker) notify(ctx context.Context, snap domain.JobStatus) {
	for _, o := range t.observers {
		o.JobChanged(ctx, snap)
	}
}

func (r *record) snapshot() domain.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *record) snapshotLocked() domain.JobStatus {
	s := r.status
	s.Progress = r.progress.Value()
	if r.status.Result != nil {
		res := *r.status.Result
		s.Result = &res
	}
	return s
}
