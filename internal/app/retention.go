package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/faceswap/internal/domain"
	"github.com/pscheid92/faceswap/internal/jobs"
	"github.com/pscheid92/faceswap/internal/platform/correlation"
)

const sweepTimeout = 5 * time.Minute

// RetentionPolicy says how long files and finished jobs are kept.
type RetentionPolicy struct {
	Interval     time.Duration
	FileMaxAge   time.Duration
	JobRetention time.Duration
}

// RetentionSweeper removes old uploads and results and forgets finished jobs.
type RetentionSweeper struct {
	store   domain.FileStore
	tracker *jobs.Tracker
	archive domain.JobArchive
	clock   clockwork.Clock
	policy  RetentionPolicy
}

// NewRetentionSweeper creates a sweeper. archive may be nil.
func NewRetentionSweeper(store domain.FileStore, tracker *jobs.Tracker, archive domain.JobArchive, clock clockwork.Clock, policy RetentionPolicy) *RetentionSweeper {
	return &RetentionSweeper{
		store:   store,
		tracker: tracker,
		archive: archive,
		clock:   clock,
		policy:  policy,
	}
}

// Run sweeps every policy interval. It blocks until ctx is cancelled.
func (r *RetentionSweeper) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.policy.Interval)
	defer ticker.Stop()

	slog.Info("Retention sweeper started", "interval", r.policy.Interval, "file_max_age", r.policy.FileMaxAge, "job_retention", r.policy.JobRetention)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Retention sweeper stopped")
			return
		case <-ticker.Chan():
			r.Sweep(correlation.WithID(ctx, correlation.NewID()))
		}
	}
}

// Sweep runs one retention pass.
func (r *RetentionSweeper) Sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	now := r.clock.Now()

	files, err := r.store.RemoveOlderThan(ctx, now.Add(-r.policy.FileMaxAge))
	if err != nil {
		slog.ErrorContext(ctx, "Retention: file sweep failed", "removed", files, "error", err)
	}

	jobCutoff := now.Add(-r.policy.JobRetention)
	evicted := r.tracker.EvictFinishedBefore(jobCutoff)

	var archived int64
	if r.archive != nil {
		archived, err = r.archive.DeleteFinishedBefore(ctx, jobCutoff)
		if err != nil {
			slog.ErrorContext(ctx, "Retention: archive sweep failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "Retention sweep finished", "files_removed", files, "jobs_evicted", evicted, "archived_jobs_deleted", archived)
}
