package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/faceswap/internal/domain"
)

// JobArchive persists finished jobs so their status outlives the in-memory
// tracker and the Redis mirror.
type JobArchive struct {
	pool *pgxpool.Pool
}

var (
	_ domain.JobArchive  = (*JobArchive)(nil)
	_ domain.JobObserver = (*JobArchive)(nil)
)

func NewJobArchive(pool *pgxpool.Pool) *JobArchive {
	return &JobArchive{pool: pool}
}

const upsertJob = `
INSERT INTO jobs (id, state, progress, download_name, stream_name, error, created_at, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    state = EXCLUDED.state,
    progress = EXCLUDED.progress,
    download_name = EXCLUDED.download_name,
    stream_name = EXCLUDED.stream_name,
    error = EXCLUDED.error,
    started_at = EXCLUDED.started_at,
    finished_at = EXCLUDED.finished_at`

func (a *JobArchive) SaveJob(ctx context.Context, s domain.JobStatus) error {
	var download, stream *string
	if s.Result != nil {
		download, stream = &s.Result.Download, &s.Result.Stream
	}

	_, err := a.pool.Exec(ctx, upsertJob,
		s.ID, string(s.State), s.Progress, download, stream, s.Error,
		s.CreatedAt, nullTime(s.StartedAt), nullTime(s.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to archive job %s: %w", s.ID, err)
	}
	return nil
}

// JobChanged archives terminal states only; intermediate progress lives in
// the tracker and the mirror.
func (a *JobArchive) JobChanged(ctx context.Context, s domain.JobStatus) {
	if !s.State.Terminal() {
		return
	}
	if err := a.SaveJob(ctx, s); err != nil {
		slog.ErrorContext(ctx, "Failed to archive job", "job_id", s.ID, "error", err)
	}
}

const selectJob = `
SELECT id, state, progress, download_name, stream_name, error, created_at, started_at, finished_at
FROM jobs WHERE id = $1`

func (a *JobArchive) JobStatus(ctx context.Context, jobID string) (domain.JobStatus, error) {
	var (
		s                domain.JobStatus
		state            string
		download, stream *string
		started, ended   *time.Time
	)
	err := a.pool.QueryRow(ctx, selectJob, jobID).Scan(
		&s.ID, &state, &s.Progress, &download, &stream, &s.Error, &s.CreatedAt, &started, &ended,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.JobStatus{}, domain.ErrJobNotFound
	}
	if err != nil {
		return domain.JobStatus{}, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	s.State = domain.JobState(state)
	if download != nil {
		s.Result = &domain.ResultLocations{Download: *download}
		if stream != nil {
			s.Result.Stream = *stream
		}
	}
	if started != nil {
		s.StartedAt = *started
	}
	if ended != nil {
		s.FinishedAt = *ended
	}
	return s, nil
}

func (a *JobArchive) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := a.pool.Exec(ctx, `DELETE FROM jobs WHERE finished_at IS NOT NULL AND finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete archived jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
