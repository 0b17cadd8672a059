package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pscheid92/faceswap/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedJob(id string, finished time.Time) domain.JobStatus {
	return domain.JobStatus{
		ID:         id,
		State:      domain.JobCompleted,
		Progress:   100,
		Result:     &domain.ResultLocations{Download: id + ".mp4", Stream: id + "_streaming.mp4"},
		CreatedAt:  finished.Add(-2 * time.Minute),
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func TestJobArchive_SaveAndLoad(t *testing.T) {
	archive := NewJobArchive(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	want := completedJob("job-1", now)
	require.NoError(t, archive.SaveJob(ctx, want))

	got, err := archive.JobStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, domain.JobCompleted, got.State)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, want.Result, got.Result)
	assert.True(t, want.FinishedAt.Equal(got.FinishedAt))
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
}

func TestJobArchive_FailedJobWithoutResult(t *testing.T) {
	archive := NewJobArchive(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, archive.SaveJob(ctx, domain.JobStatus{
		ID:         "job-2",
		State:      domain.JobFailed,
		Progress:   35,
		Error:      "unreadable video",
		CreatedAt:  time.Now(),
		FinishedAt: time.Now(),
	}))

	got, err := archive.JobStatus(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, got.State)
	assert.Equal(t, "unreadable video", got.Error)
	assert.Nil(t, got.Result)
	assert.True(t, got.StartedAt.IsZero())
}

func TestJobArchive_JobChangedArchivesTerminalOnly(t *testing.T) {
	archive := NewJobArchive(setupTestDB(t))
	ctx := context.Background()

	archive.JobChanged(ctx, domain.JobStatus{ID: "job-3", State: domain.JobProcessing, Progress: 50, CreatedAt: time.Now()})
	_, err := archive.JobStatus(ctx, "job-3")
	require.ErrorIs(t, err, domain.ErrJobNotFound)

	archive.JobChanged(ctx, completedJob("job-3", time.Now()))
	got, err := archive.JobStatus(ctx, "job-3")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, got.State)
}

func TestJobArchive_DeleteFinishedBefore(t *testing.T) {
	archive := NewJobArchive(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, archive.SaveJob(ctx, completedJob("old", now.Add(-48*time.Hour))))
	require.NoError(t, archive.SaveJob(ctx, completedJob("recent", now.Add(-time.Hour))))

	deleted, err := archive.DeleteFinishedBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = archive.JobStatus(ctx, "old")
	require.ErrorIs(t, err, domain.ErrJobNotFound)
	_, err = archive.JobStatus(ctx, "recent")
	require.NoError(t, err)
}

func TestRunMigrationsWithLock_Idempotent(t *testing.T) {
	pool := setupTestDB(t)
	require.NoError(t, RunMigrationsWithLock(context.Background(), pool))
}
