package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/faceswap/internal/domain"
	"github.com/pscheid92/faceswap/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = RetentionPolicy{
	Interval:     time.Hour,
	FileMaxAge:   2 * time.Hour,
	JobRetention: 24 * time.Hour,
}

func TestRetentionSweeper_Sweep(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := jobs.NewTracker(clock, nil)
	ctx := context.Background()

	oldJob := tracker.Create(ctx)
	require.NoError(t, tracker.Complete(ctx, oldJob, domain.ResultLocations{Download: "a.mp4", Stream: "a.mp4"}))
	clock.Advance(25 * time.Hour)

	recentJob := tracker.Create(ctx)
	require.NoError(t, tracker.Fail(ctx, recentJob, "boom"))
	runningJob := tracker.Create(ctx)

	var fileCutoff time.Time
	store := &mockFileStore{
		removeOlderThanFn: func(_ context.Context, cutoff time.Time) (int, error) {
			fileCutoff = cutoff
			return 4, nil
		},
	}
	archive := &mockArchive{}

	NewRetentionSweeper(store, tracker, archive, clock, testPolicy).Sweep(ctx)

	assert.Equal(t, clock.Now().Add(-2*time.Hour), fileCutoff)
	require.Len(t, archive.cutoffs, 1)
	assert.Equal(t, clock.Now().Add(-24*time.Hour), archive.cutoffs[0])

	_, err := tracker.Status(oldJob)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	_, err = tracker.Status(recentJob)
	assert.NoError(t, err)
	_, err = tracker.Status(runningJob)
	assert.NoError(t, err)
}

func TestRetentionSweeper_FileErrorDoesNotStopJobEviction(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := jobs.NewTracker(clock, nil)
	ctx := context.Background()

	id := tracker.Create(ctx)
	require.NoError(t, tracker.Fail(ctx, id, "boom"))
	clock.Advance(48 * time.Hour)

	store := &mockFileStore{
		removeOlderThanFn: func(context.Context, time.Time) (int, error) {
			return 0, errors.New("permission denied")
		},
	}

	NewRetentionSweeper(store, tracker, nil, clock, testPolicy).Sweep(ctx)
	assert.Equal(t, 0, tracker.Len())
}

func TestRetentionSweeper_RunSweepsOnEveryTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := jobs.NewTracker(clock, nil)

	var mu sync.Mutex
	sweeps := 0
	store := &mockFileStore{
		removeOlderThanFn: func(context.Context, time.Time) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			sweeps++
			return 0, nil
		},
	}
	sweeper := NewRetentionSweeper(store, tracker, nil, clock, testPolicy)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	for i := 1; i <= 2; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(testPolicy.Interval)
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return sweeps == i
		}, waitFor, 5*time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("sweeper did not stop after cancel")
	}
}
