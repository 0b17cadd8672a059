package domain

import (
	"context"
	"time"
)

type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ResultLocations names the stored renditions of a completed job.
type ResultLocations struct {
	Download string `json:"download"`
	Stream   string `json:"stream"`
}

// JobStatus is a point-in-time copy of a job record.
type JobStatus struct {
	ID         string
	State      JobState
	Progress   int
	Result     *ResultLocations
	Error      string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// JobObserver is notified after every job state change.
type JobObserver interface {
	JobChanged(ctx context.Context, status JobStatus)
}

// JobStatusSource answers status lookups for jobs not held in local memory.
// Implementations return ErrJobNotFound for unknown ids.
type JobStatusSource interface {
	JobStatus(ctx context.Context, jobID string) (JobStatus, error)
}

// JobArchive stores terminal job records beyond the in-memory retention.
type JobArchive interface {
	JobStatusSource
	SaveJob(ctx context.Context, status JobStatus) error
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
