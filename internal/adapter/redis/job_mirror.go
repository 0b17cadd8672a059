package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pscheid92/faceswap/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const jobKeyPrefix = "faceswap:job:"

// JobMirror copies every job status change into Redis so replicas and
// restarted processes can answer status lookups. Entries expire after ttl.
type JobMirror struct {
	rdb goredis.Cmdable
	ttl time.Duration
}

var (
	_ domain.JobObserver     = (*JobMirror)(nil)
	_ domain.JobStatusSource = (*JobMirror)(nil)
)

func NewJobMirror(rdb goredis.Cmdable, ttl time.Duration) *JobMirror {
	return &JobMirror{rdb: rdb, ttl: ttl}
}

type jobRecord struct {
	ID         string                  `json:"id"`
	State      domain.JobState         `json:"state"`
	Progress   int                     `json:"progress"`
	Result     *domain.ResultLocations `json:"result,omitempty"`
	Error      string                  `json:"error,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
	StartedAt  time.Time               `json:"started_at,omitzero"`
	FinishedAt time.Time               `json:"finished_at,omitzero"`
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

// JobChanged stores status. Redis errors are logged, never surfaced: the
// in-process tracker stays authoritative.
func (m *JobMirror) JobChanged(ctx context.Context, status domain.JobStatus) {
	if err := m.Save(ctx, status); err != nil {
		slog.WarnContext(ctx, "Failed to mirror job status", "job_id", status.ID, "error", err)
	}
}

func (m *JobMirror) Save(ctx context.Context, status domain.JobStatus) error {
	data, err := json.Marshal(jobRecord(status))
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", status.ID, err)
	}
	if err := m.rdb.Set(ctx, jobKey(status.ID), data, m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store job %s: %w", status.ID, err)
	}
	return nil
}

func (m *JobMirror) JobStatus(ctx context.Context, jobID string) (domain.JobStatus, error) {
	data, err := m.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.JobStatus{}, domain.ErrJobNotFound
	}
	if err != nil {
		return domain.JobStatus{}, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	var rec jobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.JobStatus{}, fmt.Errorf("failed to decode job %s: %w", jobID, err)
	}
	return domain.JobStatus(rec), nil
}
