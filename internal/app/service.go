package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/pscheid92/faceswap/internal/adapter/metrics"
	"github.com/pscheid92/faceswap/internal/domain"
	"github.com/pscheid92/faceswap/internal/jobs"
	"github.com/pscheid92/faceswap/internal/pipeline"
	"github.com/pscheid92/faceswap/internal/platform/correlation"
	"github.com/pscheid92/faceswap/internal/watermark"
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 32
)

type videoPipeline interface {
	Process(ctx context.Context, sourceKey, targetPath string, onProgress pipeline.ProgressFunc) (string, error)
	Rendition(ctx context.Context, path string, profile domain.TranscodeProfile) string
	SwapImage(ctx context.Context, sourceKey string, target []byte) ([]byte, error)
}

type sessionCounter interface {
	ActiveCount() int
}

// Options sizes the job worker pool.
type Options struct {
	Workers   int
	QueueSize int
	// Enhancer post-processes single-image swaps on request. Nil turns
	// enhancement into a no-op.
	Enhancer domain.ImageEnhancer
}

// ImageOptions selects post-processing for a single-image swap.
type ImageOptions struct {
	Enhance   bool
	Watermark bool
}

// Upload is one multipart file handed over by the transport layer.
type Upload struct {
	Name string
	Body io.Reader
}

type queuedJob struct {
	id         string
	sourcePath string
	targetPath string
}

// Service is the application layer. It owns the job queue and the worker
// pool that drains it; accepted jobs run to completion once a worker picks
// them up.
type Service struct {
	store    domain.FileStore
	tracker  *jobs.Tracker
	pipeline videoPipeline
	sessions sessionCounter
	sources  []domain.JobStatusSource
	enhancer domain.ImageEnhancer
	metrics  *metrics.JobMetrics

	queue      chan queuedJob
	stopCh     chan struct{}
	stopOnce   sync.Once
	workers    sync.WaitGroup
	jobCtx     context.Context
	cancelJobs context.CancelFunc
}

// NewService creates the service and starts its workers. sources are
// consulted in order for jobs the tracker no longer holds; m may be nil.
func NewService(store domain.FileStore, tracker *jobs.Tracker, p videoPipeline, sessions sessionCounter, opts Options, m *metrics.JobMetrics, sources ...domain.JobStatusSource) *Service {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	s := &Service{
		store:      store,
		tracker:    tracker,
		pipeline:   p,
		sessions:   sessions,
		sources:    sources,
		enhancer:   opts.Enhancer,
		metrics:    m,
		queue:      make(chan queuedJob, opts.QueueSize),
		stopCh:     make(chan struct{}),
		jobCtx:     jobCtx,
		cancelJobs: cancel,
	}

	for range opts.Workers {
		s.workers.Go(s.work)
	}
	slog.Info("Job workers started", "workers", opts.Workers, "queue_size", opts.QueueSize)
	return s
}

// SubmitVideo stores both uploads and queues a swap job. It returns the job
// id, or domain.ErrQueueFull when no more jobs can be accepted.
func (s *Service) SubmitVideo(ctx context.Context, source, target Upload) (string, error) {
	if len(s.queue) == cap(s.queue) {
		return "", domain.ErrQueueFull
	}

	sourcePath, err := s.store.SaveUpload(ctx, source.Body, source.Name)
	if err != nil {
		return "", fmt.Errorf("failed to store source image: %w", err)
	}
	targetPath, err := s.store.SaveUpload(ctx, target.Body, target.Name)
	if err != nil {
		s.discard(ctx, sourcePath)
		return "", fmt.Errorf("failed to store target video: %w", err)
	}

	id := s.tracker.Create(ctx)
	select {
	case s.queue <- queuedJob{id: id, sourcePath: sourcePath, targetPath: targetPath}:
		s.setQueueDepth()
		slog.InfoContext(ctx, "Video job queued", "job_id", id)
		return id, nil
	default:
		_ = s.tracker.Fail(ctx, id, "Job queue full")
		s.discard(ctx, sourcePath, targetPath)
		return "", domain.ErrQueueFull
	}
}

// JobStatus looks the job up in the tracker, then in each remote source.
func (s *Service) JobStatus(ctx context.Context, id string) (domain.JobStatus, error) {
	status, err := s.tracker.Status(id)
	if err == nil {
		return status, nil
	}

	for _, src := range s.sources {
		status, err := src.JobStatus(ctx, id)
		if err == nil {
			return status, nil
		}
		if !errors.Is(err, domain.ErrJobNotFound) {
			slog.WarnContext(ctx, "Job status lookup failed", "job_id", id, "error", err)
		}
	}
	return domain.JobStatus{}, domain.ErrJobNotFound
}

// SwapImage swaps the largest face of source onto every face of target and
// applies the requested post-processing. A failed enhancement falls back to
// the plain swap; a failed watermark fails the request.
func (s *Service) SwapImage(ctx context.Context, source Upload, target []byte, opts ImageOptions) ([]byte, error) {
	sourcePath, err := s.store.SaveUpload(ctx, source.Body, source.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to store source image: %w", err)
	}
	defer s.discard(ctx, sourcePath)

	out, err := s.pipeline.SwapImage(ctx, sourcePath, target)
	if err != nil {
		return nil, err
	}

	if opts.Enhance && s.enhancer != nil {
		enhanced, err := s.enhancer.Enhance(ctx, out)
		switch {
		case err == nil:
			out = enhanced
		case ctx.Err() != nil:
			return nil, err
		default:
			slog.WarnContext(ctx, "Image enhancement failed, returning plain swap", "error", err)
		}
	}

	if opts.Watermark {
		out, err = watermark.Stamp(out, watermark.DefaultText)
		if err != nil {
			return nil, fmt.Errorf("failed to watermark result: %w", err)
		}
	}
	return out, nil
}

func (s *Service) discard(ctx context.Context, paths ...string) {
	for _, path := range paths {
		if err := s.store.RemoveUpload(path); err != nil {
			slog.WarnContext(ctx, "Failed to remove upload", "path", path, "error", err)
		}
	}
}

// ResultPath resolves a stored result name to a file path.
func (s *Service) ResultPath(name string) (string, error) {
	return s.store.ResultPath(name)
}

// ActiveSessions returns the number of open live sessions.
func (s *Service) ActiveSessions() int {
	return s.sessions.ActiveCount()
}

func (s *Service) work() {
	for {
		// Stop wins over queued work.
		select {
		case <-s.stopCh:
			return
		default:
		}

		select {
		case <-s.stopCh:
			return
		case j := <-s.queue:
			s.setQueueDepth()
			s.run(j)
		}
	}
}

func (s *Service) run(j queuedJob) {
	ctx := correlation.WithJobID(correlation.WithID(s.jobCtx, correlation.NewID()), j.id)
	slog.InfoContext(ctx, "Video job started")

	if err := s.tracker.Update(ctx, j.id, 0); err != nil {
		slog.WarnContext(ctx, "Job vanished before start", "error", err)
		return
	}

	onProgress := func(processed, total int) {
		if total > 0 {
			_ = s.tracker.Update(ctx, j.id, processed*100/total)
		}
	}

	output, err := s.pipeline.Process(ctx, j.sourcePath, j.targetPath, onProgress)
	if err != nil {
		slog.ErrorContext(ctx, "Video job failed", "error", err)
		_ = s.tracker.Fail(ctx, j.id, failureMessage(err))
		return
	}

	stream := s.pipeline.Rendition(ctx, output, domain.ProfileStreaming)
	result := domain.ResultLocations{
		Download: filepath.Base(output),
		Stream:   filepath.Base(stream),
	}
	_ = s.tracker.Complete(ctx, j.id, result)
	slog.InfoContext(ctx, "Video job completed", "download", result.Download, "stream", result.Stream)
}

// Stop stops accepting queued work and waits for in-flight jobs. When ctx
// ends first, in-flight jobs are cancelled and fail. Jobs still queued are
// marked failed.
func (s *Service) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		s.cancelJobs()
		<-done
		err = fmt.Errorf("job workers did not finish in time: %w", ctx.Err())
	}
	s.cancelJobs()

	for {
		select {
		case j := <-s.queue:
			_ = s.tracker.Fail(context.Background(), j.id, "Service stopped before processing")
		default:
			s.setQueueDepth()
			return err
		}
	}
}

func (s *Service) setQueueDepth() {
	if s.metrics != nil {
		s.metrics.QueueDepth.Set(float64(len(s.queue)))
	}
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoFaceDetected):
		return "No face detected in source image"
	case errors.Is(err, domain.ErrUnreadableImage):
		return "Could not read source image"
	case errors.Is(err, domain.ErrUnreadableVideo):
		return "Could not read target video"
	case errors.Is(err, domain.ErrEngineUnavailable):
		return "Face engine unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Processing cancelled"
	default:
		return "Video processing failed"
	}
}
