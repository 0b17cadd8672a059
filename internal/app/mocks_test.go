package app

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/pscheid92/faceswap/internal/domain"
	"github.com/pscheid92/faceswap/internal/pipeline"
)

// --- Mock implementations ---

type mockFileStore struct {
	mu      sync.Mutex
	saved   map[string][]byte
	counter int

	removed []string

	saveUploadFn      func(ctx context.Context, r io.Reader, originalName string) (string, error)
	afterSaveFn       func(path string)
	removeOlderThanFn func(ctx context.Context, cutoff time.Time) (int, error)
}

func (m *mockFileStore) SaveUpload(ctx context.Context, r io.Reader, originalName string) (string, error) {
	if m.saveUploadFn != nil {
		return m.saveUploadFn(ctx, r, originalName)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.counter++
	path := filepath.Join("uploads", string(rune('a'+m.counter-1))+filepath.Ext(originalName))
	m.saved[path] = data
	if m.afterSaveFn != nil {
		m.afterSaveFn(path)
	}
	return path, nil
}

func (m *mockFileStore) RemoveUpload(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, path)
	m.removed = append(m.removed, path)
	return nil
}

func (m *mockFileStore) stored() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func (m *mockFileStore) ResultPath(name string) (string, error) {
	return filepath.Join("results", name), nil
}

func (m *mockFileStore) RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if m.removeOlderThanFn != nil {
		return m.removeOlderThanFn(ctx, cutoff)
	}
	return 0, nil
}

type mockPipeline struct {
	processFn   func(ctx context.Context, sourceKey, targetPath string, onProgress pipeline.ProgressFunc) (string, error)
	renditionFn func(ctx context.Context, path string, profile domain.TranscodeProfile) string
	swapImageFn func(ctx context.Context, sourceKey string, target []byte) ([]byte, error)
}

func (m *mockPipeline) Process(ctx context.Context, sourceKey, targetPath string, onProgress pipeline.ProgressFunc) (string, error) {
	if m.processFn != nil {
		return m.processFn(ctx, sourceKey, targetPath, onProgress)
	}
	return "results/swapped_1_compatibility.mp4", nil
}

func (m *mockPipeline) Rendition(ctx context.Context, path string, profile domain.TranscodeProfile) string {
	if m.renditionFn != nil {
		return m.renditionFn(ctx, path, profile)
	}
	return "results/swapped_1_compatibility_" + string(profile) + ".mp4"
}

func (m *mockPipeline) SwapImage(ctx context.Context, sourceKey string, target []byte) ([]byte, error) {
	if m.swapImageFn != nil {
		return m.swapImageFn(ctx, sourceKey, target)
	}
	return target, nil
}

type mockEnhancer struct {
	calls     int
	enhanceFn func(ctx context.Context, image []byte) ([]byte, error)
}

func (m *mockEnhancer) Enhance(ctx context.Context, image []byte) ([]byte, error) {
	m.calls++
	if m.enhanceFn != nil {
		return m.enhanceFn(ctx, image)
	}
	return image, nil
}

type fixedCounter int

func (c fixedCounter) ActiveCount() int { return int(c) }

type mockStatusSource struct {
	calls    int
	statusFn func(ctx context.Context, jobID string) (domain.JobStatus, error)
}

func (m *mockStatusSource) JobStatus(ctx context.Context, jobID string) (domain.JobStatus, error) {
	m.calls++
	if m.statusFn != nil {
		return m.statusFn(ctx, jobID)
	}
	return domain.JobStatus{}, domain.ErrJobNotFound
}

type mockArchive struct {
	mockStatusSource
	mu      sync.Mutex
	cutoffs []time.Time
}

func (m *mockArchive) SaveJob(context.Context, domain.JobStatus) error { return nil }

func (m *mockArchive) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	return 3, nil
}

type progressObserver struct {
	mu       sync.Mutex
	progress []int
}

func (o *progressObserver) JobChanged(_ context.Context, status domain.JobStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if status.State == domain.JobProcessing {
		o.progress = append(o.progress, status.Progress)
	}
}

func (o *progressObserver) values() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.progress...)
}
