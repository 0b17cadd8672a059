package httpserver

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/pscheid92/faceswap/internal/app"
	"github.com/pscheid92/faceswap/internal/domain"
	"github.com/pscheid92/faceswap/internal/platform/config"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockAppService struct {
	submitVideoFn    func(ctx context.Context, source, target app.Upload) (string, error)
	jobStatusFn      func(ctx context.Context, id string) (domain.JobStatus, error)
	swapImageFn      func(ctx context.Context, source app.Upload, target []byte, opts app.ImageOptions) ([]byte, error)
	resultPathFn     func(name string) (string, error)
	activeSessionsFn func() int
}

func (m *mockAppService) SubmitVideo(ctx context.Context, source, target app.Upload) (string, error) {
	if m.submitVideoFn != nil {
		return m.submitVideoFn(ctx, source, target)
	}
	return "job-1", nil
}

func (m *mockAppService) JobStatus(ctx context.Context, id string) (domain.JobStatus, error) {
	if m.jobStatusFn != nil {
		return m.jobStatusFn(ctx, id)
	}
	return domain.JobStatus{}, domain.ErrJobNotFound
}

func (m *mockAppService) SwapImage(ctx context.Context, source app.Upload, target []byte, opts app.ImageOptions) ([]byte, error) {
	if m.swapImageFn != nil {
		return m.swapImageFn(ctx, source, target, opts)
	}
	return target, nil
}

func (m *mockAppService) ResultPath(name string) (string, error) {
	if m.resultPathFn != nil {
		return m.resultPathFn(name)
	}
	return "", domain.ErrJobNotFound
}

func (m *mockAppService) ActiveSessions() int {
	if m.activeSessionsFn != nil {
		return m.activeSessionsFn()
	}
	return 0
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		AppURL:             "http://localhost:8080",
		RateLimitPerMinute: 600,
		MaxUploadBytes:     1 << 20,
	}
}

func newTestServer(t *testing.T, app appService, opts ...func(*config.Config, *Server)) *Server {
	t.Helper()

	cfg := testConfig()
	srv := &Server{config: cfg}
	for _, opt := range opts {
		opt(cfg, srv)
	}
	return NewServer(cfg, app, srv.liveHandler, srv.metricsHandler, srv.httpMetrics, srv.healthChecks)
}

func withHealthChecks(checks ...HealthCheck) func(*config.Config, *Server) {
	return func(_ *config.Config, s *Server) {
		s.healthChecks = checks
	}
}

func withLiveHandler(h http.Handler) func(*config.Config, *Server) {
	return func(_ *config.Config, s *Server) {
		s.liveHandler = h
	}
}

func withConfig(apply func(*config.Config)) func(*config.Config, *Server) {
	return func(cfg *config.Config, _ *Server) {
		apply(cfg)
	}
}

type formFile struct {
	field, name string
	content     []byte
}

func multipartBody(t *testing.T, files ...formFile) (io.Reader, string) {
	t.Helper()
	return multipartForm(t, nil, files...)
}

func multipartForm(t *testing.T, fields map[string]string, files ...formFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		require.NoError(t, w.WriteField(name, value))
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, filepath.Base(f.name))
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}
