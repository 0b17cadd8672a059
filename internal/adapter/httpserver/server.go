package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/faceswap/internal/adapter/metrics"
	"github.com/pscheid92/faceswap/internal/app"
	"github.com/pscheid92/faceswap/internal/domain"
	"github.com/pscheid92/faceswap/internal/platform/config"
)

type appService interface {
	SubmitVideo(ctx context.Context, source, target app.Upload) (string, error)
	JobStatus(ctx context.Context, id string) (domain.JobStatus, error)
	SwapImage(ctx context.Context, source app.Upload, target []byte, opts app.ImageOptions) ([]byte, error)
	ResultPath(name string) (string, error)
	ActiveSessions() int
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app appService

	liveHandler    http.Handler
	metricsHandler http.Handler
	httpMetrics    *metrics.HTTPMetrics

	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer wires routes. metricsHandler and httpMetrics may be nil.
func NewServer(cfg *config.Config, app appService, liveHandler, metricsHandler http.Handler, httpMetrics *metrics.HTTPMetrics, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		config:         cfg,
		app:            app,
		liveHandler:    liveHandler,
		metricsHandler: metricsHandler,
		httpMetrics:    httpMetrics,
		healthChecks:   healthChecks,
		startTime:      time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the router for tests and embedding.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
