package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/faceswap/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

// HealthCheck is a named health check function.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleStartup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), startupProbeTimeout)
	defer cancel()

	return s.runHealthChecks(ctx, c)
}

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := time.Since(s.startTime).Seconds()

	response := map[string]any{
		"status":          "ok",
		"uptime":          uptime,
		"active_sessions": s.app.ActiveSessions(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}

	return nil
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	return s.runHealthChecks(ctx, c)
}

type healthResponse struct {
	Status      string            `json:"status"`
	Checks      map[string]string `json:"checks,omitempty"`
	FailedCheck string            `json:"failed_check,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// runHealthChecks runs every check concurrently under ctx. The response lists
// each check's outcome; failed_check names the first failure in registration
// order.
func (s *Server) runHealthChecks(ctx context.Context, c echo.Context) error {
	errs := make([]error, len(s.healthChecks))
	var g errgroup.Group
	for i, hc := range s.healthChecks {
		g.Go(func() error {
			errs[i] = hc.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := healthResponse{Status: "ready"}
	if len(s.healthChecks) > 0 {
		resp.Checks = make(map[string]string, len(s.healthChecks))
	}
	for i, hc := range s.healthChecks {
		if errs[i] == nil {
			resp.Checks[hc.Name] = "ok"
			continue
		}
		resp.Checks[hc.Name] = errs[i].Error()
		if resp.FailedCheck == "" {
			resp.Status = "unhealthy"
			resp.FailedCheck = hc.Name
			resp.Error = errs[i].Error()
		}
	}

	status := http.StatusOK
	if resp.FailedCheck != "" {
		status = http.StatusServiceUnavailable
		slog.WarnContext(ctx, "Health check failed", "check", resp.FailedCheck, "error", resp.Error)
	}
	if err := c.JSON(status, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
