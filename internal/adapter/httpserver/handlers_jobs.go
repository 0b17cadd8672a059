package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/faceswap/internal/domain"
	apperrors "github.com/pscheid92/faceswap/internal/platform/errors"
)

const videoContentType = "video/mp4"

type jobResult struct {
	DownloadURL  string `json:"download_url"`
	StreamingURL string `json:"streaming_url"`
}

type jobStatusResponse struct {
	JobID      string          `json:"job_id"`
	Status     domain.JobState `json:"status"`
	Progress   int             `json:"progress"`
	Result     *jobResult      `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartTime  *float64        `json:"start_time,omitempty"`
	FinishTime *float64        `json:"finish_time,omitempty"`
}

func newJobStatusResponse(status domain.JobStatus) jobStatusResponse {
	resp := jobStatusResponse{
		JobID:      status.ID,
		Status:     status.State,
		Progress:   status.Progress,
		Error:      status.Error,
		StartTime:  unixSeconds(status.StartedAt),
		FinishTime: unixSeconds(status.FinishedAt),
	}
	if status.Result != nil {
		resp.Result = &jobResult{
			DownloadURL:  apiPrefix + "/results/" + status.Result.Download,
			StreamingURL: apiPrefix + "/results/stream/" + status.Result.Stream,
		}
	}
	return resp
}

func unixSeconds(t time.Time) *float64 {
	if t.IsZero() {
		return nil
	}
	v := float64(t.UnixNano()) / float64(time.Second)
	return &v
}

func (s *Server) handleJobStatus(c echo.Context) error {
	jobID := c.Param("job_id")

	status, err := s.app.JobStatus(c.Request().Context(), jobID)
	if err != nil {
		return domainError(err, "failed to load job status").WithContext("job_id", jobID)
	}

	if err := c.JSON(http.StatusOK, newJobStatusResponse(status)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleDownloadResult(c echo.Context) error {
	name := c.Param("result_id")
	path, err := s.app.ResultPath(name)
	if err != nil {
		return apperrors.NotFoundError("result not found").WithContext("result_id", name)
	}

	c.Response().Header().Set(echo.HeaderContentType, videoContentType)
	return c.Attachment(path, "deepfake_"+name)
}

// handleStreamResult serves the result inline; http.ServeContent underneath
// answers Range requests with 206 partial content.
func (s *Server) handleStreamResult(c echo.Context) error {
	name := c.Param("result_id")
	path, err := s.app.ResultPath(name)
	if err != nil {
		return apperrors.NotFoundError("result not found").WithContext("result_id", name)
	}

	c.Response().Header().Set(echo.HeaderContentType, videoContentType)
	return c.Inline(path, name)
}

func (s *Server) handleActiveSessions(c echo.Context) error {
	if err := c.JSON(http.StatusOK, map[string]int{"active_sessions": s.app.ActiveSessions()}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
