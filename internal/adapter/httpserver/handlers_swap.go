package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/faceswap/internal/app"
	apperrors "github.com/pscheid92/faceswap/internal/platform/errors"
)

type submitResponse struct {
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

func (s *Server) handleSwapVideo(c echo.Context) error {
	ctx := c.Request().Context()

	source, closeSource, err := formUpload(c, "source_img")
	if err != nil {
		return err
	}
	defer closeSource()

	target, closeTarget, err := formUpload(c, "target_video")
	if err != nil {
		return err
	}
	defer closeTarget()

	jobID, err := s.app.SubmitVideo(ctx, source, target)
	if err != nil {
		return domainError(err, "failed to submit video job")
	}

	if err := c.JSON(http.StatusAccepted, submitResponse{
		Status:  "pending",
		JobID:   jobID,
		Message: "Video processing started",
	}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleSwapFace(c echo.Context) error {
	ctx := c.Request().Context()

	source, closeSource, err := formUpload(c, "source_img")
	if err != nil {
		return err
	}
	defer closeSource()

	target, closeTarget, err := formUpload(c, "target_img")
	if err != nil {
		return err
	}
	defer closeTarget()

	opts, err := imageOptions(c)
	if err != nil {
		return err
	}

	targetImage, err := io.ReadAll(target.Body)
	if err != nil {
		return uploadError(err, "target_img")
	}

	out, err := s.app.SwapImage(ctx, source, targetImage, opts)
	if err != nil {
		return domainError(err, "face swap failed")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="face_swap_result.jpg"`)
	if err := c.Blob(http.StatusOK, "image/jpeg", out); err != nil {
		return fmt.Errorf("failed to send image response: %w", err)
	}
	return nil
}

// imageOptions reads the post-processing flags. Both default to true.
func imageOptions(c echo.Context) (app.ImageOptions, error) {
	enhance, err := formBool(c, "enhance_result", true)
	if err != nil {
		return app.ImageOptions{}, err
	}
	watermark, err := formBool(c, "add_watermark", true)
	if err != nil {
		return app.ImageOptions{}, err
	}
	return app.ImageOptions{Enhance: enhance, Watermark: watermark}, nil
}

func formBool(c echo.Context, field string, fallback bool) (bool, error) {
	raw := c.FormValue(field)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.ValidationError("form field must be a boolean").WithContext("field", field)
	}
	return v, nil
}

// formUpload opens a multipart file field. The returned func closes it.
func formUpload(c echo.Context, field string) (app.Upload, func(), error) {
	header, err := c.FormFile(field)
	if err != nil {
		return app.Upload{}, nil, uploadError(err, field)
	}

	f, err := header.Open()
	if err != nil {
		return app.Upload{}, nil, apperrors.InternalError("failed to open upload", err).WithContext("field", field)
	}
	return app.Upload{Name: header.Filename, Body: f}, func() { _ = f.Close() }, nil
}

func uploadError(err error, field string) *apperrors.Error {
	var maxBytes *http.MaxBytesError
	if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) || errors.As(err, &maxBytes) {
		return apperrors.TooLargeError("upload exceeds the size limit").WithContext("field", field)
	}
	return apperrors.ValidationError("missing or malformed file field").WithContext("field", field)
}
