package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/faceswap/internal/domain"
	"github.com/pscheid92/faceswap/internal/platform/correlation"
	apperrors "github.com/pscheid92/faceswap/internal/platform/errors"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := correlation.WithID(c.Request().Context(), correlation.NewID())
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// ErrorHandlingMiddleware renders every handler error as an
// apperrors.ErrorResponse, including echo's own HTTP errors.
func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}
			if c.Response().Committed {
				logError(c, apperrors.AsStructuredError(err))
				return nil
			}

			var structuredErr *apperrors.Error
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				structuredErr = WrapHTTPError(httpErr)
			} else {
				structuredErr = apperrors.AsStructuredError(err)
			}
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeTooLarge, apperrors.TypeUnprocessable, apperrors.TypeRateLimited:
		slog.InfoContext(ctx, "Rejected request", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeUnavailable:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.WarnContext(ctx, "Service unavailable", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

// domainError maps core sentinels to structured errors. fallback describes
// the operation for errors no sentinel covers.
func domainError(err error, fallback string) *apperrors.Error {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		return apperrors.NotFoundError("job not found")
	case errors.Is(err, domain.ErrNoFaceDetected):
		return apperrors.UnprocessableError("no face detected", err)
	case errors.Is(err, domain.ErrUnreadableImage):
		return apperrors.ValidationError("could not decode image")
	case errors.Is(err, domain.ErrUnreadableVideo):
		return apperrors.ValidationError("could not read video")
	case errors.Is(err, domain.ErrQueueFull):
		return apperrors.UnavailableError("too many pending jobs, try again later", err)
	case errors.Is(err, domain.ErrEngineUnavailable):
		return apperrors.UnavailableError("face engine unavailable", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.ExternalError("face engine timed out", err)
	default:
		return apperrors.InternalError(fallback, err)
	}
}

func WrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}

	var errType apperrors.ErrorType
	switch httpErr.Code {
	case http.StatusBadRequest:
		errType = apperrors.TypeValidation
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		errType = apperrors.TypeNotFound
	case http.StatusRequestEntityTooLarge:
		errType = apperrors.TypeTooLarge
	case http.StatusTooManyRequests:
		errType = apperrors.TypeRateLimited
	case http.StatusServiceUnavailable:
		errType = apperrors.TypeUnavailable
	case http.StatusBadGateway:
		errType = apperrors.TypeExternal
	default:
		errType = apperrors.TypeInternal
	}

	err := &apperrors.Error{
		Type:    errType,
		Message: message,
		Context: make(map[string]any),
	}

	if httpErr.Internal != nil {
		err.Cause = httpErr.Internal
	}

	return err
}
