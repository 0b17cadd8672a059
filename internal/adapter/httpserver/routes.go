package httpserver

import (
	"log/slog"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const apiPrefix = "/api/v1"

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(ErrorHandlingMiddleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            63072000, // 2 years; only sent over HTTPS
		ContentSecurityPolicy: "default-src 'none'; media-src 'self'; frame-ancestors 'none'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{s.config.AppURL},
		AllowMethods: []string{"GET", "POST"},
	}))

	s.registerHealthRoutes()
	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}
	s.registerAPIRoutes()
}

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group(apiPrefix)

	limiter := newRateLimiter(s.config.RateLimitPerMinute)
	bodyLimit := middleware.BodyLimit(strconv.FormatInt(s.config.MaxUploadBytes, 10))

	api.POST("/swap/video", s.handleSwapVideo, limiter, bodyLimit)
	api.POST("/swap/face", s.handleSwapFace, limiter, bodyLimit)

	api.GET("/status/active-sessions", s.handleActiveSessions)
	api.GET("/status/:job_id", s.handleJobStatus)

	api.GET("/results/stream/:result_id", s.handleStreamResult)
	api.GET("/results/:result_id", s.handleDownloadResult)

	if s.liveHandler != nil {
		api.GET("/process/live", echo.WrapHandler(s.liveHandler))
	}
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
