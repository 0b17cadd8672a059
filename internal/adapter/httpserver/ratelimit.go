package httpserver

import (
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/faceswap/internal/platform/errors"
	"golang.org/x/time/rate"
)

// Idle per-IP limiters are dropped after this long.
const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter allows perMinute swap requests per client IP, refilled
// evenly over the minute. A full minute's quota may be spent as a burst.
func newRateLimiter(perMinute int) echo.MiddlewareFunc {
	limit := rate.Limit(float64(perMinute) / 60)
	retryAfter := strconv.Itoa(int(math.Ceil(60 / float64(perMinute))))

	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      limit,
			Burst:     perMinute,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		ErrorHandler: func(_ echo.Context, err error) error {
			return apperrors.ValidationError("could not identify client").WithContext("cause", err.Error())
		},
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			c.Response().Header().Set("Retry-After", retryAfter)
			return apperrors.RateLimitedError("rate limit exceeded").
				WithContext("limit_per_minute", perMinute).
				WithContext("client", identifier)
		},
	})
}
