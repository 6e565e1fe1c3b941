package httpapi

import (
	"net/http"
	"strings"

	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/fluxteam/orchestrator-core/internal/cache"
	"github.com/fluxteam/orchestrator-core/internal/config"
)

// RateLimitMiddleware creates middleware for rate limiting the observability
// surface. Health checks are always exempt so load balancers never see 429s.
func RateLimitMiddleware(limiter *cache.DistributedRateLimiter, cfg *config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			if path == "/health/live" || path == "/health/ready" {
				return next(c)
			}
			if limiter == nil {
				return next(c)
			}

			key := c.RealIP()
			if !limiter.Allow(c.Request().Context(), key, cfg.RateLimitRequests) {
				slog.Warn("rate limit exceeded", "path", path, "client_ip", key)
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// SecurityHeaders sets a conservative baseline of response headers.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response()
			res.Header().Set("X-Content-Type-Options", "nosniff")
			res.Header().Set("X-Frame-Options", "DENY")
			if strings.HasPrefix(c.Request().URL.Path, "/health") {
				res.Header().Set("Cache-Control", "no-store")
			}
			return next(c)
		}
	}
}
