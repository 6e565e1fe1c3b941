// Package httpapi exposes the process's observability surface: liveness,
// readiness, and Prometheus metrics. It deliberately does not expose a
// CRUD surface over documents, teams, or handoffs — that job belongs to
// internal/mcpserver and cmd/teamctl.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fluxteam/orchestrator-core/internal/cache"
	"github.com/fluxteam/orchestrator-core/internal/config"
	"github.com/fluxteam/orchestrator-core/internal/database"
	"github.com/fluxteam/orchestrator-core/internal/obsmetrics"
)

// Server wraps an Echo instance serving health and metrics endpoints.
type Server struct {
	echo    *echo.Echo
	cfg     *config.Config
	db      *database.DB
	cache   *cache.Client
	version string
}

// NewServer creates a new observability server. db and cache may be nil
// when their backends are disabled; readiness then only checks the
// components actually wired in.
func NewServer(cfg *config.Config, db *database.DB, cch *cache.Client, version string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, cfg: cfg, db: db, cache: cch, version: version}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.RequestID())
	s.echo.Use(CorrelationIDMiddleware())
	s.echo.Use(s.panicRecovery())
	s.echo.Use(obsmetrics.PrometheusMiddleware())
	s.echo.Use(RequestLogger())
	s.echo.Use(SecurityHeaders())

	if s.cfg.EnableCache && s.cache != nil {
		limiter := s.cache.NewDistributedLimiter()
		s.echo.Use(RateLimitMiddleware(limiter, s.cfg))
	}

	s.echo.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: s.cfg.RequestTimeout,
	}))
	s.echo.Use(middleware.BodyLimit("1M"))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health/live", s.healthLive)
	s.echo.GET("/health/ready", s.healthReady)
	s.echo.GET("/version", s.versionInfo)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Start starts the server, blocking until it stops.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) panicRecovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					err, ok := r.(error)
					if !ok {
						err = echo.NewHTTPError(http.StatusInternalServerError, r)
					}
					obsmetrics.RecordPanic(c.Path())
					slog.Error("panic recovered",
						"error", err,
						"path", c.Path(),
						"correlation_id", c.Get("correlation_id"),
						"stack", string(debug.Stack()),
					)
					c.Error(err)
				}
			}()
			return next(c)
		}
	}
}

func (s *Server) versionInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"version":   s.version,
		"service":   "orchestrator-core",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) healthLive(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "alive",
		"version":   s.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) healthReady(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.cfg.HealthCheckTimeout)
	defer cancel()

	if s.cfg.DBEnabled && s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			slog.Error("readiness check failed: database", "error", err)
			return RespondWithError(c, ErrServiceUnavailable)
		}
	}
	if s.cfg.RedisEnabled && s.cache != nil {
		if err := s.cache.HealthCheck(ctx); err != nil {
			slog.Error("readiness check failed: cache", "error", err)
			return RespondWithError(c, ErrServiceUnavailable)
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ready",
		"version":   s.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
