package httpapi

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fluxteam/orchestrator-core/internal/obslog"
)

// RequestLoggerConfig defines config for the RequestLogger middleware.
type RequestLoggerConfig struct {
	Skipper       func(c echo.Context) bool
	LogLevel      slog.Level
	LogLevelError slog.Level
}

// DefaultRequestLoggerConfig is the default request logger middleware config.
var DefaultRequestLoggerConfig = RequestLoggerConfig{
	Skipper: func(c echo.Context) bool {
		path := c.Request().URL.Path
		return path == "/health/live" || path == "/health/ready" || path == "/metrics"
	},
	LogLevel:      slog.LevelInfo,
	LogLevelError: slog.LevelError,
}

// RequestLogger returns a middleware that logs HTTP requests.
func RequestLogger() echo.MiddlewareFunc {
	return RequestLoggerWithConfig(DefaultRequestLoggerConfig)
}

// RequestLoggerWithConfig returns a RequestLogger middleware with config.
func RequestLoggerWithConfig(config RequestLoggerConfig) echo.MiddlewareFunc {
	if config.Skipper == nil {
		config.Skipper = DefaultRequestLoggerConfig.Skipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper(c) {
				return next(c)
			}

			req := c.Request()
			res := c.Response()

			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			correlationID := req.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = res.Header().Get(echo.HeaderXRequestID)
			}

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", c.Path()),
				slog.Int("status", res.Status),
				slog.Duration("duration", duration),
				slog.String("client_ip", c.RealIP()),
				slog.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				slog.String("correlation_id", correlationID),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}

			level := config.LogLevel
			if res.Status >= 400 {
				level = config.LogLevelError
			}

			logger := obslog.WithContext(req.Context(), slog.Default())
			r := slog.NewRecord(time.Now(), level, "http request", 0)
			r.AddAttrs(attrs...)
			_ = logger.Handler().Handle(req.Context(), r)

			return err
		}
	}
}

// CorrelationIDMiddleware extracts or generates a correlation ID.
func CorrelationIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()

			correlationID := req.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = res.Header().Get(echo.HeaderXRequestID)
			}
			res.Header().Set("X-Correlation-ID", correlationID)
			c.Set("correlation_id", correlationID)
			c.SetRequest(req.WithContext(obslog.WithCorrelationID(req.Context(), correlationID)))

			return next(c)
		}
	}
}

// OperationTimer returns a function to time operations, logging on call.
func OperationTimer(operation string) func() {
	start := time.Now()
	return func() {
		duration := time.Since(start)
		slog.Debug("operation completed", "operation", operation, "duration", duration)
	}
}
