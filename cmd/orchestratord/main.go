// Command orchestratord is the long-running process that fronts the
// orchestration core over MCP, alongside its health/metrics surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxteam/orchestrator-core/internal/app"
	"github.com/fluxteam/orchestrator-core/internal/cache"
	"github.com/fluxteam/orchestrator-core/internal/config"
	"github.com/fluxteam/orchestrator-core/internal/database"
	"github.com/fluxteam/orchestrator-core/internal/httpapi"
	"github.com/fluxteam/orchestrator-core/internal/mcpserver"
	"github.com/fluxteam/orchestrator-core/internal/obslog"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(obslog.New(cfg.LogLevel))

	slog.Info("starting orchestrator-core",
		"version", version, "build_time", buildTime, "git_commit", gitCommit,
		"config_schema", cfg.SchemaVersion,
	)

	var db *database.DB
	if cfg.DBEnabled {
		db, err = database.New(cfg)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	var cch *cache.Client
	if cfg.RedisEnabled {
		cch, err = cache.New(cfg)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer cch.Close()
	}

	orchestrator := app.New(cfg, db, cch)
	defer orchestrator.Shutdown(context.Background())

	mcpSrv := mcpserver.New(cfg, orchestrator)

	var obsSrv *httpapi.Server
	if cfg.HTTPEnabled {
		obsSrv = httpapi.NewServer(cfg, db, cch, version)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if obsSrv != nil {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("observability server goroutine panicked", "panic", r)
					cancel()
				}
			}()
			addr := fmt.Sprintf("0.0.0.0:%d", cfg.HTTPPort)
			slog.Info("starting observability server", "addr", addr)
			if err := obsSrv.Start(addr); err != nil && err != http.ErrServerClosed {
				slog.Error("observability server error", "error", err)
				cancel()
			}
		}()
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("MCP server goroutine panicked", "panic", r)
				cancel()
			}
		}()
		addr := fmt.Sprintf("0.0.0.0:%d", cfg.MCPPort)
		slog.Info("starting MCP server", "addr", addr)
		if err := mcpSrv.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("MCP server error", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("context cancelled")
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}

	slog.Info("initiating graceful shutdown", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if obsSrv != nil {
		if err := obsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("observability server shutdown error", "error", err)
		}
	}
	if err := mcpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("MCP server shutdown error", "error", err)
	}

	slog.Info("orchestrator-core stopped gracefully")
}
