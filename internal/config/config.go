// Package config loads the orchestrator's process-wide typed configuration.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// SchemaVersion tracks the configuration schema version for migrations.
const SchemaVersion = "1.0"

// Config holds all application configuration. Every field the process reads
// is named here; there is no open map[string]any config surface.
type Config struct {
	SchemaVersion string `env:"CONFIG_SCHEMA_VERSION" envDefault:"1.0"`

	// Process
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Observability surface (health + metrics only, see internal/httpapi)
	HTTPPort           int           `env:"HTTP_PORT" envDefault:"8080"`
	HTTPEnabled        bool          `env:"HTTP_ENABLED" envDefault:"true"`
	HealthCheckTimeout time.Duration `env:"HEALTH_CHECK_TIMEOUT" envDefault:"3s"`

	// MCP tool server
	MCPPort        int           `env:"MCP_PORT" envDefault:"8090"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// Agent Pool defaults (C3)
	PoolInitialSize      int           `env:"POOL_INITIAL_SIZE" envDefault:"10"`
	PoolMinSize          int           `env:"POOL_MIN_SIZE" envDefault:"1"`
	PoolMaxSize          int           `env:"POOL_MAX_SIZE" envDefault:"100"`
	PoolAutoScale        bool          `env:"POOL_AUTO_SCALE" envDefault:"true"`
	PoolHealthInterval   time.Duration `env:"POOL_HEALTH_INTERVAL" envDefault:"30s"`
	PoolPerformanceFloor float64       `env:"POOL_PERFORMANCE_FLOOR" envDefault:"0.5"`

	// Team Orchestrator defaults (C4)
	TeamMinSize             int           `env:"TEAM_MIN_SIZE" envDefault:"1"`
	TeamMaxSize             int           `env:"TEAM_MAX_SIZE" envDefault:"12"`
	TeamMaxTeams            int           `env:"TEAM_MAX_TEAMS" envDefault:"50"`
	TeamLeaderThreshold     int           `env:"TEAM_LEADER_THRESHOLD" envDefault:"3"`
	TeamAutoDissolveIdle    time.Duration `env:"TEAM_AUTO_DISSOLVE_IDLE" envDefault:"1h"`
	TeamMonitorInterval     time.Duration `env:"TEAM_MONITOR_INTERVAL" envDefault:"15s"`
	TeamPerformingThreshold float64       `env:"TEAM_PERFORMING_THRESHOLD" envDefault:"0.7"`

	// Resource unit costs, applied per agent when a team reserves resources
	// from the Control Plane (spec.md §4.4).
	ResourceCoresPerAgent     float64 `env:"RESOURCE_CORES_PER_AGENT" envDefault:"0.5"`
	ResourceMemoryMBPerAgent  float64 `env:"RESOURCE_MEMORY_MB_PER_AGENT" envDefault:"512"`
	ResourceStorageMBPerAgent float64 `env:"RESOURCE_STORAGE_MB_PER_AGENT" envDefault:"1024"`
	ResourceBandwidthMbPerAgent float64 `env:"RESOURCE_BANDWIDTH_MB_PER_AGENT" envDefault:"10"`

	// Persistence roots (spec.md §6: each component owns a snapshot path)
	StateDir string `env:"STATE_DIR" envDefault:"./data"`

	// Postgres (optional mirror for Quality Gate history + Agile Metrics)
	DBEnabled         bool          `env:"DB_ENABLED" envDefault:"false"`
	DBHost            string        `env:"DB_HOST" envDefault:"localhost"`
	DBPort            int           `env:"DB_PORT" envDefault:"5432"`
	DBName            string        `env:"DB_NAME" envDefault:"orchestrator"`
	DBUser            string        `env:"DB_USER" envDefault:"orchestrator"`
	DBPassword        string        `env:"DB_PASSWORD"`
	DBSSLMode         string        `env:"DB_SSLMODE" envDefault:"require"`
	DBConnectTimeout  time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"10s"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"10m"`

	// Redis (optional; backs distributed sync primitives + rate limiting)
	RedisEnabled      bool          `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost         string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort         int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RedisUseTLS       bool          `env:"REDIS_USE_TLS" envDefault:"false"`
	RedisDB           int           `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	RedisMinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	RedisMaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	RedisDialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	RedisReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`

	// Circuit breaker tuning (wraps Control Plane + optional DB/Redis calls)
	BreakerMaxFailures  uint32        `env:"BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerInterval     time.Duration `env:"BREAKER_INTERVAL" envDefault:"60s"`
	BreakerTimeout      time.Duration `env:"BREAKER_TIMEOUT" envDefault:"30s"`

	// Rate limiting (observability surface only)
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"1000"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	// Workflow definition hot-reload
	WorkflowsDir       string `env:"WORKFLOWS_DIR" envDefault:"./workflows"`
	WorkflowsHotReload bool   `env:"WORKFLOWS_HOT_RELOAD" envDefault:"true"`

	// Performance Monitor ring buffer sizes (spec.md §4.10 / original_source)
	PerfGlobalBufferSize int `env:"PERF_GLOBAL_BUFFER_SIZE" envDefault:"10000"`
	PerfAgentBufferSize  int `env:"PERF_AGENT_BUFFER_SIZE" envDefault:"1000"`

	// Feature flags
	EnableAuditLogging bool `env:"ENABLE_AUDIT_LOGGING" envDefault:"true"`
	EnableCache        bool `env:"ENABLE_CACHE" envDefault:"true"`

	AuditBufferSize    int           `env:"AUDIT_BUFFER_SIZE" envDefault:"1000"`
	AuditFlushInterval time.Duration `env:"AUDIT_FLUSH_INTERVAL" envDefault:"5s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate performs cross-field configuration validation.
func (c *Config) Validate() error {
	if err := ValidateTimeout("SHUTDOWN_TIMEOUT", c.ShutdownTimeout, 1*time.Second, 5*time.Minute); err != nil {
		return err
	}
	if err := ValidateTimeout("REQUEST_TIMEOUT", c.RequestTimeout, 1*time.Second, 5*time.Minute); err != nil {
		return err
	}

	if c.PoolMinSize < 0 {
		return fmt.Errorf("POOL_MIN_SIZE must be non-negative, got %d", c.PoolMinSize)
	}
	if c.PoolMaxSize < c.PoolMinSize {
		return fmt.Errorf("POOL_MAX_SIZE (%d) cannot be less than POOL_MIN_SIZE (%d)", c.PoolMaxSize, c.PoolMinSize)
	}
	if c.PoolInitialSize < c.PoolMinSize || c.PoolInitialSize > c.PoolMaxSize {
		return fmt.Errorf("POOL_INITIAL_SIZE (%d) must be within [%d,%d]", c.PoolInitialSize, c.PoolMinSize, c.PoolMaxSize)
	}

	if c.TeamMinSize < 1 {
		return fmt.Errorf("TEAM_MIN_SIZE must be at least 1, got %d", c.TeamMinSize)
	}
	if c.TeamMaxSize < c.TeamMinSize {
		return fmt.Errorf("TEAM_MAX_SIZE (%d) cannot be less than TEAM_MIN_SIZE (%d)", c.TeamMaxSize, c.TeamMinSize)
	}

	if c.DBEnabled {
		if c.DBMaxOpenConns < 1 {
			return fmt.Errorf("DB_MAX_OPEN_CONNS must be at least 1, got %d", c.DBMaxOpenConns)
		}
		if c.DBMaxIdleConns > c.DBMaxOpenConns {
			return fmt.Errorf("DB_MAX_IDLE_CONNS (%d) cannot exceed DB_MAX_OPEN_CONNS (%d)", c.DBMaxIdleConns, c.DBMaxOpenConns)
		}
		validSSLModes := map[string]bool{"disable": true, "require": true, "prefer": true, "verify-ca": true, "verify-full": true}
		if !validSSLModes[c.DBSSLMode] {
			return fmt.Errorf("DB_SSLMODE must be one of: disable, require, prefer, verify-ca, verify-full, got %s", c.DBSSLMode)
		}
	}

	if c.RedisEnabled {
		if c.RedisPoolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be at least 1, got %d", c.RedisPoolSize)
		}
		if c.RedisMinIdleConns > c.RedisPoolSize {
			return fmt.Errorf("REDIS_MIN_IDLE_CONNS (%d) cannot exceed REDIS_POOL_SIZE (%d)", c.RedisMinIdleConns, c.RedisPoolSize)
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error, got %s", c.LogLevel)
	}

	if c.AuditBufferSize < 1 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be at least 1, got %d", c.AuditBufferSize)
	}

	return nil
}

// ValidateTimeout validates a timeout is within acceptable bounds.
func ValidateTimeout(name string, value, min, max time.Duration) error {
	if value < min {
		return fmt.Errorf("%s must be at least %v, got %v", name, min, value)
	}
	if value > max {
		return fmt.Errorf("%s must be at most %v, got %v", name, max, value)
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
		int(c.DBConnectTimeout.Seconds()))
}

// RedisAddr returns the Redis connection address.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Masked returns a copy of the config with sensitive values masked, safe to log.
func (c *Config) Masked() *Config {
	masked := *c
	masked.DBPassword = "***"
	masked.RedisPassword = "***"
	return &masked
}
