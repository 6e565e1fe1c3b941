// Package circuitbreaker wraps calls to external collaborators (the
// Control Plane's resource allocator and policy gate, plus the optional
// Postgres/Redis backends) so the core degrades rather than hangs.
package circuitbreaker

import (
	"github.com/sony/gobreaker"

	"github.com/fluxteam/orchestrator-core/internal/config"
)

// Manager holds circuit breakers configured from application config.
type Manager struct {
	ControlPlaneBreaker *gobreaker.CircuitBreaker
	DBBreaker           *gobreaker.CircuitBreaker
	RedisBreaker        *gobreaker.CircuitBreaker
}

// NewManager builds the set of breakers used across the process.
func NewManager(cfg *config.Config) *Manager {
	readyToTrip := func(counts gobreaker.Counts) bool {
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.Requests >= cfg.BreakerMaxFailures && failureRatio >= 0.6
	}

	return &Manager{
		ControlPlaneBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "control-plane",
			MaxRequests: 3,
			Interval:    cfg.BreakerInterval,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: readyToTrip,
		}),
		DBBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "database",
			MaxRequests: 3,
			Interval:    cfg.BreakerInterval,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: readyToTrip,
		}),
		RedisBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "redis",
			MaxRequests: 3,
			Interval:    cfg.BreakerInterval,
			Timeout:     cfg.BreakerTimeout / 6,
			ReadyToTrip: readyToTrip,
		}),
	}
}

// State returns a human-readable circuit breaker state.
func State(breaker *gobreaker.CircuitBreaker) string {
	switch breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
