// Package obsmetrics defines the process's Prometheus metric families and
// the echo middleware that records HTTP-level metrics for the
// observability surface.
package obsmetrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orchestrator"

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "http", Name: "requests_total", Help: "Total HTTP requests"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds", Help: "HTTP request latency", Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}},
		[]string{"method", "path", "status"},
	)
	HTTPPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "http", Name: "panics_total", Help: "Total recovered panics"},
		[]string{"path"},
	)
)

// MCP tool server metrics
var (
	MCPToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "mcp", Name: "tool_calls_total", Help: "Total MCP tool invocations"},
		[]string{"tool", "result"},
	)
	MCPToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Subsystem: "mcp", Name: "tool_duration_seconds", Help: "MCP tool call latency", Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5}},
		[]string{"tool"},
	)
	MCPSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Subsystem: "mcp", Name: "sessions_active", Help: "Active MCP sessions"},
	)
)

// Domain metrics — Agent Pool, Team Orchestrator, Handoff Protocol, Quality Gate
var (
	AgentsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Subsystem: "pool", Name: "agents_by_state", Help: "Agents currently in each lifecycle state"},
		[]string{"state"},
	)
	AllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "pool", Name: "allocations_total", Help: "Total agent allocation attempts"},
		[]string{"result"},
	)
	TeamsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Subsystem: "team", Name: "teams_by_state", Help: "Teams currently in each lifecycle state"},
		[]string{"state"},
	)
	HandoffsByStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "handoff", Name: "transitions_total", Help: "Handoff state transitions"},
		[]string{"status"},
	)
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "quality", Name: "gate_decisions_total", Help: "Quality gate decisions"},
		[]string{"decision"},
	)
	WorkflowStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "workflow", Name: "steps_total", Help: "Workflow step completions"},
		[]string{"status"},
	)
)

// Audit metrics
var (
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "audit", Name: "events_total", Help: "Total audit events"},
		[]string{"type", "severity"},
	)
	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "audit", Name: "events_dropped_total", Help: "Audit events dropped due to full buffer"},
	)
)

// Circuit breaker metrics
var (
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Subsystem: "circuitbreaker", Name: "state", Help: "0=closed 1=open 2=half-open"},
		[]string{"name"},
	)
	CircuitBreakerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "circuitbreaker", Name: "failures_total", Help: "Circuit breaker failures"},
		[]string{"name"},
	)
)

// Health metrics
var (
	HealthCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Subsystem: "health", Name: "check_duration_seconds", Help: "Health check latency", Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1}},
		[]string{"check"},
	)
	HealthCheckFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "health", Name: "check_failures_total", Help: "Health check failures"},
		[]string{"check"},
	)
)

// Cache metrics
var (
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "cache", Name: "hits_total", Help: "Cache hits"},
		[]string{"operation"},
	)
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "cache", Name: "misses_total", Help: "Cache misses"},
		[]string{"operation"},
	)
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "cache", Name: "errors_total", Help: "Cache errors"},
		[]string{"operation"},
	)
)

// Performance monitor metrics
var (
	PerfMetricsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "perf", Name: "metrics_recorded_total", Help: "Performance samples recorded"},
		[]string{"metric_type"},
	)
	PerfAlertsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Subsystem: "perf", Name: "alerts_active", Help: "Active performance alerts"},
		[]string{"severity"},
	)
	PerfAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "perf", Name: "alerts_total", Help: "Performance alerts raised"},
		[]string{"metric_type", "severity"},
	)
	PerfTasksTracked = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "perf", Name: "tasks_tracked_total", Help: "Tasks completed under tracking"},
		[]string{"status"},
	)
)

// Rate limit metrics
var RateLimitHits = promauto.NewCounterVec(
	prometheus.CounterOpts{Namespace: namespace, Subsystem: "ratelimit", Name: "hits_total", Help: "Rate limit enforcements"},
	[]string{"path"},
)

// PrometheusMiddleware returns echo middleware recording HTTP metrics.
func PrometheusMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start).Seconds()

			status := strconv.Itoa(c.Response().Status)
			path := c.Path()
			HTTPRequestsTotal.WithLabelValues(c.Request().Method, path, status).Inc()
			HTTPRequestDuration.WithLabelValues(c.Request().Method, path, status).Observe(duration)

			return err
		}
	}
}

// RecordPanic records a recovered HTTP handler panic.
func RecordPanic(path string) {
	HTTPPanicsTotal.WithLabelValues(path).Inc()
}

// RecordToolCall records an MCP tool invocation.
func RecordToolCall(tool, result string, duration time.Duration) {
	MCPToolCallsTotal.WithLabelValues(tool, result).Inc()
	MCPToolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordAuditEvent records an audit event by type and severity.
func RecordAuditEvent(eventType, severity string) {
	AuditEventsTotal.WithLabelValues(eventType, severity).Inc()
}

// RecordAuditDrop records a dropped audit event.
func RecordAuditDrop() {
	AuditEventsDropped.Inc()
}

// RecordCircuitBreakerState updates the circuit breaker state gauge.
func RecordCircuitBreakerState(name, state string) {
	var v float64
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(v)
}

// RecordCircuitBreakerFailure records a circuit breaker failure.
func RecordCircuitBreakerFailure(name string) {
	CircuitBreakerFailures.WithLabelValues(name).Inc()
}

// RecordHealthCheck records a health check observation.
func RecordHealthCheck(check string, duration time.Duration, failed bool) {
	HealthCheckDuration.WithLabelValues(check).Observe(duration.Seconds())
	if failed {
		HealthCheckFailures.WithLabelValues(check).Inc()
	}
}

// RecordCacheHit records a cache hit.
func RecordCacheHit(operation string) { CacheHits.WithLabelValues(operation).Inc() }

// RecordCacheMiss records a cache miss.
func RecordCacheMiss(operation string) { CacheMisses.WithLabelValues(operation).Inc() }

// RecordCacheError records a cache error.
func RecordCacheError(operation string) { CacheErrors.WithLabelValues(operation).Inc() }

// RecordAllocation records an agent allocation attempt outcome.
func RecordAllocation(result string) { AllocationsTotal.WithLabelValues(result).Inc() }

// RecordHandoffTransition records a handoff state transition.
func RecordHandoffTransition(status string) { HandoffsByStatus.WithLabelValues(status).Inc() }

// RecordGateDecision records a quality gate decision.
func RecordGateDecision(decision string) { GateDecisionsTotal.WithLabelValues(decision).Inc() }

// RecordWorkflowStep records a workflow step completion.
func RecordWorkflowStep(status string) { WorkflowStepsTotal.WithLabelValues(status).Inc() }

// SetAgentsByState replaces the agents-by-state gauge snapshot.
func SetAgentsByState(counts map[string]int) {
	for state, n := range counts {
		AgentsByState.WithLabelValues(state).Set(float64(n))
	}
}

// SetTeamsByState replaces the teams-by-state gauge snapshot.
func SetTeamsByState(counts map[string]int) {
	for state, n := range counts {
		TeamsByState.WithLabelValues(state).Set(float64(n))
	}
}

// IncrementActiveSessions increments the active MCP session gauge.
func IncrementActiveSessions() { MCPSessionsActive.Inc() }

// DecrementActiveSessions decrements the active MCP session gauge.
func DecrementActiveSessions() { MCPSessionsActive.Dec() }
