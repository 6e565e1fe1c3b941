// Package perf implements the Performance Monitor component (C10):
// ring-buffered metric series, task lifecycle tracking, system resource
// sampling, and a threshold-driven alert engine.
package perf

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/obsmetrics"
	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

const (
	globalSeriesCapacity = 10000
	agentSeriesCapacity  = 1000
	statsCacheTTL        = 10 * time.Second
)

// AlertCallback is invoked whenever a new alert is raised. Callback
// errors are logged and otherwise ignored, the same as
// performance_monitor.py's alert_callback try/except.
type AlertCallback func(models.PerformanceAlert)

// Monitor is the performance tracking and alerting system for one
// orchestrator instance, grounded on
// original_source/metrics/performance_monitor.py's PerformanceMonitor.
type Monitor struct {
	mu sync.Mutex

	retention time.Duration
	onAlert   AlertCallback

	global map[models.PerfMetricType]*ringBuffer[models.PerformanceMetric]
	agent  map[string]map[models.PerfMetricType]*ringBuffer[models.PerformanceMetric]

	activeTasks   map[string]*models.PerfTaskPerformance
	completed     *ringBuffer[models.PerfTaskPerformance]

	thresholds     []models.PerformanceThreshold
	activeAlerts   map[string]*models.PerformanceAlert
	alertHistory   *ringBuffer[models.PerformanceAlert]
	breachCounters map[string]int

	systemHistory *ringBuffer[models.SystemMetrics]

	statsCache map[string]cachedStats
}

type cachedStats struct {
	stats   models.PerfStatistics
	cachedAt time.Time
}

// New builds a Monitor with retentionHours of history and the default
// threshold set (response time, task duration, CPU/memory usage, task
// failure rate, error rate — the same six
// performance_monitor.py._initialize_thresholds ships with).
func New(retentionHours int, onAlert AlertCallback) *Monitor {
	if retentionHours <= 0 {
		retentionHours = 24
	}
	return &Monitor{
		retention:      time.Duration(retentionHours) * time.Hour,
		onAlert:        onAlert,
		global:         make(map[models.PerfMetricType]*ringBuffer[models.PerformanceMetric]),
		agent:          make(map[string]map[models.PerfMetricType]*ringBuffer[models.PerformanceMetric]),
		activeTasks:    make(map[string]*models.PerfTaskPerformance),
		completed:      newRingBuffer[models.PerfTaskPerformance](globalSeriesCapacity),
		thresholds:     defaultThresholds(),
		activeAlerts:   make(map[string]*models.PerformanceAlert),
		alertHistory:   newRingBuffer[models.PerformanceAlert](1000),
		breachCounters: make(map[string]int),
		systemHistory:  newRingBuffer[models.SystemMetrics](globalSeriesCapacity),
		statsCache:     make(map[string]cachedStats),
	}
}

func defaultThresholds() []models.PerformanceThreshold {
	return []models.PerformanceThreshold{
		{MetricType: models.PerfResponseTime, WarningThreshold: 1000, CriticalThreshold: 5000, DurationSeconds: 60, ConsecutiveBreaches: 3},
		{MetricType: models.PerfTaskDuration, WarningThreshold: 30000, CriticalThreshold: 120000, DurationSeconds: 300, ConsecutiveBreaches: 3},
		{MetricType: models.PerfCPUUsage, WarningThreshold: 80, CriticalThreshold: 95, DurationSeconds: 60, ConsecutiveBreaches: 3},
		{MetricType: models.PerfMemoryUsage, WarningThreshold: 85, CriticalThreshold: 95, DurationSeconds: 60, ConsecutiveBreaches: 3},
		{MetricType: models.PerfTaskFailureRate, WarningThreshold: 10, CriticalThreshold: 25, DurationSeconds: 300, ConsecutiveBreaches: 3},
		{MetricType: models.PerfErrorRate, WarningThreshold: 10, CriticalThreshold: 50, DurationSeconds: 60, ConsecutiveBreaches: 3},
	}
}

// SetThresholds replaces the default threshold set.
func (m *Monitor) SetThresholds(thresholds []models.PerformanceThreshold) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = thresholds
}

// RecordMetric appends a sample to the global series and, if agentID is
// set, to that agent's series too, invalidating the cached statistics
// for both.
func (m *Monitor) RecordMetric(metricType models.PerfMetricType, value float64, agentID, taskID string, metadata map[string]any) {
	metric := models.PerformanceMetric{
		MetricType: metricType,
		Value:      value,
		Timestamp:  time.Now().UTC(),
		AgentID:    agentID,
		TaskID:     taskID,
		Metadata:   metadata,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.global[metricType] == nil {
		m.global[metricType] = newRingBuffer[models.PerformanceMetric](globalSeriesCapacity)
	}
	m.global[metricType].push(metric)

	if agentID != "" {
		if m.agent[agentID] == nil {
			m.agent[agentID] = make(map[models.PerfMetricType]*ringBuffer[models.PerformanceMetric])
		}
		if m.agent[agentID][metricType] == nil {
			m.agent[agentID][metricType] = newRingBuffer[models.PerformanceMetric](agentSeriesCapacity)
		}
		m.agent[agentID][metricType].push(metric)
	}

	obsmetrics.PerfMetricsRecorded.WithLabelValues(string(metricType)).Inc()
	delete(m.statsCache, cacheKey(metricType, agentID, 0))
	delete(m.statsCache, cacheKey(metricType, "", 0))
}

// StartTask begins tracking a task's execution.
func (m *Monitor) StartTask(taskID, agentID, taskType string, metadata map[string]any) *models.PerfTaskPerformance {
	task := &models.PerfTaskPerformance{
		TaskID:    taskID,
		AgentID:   agentID,
		TaskType:  taskType,
		StartTime: time.Now().UTC(),
		Status:    models.PerfTaskStarted,
		Metadata:  metadata,
	}
	m.mu.Lock()
	m.activeTasks[taskID] = task
	m.mu.Unlock()
	return task
}

// EndTask completes a tracked task, recording its duration as both a
// task-duration and response-time sample. A task not currently tracked
// is a no-op, logged at warn level (same behavior as end_task on a
// missing task_id).
func (m *Monitor) EndTask(taskID string, status models.PerfTaskStatus, metadata map[string]any) {
	m.mu.Lock()
	task, ok := m.activeTasks[taskID]
	if !ok {
		m.mu.Unlock()
		slog.Default().Warn("performance monitor: task not found in active tasks", "task_id", taskID)
		return
	}
	delete(m.activeTasks, taskID)

	now := time.Now().UTC()
	task.EndTime = &now
	task.Status = status
	task.DurationMS = now.Sub(task.StartTime).Seconds() * 1000
	for k, v := range metadata {
		if task.Metadata == nil {
			task.Metadata = make(map[string]any)
		}
		task.Metadata[k] = v
	}
	m.completed.push(*task)
	m.mu.Unlock()

	m.RecordMetric(models.PerfTaskDuration, task.DurationMS, task.AgentID, taskID, nil)
	m.RecordMetric(models.PerfResponseTime, task.DurationMS, task.AgentID, "", nil)
	obsmetrics.PerfTasksTracked.WithLabelValues(string(status)).Inc()
}

// RecordSystemMetrics appends one system resource snapshot and records
// its CPU/memory readings as individual metric samples, mirroring
// _collect_system_metrics.
func (m *Monitor) RecordSystemMetrics(snapshot models.SystemMetrics) {
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now().UTC()
	}
	m.mu.Lock()
	m.systemHistory.push(snapshot)
	m.mu.Unlock()

	m.RecordMetric(models.PerfCPUUsage, snapshot.CPUPercent, "", "", nil)
	m.RecordMetric(models.PerfMemoryUsage, snapshot.MemoryPercent, "", "", nil)
}

// CheckThresholds evaluates every configured threshold against its
// recent window average and raises alerts, mirroring _check_thresholds:
// a critical breach alerts immediately, a warning breach requires
// consecutive_breaches consecutive ticks before alerting (debounced),
// and any tick below warning resets that metric's breach counter.
func (m *Monitor) CheckThresholds() {
	m.mu.Lock()
	thresholds := append([]models.PerformanceThreshold(nil), m.thresholds...)
	m.mu.Unlock()

	for _, threshold := range thresholds {
		recent := m.recentMetrics(threshold.MetricType, time.Duration(threshold.DurationSeconds)*time.Second)
		if len(recent) == 0 {
			continue
		}
		values := make([]float64, len(recent))
		for i, s := range recent {
			values[i] = s.Value
		}
		avg, _ := stats.Mean(stats.Float64Data(values))

		breachKey := string(threshold.MetricType) + "_warning"
		switch {
		case avg >= threshold.CriticalThreshold:
			m.generateAlert(models.AlertCritical, threshold.MetricType, avg, threshold.CriticalThreshold)
			m.mu.Lock()
			m.breachCounters[breachKey] = 0
			m.mu.Unlock()

		case avg >= threshold.WarningThreshold:
			m.mu.Lock()
			m.breachCounters[breachKey]++
			breaches := m.breachCounters[breachKey]
			m.mu.Unlock()
			if breaches >= threshold.ConsecutiveBreaches {
				m.generateAlert(models.AlertWarning, threshold.MetricType, avg, threshold.WarningThreshold)
				m.mu.Lock()
				m.breachCounters[breachKey] = 0
				m.mu.Unlock()
			}

		default:
			m.mu.Lock()
			m.breachCounters[breachKey] = 0
			m.mu.Unlock()
		}
	}
}

func (m *Monitor) generateAlert(severity models.AlertSeverity, metricType models.PerfMetricType, current, threshold float64) {
	m.mu.Lock()
	for _, existing := range m.activeAlerts {
		if existing.MetricType == metricType && existing.Severity == severity && !existing.Resolved {
			m.mu.Unlock()
			return
		}
	}

	alert := models.PerformanceAlert{
		AlertID:        fmt.Sprintf("%s_%s_%d", metricType, severity, time.Now().UTC().UnixNano()),
		Severity:       severity,
		MetricType:     metricType,
		Message:        formatAlertMessage(severity, metricType, current, threshold),
		CurrentValue:   current,
		ThresholdValue: threshold,
		Timestamp:      time.Now().UTC(),
	}
	m.activeAlerts[alert.AlertID] = &alert
	m.alertHistory.push(alert)
	activeBySeverity := make(map[models.AlertSeverity]int)
	for _, a := range m.activeAlerts {
		activeBySeverity[a.Severity]++
	}
	m.mu.Unlock()

	obsmetrics.PerfAlertsTotal.WithLabelValues(string(metricType), string(severity)).Inc()
	for sev, count := range activeBySeverity {
		obsmetrics.PerfAlertsActive.WithLabelValues(string(sev)).Set(float64(count))
	}

	slog.Default().Warn("performance alert", "message", alert.Message, "severity", severity, "metric_type", metricType)

	if m.onAlert != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Default().Error("performance alert callback panicked", "error", r)
				}
			}()
			m.onAlert(alert)
		}()
	}
}

var percentUnitMetrics = map[models.PerfMetricType]bool{
	models.PerfCPUUsage:        true,
	models.PerfMemoryUsage:     true,
	models.PerfTaskSuccessRate: true,
	models.PerfTaskFailureRate: true,
}

var msUnitMetrics = map[models.PerfMetricType]bool{
	models.PerfResponseTime: true,
	models.PerfTaskDuration: true,
}

func formatAlertMessage(severity models.AlertSeverity, metricType models.PerfMetricType, current, threshold float64) string {
	name := strings.ReplaceAll(string(metricType), "_", " ")
	words := strings.Fields(name)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	name = strings.Join(words, " ")

	var unit string
	switch {
	case percentUnitMetrics[metricType]:
		unit = "%"
	case msUnitMetrics[metricType]:
		unit = "ms"
	}

	return fmt.Sprintf("%s: %s (%.2f%s) exceeded threshold (%.2f%s)",
		strings.ToUpper(string(severity)), name, current, unit, threshold, unit)
}

// AcknowledgeAlert marks an active alert as acknowledged.
func (m *Monitor) AcknowledgeAlert(alertID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.activeAlerts[alertID]
	if !ok {
		return orcherr.NotFoundf("alert %s not found", alertID)
	}
	alert.Acknowledged = true
	return nil
}

// ResolveAlert removes an alert from the active set and marks it
// resolved in history.
func (m *Monitor) ResolveAlert(alertID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.activeAlerts[alertID]
	if !ok {
		return orcherr.NotFoundf("alert %s not found", alertID)
	}
	alert.Resolved = true
	for i := 0; i < m.alertHistory.size; i++ {
		idx := (m.alertHistory.head + i) % m.alertHistory.cap
		if m.alertHistory.items[idx].AlertID == alertID {
			m.alertHistory.items[idx].Resolved = true
		}
	}
	delete(m.activeAlerts, alertID)
	return nil
}

// ActiveAlerts returns every currently unresolved alert.
func (m *Monitor) ActiveAlerts() []models.PerformanceAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PerformanceAlert, 0, len(m.activeAlerts))
	for _, a := range m.activeAlerts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (m *Monitor) recentMetrics(metricType models.PerfMetricType, window time.Duration) []models.PerformanceMetric {
	m.mu.Lock()
	buf := m.global[metricType]
	m.mu.Unlock()
	if buf == nil {
		return nil
	}

	cutoff := time.Now().UTC().Add(-window)
	var out []models.PerformanceMetric
	for _, s := range buf.snapshot() {
		if !s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

func cacheKey(metricType models.PerfMetricType, agentID string, durationSeconds int) string {
	scope := agentID
	if scope == "" {
		scope = "global"
	}
	return fmt.Sprintf("%s_%s_%d", metricType, scope, durationSeconds)
}

// GetStatistics computes summary statistics for a metric series within
// an optional recent window (0 means all retained data), optionally
// scoped to one agent, using a short TTL cache the same way
// get_statistics does.
func (m *Monitor) GetStatistics(metricType models.PerfMetricType, durationSeconds int, agentID string) models.PerfStatistics {
	key := cacheKey(metricType, agentID, durationSeconds)

	m.mu.Lock()
	if cached, ok := m.statsCache[key]; ok && time.Since(cached.cachedAt) < statsCacheTTL {
		m.mu.Unlock()
		return cached.stats
	}
	m.mu.Unlock()

	var series []models.PerformanceMetric
	if durationSeconds > 0 {
		series = m.recentMetrics(metricType, time.Duration(durationSeconds)*time.Second)
		if agentID != "" {
			var scoped []models.PerformanceMetric
			for _, s := range series {
				if s.AgentID == agentID {
					scoped = append(scoped, s)
				}
			}
			series = scoped
		}
	} else {
		m.mu.Lock()
		if agentID != "" {
			if m.agent[agentID] != nil && m.agent[agentID][metricType] != nil {
				series = m.agent[agentID][metricType].snapshot()
			}
		} else if m.global[metricType] != nil {
			series = m.global[metricType].snapshot()
		}
		m.mu.Unlock()
	}

	result := computeStatistics(series)

	m.mu.Lock()
	m.statsCache[key] = cachedStats{stats: result, cachedAt: time.Now().UTC()}
	m.mu.Unlock()
	return result
}

func computeStatistics(series []models.PerformanceMetric) models.PerfStatistics {
	if len(series) == 0 {
		return models.PerfStatistics{}
	}
	values := make([]float64, len(series))
	for i, s := range series {
		values[i] = s.Value
	}

	mean, _ := stats.Mean(stats.Float64Data(values))
	median, _ := stats.Median(stats.Float64Data(values))
	min, _ := stats.Min(stats.Float64Data(values))
	max, _ := stats.Max(stats.Float64Data(values))
	var stdDev float64
	if len(values) > 1 {
		stdDev, _ = stats.StandardDeviationSample(stats.Float64Data(values))
	}
	p95, _ := stats.Percentile(stats.Float64Data(values), 95)
	p99, _ := stats.Percentile(stats.Float64Data(values), 99)

	return models.PerfStatistics{
		Count:  len(values),
		Mean:   mean,
		Median: median,
		Min:    min,
		Max:    max,
		StdDev: stdDev,
		P95:    p95,
		P99:    p99,
	}
}

// CleanupOldData evicts metrics, agent metrics, and resolved alerts
// older than the retention window, mirroring _cleanup_old_data.
func (m *Monitor) CleanupOldData() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-m.retention)
	keep := func(ts time.Time) bool { return !ts.Before(cutoff) }

	for _, buf := range m.global {
		buf.filter(func(s models.PerformanceMetric) bool { return keep(s.Timestamp) })
	}
	for _, series := range m.agent {
		for _, buf := range series {
			buf.filter(func(s models.PerformanceMetric) bool { return keep(s.Timestamp) })
		}
	}
	for id, alert := range m.activeAlerts {
		if alert.Resolved && !keep(alert.Timestamp) {
			delete(m.activeAlerts, id)
		}
	}
}
