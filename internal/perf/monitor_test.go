package perf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxteam/orchestrator-core/internal/models"
)

func TestRecordMetricPopulatesGlobalAndAgentSeries(t *testing.T) {
	m := New(1, nil)
	m.RecordMetric(models.PerfResponseTime, 120, "agent-1", "task-1", nil)
	m.RecordMetric(models.PerfResponseTime, 80, "agent-1", "task-2", nil)
	m.RecordMetric(models.PerfResponseTime, 200, "agent-2", "task-3", nil)

	globalStats := m.GetStatistics(models.PerfResponseTime, 0, "")
	assert.Equal(t, 3, globalStats.Count)

	agentStats := m.GetStatistics(models.PerfResponseTime, 0, "agent-1")
	assert.Equal(t, 2, agentStats.Count)
	assert.InDelta(t, 100, agentStats.Mean, 0.001)
}

func TestStartAndEndTaskRecordsDurationMetrics(t *testing.T) {
	m := New(1, nil)
	m.StartTask("task-1", "agent-1", "code_review", nil)
	m.EndTask("task-1", models.PerfTaskCompleted, nil)

	stats := m.GetStatistics(models.PerfTaskDuration, 0, "")
	require.Equal(t, 1, stats.Count)
	assert.GreaterOrEqual(t, stats.Mean, 0.0)

	_, stillActive := m.activeTasks["task-1"]
	assert.False(t, stillActive)
}

func TestEndTaskOnUnknownTaskIsNoop(t *testing.T) {
	m := New(1, nil)
	m.EndTask("ghost", models.PerfTaskFailed, nil)
	assert.Equal(t, 0, m.completed.len())
}

func TestCheckThresholdsFiresCriticalImmediately(t *testing.T) {
	var captured []models.PerformanceAlert
	m := New(1, func(a models.PerformanceAlert) { captured = append(captured, a) })

	for i := 0; i < 3; i++ {
		m.RecordMetric(models.PerfCPUUsage, 97, "", "", nil)
	}
	m.CheckThresholds()

	require.Len(t, captured, 1)
	assert.Equal(t, models.AlertCritical, captured[0].Severity)
	assert.Equal(t, models.PerfCPUUsage, captured[0].MetricType)
}

func TestCheckThresholdsDebouncesWarningUntilConsecutiveBreaches(t *testing.T) {
	var captured []models.PerformanceAlert
	m := New(1, func(a models.PerformanceAlert) { captured = append(captured, a) })

	for i := 0; i < 2; i++ {
		m.RecordMetric(models.PerfCPUUsage, 85, "", "", nil)
		m.CheckThresholds()
	}
	assert.Empty(t, captured, "warning should not fire before consecutive_breaches ticks")

	m.RecordMetric(models.PerfCPUUsage, 85, "", "", nil)
	m.CheckThresholds()
	require.Len(t, captured, 1)
	assert.Equal(t, models.AlertWarning, captured[0].Severity)
}

func TestCheckThresholdsResetsBreachCounterOnNonBreach(t *testing.T) {
	var captured []models.PerformanceAlert
	m := New(1, func(a models.PerformanceAlert) { captured = append(captured, a) })

	m.RecordMetric(models.PerfCPUUsage, 85, "", "", nil)
	m.CheckThresholds()
	m.RecordMetric(models.PerfCPUUsage, 10, "", "", nil)
	m.CheckThresholds()
	m.RecordMetric(models.PerfCPUUsage, 85, "", "", nil)
	m.CheckThresholds()
	m.RecordMetric(models.PerfCPUUsage, 85, "", "", nil)
	m.CheckThresholds()

	assert.Empty(t, captured, "a non-breach tick should reset the consecutive-breach counter")
}

func TestGenerateAlertDedupesAgainstExistingActiveAlert(t *testing.T) {
	m := New(1, nil)
	for i := 0; i < 3; i++ {
		m.RecordMetric(models.PerfCPUUsage, 97, "", "", nil)
	}
	m.CheckThresholds()
	m.CheckThresholds()

	active := m.ActiveAlerts()
	assert.Len(t, active, 1, "a second critical breach should not duplicate the active alert")
}

func TestAcknowledgeAndResolveAlert(t *testing.T) {
	m := New(1, nil)
	for i := 0; i < 3; i++ {
		m.RecordMetric(models.PerfCPUUsage, 97, "", "", nil)
	}
	m.CheckThresholds()

	active := m.ActiveAlerts()
	require.Len(t, active, 1)
	alertID := active[0].AlertID

	require.NoError(t, m.AcknowledgeAlert(alertID))
	require.NoError(t, m.ResolveAlert(alertID))
	assert.Empty(t, m.ActiveAlerts())

	err := m.ResolveAlert(alertID)
	assert.Error(t, err)
}

func TestGetStatisticsComputesPercentiles(t *testing.T) {
	m := New(1, nil)
	for i := 1; i <= 100; i++ {
		m.RecordMetric(models.PerfResponseTime, float64(i), "", "", nil)
	}

	stats := m.GetStatistics(models.PerfResponseTime, 0, "")
	assert.Equal(t, 100, stats.Count)
	assert.InDelta(t, 50.5, stats.Mean, 0.5)
	assert.Greater(t, stats.P99, stats.P95)
	assert.Greater(t, stats.P95, stats.Median)
}

func TestGetStatisticsIsCachedWithinTTL(t *testing.T) {
	m := New(1, nil)
	m.RecordMetric(models.PerfResponseTime, 10, "", "", nil)
	first := m.GetStatistics(models.PerfResponseTime, 0, "")

	m.mu.Lock()
	m.global[models.PerfResponseTime].push(models.PerformanceMetric{
		MetricType: models.PerfResponseTime,
		Value:      1000,
		Timestamp:  time.Now().UTC(),
	})
	m.mu.Unlock()

	cached := m.GetStatistics(models.PerfResponseTime, 0, "")
	assert.Equal(t, first, cached, "a fresh read within the TTL should return the cached statistics")
}

func TestRecordMetricInvalidatesStatsCache(t *testing.T) {
	m := New(1, nil)
	m.RecordMetric(models.PerfResponseTime, 10, "", "", nil)
	first := m.GetStatistics(models.PerfResponseTime, 0, "")
	require.Equal(t, 1, first.Count)

	m.RecordMetric(models.PerfResponseTime, 20, "", "", nil)
	second := m.GetStatistics(models.PerfResponseTime, 0, "")
	assert.Equal(t, 2, second.Count)
}

func TestCleanupOldDataEvictsStaleMetricsAndResolvedAlerts(t *testing.T) {
	m := New(1, nil)
	m.mu.Lock()
	m.global[models.PerfResponseTime] = newRingBuffer[models.PerformanceMetric](globalSeriesCapacity)
	m.global[models.PerfResponseTime].push(models.PerformanceMetric{
		MetricType: models.PerfResponseTime,
		Value:      10,
		Timestamp:  time.Now().UTC().Add(-2 * time.Hour),
	})
	m.global[models.PerfResponseTime].push(models.PerformanceMetric{
		MetricType: models.PerfResponseTime,
		Value:      20,
		Timestamp:  time.Now().UTC(),
	})
	m.activeAlerts["stale"] = &models.PerformanceAlert{
		AlertID:   "stale",
		Resolved:  true,
		Timestamp: time.Now().UTC().Add(-2 * time.Hour),
	}
	m.mu.Unlock()

	m.CleanupOldData()

	m.mu.Lock()
	remaining := m.global[models.PerfResponseTime].snapshot()
	_, stillPresent := m.activeAlerts["stale"]
	m.mu.Unlock()

	require.Len(t, remaining, 1)
	assert.Equal(t, 20.0, remaining[0].Value)
	assert.False(t, stillPresent)
}

func TestRecordSystemMetricsFeedsCPUAndMemorySeries(t *testing.T) {
	m := New(1, nil)
	m.RecordSystemMetrics(models.SystemMetrics{CPUPercent: 42, MemoryPercent: 55})

	cpuStats := m.GetStatistics(models.PerfCPUUsage, 0, "")
	memStats := m.GetStatistics(models.PerfMemoryUsage, 0, "")
	assert.Equal(t, 1, cpuStats.Count)
	assert.Equal(t, 1, memStats.Count)
	assert.Equal(t, 42.0, cpuStats.Mean)
	assert.Equal(t, 55.0, memStats.Mean)
}
