package models

import "time"

// PerfMetricType is one kind of sample the performance monitor tracks.
type PerfMetricType string

const (
	PerfResponseTime     PerfMetricType = "response_time"
	PerfTaskDuration     PerfMetricType = "task_duration"
	PerfCPUUsage         PerfMetricType = "cpu_usage"
	PerfMemoryUsage      PerfMetricType = "memory_usage"
	PerfNetworkIO        PerfMetricType = "network_io"
	PerfDiskIO           PerfMetricType = "disk_io"
	PerfTaskSuccessRate  PerfMetricType = "task_success_rate"
	PerfTaskFailureRate  PerfMetricType = "task_failure_rate"
	PerfThroughput       PerfMetricType = "throughput"
	PerfQueueLength      PerfMetricType = "queue_length"
	PerfErrorRate        PerfMetricType = "error_rate"
	PerfAgentUtilization PerfMetricType = "agent_utilization"
)

// AlertSeverity ranks a performance alert's urgency.
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertError    AlertSeverity = "error"
	AlertCritical AlertSeverity = "critical"
)

// PerfTaskStatus is the terminal (or in-flight) outcome of a tracked task.
type PerfTaskStatus string

const (
	PerfTaskStarted   PerfTaskStatus = "started"
	PerfTaskCompleted PerfTaskStatus = "completed"
	PerfTaskFailed    PerfTaskStatus = "failed"
	PerfTaskTimeout   PerfTaskStatus = "timeout"
	PerfTaskCancelled PerfTaskStatus = "cancelled"
)

// PerformanceThreshold configures the alert engine for one metric type.
type PerformanceThreshold struct {
	MetricType          PerfMetricType `json:"metric_type"`
	WarningThreshold    float64        `json:"warning_threshold"`
	CriticalThreshold   float64        `json:"critical_threshold"`
	DurationSeconds     int            `json:"duration_seconds"`
	ConsecutiveBreaches int            `json:"consecutive_breaches"`
}

// PerformanceMetric is a single recorded performance sample.
type PerformanceMetric struct {
	MetricType PerfMetricType `json:"metric_type"`
	Value      float64        `json:"value"`
	Timestamp  time.Time      `json:"timestamp"`
	AgentID    string         `json:"agent_id,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// PerformanceAlert is raised when a metric crosses a configured threshold.
type PerformanceAlert struct {
	AlertID        string         `json:"alert_id"`
	Severity       AlertSeverity  `json:"severity"`
	MetricType     PerfMetricType `json:"metric_type"`
	Message        string         `json:"message"`
	CurrentValue   float64        `json:"current_value"`
	ThresholdValue float64        `json:"threshold_value"`
	Timestamp      time.Time      `json:"timestamp"`
	AgentID        string         `json:"agent_id,omitempty"`
	Acknowledged   bool           `json:"acknowledged"`
	Resolved       bool           `json:"resolved"`
}

// PerfTaskPerformance tracks one task's wall-clock execution under the
// performance monitor (distinct from models.TaskPerformance, which
// tracks a story's agile lifecycle rather than a single run's timing).
type PerfTaskPerformance struct {
	TaskID     string         `json:"task_id"`
	AgentID    string         `json:"agent_id"`
	TaskType   string         `json:"task_type"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	Status     PerfTaskStatus `json:"status"`
	DurationMS float64        `json:"duration_ms,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SystemMetrics is a point-in-time resource usage snapshot.
type SystemMetrics struct {
	Timestamp        time.Time `json:"timestamp"`
	CPUPercent       float64   `json:"cpu_percent"`
	MemoryPercent    float64   `json:"memory_percent"`
	MemoryMB         float64   `json:"memory_mb"`
	DiskIOReadMB     float64   `json:"disk_io_read_mb"`
	DiskIOWriteMB    float64   `json:"disk_io_write_mb"`
	NetworkIOSentMB  float64   `json:"network_io_sent_mb"`
	NetworkIORecvMB  float64   `json:"network_io_recv_mb"`
	ActiveAgents     int       `json:"active_agents"`
	ActiveTasks      int       `json:"active_tasks"`
	QueueLength      int       `json:"queue_length"`
}

// PerfStatistics is the on-demand summary computed from a metric series.
type PerfStatistics struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}
