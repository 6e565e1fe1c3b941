package models

import "time"

// MetricType tags what kind of sample was recorded.
type MetricType string

const (
	MetricVelocity    MetricType = "velocity"
	MetricCycleTime   MetricType = "cycle_time"
	MetricLeadTime    MetricType = "lead_time"
	MetricThroughput  MetricType = "throughput"
	MetricDefectRate  MetricType = "defect_rate"
	MetricReworkRate  MetricType = "rework_rate"
	MetricCommitment  MetricType = "commitment_reliability"
)

// Sample is a single recorded observation.
type Sample struct {
	Type      MetricType     `json:"type"`
	Value     float64        `json:"value"`
	Timestamp time.Time      `json:"timestamp"`
	TeamID    string         `json:"team_id,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	SprintID  string         `json:"sprint_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SprintVelocity adds committed/completed points to a velocity sample.
type SprintVelocity struct {
	SprintID        string    `json:"sprint_id"`
	SprintNumber    int       `json:"sprint_number"`
	TeamID          string    `json:"team_id"`
	CommittedPoints float64   `json:"committed_points"`
	CompletedPoints float64   `json:"completed_points"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	TeamSize        int       `json:"team_size"`
	WorkingDays     int       `json:"working_days"`
}

// CapacityAdjustment describes one factor nudging a team's predicted
// capacity away from its raw historical average.
type CapacityAdjustment struct {
	TeamSizeChange  float64 `json:"team_size_change,omitempty"`
	HolidayImpact   float64 `json:"holiday_impact,omitempty"`
	NewMembersRatio float64 `json:"new_members_ratio,omitempty"`
}

// PredictionConfidence buckets a velocity prediction's reliability.
type PredictionConfidence string

const (
	ConfidenceHigh     PredictionConfidence = "high"
	ConfidenceMedium   PredictionConfidence = "medium"
	ConfidenceLow      PredictionConfidence = "low"
	ConfidenceVeryLow  PredictionConfidence = "very_low"
)

// VelocityPrediction is a forecast of a team's next-sprint capacity.
type VelocityPrediction struct {
	TeamID               string                `json:"team_id"`
	PredictedVelocity    float64               `json:"predicted_velocity"`
	Confidence           PredictionConfidence  `json:"confidence"`
	ConfidencePercentage float64               `json:"confidence_percentage"`
	LowerBound           float64               `json:"lower_bound"`
	UpperBound           float64               `json:"upper_bound"`
	FactorsConsidered    []string              `json:"factors_considered"`
	Recommendation       string                `json:"recommendation"`
}

// VelocityTrendReport is the full trend/maturity analysis for a team.
type VelocityTrendReport struct {
	TeamID          string  `json:"team_id"`
	TrendDirection  string  `json:"trend_direction"`
	TrendStrength   float64 `json:"trend_strength"`
	AverageVelocity float64 `json:"average_velocity"`
	Variance        float64 `json:"variance"`
	StabilityScore  float64 `json:"stability_score"`
	MaturityLevel   string  `json:"maturity_level"`
}

// CapacityPlan is a recommended commitment for an upcoming sprint.
type CapacityPlan struct {
	TeamID                string             `json:"team_id"`
	SprintID              string             `json:"sprint_id"`
	AvailableCapacity     float64            `json:"available_capacity"`
	RecommendedCommitment float64            `json:"recommended_commitment"`
	BufferPercentage      float64            `json:"buffer_percentage"`
	RiskFactors           []string           `json:"risk_factors"`
	Adjustments           map[string]float64 `json:"adjustments,omitempty"`
}

// CommitmentAnalysis summarizes a team's commit-vs-deliver track record.
type CommitmentAnalysis struct {
	AverageCommitted    float64 `json:"average_committed"`
	AverageCompleted    float64 `json:"average_completed"`
	CompletionRate      float64 `json:"completion_rate"`
	OvercommitmentRate  float64 `json:"overcommitment_rate"`
}

// MetricSummary is windowed summary statistics for one metric series.
type MetricSummary struct {
	Type             MetricType `json:"type"`
	CurrentValue     float64    `json:"current_value"`
	Average          float64    `json:"average"`
	Median           float64    `json:"median"`
	StdDev           float64    `json:"std_dev"`
	MinValue         float64    `json:"min_value"`
	MaxValue         float64    `json:"max_value"`
	Trend            Trend      `json:"trend"`
	ChangePercentage float64    `json:"change_percentage"`
	SampleSize       int        `json:"sample_size"`
	PeriodStart      time.Time  `json:"period_start"`
	PeriodEnd        time.Time  `json:"period_end"`
}

// TeamHealthReport bundles every summary computed for a team plus an
// overall composite health score.
type TeamHealthReport struct {
	TeamID                string         `json:"team_id"`
	Velocity              *MetricSummary `json:"velocity,omitempty"`
	CycleTime             *MetricSummary `json:"cycle_time,omitempty"`
	LeadTime              *MetricSummary `json:"lead_time,omitempty"`
	Throughput            *MetricSummary `json:"throughput,omitempty"`
	DefectRate            *MetricSummary `json:"defect_rate,omitempty"`
	ReworkRate            *MetricSummary `json:"rework_rate,omitempty"`
	CommitmentReliability *MetricSummary `json:"commitment_reliability,omitempty"`
	OverallHealthScore    float64        `json:"overall_health_score"`
}

// TaskPerformance records a single story/task's timing and outcome.
type TaskPerformance struct {
	StoryID   string     `json:"story_id"`
	TeamID    string     `json:"team_id,omitempty"`
	SprintID  string     `json:"sprint_id,omitempty"`
	Points    float64    `json:"points"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
	Defects   int        `json:"defects"`
	Reworked  bool       `json:"reworked"`
}

// Trend classifies the direction of a metric series.
type Trend string

const (
	TrendImproving       Trend = "improving"
	TrendStable          Trend = "stable"
	TrendDeclining       Trend = "declining"
	TrendInsufficientData Trend = "insufficient_data"
)
