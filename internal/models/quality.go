package models

import "time"

// GateKind is the category of target a quality gate evaluates.
type GateKind string

const (
	GateStory   GateKind = "story"
	GateSprint  GateKind = "sprint"
	GateRelease GateKind = "release"
	GateCustom  GateKind = "custom"
)

// Severity is a quality issue's severity tier.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IssueCategory classifies a quality issue.
type IssueCategory string

const (
	CategoryFunctional    IssueCategory = "functional"
	CategoryPerformance   IssueCategory = "performance"
	CategorySecurity      IssueCategory = "security"
	CategoryUsability     IssueCategory = "usability"
	CategoryDocumentation IssueCategory = "documentation"
	CategoryTesting       IssueCategory = "testing"
	CategoryArchitecture  IssueCategory = "architecture"
	CategoryCompliance    IssueCategory = "compliance"
	CategoryTechDebt      IssueCategory = "technical_debt"
	CategoryAccessibility IssueCategory = "accessibility"
)

// Decision is a gate report's outcome.
type Decision string

const (
	DecisionPass     Decision = "pass"
	DecisionConcerns Decision = "concerns"
	DecisionFail     Decision = "fail"
	DecisionWaived   Decision = "waived"
	DecisionPending  Decision = "pending"
	DecisionBlocked  Decision = "blocked"
)

// Thresholds configure pass/fail boundaries for a gate.
type Thresholds struct {
	MinCoverage         float64 `json:"min_coverage"`
	MinTestCoverage     float64 `json:"min_test_coverage"`
	MaxCriticalIssues   int     `json:"max_critical_issues"`
	MaxHighIssues       int     `json:"max_high_issues"`
	MinSecurityScore    float64 `json:"min_security_score"`
	MinPerformanceScore float64 `json:"min_performance_score"`
	MinOverallScore     float64 `json:"min_overall_score"`
}

// Criterion is a named predicate identifier evaluated against a target.
type Criterion struct {
	ID       string `json:"id"`
	Required bool   `json:"required"`
}

// QualityGate configures thresholds and criteria applied to a class of targets.
type QualityGate struct {
	ID         string      `json:"id"`
	Kind       GateKind    `json:"kind"`
	Thresholds Thresholds  `json:"thresholds"`
	Criteria   []Criterion `json:"criteria"`
}

// Waiver records who waived a gate decision, and why.
type Waiver struct {
	Reason string    `json:"reason"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

// QualityIssue is one finding surfaced during evaluation.
type QualityIssue struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Severity       Severity      `json:"severity"`
	Category       IssueCategory `json:"category"`
	Finding        string        `json:"finding"`
	Expected       string        `json:"expected"`
	Impact         string        `json:"impact"`
	SuggestedAction string       `json:"suggested_action"`
	DetectedAt     time.Time     `json:"detected_at"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
	Waiver         *Waiver       `json:"waiver,omitempty"`
}

// MetricsSnapshot captures the evaluation's numeric inputs and composite scores.
type MetricsSnapshot struct {
	Total, Passed, Failed, Skipped int     `json:"total,passed,failed,skipped"`
	Coverage           float64 `json:"coverage"`
	SecurityScore      float64 `json:"security_score"`
	PerformanceScore   float64 `json:"performance_score"`
	MaintainabilityScore float64 `json:"maintainability_score"`
	DocumentationScore float64 `json:"documentation_score"`
	TestScore          float64 `json:"test_score"`
	ComplianceScore    float64 `json:"compliance_score"`
	OverallScore       float64 `json:"overall_score"`
}

// GateReport is the outcome of one evaluate() call.
type GateReport struct {
	ID              string          `json:"id"`
	GateID          string          `json:"gate_id"`
	Target          string          `json:"target"`
	Decision        Decision        `json:"decision"`
	PriorDecision   Decision        `json:"prior_decision,omitempty"`
	Metrics         MetricsSnapshot `json:"metrics"`
	PassedCriteria  []string        `json:"passed_criteria"`
	FailedCriteria  []string        `json:"failed_criteria"`
	WaivedCriteria  []string        `json:"waived_criteria"`
	Recommendations []string        `json:"recommendations"`
	Issues          []QualityIssue  `json:"issues"`
	Notes           string          `json:"notes,omitempty"`
	Waiver          *Waiver         `json:"waiver,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ChecklistTotals seeds a GateReport's metrics from an external checklist.
type ChecklistTotals struct {
	Total, Passed, Failed, Skipped int
}
