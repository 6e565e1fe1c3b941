package models

import "time"

// StepStatus is the execution status of a single workflow step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepWaived    StepStatus = "waived"
)

// WorkflowStatus is the overall status of a workflow instance.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// StepDefinition declares one node of a workflow's DAG.
type StepDefinition struct {
	Name           string       `yaml:"name" json:"name"`
	RequiredRole   Role         `yaml:"required_role" json:"required_role"`
	InputTypes     []DocumentType `yaml:"input_types" json:"input_types"`
	InputDocIDs    []string     `yaml:"input_doc_ids,omitempty" json:"input_doc_ids,omitempty"`
	OutputType     DocumentType `yaml:"output_type" json:"output_type"`
	Action         ExpectedAction `yaml:"action" json:"action"`
	QualityGateID  string       `yaml:"quality_gate_id,omitempty" json:"quality_gate_id,omitempty"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	DependsOn      []string     `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// WorkflowDefinition is an ordered DAG of steps, loaded from YAML.
type WorkflowDefinition struct {
	ID          string           `yaml:"id" json:"id"`
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description" json:"description"`
	Steps       []StepDefinition `yaml:"steps" json:"steps"`
}

// StepInstance tracks the runtime state of one step of a workflow instance.
type StepInstance struct {
	Name         string     `json:"name"`
	Status       StepStatus `json:"status"`
	HandoffID    string     `json:"handoff_id,omitempty"`
	ProducedDoc  string     `json:"produced_doc,omitempty"`
	GateDecision string     `json:"gate_decision,omitempty"`
	Error        string     `json:"error,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// WorkflowInstance is a bound, in-progress (or concluded) execution of a
// WorkflowDefinition against a specific team.
type WorkflowInstance struct {
	ID             string                  `json:"id"`
	DefinitionID   string                  `json:"definition_id"`
	TeamID         string                  `json:"team_id"`
	Status         WorkflowStatus          `json:"status"`
	Steps          map[string]*StepInstance `json:"steps"`
	ProducedDocIDs []string                `json:"produced_doc_ids"`
	Context        map[string]string       `json:"context"`
	CreatedAt      time.Time               `json:"created_at"`
	CompletedAt    *time.Time              `json:"completed_at,omitempty"`
	Error          string                  `json:"error,omitempty"`
}
