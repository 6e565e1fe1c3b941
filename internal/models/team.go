package models

import "time"

// TeamType is the declared organizational pattern of a team.
type TeamType string

const (
	TeamCrossFunctional TeamType = "cross_functional"
	TeamSelfManaging    TeamType = "self_managing"
	TeamFlowToWork      TeamType = "flow_to_work"
	TeamSquad           TeamType = "squad"
	TeamTaskForce       TeamType = "task_force"
)

// TeamState is a team's lifecycle stage.
type TeamState string

const (
	TeamForming     TeamState = "forming"
	TeamStorming    TeamState = "storming"
	TeamNorming     TeamState = "norming"
	TeamPerforming  TeamState = "performing"
	TeamAdjourning  TeamState = "adjourning"
	TeamDissolved   TeamState = "dissolved"
)

// Member binds an agent id to its role within a team.
type Member struct {
	AgentID        string `json:"agent_id"`
	Role           Role   `json:"role"`
	Specialization string `json:"specialization,omitempty"`
}

// ResourceBudget is the cores/memory/storage/bandwidth a team is allowed
// to consume, as reserved from the Control Plane.
type ResourceBudget struct {
	Cores     float64 `json:"cores"`
	MemoryMB  float64 `json:"memory_mb"`
	StorageMB float64 `json:"storage_mb"`
	BandwidthMb float64 `json:"bandwidth_mb"`
}

// RollingMetrics are a team's self-assessed quality indicators, each in [0,1].
type RollingMetrics struct {
	Velocity      float64 `json:"velocity"`
	Quality       float64 `json:"quality"`
	Efficiency    float64 `json:"efficiency"`
	Collaboration float64 `json:"collaboration"`
}

// Team is a time-bounded grouping of agents with a mission, budget, and lifecycle.
type Team struct {
	ID              string            `json:"id"`
	Type            TeamType          `json:"type"`
	Mission         string            `json:"mission"`
	State           TeamState         `json:"state"`
	Members         map[string]Member `json:"members"`
	Budget          ResourceBudget    `json:"budget"`
	BudgetUsed      ResourceBudget    `json:"budget_used"`
	WorkflowID      string            `json:"workflow_id,omitempty"`
	ActiveTaskIDs   []string          `json:"active_task_ids"`
	CompletedTaskIDs []string         `json:"completed_task_ids"`
	Metrics         RollingMetrics    `json:"metrics"`
	CreatedAt       time.Time         `json:"created_at"`
	LastActivityAt  time.Time         `json:"last_activity_at"`
	DissolvedAt     *time.Time        `json:"dissolved_at,omitempty"`
	DissolveReason  string            `json:"dissolve_reason,omitempty"`
}

// Leader returns the team's leader member id, if one exists.
func (t *Team) Leader() (string, bool) {
	for id, m := range t.Members {
		if m.Role == RoleLeader {
			return id, true
		}
	}
	return "", false
}

// Size returns the member count.
func (t *Team) Size() int { return len(t.Members) }

// AgentIDs returns the member agent ids in no particular order.
func (t *Team) AgentIDs() []string {
	ids := make([]string, 0, len(t.Members))
	for id := range t.Members {
		ids = append(ids, id)
	}
	return ids
}

// Clone returns a deep copy safe to hand outside the orchestrator's lock.
func (t *Team) Clone() *Team {
	cp := *t
	cp.Members = make(map[string]Member, len(t.Members))
	for k, v := range t.Members {
		cp.Members[k] = v
	}
	cp.ActiveTaskIDs = append([]string(nil), t.ActiveTaskIDs...)
	cp.CompletedTaskIDs = append([]string(nil), t.CompletedTaskIDs...)
	return &cp
}
