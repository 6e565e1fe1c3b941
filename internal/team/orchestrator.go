// Package team implements the Team Orchestrator (C4): formation, role
// assignment, a lifecycle state machine driven by a periodic monitor
// tick, task accounting, and advisory recommendations. The orchestrator
// is the single authority on team membership (spec.md §5).
package team

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluxteam/orchestrator-core/internal/agentpool"
	"github.com/fluxteam/orchestrator-core/internal/audit"
	"github.com/fluxteam/orchestrator-core/internal/controlplane"
	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

// Config bundles the orchestrator's tunables, sourced from internal/config.
type Config struct {
	MinSize             int
	MaxSize             int
	MaxTeams            int
	LeaderThreshold     int
	AutoDissolveIdle    time.Duration
	PerformingThreshold float64
	BaseResources       controlplane.Resources
	PerMemberResources  controlplane.Resources
}

// Orchestrator owns every team's membership and lifecycle state.
type Orchestrator struct {
	mu sync.Mutex

	teams  map[string]*models.Team
	handle map[string]*controlplane.AllocationHandle

	pool    *agentpool.Pool
	control controlplane.ControlPlane
	cfg     Config
	audit   *audit.Logger
}

// SetAudit wires an audit trail for team formation, dissolution, and
// control-plane denials.
func (o *Orchestrator) SetAudit(l *audit.Logger) { o.audit = l }

// New builds an orchestrator bound to a pool and control plane.
func New(pool *agentpool.Pool, control controlplane.ControlPlane, cfg Config) *Orchestrator {
	return &Orchestrator{
		teams:   make(map[string]*models.Team),
		handle:  make(map[string]*controlplane.AllocationHandle),
		pool:    pool,
		control: control,
		cfg:     cfg,
	}
}

// FormRequest describes a team to be formed.
type FormRequest struct {
	Mission          string
	Type             models.TeamType
	Size             int
	RequiredSkills   []string
	PreferredProfile string
	Priority         models.Priority
}

// skillPriority is the fixed priority list used to derive each member's
// specialization tag from its strongest skill (spec.md §4.4).
var skillPriority = []string{"architecture", "security", "testing", "backend", "frontend", "design", "general"}

// FormTeam validates size and team-count bounds, reserves resources from
// the Control Plane, allocates agents via the Agent Pool, and assigns
// roles (spec.md §4.4).
func (o *Orchestrator) FormTeam(ctx context.Context, req FormRequest) (*models.Team, error) {
	if req.Size < o.cfg.MinSize || req.Size > o.cfg.MaxSize {
		return nil, orcherr.InvalidArgumentf("team size %d out of range [%d,%d]", req.Size, o.cfg.MinSize, o.cfg.MaxSize)
	}

	o.mu.Lock()
	if len(o.teams) >= o.cfg.MaxTeams {
		o.mu.Unlock()
		return nil, orcherr.New(orcherr.ResourceExhausted, "maximum concurrent team count reached")
	}
	o.mu.Unlock()

	resources := o.cfg.BaseResources.Add(o.cfg.PerMemberResources.Scale(float64(req.Size)))

	teamID := uuid.New().String()

	var handle *controlplane.AllocationHandle
	if o.control != nil {
		var err error
		handle, err = o.control.Reserve(ctx, teamID, resources, req.Priority)
		if err != nil {
			if o.audit != nil {
				o.audit.LogResourceDenied(ctx, teamID, err.Error())
			}
			return nil, orcherr.Wrap(orcherr.ResourceExhausted, "control plane denied team formation resources", err)
		}
	}

	if o.control != nil {
		result, err := o.control.Validate(ctx, controlplane.Decision{Kind: "team_formation", TeamID: teamID, Subject: req.Mission})
		if err != nil || !result.Approved {
			if handle != nil {
				_ = o.control.Release(ctx, handle)
			}
			if err != nil {
				return nil, err
			}
			if o.audit != nil {
				o.audit.LogPolicyDenied(ctx, "team_formation", result.Reasons)
			}
			return nil, orcherr.New(orcherr.PolicyDenied, "team formation rejected by policy gate")
		}
	}

	agents, err := o.pool.Allocate(ctx, agentpool.Request{
		TeamID:           teamID,
		RequiredSkills:   req.RequiredSkills,
		PreferredProfile: req.PreferredProfile,
		Count:            req.Size,
		Priority:         req.Priority,
	})
	if err != nil {
		if handle != nil {
			_ = o.control.Release(ctx, handle)
		}
		return nil, err
	}

	members := assignRoles(agents, o.cfg.LeaderThreshold)

	now := time.Now().UTC()
	t := &models.Team{
		ID:             teamID,
		Type:           req.Type,
		Mission:        req.Mission,
		State:          models.TeamForming,
		Members:        members,
		Budget:         models.ResourceBudget(resources),
		CreatedAt:      now,
		LastActivityAt: now,
	}

	o.mu.Lock()
	o.teams[teamID] = t
	if handle != nil {
		o.handle[teamID] = handle
	}
	o.mu.Unlock()

	t.State = models.TeamStorming

	if o.audit != nil {
		o.audit.LogTeamFormed(ctx, teamID, req.Mission, req.Size)
	}

	return t.Clone(), nil
}

// assignRoles implements spec.md §4.4's deterministic assignment: sort by
// performance desc; leader if team size >= threshold; then by skill
// presence choose specialist/reviewer/coordinator/member.
func assignRoles(agents []*models.Agent, leaderThreshold int) map[string]models.Member {
	sorted := append([]*models.Agent(nil), agents...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PerformanceScore > sorted[j].PerformanceScore })

	members := make(map[string]models.Member, len(sorted))
	reviewerCutoff := (len(sorted) + 2) / 3 // "within the first third"

	for i, a := range sorted {
		var role models.Role
		switch {
		case i == 0 && len(sorted) >= leaderThreshold:
			role = models.RoleLeader
		case a.HasSkill("architecture"):
			role = models.RoleSpecialist
		case i < reviewerCutoff && a.HasSkill("testing"):
			role = models.RoleReviewer
		case i == 0:
			role = models.RoleCoordinator
		default:
			role = models.RoleMember
		}

		members[a.ID] = models.Member{
			AgentID:        a.ID,
			Role:           role,
			Specialization: strongestSkill(a),
		}
	}
	return members
}

func strongestSkill(a *models.Agent) string {
	for _, skill := range skillPriority {
		if a.HasSkill(skill) {
			return skill
		}
	}
	if len(a.Skills) > 0 {
		return a.Skills[0]
	}
	return ""
}

// DissolveTeam releases agents (best-effort) and resources, archives the
// team, and marks it DISSOLVED.
func (o *Orchestrator) DissolveTeam(ctx context.Context, teamID, reason string) (*models.Team, error) {
	o.mu.Lock()
	t, ok := o.teams[teamID]
	if !ok {
		o.mu.Unlock()
		return nil, orcherr.NotFoundf("team %s not found", teamID)
	}
	handle := o.handle[teamID]
	delete(o.handle, teamID)
	o.mu.Unlock()

	if o.pool != nil {
		_ = o.pool.Release(ctx, teamID, nil) // best-effort: errors never block dissolution
	}
	if o.control != nil && handle != nil {
		_ = o.control.Release(ctx, handle)
	}

	o.mu.Lock()
	now := time.Now().UTC()
	t.State = models.TeamDissolved
	t.DissolvedAt = &now
	t.DissolveReason = reason
	result := t.Clone()
	delete(o.teams, teamID)
	o.mu.Unlock()

	if o.audit != nil {
		o.audit.LogTeamDissolved(ctx, teamID, reason)
	}

	return result, nil
}

// CountsByState reports the current team count per lifecycle state, for metrics.
func (o *Orchestrator) CountsByState() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	counts := make(map[string]int)
	for _, t := range o.teams {
		counts[string(t.State)]++
	}
	return counts
}

// AssignTask records a new active task on the team.
func (o *Orchestrator) AssignTask(teamID, taskID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.teams[teamID]
	if !ok {
		return orcherr.NotFoundf("team %s not found", teamID)
	}
	t.ActiveTaskIDs = append(t.ActiveTaskIDs, taskID)
	t.LastActivityAt = time.Now().UTC()
	return nil
}

// TaskMetrics is the per-task quality/efficiency observation fed into a
// team's rolling averages on completion.
type TaskMetrics struct {
	Quality    float64
	Efficiency float64
}

// CompleteTask moves taskID from active to completed, updates rolling
// quality/efficiency as a simple running average (spec.md §9: "(old+new)/2",
// preserved as-is per the open question), and recomputes velocity.
func (o *Orchestrator) CompleteTask(teamID, taskID string, metrics TaskMetrics) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.teams[teamID]
	if !ok {
		return orcherr.NotFoundf("team %s not found", teamID)
	}

	for i, id := range t.ActiveTaskIDs {
		if id == taskID {
			t.ActiveTaskIDs = append(t.ActiveTaskIDs[:i], t.ActiveTaskIDs[i+1:]...)
			break
		}
	}
	t.CompletedTaskIDs = append(t.CompletedTaskIDs, taskID)

	if t.Metrics.Quality == 0 {
		t.Metrics.Quality = metrics.Quality
	} else {
		t.Metrics.Quality = (t.Metrics.Quality + metrics.Quality) / 2
	}
	if t.Metrics.Efficiency == 0 {
		t.Metrics.Efficiency = metrics.Efficiency
	} else {
		t.Metrics.Efficiency = (t.Metrics.Efficiency + metrics.Efficiency) / 2
	}

	hours := time.Since(t.CreatedAt).Hours()
	if hours > 0 {
		t.Metrics.Velocity = float64(len(t.CompletedTaskIDs)) / hours
	}

	if t.State == models.TeamStorming {
		t.State = models.TeamNorming
	}
	t.LastActivityAt = time.Now().UTC()
	return nil
}

// UpdateStatus manually overrides a team's lifecycle state.
func (o *Orchestrator) UpdateStatus(teamID string, state models.TeamState) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.teams[teamID]
	if !ok {
		return orcherr.NotFoundf("team %s not found", teamID)
	}
	t.State = state
	return nil
}

// Get fetches a team by id.
func (o *Orchestrator) Get(teamID string) (*models.Team, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.teams[teamID]
	if !ok {
		return nil, orcherr.NotFoundf("team %s not found", teamID)
	}
	return t.Clone(), nil
}

// ListTeams returns every active (non-dissolved) team.
func (o *Orchestrator) ListTeams() []*models.Team {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*models.Team, 0, len(o.teams))
	for _, t := range o.teams {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// MonitorTick evaluates every team's lifecycle transition predicates
// once. Callers schedule this on a ticker at cfg's performance-check
// interval (spec.md §4.4's "per-team monitor task"; kept scheduler-
// neutral per spec.md §9).
func (o *Orchestrator) MonitorTick(now time.Time) (dissolveCandidates []string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for id, t := range o.teams {
		if t.State == models.TeamNorming &&
			t.Metrics.Quality >= o.cfg.PerformingThreshold &&
			t.Metrics.Efficiency >= o.cfg.PerformingThreshold &&
			t.Metrics.Collaboration >= o.cfg.PerformingThreshold {
			t.State = models.TeamPerforming
		}

		idle := len(t.ActiveTaskIDs) == 0 && t.WorkflowID == "" && now.Sub(t.LastActivityAt) >= o.cfg.AutoDissolveIdle
		if idle && t.State != models.TeamAdjourning && t.State != models.TeamDissolved {
			t.State = models.TeamAdjourning
			dissolveCandidates = append(dissolveCandidates, id)
		}
	}
	return dissolveCandidates
}

// Recommendations is a deterministic, advisory-only rule engine (spec.md §4.4).
func (o *Orchestrator) Recommendations(teamID string) ([]string, error) {
	o.mu.Lock()
	t, ok := o.teams[teamID]
	o.mu.Unlock()
	if !ok {
		return nil, orcherr.NotFoundf("team %s not found", teamID)
	}

	var recs []string
	if t.Size() < o.cfg.MinSize+1 {
		recs = append(recs, "team is small; consider adding members")
	}
	if t.Metrics.Quality > 0 && t.Metrics.Quality < 0.5 {
		recs = append(recs, "quality below threshold; schedule quality-focused training")
	}

	hasTesting := false
	for _, m := range t.Members {
		if m.Specialization == "testing" {
			hasTesting = true
			break
		}
	}
	if !hasTesting {
		recs = append(recs, "no QA specialization represented; consider adding a tester")
	}

	return recs, nil
}

// Shutdown is a no-op placeholder for symmetry with other components;
// teams are dissolved individually via DissolveTeam.
func (o *Orchestrator) Shutdown() {}
