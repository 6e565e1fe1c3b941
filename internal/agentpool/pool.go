// Package agentpool implements the Agent Pool (C3): skill-weighted agent
// allocation, auto-scale, FIFO queueing on shortage, and a health-monitor
// pass (HealthTick). The pool starts no background goroutine: a health
// pass runs only when a caller invokes HealthTick. The pool is the single
// authority on agent state and team binding (spec.md §5).
package agentpool

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluxteam/orchestrator-core/internal/controlplane"
	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/obsmetrics"
	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

// ResourceCost is the per-agent resource footprint used to size Control
// Plane reservations for an allocation request.
type ResourceCost = controlplane.Resources

// Request describes an allocation ask.
type Request struct {
	TeamID           string
	RequiredSkills   []string
	OptionalSkills   []string
	PreferredProfile string
	Count            int
	Priority         models.Priority
}

// queuedRequest pairs a request with the channel its eventual result is
// delivered on, for FIFO draining on release.
type queuedRequest struct {
	req      Request
	ctx      context.Context
	resultCh chan allocationResult
}

type allocationResult struct {
	agents []*models.Agent
	err    error
}

// Pool owns every agent's state and team binding.
type Pool struct {
	mu sync.Mutex

	agents map[string]*models.Agent
	queue  []*queuedRequest

	control controlplane.ControlPlane
	cost    ResourceCost

	autoScale       bool
	maxSize         int
	performanceFloor float64
	skillSource     func() []string // weighted skill distribution for synthesized agents

	shuttingDown bool
}

// Config bundles the pool's tunables.
type Config struct {
	MaxSize          int
	AutoScale        bool
	PerformanceFloor float64
	PerAgentCost     ResourceCost
	SkillSource      func() []string
}

// New builds a pool and seeds it with `initialSize` agents, each given
// skills drawn from cfg.SkillSource (falling back to a generic profile
// when unset).
func New(control controlplane.ControlPlane, cfg Config, initialSize int) *Pool {
	p := &Pool{
		agents:           make(map[string]*models.Agent),
		control:          control,
		cost:             cfg.PerAgentCost,
		autoScale:        cfg.AutoScale,
		maxSize:          cfg.MaxSize,
		performanceFloor: cfg.PerformanceFloor,
		skillSource:      cfg.SkillSource,
	}
	for i := 0; i < initialSize; i++ {
		p.spawnAgentLocked()
	}
	return p
}

func (p *Pool) spawnAgentLocked() *models.Agent {
	var skills []string
	if p.skillSource != nil {
		skills = p.skillSource()
	} else {
		skills = []string{"general"}
	}
	a := &models.Agent{
		ID:               uuid.New().String(),
		Skills:           skills,
		State:            models.AgentAvailable,
		PerformanceScore: 1.0,
		LastHealthCheck:  time.Now().UTC(),
		CreatedAt:        time.Now().UTC(),
	}
	p.agents[a.ID] = a
	return a
}

// candidate is a scored allocation candidate.
type candidate struct {
	agent *models.Agent
	score float64
}

// score implements spec.md §4.3's weighted formula.
func score(a *models.Agent, required, optional []string, preferredProfile string) float64 {
	base := 1.0 + 2.0*float64(a.CountMatching(required)) + float64(a.CountMatching(optional))
	if preferredProfile != "" && a.Profile == preferredProfile {
		base += 3.0
	}
	return base*a.PerformanceScore - 0.01*float64(a.TotalAllocations)
}

// Allocate reserves N agents matching the request, atomically. On a
// resource shortage it attempts auto-scale, then falls back to FIFO
// queueing.
func (p *Pool) Allocate(ctx context.Context, req Request) ([]*models.Agent, error) {
	if req.Count <= 0 {
		return nil, orcherr.InvalidArgumentf("allocation count must be positive")
	}

	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		return nil, orcherr.New(orcherr.PreconditionFailed, "agent pool is shutting down")
	}

	candidates := p.eligibleCandidates(req)
	if len(candidates) < req.Count {
		if p.autoScale && len(p.agents) < p.maxSize {
			p.growToCover(req, req.Count-len(candidates))
			candidates = p.eligibleCandidates(req)
		}
	}

	if len(candidates) < req.Count {
		resultCh := make(chan allocationResult, 1)
		p.queue = append(p.queue, &queuedRequest{req: req, ctx: ctx, resultCh: resultCh})
		p.mu.Unlock()
		obsmetrics.RecordAllocation("queued")

		select {
		case res := <-resultCh:
			return res.agents, res.err
		case <-ctx.Done():
			return nil, orcherr.Wrap(orcherr.Timeout, "allocation request cancelled while queued", ctx.Err())
		}
	}

	selected := selectTopN(candidates, req.Count)

	if p.control != nil {
		handle, err := p.control.Reserve(ctx, req.TeamID, p.cost.Scale(float64(req.Count)), req.Priority)
		if err != nil {
			p.mu.Unlock()
			obsmetrics.RecordAllocation("resource_denied")
			return nil, orcherr.Wrap(orcherr.ResourceExhausted, "control plane denied resource reservation", err)
		}
		_ = handle // handle lifecycle owned by the caller via team dissolution/release
	}

	for _, c := range selected {
		c.agent.State = models.AgentAllocated
		c.agent.TeamID = req.TeamID
		c.agent.TotalAllocations++
	}
	p.mu.Unlock()

	obsmetrics.RecordAllocation("success")
	out := make([]*models.Agent, len(selected))
	for i, c := range selected {
		out[i] = c.agent.Clone()
	}
	return out, nil
}

func (p *Pool) eligibleCandidates(req Request) []candidate {
	var candidates []candidate
	for _, a := range p.agents {
		if a.State != models.AgentAvailable {
			continue
		}
		if a.PerformanceScore < p.performanceFloor {
			continue
		}
		if !a.HasAllSkills(req.RequiredSkills) {
			continue
		}
		candidates = append(candidates, candidate{agent: a, score: score(a, req.RequiredSkills, req.OptionalSkills, req.PreferredProfile)})
	}
	return candidates
}

func selectTopN(candidates []candidate, n int) []candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].agent.TotalAllocations != candidates[j].agent.TotalAllocations {
			return candidates[i].agent.TotalAllocations < candidates[j].agent.TotalAllocations
		}
		return candidates[i].agent.ID < candidates[j].agent.ID
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

func (p *Pool) growToCover(req Request, shortfall int) {
	for i := 0; i < shortfall && len(p.agents) < p.maxSize; i++ {
		a := p.spawnAgentLocked()
		a.Skills = append(a.Skills, req.RequiredSkills...)
	}
}

// Release returns agents to AVAILABLE and clears their team binding, then
// makes a best-effort pass over the FIFO queue (spec.md §4.3 queue drain).
func (p *Pool) Release(ctx context.Context, teamID string, agentIDs []string) error {
	p.mu.Lock()
	if len(agentIDs) == 0 {
		for _, a := range p.agents {
			if a.TeamID == teamID {
				agentIDs = append(agentIDs, a.ID)
			}
		}
	}
	for _, id := range agentIDs {
		if a, ok := p.agents[id]; ok && a.TeamID == teamID {
			a.State = models.AgentAvailable
			a.TeamID = ""
		}
	}
	p.drainQueueLocked()
	p.mu.Unlock()
	return nil
}

// drainQueueLocked must be called with p.mu held.
func (p *Pool) drainQueueLocked() {
	var remaining []*queuedRequest
	for _, qr := range p.queue {
		candidates := p.eligibleCandidates(qr.req)
		if len(candidates) < qr.req.Count {
			remaining = append(remaining, qr)
			continue
		}
		selected := selectTopN(candidates, qr.req.Count)
		for _, c := range selected {
			c.agent.State = models.AgentAllocated
			c.agent.TeamID = qr.req.TeamID
			c.agent.TotalAllocations++
		}
		out := make([]*models.Agent, len(selected))
		for i, c := range selected {
			out[i] = c.agent.Clone()
		}
		select {
		case qr.resultCh <- allocationResult{agents: out}:
		default:
		}
	}
	p.queue = remaining
}

// UpdatePerformance applies a performance delta, demoting an AVAILABLE
// agent to MAINTENANCE when its score falls below the configured floor.
// Promotion back to AVAILABLE happens in HealthTick, not here.
func (p *Pool) UpdatePerformance(agentID string, delta float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[agentID]
	if !ok {
		return orcherr.NotFoundf("agent %s not found", agentID)
	}
	a.PerformanceScore += delta
	if a.PerformanceScore < 0 {
		a.PerformanceScore = 0
	}
	if a.State == models.AgentAvailable && a.PerformanceScore < p.performanceFloor {
		a.State = models.AgentMaintenance
	}
	return nil
}

// Status reports all agents, a point-in-time snapshot.
func (p *Pool) Status() []*models.Agent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*models.Agent, 0, len(p.agents))
	for _, a := range p.agents {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CountsByState reports the current agent count per state, for metrics.
func (p *Pool) CountsByState() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make(map[string]int)
	for _, a := range p.agents {
		counts[string(a.State)]++
	}
	return counts
}

// HealthTick runs one pass of the health monitor: refreshes
// last_health_check and promotes MAINTENANCE agents whose score has
// recovered (spec.md §4.3).
func (p *Pool) HealthTick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now().UTC()
	for _, a := range p.agents {
		a.LastHealthCheck = now
		if a.State == models.AgentMaintenance && a.PerformanceScore >= p.performanceFloor {
			a.State = models.AgentAvailable
		}
	}
}

// Shutdown rejects new allocations; in-flight queued requests are left
// for the caller to cancel via context.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shuttingDown = true
}
