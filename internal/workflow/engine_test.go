package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxteam/orchestrator-core/internal/handoff"
	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

type fakeDocStore struct {
	mu   sync.Mutex
	docs map[string]*models.Document
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: make(map[string]*models.Document)}
}

func (s *fakeDocStore) put(doc *models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
}

func (s *fakeDocStore) Search(filter SearchFilter) []*models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Document
	for _, d := range s.docs {
		if filter.Type != nil && d.Type != *filter.Type {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (s *fakeDocStore) Get(id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, orcherr.NotFoundf("document %s not found", id)
	}
	return d, nil
}

type fakeTeamSource struct {
	team *models.Team
}

func (f *fakeTeamSource) Get(teamID string) (*models.Team, error) {
	return f.team, nil
}

type fakeGate struct {
	decision models.Decision
}

func (g *fakeGate) Evaluate(ctx context.Context, req GateRequest) (*models.GateReport, error) {
	return &models.GateReport{ID: "report-1", GateID: req.GateID, Decision: g.decision}, nil
}

func newTestTeam() *models.Team {
	return &models.Team{
		ID: "team-1",
		Members: map[string]models.Member{
			"agent-coder":    {AgentID: "agent-coder", Role: models.RoleSpecialist},
			"agent-reviewer": {AgentID: "agent-reviewer", Role: models.RoleReviewer},
		},
	}
}

func driveStep(t *testing.T, h *handoff.Protocol, agentID string) {
	t.Helper()
	// runStep creates the handoff on its own goroutine; wait for it.
	require.Eventually(t, func() bool { return len(h.Queue(agentID)) > 0 }, time.Second, 5*time.Millisecond)
	queue := h.Queue(agentID)
	require.Len(t, queue, 1)
	hf := queue[0]
	_, err := h.Accept(context.Background(), hf.ID)
	require.NoError(t, err)
	_, err = h.Complete(context.Background(), hf.ID, "result-doc-"+hf.ID)
	require.NoError(t, err)
}

func TestStartWorkflowRunsSingleStepToCompletion(t *testing.T) {
	hp := handoff.New(nil)
	docs := newFakeDocStore()
	team := newTestTeam()

	engine := New(docs, &fakeTeamSource{team: team}, hp, nil)
	engine.RegisterWorkflow(models.WorkflowDefinition{
		ID: "wf-1",
		Steps: []models.StepDefinition{
			{Name: "implement", RequiredRole: models.RoleSpecialist, Action: models.ActionComplete},
		},
	})

	instance, err := engine.StartWorkflow(context.Background(), "wf-1", team.ID, nil)
	require.NoError(t, err)
	require.Equal(t, models.WorkflowRunning, instance.Status)

	driveStep(t, hp, "agent-coder")

	require.Eventually(t, func() bool {
		got, err := engine.Status(instance.ID)
		return err == nil && got.Status == models.WorkflowCompleted
	}, time.Second, 5*time.Millisecond)

	final, err := engine.Status(instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, final.Steps["implement"].Status)
	assert.Len(t, final.ProducedDocIDs, 1)
}

func TestStartWorkflowRunsIndependentStepsInParallel(t *testing.T) {
	hp := handoff.New(nil)
	docs := newFakeDocStore()
	team := newTestTeam()

	engine := New(docs, &fakeTeamSource{team: team}, hp, nil)
	engine.RegisterWorkflow(models.WorkflowDefinition{
		ID: "wf-parallel",
		Steps: []models.StepDefinition{
			{Name: "a", RequiredRole: models.RoleSpecialist, Action: models.ActionComplete},
			{Name: "b", RequiredRole: models.RoleReviewer, Action: models.ActionReview},
		},
	})

	instance, err := engine.StartWorkflow(context.Background(), "wf-parallel", team.ID, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := engine.Status(instance.ID)
		return err == nil && got.Steps["a"].Status == models.StepRunning && got.Steps["b"].Status == models.StepRunning
	}, time.Second, 5*time.Millisecond)
}

func TestDependentStepWaitsForUpstreamCompletion(t *testing.T) {
	hp := handoff.New(nil)
	docs := newFakeDocStore()
	team := newTestTeam()

	engine := New(docs, &fakeTeamSource{team: team}, hp, nil)
	engine.RegisterWorkflow(models.WorkflowDefinition{
		ID: "wf-chain",
		Steps: []models.StepDefinition{
			{Name: "design", RequiredRole: models.RoleSpecialist, Action: models.ActionComplete},
			{Name: "review", RequiredRole: models.RoleReviewer, Action: models.ActionReview, DependsOn: []string{"design"}},
		},
	})

	instance, err := engine.StartWorkflow(context.Background(), "wf-chain", team.ID, nil)
	require.NoError(t, err)

	got, err := engine.Status(instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepPending, got.Steps["review"].Status)

	driveStep(t, hp, "agent-coder")

	require.Eventually(t, func() bool {
		got, err := engine.Status(instance.ID)
		return err == nil && got.Steps["review"].Status == models.StepRunning
	}, time.Second, 5*time.Millisecond)

	driveStep(t, hp, "agent-reviewer")

	require.Eventually(t, func() bool {
		got, err := engine.Status(instance.ID)
		return err == nil && got.Status == models.WorkflowCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestQualityGateFailureHaltsInstance(t *testing.T) {
	hp := handoff.New(nil)
	docs := newFakeDocStore()
	team := newTestTeam()

	engine := New(docs, &fakeTeamSource{team: team}, hp, &fakeGate{decision: models.DecisionFail})
	engine.RegisterWorkflow(models.WorkflowDefinition{
		ID: "wf-gated",
		Steps: []models.StepDefinition{
			{Name: "implement", RequiredRole: models.RoleSpecialist, Action: models.ActionComplete, QualityGateID: "gate-1"},
		},
	})

	instance, err := engine.StartWorkflow(context.Background(), "wf-gated", team.ID, nil)
	require.NoError(t, err)

	driveStep(t, hp, "agent-coder")

	require.Eventually(t, func() bool {
		got, err := engine.Status(instance.ID)
		return err == nil && got.Status == models.WorkflowFailed
	}, time.Second, 5*time.Millisecond)
}

func TestQualityGateConcernsAnnotatesAndContinues(t *testing.T) {
	hp := handoff.New(nil)
	docs := newFakeDocStore()
	team := newTestTeam()

	engine := New(docs, &fakeTeamSource{team: team}, hp, &fakeGate{decision: models.DecisionConcerns})
	engine.RegisterWorkflow(models.WorkflowDefinition{
		ID: "wf-concerns",
		Steps: []models.StepDefinition{
			{Name: "implement", RequiredRole: models.RoleSpecialist, Action: models.ActionComplete, QualityGateID: "gate-1"},
		},
	})

	instance, err := engine.StartWorkflow(context.Background(), "wf-concerns", team.ID, nil)
	require.NoError(t, err)

	driveStep(t, hp, "agent-coder")

	require.Eventually(t, func() bool {
		got, err := engine.Status(instance.ID)
		return err == nil && got.Status == models.WorkflowCompleted
	}, time.Second, 5*time.Millisecond)

	final, err := engine.Status(instance.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, final.Steps["implement"].Error)
}

func TestCancelSkipsRunningStepsAndRetainsProducedDocs(t *testing.T) {
	hp := handoff.New(nil)
	docs := newFakeDocStore()
	team := newTestTeam()

	engine := New(docs, &fakeTeamSource{team: team}, hp, nil)
	engine.RegisterWorkflow(models.WorkflowDefinition{
		ID: "wf-cancel",
		Steps: []models.StepDefinition{
			{Name: "a", RequiredRole: models.RoleSpecialist, Action: models.ActionComplete},
			{Name: "b", RequiredRole: models.RoleReviewer, Action: models.ActionReview},
		},
	})

	instance, err := engine.StartWorkflow(context.Background(), "wf-cancel", team.ID, nil)
	require.NoError(t, err)

	driveStep(t, hp, "agent-coder")

	require.Eventually(t, func() bool {
		got, err := engine.Status(instance.ID)
		return err == nil && len(got.ProducedDocIDs) == 1
	}, time.Second, 5*time.Millisecond)

	cancelled, err := engine.Cancel(context.Background(), instance.ID, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowCancelled, cancelled.Status)
	assert.Equal(t, models.StepSkipped, cancelled.Steps["b"].Status)
	assert.Len(t, cancelled.ProducedDocIDs, 1)
}

func TestStartWorkflowUnknownDefinitionReturnsNotFound(t *testing.T) {
	hp := handoff.New(nil)
	docs := newFakeDocStore()
	team := newTestTeam()
	engine := New(docs, &fakeTeamSource{team: team}, hp, nil)

	_, err := engine.StartWorkflow(context.Background(), "missing", team.ID, nil)
	assert.Error(t, err)
}
