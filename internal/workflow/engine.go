// Package workflow implements the Workflow Engine (C6): a DAG of steps
// executed over a team via handoff-driven delegation, with quality-gate
// integration and cooperative cancellation.
package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluxteam/orchestrator-core/internal/handoff"
	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/obsmetrics"
	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

// DocumentStore is the subset of the Document Registry the engine needs
// to resolve step inputs; produced documents are created by the agent
// executing the step (via the same registry), not by the engine itself.
type DocumentStore interface {
	Search(filter SearchFilter) []*models.Document
	Get(id string) (*models.Document, error)
}

// SearchFilter mirrors registry.SearchFilter's fields the engine uses.
type SearchFilter struct {
	Type   *models.DocumentType
	TeamID string
}

// TeamSource is the subset of the Team Orchestrator the engine needs to
// pick a step's executor.
type TeamSource interface {
	Get(teamID string) (*models.Team, error)
}

// GateRunner is the subset of the Quality Gate the engine needs.
type GateRunner interface {
	Evaluate(ctx context.Context, req GateRequest) (*models.GateReport, error)
}

// GateRequest mirrors quality.EvaluateRequest.
type GateRequest struct {
	GateID   string
	Target   string
	Assessor string
}

// HandoffCreator is the subset of the Handoff Protocol the engine needs.
type HandoffCreator interface {
	Create(ctx context.Context, req handoff.CreateRequest) (*models.Handoff, error)
	Cancel(ctx context.Context, id, reason string) (*models.Handoff, error)
	OnNotify(agentID string, h handoff.Handler)
}

// Engine owns registered workflow definitions and running instances.
type Engine struct {
	mu sync.Mutex

	definitions map[string]models.WorkflowDefinition
	instances   map[string]*models.WorkflowInstance

	// pendingStep maps a handoff id back to the instance/step it drives,
	// since models.Handoff carries no step name of its own.
	pendingStep map[string]stepRef

	docs     DocumentStore
	teams    TeamSource
	handoffs HandoffCreator
	gate     GateRunner
}

type stepRef struct {
	instanceID string
	stepName   string
}

// New builds an engine bound to its collaborators.
func New(docs DocumentStore, teams TeamSource, handoffs HandoffCreator, gate GateRunner) *Engine {
	return &Engine{
		definitions: make(map[string]models.WorkflowDefinition),
		instances:   make(map[string]*models.WorkflowInstance),
		pendingStep: make(map[string]stepRef),
		docs:        docs,
		teams:       teams,
		handoffs:    handoffs,
		gate:        gate,
	}
}

// RegisterWorkflow makes a definition available to StartWorkflow.
func (e *Engine) RegisterWorkflow(def models.WorkflowDefinition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.definitions[def.ID] = def
}

// StartWorkflow creates an instance bound to teamID and runs every step
// whose inputs are already satisfied (spec.md §4.6).
func (e *Engine) StartWorkflow(ctx context.Context, definitionID, teamID string, runContext map[string]string) (*models.WorkflowInstance, error) {
	e.mu.Lock()
	def, ok := e.definitions[definitionID]
	e.mu.Unlock()
	if !ok {
		return nil, orcherr.NotFoundf("workflow definition %s not found", definitionID)
	}

	steps := make(map[string]*models.StepInstance, len(def.Steps))
	for _, s := range def.Steps {
		steps[s.Name] = &models.StepInstance{Name: s.Name, Status: models.StepPending}
	}

	instance := &models.WorkflowInstance{
		ID:           uuid.New().String(),
		DefinitionID: definitionID,
		TeamID:       teamID,
		Status:       models.WorkflowRunning,
		Steps:        steps,
		Context:      runContext,
		CreatedAt:    time.Now().UTC(),
	}

	e.mu.Lock()
	e.instances[instance.ID] = instance
	e.mu.Unlock()

	e.advance(ctx, instance.ID)

	return e.cloneInstance(instance.ID)
}

// advance starts every step whose inputs are satisfied and that is not
// already running or concluded. Steps with no data dependency thus run
// in parallel, one goroutine per started step (spec.md §4.6).
func (e *Engine) advance(ctx context.Context, instanceID string) {
	e.mu.Lock()
	instance, ok := e.instances[instanceID]
	if !ok || instance.Status != models.WorkflowRunning {
		e.mu.Unlock()
		return
	}
	def := e.definitions[instance.DefinitionID]
	var ready []models.StepDefinition
	for _, step := range def.Steps {
		si := instance.Steps[step.Name]
		if si.Status != models.StepPending {
			continue
		}
		if e.inputsSatisfied(instance, step) {
			si.Status = models.StepRunning
			ready = append(ready, step)
		}
	}
	e.mu.Unlock()

	for _, step := range ready {
		go e.runStep(ctx, instanceID, step)
	}

	e.checkCompletion(instanceID)
}

func (e *Engine) inputsSatisfied(instance *models.WorkflowInstance, step models.StepDefinition) bool {
	for _, dep := range step.DependsOn {
		depStep, ok := instance.Steps[dep]
		done := ok && (depStep.Status == models.StepCompleted || depStep.Status == models.StepWaived || depStep.Status == models.StepSkipped)
		if !done {
			return false
		}
	}
	return true
}

func (e *Engine) resolveInputs(instance *models.WorkflowInstance, step models.StepDefinition) []string {
	if len(step.InputDocIDs) > 0 {
		var ids []string
		for _, id := range step.InputDocIDs {
			if _, err := e.docs.Get(id); err == nil {
				ids = append(ids, id)
			}
		}
		return ids
	}
	var ids []string
	for _, t := range step.InputTypes {
		typ := t
		for _, doc := range e.docs.Search(SearchFilter{Type: &typ, TeamID: instance.TeamID}) {
			for _, produced := range instance.ProducedDocIDs {
				if doc.ID == produced {
					ids = append(ids, doc.ID)
				}
			}
		}
	}
	return ids
}

// runStep picks an executor by role, creates a handoff, and registers a
// completion listener; the actual handoff lifecycle is driven externally
// (an agent accepts and completes it), mirroring the Handoff Protocol's
// own asynchronous, notification-driven design (spec.md §4.2/§4.6).
func (e *Engine) runStep(ctx context.Context, instanceID string, step models.StepDefinition) {
	e.mu.Lock()
	instance := e.instances[instanceID]
	e.mu.Unlock()

	executor, err := e.pickExecutor(instance.TeamID, step.RequiredRole)
	if err != nil {
		e.failStep(instanceID, step.Name, err.Error())
		return
	}

	inputIDs := e.resolveInputs(instance, step)
	// A step with no input documents hands off the workflow instance id,
	// since a handoff always names a document.
	inputDoc := instance.ID
	if len(inputIDs) > 0 {
		inputDoc = inputIDs[0]
	}

	h, err := e.handoffs.Create(ctx, handoff.CreateRequest{
		DocumentID:     inputDoc,
		From:           "workflow-engine",
		To:             executor,
		Reason:         "workflow step " + step.Name,
		ExpectedAction: step.Action,
		Priority:       models.PriorityMedium,
		WorkflowID:     instance.ID,
	})
	if err != nil {
		e.failStep(instanceID, step.Name, err.Error())
		return
	}

	e.mu.Lock()
	instance.Steps[step.Name].HandoffID = h.ID
	now := time.Now().UTC()
	instance.Steps[step.Name].StartedAt = &now
	e.pendingStep[h.ID] = stepRef{instanceID: instanceID, stepName: step.Name}
	e.mu.Unlock()

	e.handoffs.OnNotify(executor, e.handoffListener(step))
}

func (e *Engine) handoffListener(step models.StepDefinition) handoff.Handler {
	return func(ctx context.Context, h *models.Handoff, n models.NotificationType) {
		if n != models.NotifyCompleted && n != models.NotifyFailed {
			return
		}

		e.mu.Lock()
		ref, ok := e.pendingStep[h.ID]
		if ok {
			delete(e.pendingStep, h.ID)
		}
		e.mu.Unlock()
		if !ok {
			return
		}

		if n == models.NotifyFailed {
			e.failStep(ref.instanceID, ref.stepName, h.FailureReason)
			return
		}
		e.completeStep(ctx, ref.instanceID, step, h.ResultDocumentID)
	}
}

func (e *Engine) pickExecutor(teamID string, role models.Role) (string, error) {
	team, err := e.teams.Get(teamID)
	if err != nil {
		return "", err
	}
	var candidates []models.Member
	for _, m := range team.Members {
		if m.Role == role {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return "", orcherr.New(orcherr.PreconditionFailed, "no team member holds the required role for this step")
	}
	// Deterministic by role + load: lowest agent id among role-holders,
	// since the engine has no visibility into per-agent in-flight load
	// beyond what the Agent Pool already enforces at allocation time.
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.AgentID < best.AgentID {
			best = c
		}
	}
	return best.AgentID, nil
}

// completeStep registers the produced document, runs the declared
// quality gate if any, and advances the instance (spec.md §4.6).
func (e *Engine) completeStep(ctx context.Context, instanceID string, step models.StepDefinition, resultDocID string) {
	e.mu.Lock()
	instance := e.instances[instanceID]
	si := instance.Steps[step.Name]
	now := time.Now().UTC()
	si.ProducedDoc = resultDocID
	si.CompletedAt = &now
	si.Status = models.StepCompleted
	if resultDocID != "" {
		instance.ProducedDocIDs = append(instance.ProducedDocIDs, resultDocID)
	}
	e.mu.Unlock()

	if step.QualityGateID != "" && e.gate != nil {
		report, err := e.gate.Evaluate(ctx, GateRequest{GateID: step.QualityGateID, Target: resultDocID, Assessor: "workflow-engine"})
		if err != nil {
			slog.Default().Warn("workflow step quality gate evaluation failed", "instance_id", instanceID, "step", step.Name, "error", err)
		} else {
			e.mu.Lock()
			si.GateDecision = string(report.Decision)
			e.mu.Unlock()

			switch report.Decision {
			case models.DecisionFail:
				e.failStep(instanceID, step.Name, "quality gate failed")
				return
			case models.DecisionConcerns:
				e.mu.Lock()
				si.Error = "quality gate raised concerns; proceeding with annotation"
				e.mu.Unlock()
			case models.DecisionWaived:
				e.mu.Lock()
				si.Error = "quality gate waived"
				e.mu.Unlock()
			}
		}
	}

	obsmetrics.RecordWorkflowStep(string(models.StepCompleted))
	e.advance(ctx, instanceID)
}

func (e *Engine) failStep(instanceID, stepName, reason string) {
	e.mu.Lock()
	instance, ok := e.instances[instanceID]
	if !ok {
		e.mu.Unlock()
		return
	}
	si := instance.Steps[stepName]
	si.Status = models.StepFailed
	si.Error = reason
	instance.Status = models.WorkflowFailed
	instance.Error = reason
	e.mu.Unlock()

	obsmetrics.RecordWorkflowStep(string(models.StepFailed))
}

func (e *Engine) checkCompletion(instanceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	instance, ok := e.instances[instanceID]
	if !ok || instance.Status != models.WorkflowRunning {
		return
	}
	for _, si := range instance.Steps {
		if si.Status == models.StepPending || si.Status == models.StepRunning {
			return
		}
	}
	now := time.Now().UTC()
	instance.Status = models.WorkflowCompleted
	instance.CompletedAt = &now
}

// Cancel cancels every in-flight handoff for the instance and marks it
// CANCELLED; already-produced documents are retained (spec.md §5).
func (e *Engine) Cancel(ctx context.Context, instanceID, reason string) (*models.WorkflowInstance, error) {
	e.mu.Lock()
	instance, ok := e.instances[instanceID]
	if !ok {
		e.mu.Unlock()
		return nil, orcherr.NotFoundf("workflow instance %s not found", instanceID)
	}
	var inFlight []string
	for _, si := range instance.Steps {
		if si.Status == models.StepRunning && si.HandoffID != "" {
			inFlight = append(inFlight, si.HandoffID)
			si.Status = models.StepSkipped
		}
	}
	instance.Status = models.WorkflowCancelled
	now := time.Now().UTC()
	instance.CompletedAt = &now
	e.mu.Unlock()

	for _, id := range inFlight {
		if _, err := e.handoffs.Cancel(ctx, id, reason); err != nil {
			slog.Default().Warn("cancel in-flight handoff on workflow cancel failed", "instance_id", instanceID, "handoff_id", id, "error", err)
		}
	}

	return e.cloneInstance(instanceID)
}

// Status returns an instance's current state.
func (e *Engine) Status(instanceID string) (*models.WorkflowInstance, error) {
	return e.cloneInstance(instanceID)
}

func (e *Engine) cloneInstance(instanceID string) (*models.WorkflowInstance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	instance, ok := e.instances[instanceID]
	if !ok {
		return nil, orcherr.NotFoundf("workflow instance %s not found", instanceID)
	}
	cp := *instance
	cp.Steps = make(map[string]*models.StepInstance, len(instance.Steps))
	for name, si := range instance.Steps {
		siCopy := *si
		cp.Steps[name] = &siCopy
	}
	cp.ProducedDocIDs = append([]string(nil), instance.ProducedDocIDs...)
	return &cp, nil
}
