// Package handoff implements the Handoff Protocol (C2): a typed transfer
// of responsibility over a document between agents, with a bounded state
// machine, per-agent priority queues, and fire-and-forget notifications.
package handoff

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluxteam/orchestrator-core/internal/audit"
	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/obsmetrics"
	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

// AccessGranter is the subset of the Document Registry the protocol needs
// to apply ACL side effects on handoff transitions.
type AccessGranter interface {
	GrantAccess(ctx context.Context, docID, actor, agentID string, level models.AccessLevel) error
	RevokeAccess(ctx context.Context, docID, actor, agentID string) error
}

// Validator checks a completed handoff's result document and returns a
// failure reason when validation does not pass.
type Validator interface {
	Validate(ctx context.Context, h *models.Handoff, resultDocID string) (ok bool, reason string)
}

// Handler receives fire-and-forget notifications for one agent.
type Handler func(ctx context.Context, h *models.Handoff, notification models.NotificationType)

// Protocol owns all handoffs and their per-agent delivery queues.
type Protocol struct {
	mu sync.RWMutex

	handoffs map[string]*models.Handoff
	queues   map[string][]string // agent id -> handoff ids, kept sorted

	handlers   map[string][]Handler
	validators map[string]Validator // validator id -> implementation

	registry AccessGranter
	audit    *audit.Logger
}

// New builds an empty protocol. reg may be nil to run without ACL side effects.
func New(reg AccessGranter) *Protocol {
	return &Protocol{
		handoffs:   make(map[string]*models.Handoff),
		queues:     make(map[string][]string),
		handlers:   make(map[string][]Handler),
		validators: make(map[string]Validator),
		registry:   reg,
	}
}

// SetRegistry wires the document registry used for ACL side effects.
func (p *Protocol) SetRegistry(reg AccessGranter) { p.registry = reg }

// SetAudit wires an audit trail for every transition this protocol drives.
func (p *Protocol) SetAudit(l *audit.Logger) { p.audit = l }

// RegisterValidator makes a named validator available to complete().
func (p *Protocol) RegisterValidator(id string, v Validator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validators[id] = v
}

// OnNotify registers a handler invoked for every transition of a handoff
// whose recipient is agentID; the sender's handlers are not notified.
func (p *Protocol) OnNotify(agentID string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[agentID] = append(p.handlers[agentID], h)
}

// CreateRequest describes a new handoff.
type CreateRequest struct {
	DocumentID     string
	From           string
	To             string
	Reason         string
	Instructions   string
	ExpectedAction models.ExpectedAction
	Priority       models.Priority
	Deadline       *time.Time
	ValidatorID    string
	WorkflowID     string
}

// Create opens a new handoff in PENDING and grants the recipient READ
// access on the document (spec.md §4.2 side effects).
func (p *Protocol) Create(ctx context.Context, req CreateRequest) (*models.Handoff, error) {
	if req.DocumentID == "" || req.From == "" || req.To == "" {
		return nil, orcherr.InvalidArgumentf("document, from, and to are required")
	}

	h := &models.Handoff{
		ID:             uuid.New().String(),
		DocumentID:     req.DocumentID,
		FromAgent:      req.From,
		ToAgent:        req.To,
		Reason:         req.Reason,
		Instructions:   req.Instructions,
		ExpectedAction: req.ExpectedAction,
		Priority:       req.Priority,
		Status:         models.HandoffPending,
		CreatedAt:      time.Now().UTC(),
		Deadline:       req.Deadline,
		ValidatorID:    req.ValidatorID,
		WorkflowID:     req.WorkflowID,
	}
	if h.Priority == 0 {
		h.Priority = models.PriorityMedium
	}

	p.mu.Lock()
	p.handoffs[h.ID] = h
	p.enqueue(req.To, h.ID)
	p.mu.Unlock()

	if p.registry != nil {
		if err := p.registry.GrantAccess(ctx, req.DocumentID, req.From, req.To, models.AccessRead); err != nil {
			slog.Default().Warn("grant read access on handoff create failed", "handoff_id", h.ID, "error", err)
		}
	}

	obsmetrics.RecordHandoffTransition(string(models.HandoffPending))
	p.notify(ctx, h, models.NotifyNew)
	return h.Clone(), nil
}

func (p *Protocol) enqueue(agentID, handoffID string) {
	ids := p.queues[agentID]
	ids = append(ids, handoffID)
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := p.handoffs[ids[i]], p.handoffs[ids[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	p.queues[agentID] = ids
}

func (p *Protocol) dequeue(agentID, handoffID string) {
	ids := p.queues[agentID]
	for i, id := range ids {
		if id == handoffID {
			p.queues[agentID] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// Queue returns the recipient's pending/delivered handoffs in priority order.
func (p *Protocol) Queue(agentID string) []*models.Handoff {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := p.queues[agentID]
	out := make([]*models.Handoff, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.handoffs[id].Clone())
	}
	return out
}

func (p *Protocol) transition(ctx context.Context, id string, from []models.HandoffStatus, to models.HandoffStatus, mutate func(*models.Handoff)) (*models.Handoff, error) {
	p.mu.Lock()
	h, ok := p.handoffs[id]
	if !ok {
		p.mu.Unlock()
		return nil, orcherr.NotFoundf("handoff %s not found", id)
	}
	if !statusIn(h.Status, from) {
		p.mu.Unlock()
		return nil, orcherr.New(orcherr.PreconditionFailed, "handoff not in a valid state for this transition")
	}
	h.Status = to
	if mutate != nil {
		mutate(h)
	}
	result := h.Clone()
	p.mu.Unlock()

	obsmetrics.RecordHandoffTransition(string(to))
	if p.audit != nil {
		p.audit.LogHandoffTransition(ctx, id, result.FromAgent, string(to))
	}
	return result, nil
}

func statusIn(s models.HandoffStatus, set []models.HandoffStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Deliver marks a pending handoff as delivered to its recipient.
func (p *Protocol) Deliver(ctx context.Context, id string) (*models.Handoff, error) {
	now := time.Now().UTC()
	h, err := p.transition(ctx, id, []models.HandoffStatus{models.HandoffPending}, models.HandoffDelivered, func(h *models.Handoff) {
		h.DeliveredAt = &now
	})
	if err != nil {
		return nil, err
	}
	p.notify(ctx, h, models.NotifyDelivered)
	return h, nil
}

// Accept marks a pending or delivered handoff accepted, granting WRITE access when
// the expected action is edit-like.
func (p *Protocol) Accept(ctx context.Context, id string) (*models.Handoff, error) {
	h, err := p.transition(ctx, id, []models.HandoffStatus{models.HandoffDelivered, models.HandoffPending}, models.HandoffAccepted, nil)
	if err != nil {
		return nil, err
	}

	if p.registry != nil && h.ExpectedAction.IsEditLike() {
		if err := p.registry.GrantAccess(ctx, h.DocumentID, h.FromAgent, h.ToAgent, models.AccessWrite); err != nil {
			slog.Default().Warn("grant write access on handoff accept failed", "handoff_id", h.ID, "error", err)
		}
	}

	p.notify(ctx, h, models.NotifyAccepted)
	return h, nil
}

// Reject marks an active handoff rejected, recording the reason.
func (p *Protocol) Reject(ctx context.Context, id, reason string) (*models.Handoff, error) {
	h, err := p.transition(ctx, id, []models.HandoffStatus{models.HandoffPending, models.HandoffDelivered}, models.HandoffRejected, func(h *models.Handoff) {
		h.FailureReason = reason
	})
	if err != nil {
		return nil, err
	}
	p.removeFromQueue(h)
	p.notify(ctx, h, models.NotifyRejected)
	return h, nil
}

// Cancel withdraws an active handoff, recording the reason.
func (p *Protocol) Cancel(ctx context.Context, id, reason string) (*models.Handoff, error) {
	h, err := p.transition(ctx, id, []models.HandoffStatus{models.HandoffPending, models.HandoffDelivered, models.HandoffAccepted}, models.HandoffCancelled, func(h *models.Handoff) {
		h.FailureReason = reason
	})
	if err != nil {
		return nil, err
	}
	p.removeFromQueue(h)
	p.notify(ctx, h, models.NotifyCancelled)
	return h, nil
}

// Complete finishes an accepted handoff, invoking its declared validator
// when present. Validation failure yields FAILED, preserving the handoff
// for audit rather than raising an error.
func (p *Protocol) Complete(ctx context.Context, id, resultDocID string) (*models.Handoff, error) {
	p.mu.RLock()
	h, ok := p.handoffs[id]
	var validator Validator
	if ok && h.ValidatorID != "" {
		validator = p.validators[h.ValidatorID]
	}
	p.mu.RUnlock()
	if !ok {
		return nil, orcherr.NotFoundf("handoff %s not found", id)
	}

	if validator != nil {
		if ok, reason := validator.Validate(ctx, h, resultDocID); !ok {
			now := time.Now().UTC()
			failed, err := p.transition(ctx, id, []models.HandoffStatus{models.HandoffAccepted}, models.HandoffFailed, func(h *models.Handoff) {
				h.FailureReason = reason
				h.CompletedAt = &now
			})
			if err != nil {
				return nil, err
			}
			p.removeFromQueue(failed)
			p.notify(ctx, failed, models.NotifyFailed)
			return failed, nil
		}
	}

	now := time.Now().UTC()
	completed, err := p.transition(ctx, id, []models.HandoffStatus{models.HandoffAccepted}, models.HandoffCompleted, func(h *models.Handoff) {
		h.CompletedAt = &now
		h.ResultDocumentID = resultDocID
	})
	if err != nil {
		return nil, err
	}
	p.removeFromQueue(completed)
	p.notify(ctx, completed, models.NotifyCompleted)
	return completed, nil
}

// Transfer reassigns an active handoff to a new recipient, revoking the
// old recipient's READ and granting it to the new one.
func (p *Protocol) Transfer(ctx context.Context, id, newAgent string) (*models.Handoff, error) {
	p.mu.Lock()
	h, ok := p.handoffs[id]
	if !ok {
		p.mu.Unlock()
		return nil, orcherr.NotFoundf("handoff %s not found", id)
	}
	if h.IsTerminal() {
		p.mu.Unlock()
		return nil, orcherr.New(orcherr.PreconditionFailed, "cannot transfer a terminal handoff")
	}
	oldAgent := h.ToAgent
	p.dequeue(oldAgent, id)
	h.ToAgent = newAgent
	h.Status = models.HandoffDelivered
	p.enqueue(newAgent, id)
	result := h.Clone()
	p.mu.Unlock()

	obsmetrics.RecordHandoffTransition(string(result.Status))
	if p.audit != nil {
		p.audit.LogHandoffTransition(ctx, id, result.FromAgent, string(result.Status))
	}

	if p.registry != nil {
		if err := p.registry.RevokeAccess(ctx, h.DocumentID, h.FromAgent, oldAgent); err != nil {
			slog.Default().Warn("revoke access on transfer failed", "handoff_id", id, "error", err)
		}
		if err := p.registry.GrantAccess(ctx, h.DocumentID, h.FromAgent, newAgent, models.AccessRead); err != nil {
			slog.Default().Warn("grant access on transfer failed", "handoff_id", id, "error", err)
		}
	}

	p.notify(ctx, result, models.NotifyTransferred)
	return result, nil
}

func (p *Protocol) removeFromQueue(h *models.Handoff) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dequeue(h.ToAgent, h.ID)
}

// Get fetches a handoff by id.
func (p *Protocol) Get(id string) (*models.Handoff, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handoffs[id]
	if !ok {
		return nil, orcherr.NotFoundf("handoff %s not found", id)
	}
	return h.Clone(), nil
}

// CheckDeadlines returns active handoffs whose deadline has passed.
// Escalation policy (cancel/reassign) is left to the caller.
func (p *Protocol) CheckDeadlines(now time.Time) []*models.Handoff {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var overdue []*models.Handoff
	for _, h := range p.handoffs {
		if h.IsOverdue(now) {
			overdue = append(overdue, h.Clone())
		}
	}
	sort.Slice(overdue, func(i, j int) bool { return overdue[i].CreatedAt.Before(overdue[j].CreatedAt) })
	return overdue
}

// notify fans out to the recipient's registered handlers. Handler panics
// and errors are never allowed to affect the transition that triggered
// them (spec.md §4.2: "must not block the state transition").
func (p *Protocol) notify(ctx context.Context, h *models.Handoff, n models.NotificationType) {
	p.mu.RLock()
	handlers := append([]Handler(nil), p.handlers[h.ToAgent]...)
	p.mu.RUnlock()

	for _, handler := range handlers {
		go func(handler Handler) {
			defer func() {
				if r := recover(); r != nil {
					slog.Default().Error("handoff notification handler panicked", "recover", r, "handoff_id", h.ID)
				}
			}()
			handler(ctx, h, n)
		}(handler)
	}
}

