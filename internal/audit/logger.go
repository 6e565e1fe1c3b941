// Package audit records a durable trail of orchestration decisions:
// team formation/dissolution, handoff transitions, quality gate
// decisions, and control-plane policy denials.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType represents categories of audit events.
type EventType string

const (
	EventTeamFormed       EventType = "team_formed"
	EventTeamDissolved    EventType = "team_dissolved"
	EventHandoffCreated   EventType = "handoff_created"
	EventHandoffCompleted EventType = "handoff_completed"
	EventGateDecision     EventType = "gate_decision"
	EventPolicyDenied     EventType = "policy_denied"
	EventResourceDenied   EventType = "resource_denied"
	EventAgentAllocated   EventType = "agent_allocated"
)

// Severity represents event severity.
type Severity string

const (
	SevInfo     Severity = "info"
	SevWarning  Severity = "warning"
	SevCritical Severity = "critical"
)

// Event represents a single audit event.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Severity  Severity       `json:"severity"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Status    string         `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

type correlationKey struct{}

// WithRequestID attaches a request id to ctx for downstream Log calls.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// Logger handles audit event recording over a buffered channel.
type Logger struct {
	backend chan Event
}

// NewLogger creates an audit logger with the given channel buffer size.
func NewLogger(bufferSize int) *Logger {
	l := &Logger{backend: make(chan Event, bufferSize)}
	go l.process()
	return l
}

// Log records an audit event, never blocking the caller.
func (l *Logger) Log(ctx context.Context, event Event) {
	event.ID = uuid.New().String()
	event.Timestamp = time.Now().UTC()

	if reqID, ok := ctx.Value(correlationKey{}).(string); ok {
		event.RequestID = reqID
	}

	select {
	case l.backend <- event:
	default:
		slog.Error("audit buffer full, dropping event", "type", event.Type)
	}
}

func (l *Logger) process() {
	for event := range l.backend {
		data, _ := json.Marshal(event)
		slog.Info("audit", "event", string(data))
	}
}

// LogTeamFormed records team formation.
func (l *Logger) LogTeamFormed(ctx context.Context, teamID, mission string, size int) {
	l.Log(ctx, Event{
		Type:     EventTeamFormed,
		Severity: SevInfo,
		Actor:    "team_orchestrator",
		Action:   "form",
		Resource: teamID,
		Status:   "success",
		Details:  map[string]any{"mission": mission, "size": size},
	})
}

// LogTeamDissolved records team dissolution.
func (l *Logger) LogTeamDissolved(ctx context.Context, teamID, reason string) {
	l.Log(ctx, Event{
		Type:     EventTeamDissolved,
		Severity: SevInfo,
		Actor:    "team_orchestrator",
		Action:   "dissolve",
		Resource: teamID,
		Status:   "success",
		Details:  map[string]any{"reason": reason},
	})
}

// LogHandoffTransition records a handoff state transition.
func (l *Logger) LogHandoffTransition(ctx context.Context, handoffID, from, status string) {
	l.Log(ctx, Event{
		Type:     EventHandoffCompleted,
		Severity: SevInfo,
		Actor:    from,
		Action:   "transition",
		Resource: handoffID,
		Status:   status,
	})
}

// LogGateDecision records a quality gate decision.
func (l *Logger) LogGateDecision(ctx context.Context, gateID, target, decision string, critical, high int) {
	sev := SevInfo
	if decision == "FAIL" {
		sev = SevCritical
	} else if decision == "CONCERNS" {
		sev = SevWarning
	}
	l.Log(ctx, Event{
		Type:     EventGateDecision,
		Severity: sev,
		Actor:    "quality_gate",
		Action:   "evaluate",
		Resource: gateID,
		Status:   decision,
		Details:  map[string]any{"target": target, "critical_issues": critical, "high_issues": high},
	})
}

// LogPolicyDenied records a control-plane policy rejection.
func (l *Logger) LogPolicyDenied(ctx context.Context, decision string, reasons []string) {
	l.Log(ctx, Event{
		Type:     EventPolicyDenied,
		Severity: SevWarning,
		Actor:    "control_plane",
		Action:   "validate",
		Resource: decision,
		Status:   "denied",
		Details:  map[string]any{"reasons": reasons},
	})
}

// LogResourceDenied records a resource-allocator rejection.
func (l *Logger) LogResourceDenied(ctx context.Context, teamID string, reason string) {
	l.Log(ctx, Event{
		Type:     EventResourceDenied,
		Severity: SevWarning,
		Actor:    "control_plane",
		Action:   "reserve",
		Resource: teamID,
		Status:   "denied",
		Details:  map[string]any{"reason": reason},
	})
}
