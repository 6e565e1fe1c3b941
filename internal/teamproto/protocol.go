// Package teamproto implements the Team Protocol (C5): broadcast/status
// messaging, voting, and team-scoped synchronization primitives (barrier,
// lock, semaphore, event). Scheduling is single-threaded cooperative per
// agent, parallel across agents (spec.md §4.5); waits are cancellable by
// context deadline rather than a bespoke cancellation channel.
package teamproto

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

// StatusReport is one agent's self-reported progress.
type StatusReport struct {
	AgentID  string
	Status   string
	Progress float64
	Blockers []string
	At       time.Time
}

// AggregateStatus summarizes the last report from every team member.
type AggregateStatus struct {
	AverageProgress float64
	ByStatus        map[string]int
	Blockers        map[string]bool
}

// Connection delivers a message to one team member; broadcast fan-out
// calls one per recipient, in parallel, capturing errors per-recipient.
type Connection func(ctx context.Context, message any) error

// Protocol is team-scoped: every primitive below is namespaced by a
// team id, and ids of locks/semaphores/barriers/events collide only
// within a team (spec.md §4.5).
type Protocol struct {
	mu sync.Mutex

	connections map[string]map[string]Connection // team -> agent -> connection
	history     map[string][]BroadcastRecord      // team -> message history, append-only

	statuses map[string]map[string]StatusReport // team -> agent -> last report

	votes map[string]*Vote

	barriers   map[string]*barrierState
	locks      map[string]*lockState
	semaphores map[string]*semaphoreState
	events     map[string]*eventState

	dist DistBackend // optional cross-process lock/semaphore backend, nil by default
}

// New builds an empty protocol.
func New() *Protocol {
	return &Protocol{
		connections: make(map[string]map[string]Connection),
		history:     make(map[string][]BroadcastRecord),
		statuses:    make(map[string]map[string]StatusReport),
		votes:       make(map[string]*Vote),
		barriers:    make(map[string]*barrierState),
		locks:       make(map[string]*lockState),
		semaphores:  make(map[string]*semaphoreState),
		events:      make(map[string]*eventState),
	}
}

// Connect registers agentID's message connection for teamID.
func (p *Protocol) Connect(teamID, agentID string, conn Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connections[teamID] == nil {
		p.connections[teamID] = make(map[string]Connection)
	}
	p.connections[teamID][agentID] = conn
}

// Disconnect removes agentID's connection for teamID (e.g. on dissolution).
func (p *Protocol) Disconnect(teamID, agentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.connections[teamID], agentID)
}

// BroadcastRecord is one fanned-out message and its per-recipient outcome.
type BroadcastRecord struct {
	Sender  string
	Message any
	At      time.Time
	Results map[string]error // nil entry = delivered
}

// Broadcast fans out message to every connected member of teamID in
// parallel; per-recipient errors are captured, never propagated, and the
// message is appended to history unconditionally.
func (p *Protocol) Broadcast(ctx context.Context, teamID, sender string, message any) BroadcastRecord {
	p.mu.Lock()
	conns := make(map[string]Connection, len(p.connections[teamID]))
	for agent, conn := range p.connections[teamID] {
		conns[agent] = conn
	}
	p.mu.Unlock()

	record := BroadcastRecord{Sender: sender, Message: message, At: time.Now().UTC(), Results: make(map[string]error, len(conns))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(context.Background())
	for agent, conn := range conns {
		agent, conn := agent, conn
		g.Go(func() error {
			err := conn(gctx, message)
			mu.Lock()
			record.Results[agent] = err
			mu.Unlock()
			return nil // per-recipient errors are captured, not propagated
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	p.history[teamID] = append(p.history[teamID], record)
	p.mu.Unlock()

	return record
}

// History returns teamID's full append-only message history.
func (p *Protocol) History(teamID string) []BroadcastRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]BroadcastRecord(nil), p.history[teamID]...)
}

// ReportStatus records agentID's latest status report, replacing any prior one.
func (p *Protocol) ReportStatus(teamID string, report StatusReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.statuses[teamID] == nil {
		p.statuses[teamID] = make(map[string]StatusReport)
	}
	report.At = time.Now().UTC()
	p.statuses[teamID][report.AgentID] = report
}

// AggregateStatus averages numeric progress, distributes statuses, and
// unions blocker sets across the team's last reports (spec.md §4.5).
func (p *Protocol) AggregateStatus(teamID string) AggregateStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	reports := p.statuses[teamID]
	agg := AggregateStatus{ByStatus: make(map[string]int), Blockers: make(map[string]bool)}
	if len(reports) == 0 {
		return agg
	}

	var total float64
	for _, r := range reports {
		total += r.Progress
		agg.ByStatus[r.Status]++
		for _, b := range r.Blockers {
			agg.Blockers[b] = true
		}
	}
	agg.AverageProgress = total / float64(len(reports))
	return agg
}

// ErrDeadlineAlreadyPassed is returned by Submit once a vote's deadline has passed.
var ErrDeadlineAlreadyPassed = orcherr.New(orcherr.PreconditionFailed, "vote deadline already passed")
