package teamproto

import (
	"time"

	"github.com/google/uuid"

	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

// VoteOption is a ballot choice.
type VoteOption string

const (
	VoteYes     VoteOption = "yes"
	VoteNo      VoteOption = "no"
	VoteAbstain VoteOption = "abstain"
	VoteVeto    VoteOption = "veto"
)

// VoteOutcome is the tally result.
type VoteOutcome string

const (
	OutcomePending  VoteOutcome = "pending"
	OutcomePassed   VoteOutcome = "passed"
	OutcomeFailed   VoteOutcome = "failed"
	OutcomeVetoed   VoteOutcome = "vetoed"
	OutcomeNoQuorum VoteOutcome = "no_quorum"
)

// Ballot is one agent's submitted response. Reason is omitted from
// anonymous tallies.
type Ballot struct {
	AgentID string
	Option  VoteOption
	Reason  string
	At      time.Time
}

// Vote carries a proposal, its option set, deadline, pass threshold, and
// whether a single VETO response forces rejection regardless of threshold.
type Vote struct {
	ID          string
	TeamID      string
	Proposal    string
	Options     []VoteOption
	Deadline    time.Time
	Threshold   float64
	AllowVeto   bool
	Anonymous   bool
	TotalMembers int
	Responses   map[string]Ballot // last write wins per agent (spec.md §9 open question)
}

// TallyResult is the computed outcome of a vote.
type TallyResult struct {
	Outcome VoteOutcome
	Counts  map[VoteOption]int
	Reasons []string // omitted (nil) when the vote is anonymous
}

// CreateVote opens a new vote, snapshotting the option set and deadline
// so all voters observe a consistent view (spec.md §5 ordering guarantees).
func (p *Protocol) CreateVote(teamID, proposal string, totalMembers int, deadline time.Time, threshold float64, allowVeto, anonymous bool) *Vote {
	options := []VoteOption{VoteYes, VoteNo, VoteAbstain}
	if allowVeto {
		options = append(options, VoteVeto)
	}

	v := &Vote{
		ID:           uuid.New().String(),
		TeamID:       teamID,
		Proposal:     proposal,
		Options:      options,
		Deadline:     deadline,
		Threshold:    threshold,
		AllowVeto:    allowVeto,
		Anonymous:    anonymous,
		TotalMembers: totalMembers,
		Responses:    make(map[string]Ballot),
	}

	p.mu.Lock()
	p.votes[v.ID] = v
	p.mu.Unlock()
	return v
}

// Submit records agentID's ballot, accepted only while now is before the
// vote's deadline. Exactly one ballot per agent is kept; a resubmission
// overwrites the prior one (last write wins).
func (p *Protocol) Submit(voteID, agentID string, option VoteOption, reason string, now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.votes[voteID]
	if !ok {
		return orcherr.NotFoundf("vote %s not found", voteID)
	}
	if !now.Before(v.Deadline) {
		return ErrDeadlineAlreadyPassed
	}
	if option == VoteVeto && !v.AllowVeto {
		return orcherr.InvalidArgumentf("veto is not allowed on this vote")
	}

	v.Responses[agentID] = Ballot{AgentID: agentID, Option: option, Reason: reason, At: now}
	return nil
}

// Tally computes the outcome per spec.md §4.5's decision order: VETOED,
// then PASSED, then FAILED (any responses), else NO_QUORUM. The
// denominator for PASSED is total team members, so non-voters count
// against passage.
func (p *Protocol) Tally(voteID string) (TallyResult, error) {
	p.mu.Lock()
	v, ok := p.votes[voteID]
	if !ok {
		p.mu.Unlock()
		return TallyResult{}, orcherr.NotFoundf("vote %s not found", voteID)
	}
	responses := make(map[string]Ballot, len(v.Responses))
	for agent, b := range v.Responses {
		responses[agent] = b
	}
	allowVeto, anonymous, totalMembers, threshold := v.AllowVeto, v.Anonymous, v.TotalMembers, v.Threshold
	p.mu.Unlock()

	counts := map[VoteOption]int{}
	var reasons []string
	for _, b := range responses {
		counts[b.Option]++
		if !anonymous && b.Reason != "" {
			reasons = append(reasons, b.Reason)
		}
	}

	result := TallyResult{Counts: counts}
	if !anonymous {
		result.Reasons = reasons
	}

	switch {
	case allowVeto && counts[VoteVeto] > 0:
		result.Outcome = OutcomeVetoed
	case totalMembers > 0 && float64(counts[VoteYes])/float64(totalMembers) >= threshold:
		result.Outcome = OutcomePassed
	case len(responses) > 0:
		result.Outcome = OutcomeFailed
	default:
		result.Outcome = OutcomeNoQuorum
	}
	return result, nil
}
