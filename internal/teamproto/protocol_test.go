package teamproto

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastCapturesPerRecipientErrors(t *testing.T) {
	p := New()

	var mu sync.Mutex
	delivered := map[string]bool{}

	p.Connect("team-1", "agent-a", func(ctx context.Context, message any) error {
		mu.Lock()
		delivered["agent-a"] = true
		mu.Unlock()
		return nil
	})
	p.Connect("team-1", "agent-b", func(ctx context.Context, message any) error {
		return errors.New("connection dropped")
	})

	record := p.Broadcast(context.Background(), "team-1", "agent-a", "status check")

	assert.NoError(t, record.Results["agent-a"])
	assert.Error(t, record.Results["agent-b"])
	assert.True(t, delivered["agent-a"])

	history := p.History("team-1")
	require.Len(t, history, 1)
	assert.Equal(t, "status check", history[0].Message)
}

func TestDisconnectRemovesFromBroadcast(t *testing.T) {
	p := New()
	p.Connect("team-1", "agent-a", func(ctx context.Context, message any) error { return nil })
	p.Disconnect("team-1", "agent-a")

	record := p.Broadcast(context.Background(), "team-1", "agent-b", "ping")
	assert.Empty(t, record.Results)
}

func TestAggregateStatusAveragesAndUnionsBlockers(t *testing.T) {
	p := New()
	p.ReportStatus("team-1", StatusReport{AgentID: "a", Status: "working", Progress: 0.4, Blockers: []string{"waiting-on-review"}})
	p.ReportStatus("team-1", StatusReport{AgentID: "b", Status: "blocked", Progress: 0.2, Blockers: []string{"missing-creds"}})
	p.ReportStatus("team-1", StatusReport{AgentID: "a", Status: "working", Progress: 0.6}) // overwrites a's prior report

	agg := p.AggregateStatus("team-1")
	assert.InDelta(t, 0.4, agg.AverageProgress, 1e-9) // (0.6 + 0.2) / 2
	assert.Equal(t, 1, agg.ByStatus["working"])
	assert.Equal(t, 1, agg.ByStatus["blocked"])
	assert.True(t, agg.Blockers["missing-creds"])
	assert.False(t, agg.Blockers["waiting-on-review"]) // superseded by a's second report
}

func TestAggregateStatusEmptyTeamReturnsZeroValue(t *testing.T) {
	p := New()
	agg := p.AggregateStatus("no-such-team")
	assert.Zero(t, agg.AverageProgress)
	assert.Empty(t, agg.ByStatus)
}

// TestTallyVetoOutranksThreshold reproduces the spec's concrete veto
// scenario: team of 5, allow_veto=true, threshold=0.5, responses
// 3xYES + 1xVETO + 1xNO -> VETOED despite YES clearing the threshold.
func TestTallyVetoOutranksThreshold(t *testing.T) {
	p := New()
	v := p.CreateVote("team-1", "adopt plan", 5, time.Now().Add(time.Hour), 0.5, true, false)

	require.NoError(t, p.Submit(v.ID, "a1", VoteYes, "looks good", time.Now()))
	require.NoError(t, p.Submit(v.ID, "a2", VoteYes, "", time.Now()))
	require.NoError(t, p.Submit(v.ID, "a3", VoteYes, "", time.Now()))
	require.NoError(t, p.Submit(v.ID, "a4", VoteVeto, "blocks rollout", time.Now()))
	require.NoError(t, p.Submit(v.ID, "a5", VoteNo, "", time.Now()))

	result, err := p.Tally(v.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeVetoed, result.Outcome)
	assert.Equal(t, 3, result.Counts[VoteYes])
	assert.Contains(t, result.Reasons, "blocks rollout")
}

func TestTallyPassesWhenYesMeetsThresholdOfTotalMembers(t *testing.T) {
	p := New()
	v := p.CreateVote("team-1", "ship it", 4, time.Now().Add(time.Hour), 0.5, false, false)

	require.NoError(t, p.Submit(v.ID, "a1", VoteYes, "", time.Now()))
	require.NoError(t, p.Submit(v.ID, "a2", VoteYes, "", time.Now()))
	// a3, a4 never vote; denominator is total_members (4), so 2/4 = 0.5 >= threshold

	result, err := p.Tally(v.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomePassed, result.Outcome)
}

func TestTallyNoResponsesIsNoQuorum(t *testing.T) {
	p := New()
	v := p.CreateVote("team-1", "idle proposal", 3, time.Now().Add(time.Hour), 0.5, false, false)

	result, err := p.Tally(v.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoQuorum, result.Outcome)
}

func TestTallyAnonymousOmitsReasons(t *testing.T) {
	p := New()
	v := p.CreateVote("team-1", "anon proposal", 1, time.Now().Add(time.Hour), 0.5, false, true)
	require.NoError(t, p.Submit(v.ID, "a1", VoteYes, "my reason", time.Now()))

	result, err := p.Tally(v.ID)
	require.NoError(t, err)
	assert.Nil(t, result.Reasons)
}

func TestSubmitRejectsPastDeadline(t *testing.T) {
	p := New()
	v := p.CreateVote("team-1", "late proposal", 1, time.Now().Add(-time.Minute), 0.5, false, false)
	err := p.Submit(v.ID, "a1", VoteYes, "", time.Now())
	assert.ErrorIs(t, err, ErrDeadlineAlreadyPassed)
}

func TestSubmitLastWriteWins(t *testing.T) {
	p := New()
	v := p.CreateVote("team-1", "proposal", 1, time.Now().Add(time.Hour), 0.5, false, false)
	require.NoError(t, p.Submit(v.ID, "a1", VoteNo, "initial", time.Now()))
	require.NoError(t, p.Submit(v.ID, "a1", VoteYes, "changed my mind", time.Now()))

	result, err := p.Tally(v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts[VoteYes])
	assert.Equal(t, 0, result.Counts[VoteNo])
}

func TestBarrierReleasesAllWaitersAtExpectedCount(t *testing.T) {
	p := New()
	var wg sync.WaitGroup
	errs := make([]error, 3)

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			errs[idx] = p.Barrier(ctx, "team-1", "checkpoint", string(rune('a'+idx)), 3)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestBarrierTimesOutWhenExpectedCountNeverReached(t *testing.T) {
	p := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Barrier(ctx, "team-1", "checkpoint", "solo-agent", 3)
	assert.Error(t, err)
}

func TestLockExcludesConcurrentHolders(t *testing.T) {
	p := New()
	require.NoError(t, p.AcquireLock(context.Background(), "team-1", "res", "agent-a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.AcquireLock(ctx, "team-1", "res", "agent-b")
	assert.Error(t, err)

	require.NoError(t, p.ReleaseLock("team-1", "res", "agent-a"))
	require.NoError(t, p.AcquireLock(context.Background(), "team-1", "res", "agent-b"))
}

func TestReleaseLockRequiresHolder(t *testing.T) {
	p := New()
	require.NoError(t, p.AcquireLock(context.Background(), "team-1", "res", "agent-a"))
	err := p.ReleaseLock("team-1", "res", "agent-b")
	assert.Error(t, err)
}

func TestSemaphoreBlocksBeyondCapacity(t *testing.T) {
	p := New()
	require.NoError(t, p.AcquireSemaphore(context.Background(), "team-1", "pool", 2, 1))
	require.NoError(t, p.AcquireSemaphore(context.Background(), "team-1", "pool", 2, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.AcquireSemaphore(ctx, "team-1", "pool", 2, 1)
	assert.Error(t, err)

	require.NoError(t, p.ReleaseSemaphore("team-1", "pool", 1))
	require.NoError(t, p.AcquireSemaphore(context.Background(), "team-1", "pool", 2, 1))
}

func TestEventSetWakesWaitersAndClearResetsIt(t *testing.T) {
	p := New()
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- p.WaitEvent(ctx, "team-1", "ready")
	}()

	time.Sleep(5 * time.Millisecond)
	p.SetEvent("team-1", "ready")
	require.NoError(t, <-done)

	p.ClearEvent("team-1", "ready")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, p.WaitEvent(ctx, "team-1", "ready"))
}

type fakeDistBackend struct {
	mu      sync.Mutex
	holders map[string]string
	permits map[string]int64
}

func newFakeDistBackend() *fakeDistBackend {
	return &fakeDistBackend{holders: make(map[string]string), permits: make(map[string]int64)}
}

func (f *fakeDistBackend) TryAcquireLock(ctx context.Context, teamID, lockID, holder string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := teamID + "/" + lockID
	if f.holders[key] != "" {
		return false, nil
	}
	f.holders[key] = holder
	return true, nil
}

func (f *fakeDistBackend) ReleaseLock(ctx context.Context, teamID, lockID, holder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := teamID + "/" + lockID
	if f.holders[key] == holder {
		delete(f.holders, key)
	}
	return nil
}

func (f *fakeDistBackend) AcquireSemaphorePermits(ctx context.Context, teamID, semID string, n int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := teamID + "/" + semID
	if _, ok := f.permits[key]; !ok {
		f.permits[key] = 2
	}
	if f.permits[key] < n {
		return false, nil
	}
	f.permits[key] -= n
	return true, nil
}

func (f *fakeDistBackend) ReleaseSemaphorePermits(ctx context.Context, teamID, semID string, n int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permits[teamID+"/"+semID] += n
	return nil
}

func TestDistBackendDelegatesLockAcrossInstances(t *testing.T) {
	backend := newFakeDistBackend()
	p1 := New()
	p1.SetDistBackend(backend)
	p2 := New()
	p2.SetDistBackend(backend)

	require.NoError(t, p1.AcquireLock(context.Background(), "team-1", "res", "agent-a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p2.AcquireLock(ctx, "team-1", "res", "agent-b")
	assert.Error(t, err, "a second protocol instance sharing the backend must see the lock held")

	require.NoError(t, p1.ReleaseLock("team-1", "res", "agent-a"))
	require.NoError(t, p2.AcquireLock(context.Background(), "team-1", "res", "agent-b"))
}
