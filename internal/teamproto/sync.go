package teamproto

import (
	"context"
	"sync"
	"time"

	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

func scopedKey(teamID, id string) string { return teamID + "/" + id }

// DistBackend is implemented by a cross-process lock/semaphore provider
// (internal/cache.Client.NewDistBackend) and wired in via SetDistBackend
// when lock/semaphore state must be shared across orchestrator processes
// rather than held in this Protocol's own memory (SPEC_FULL.md §1.6).
type DistBackend interface {
	TryAcquireLock(ctx context.Context, teamID, lockID, holder string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, teamID, lockID, holder string) error
	AcquireSemaphorePermits(ctx context.Context, teamID, semID string, n int64) (bool, error)
	ReleaseSemaphorePermits(ctx context.Context, teamID, semID string, n int64) error
}

// distLockTTL bounds how long a distributed lock survives a holder crash
// before it is considered abandoned.
const distLockTTL = 30 * time.Second

// SetDistBackend enables cross-process locks/semaphores for every team;
// nil (the default) keeps the in-memory, single-process implementation.
func (p *Protocol) SetDistBackend(b DistBackend) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dist = b
}

// --- Barrier ---

type barrierState struct {
	mu       sync.Mutex
	arrived  map[string]bool
	released bool
	cond     *sync.Cond
}

// Barrier blocks the calling agent until expectedCount arrivals are
// observed (an expectedCount <= 0 means the number of agents connected to
// the team) or the context deadline elapses. The
// lexicographically smallest arrived agent id is responsible for the
// conceptual release broadcast; in this single-process implementation
// that translates to whichever goroutine observes the threshold first
// waking every other waiter via the shared condition variable.
func (p *Protocol) Barrier(ctx context.Context, teamID, barrierID, agentID string, expectedCount int) error {
	key := scopedKey(teamID, barrierID)

	p.mu.Lock()
	b, ok := p.barriers[key]
	if !ok {
		b = &barrierState{arrived: make(map[string]bool)}
		b.cond = sync.NewCond(&b.mu)
		p.barriers[key] = b
	}
	if expectedCount <= 0 {
		expectedCount = len(p.connections[teamID])
	}
	p.mu.Unlock()

	b.mu.Lock()
	b.arrived[agentID] = true
	if len(b.arrived) >= expectedCount {
		b.released = true
		b.cond.Broadcast()
	}
	for !b.released {
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				b.mu.Lock()
				b.cond.Broadcast()
				b.mu.Unlock()
			case <-done:
			}
		}()
		b.cond.Wait()
		close(done)
		if ctx.Err() != nil && !b.released {
			b.mu.Unlock()
			return orcherr.Wrap(orcherr.Timeout, "barrier wait timed out", ctx.Err())
		}
	}
	b.mu.Unlock()
	return nil
}

// --- Lock ---

type lockState struct {
	mu     sync.Mutex
	holder string
}

// AcquireLock busy-waits with back-off until the lock is free or the
// context is done, then sets the holder to agentID (spec.md §4.5: CAS to
// own id once free).
func (p *Protocol) AcquireLock(ctx context.Context, teamID, lockID, agentID string) error {
	p.mu.Lock()
	dist := p.dist
	p.mu.Unlock()
	if dist != nil {
		return p.acquireDistLock(ctx, dist, teamID, lockID, agentID)
	}

	key := scopedKey(teamID, lockID)

	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &lockState{}
		p.locks[key] = l
	}
	p.mu.Unlock()

	backoff := time.Millisecond
	for {
		l.mu.Lock()
		if l.holder == "" {
			l.holder = agentID
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return orcherr.Wrap(orcherr.Timeout, "lock acquire timed out", ctx.Err())
		case <-time.After(backoff):
			if backoff < 50*time.Millisecond {
				backoff *= 2
			}
		}
	}
}

func (p *Protocol) acquireDistLock(ctx context.Context, dist DistBackend, teamID, lockID, agentID string) error {
	backoff := time.Millisecond
	for {
		ok, err := dist.TryAcquireLock(ctx, teamID, lockID, agentID, distLockTTL)
		if err != nil {
			return orcherr.Wrap(orcherr.Fatal, "distributed lock acquire failed", err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return orcherr.Wrap(orcherr.Timeout, "lock acquire timed out", ctx.Err())
		case <-time.After(backoff):
			if backoff < 50*time.Millisecond {
				backoff *= 2
			}
		}
	}
}

// ReleaseLock clears the lock's holder; the caller must currently hold it.
func (p *Protocol) ReleaseLock(teamID, lockID, agentID string) error {
	p.mu.Lock()
	dist := p.dist
	p.mu.Unlock()
	if dist != nil {
		if err := dist.ReleaseLock(context.Background(), teamID, lockID, agentID); err != nil {
			return orcherr.Wrap(orcherr.Fatal, "distributed lock release failed", err)
		}
		return nil
	}

	key := scopedKey(teamID, lockID)

	p.mu.Lock()
	l, ok := p.locks[key]
	p.mu.Unlock()
	if !ok {
		return orcherr.NotFoundf("lock %s not found", lockID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder != agentID {
		return orcherr.New(orcherr.PermissionDenied, "release requires holding the lock")
	}
	l.holder = ""
	return nil
}

// --- Semaphore ---

type semaphoreState struct {
	mu      sync.Mutex
	permits int64
}

// AcquireSemaphore waits until at least n permits are available then
// decrements, or returns on context timeout.
func (p *Protocol) AcquireSemaphore(ctx context.Context, teamID, semID string, initial, n int64) error {
	p.mu.Lock()
	dist := p.dist
	p.mu.Unlock()
	if dist != nil {
		return p.acquireDistSemaphore(ctx, dist, teamID, semID, n)
	}

	key := scopedKey(teamID, semID)

	p.mu.Lock()
	s, ok := p.semaphores[key]
	if !ok {
		s = &semaphoreState{permits: initial}
		p.semaphores[key] = s
	}
	p.mu.Unlock()

	backoff := time.Millisecond
	for {
		s.mu.Lock()
		if s.permits >= n {
			s.permits -= n
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return orcherr.Wrap(orcherr.Timeout, "semaphore acquire timed out", ctx.Err())
		case <-time.After(backoff):
			if backoff < 50*time.Millisecond {
				backoff *= 2
			}
		}
	}
}

func (p *Protocol) acquireDistSemaphore(ctx context.Context, dist DistBackend, teamID, semID string, n int64) error {
	backoff := time.Millisecond
	for {
		ok, err := dist.AcquireSemaphorePermits(ctx, teamID, semID, n)
		if err != nil {
			return orcherr.Wrap(orcherr.Fatal, "distributed semaphore acquire failed", err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return orcherr.Wrap(orcherr.Timeout, "semaphore acquire timed out", ctx.Err())
		case <-time.After(backoff):
			if backoff < 50*time.Millisecond {
				backoff *= 2
			}
		}
	}
}

// ReleaseSemaphore increments permits by n.
func (p *Protocol) ReleaseSemaphore(teamID, semID string, n int64) error {
	p.mu.Lock()
	dist := p.dist
	p.mu.Unlock()
	if dist != nil {
		if err := dist.ReleaseSemaphorePermits(context.Background(), teamID, semID, n); err != nil {
			return orcherr.Wrap(orcherr.Fatal, "distributed semaphore release failed", err)
		}
		return nil
	}

	key := scopedKey(teamID, semID)

	p.mu.Lock()
	s, ok := p.semaphores[key]
	p.mu.Unlock()
	if !ok {
		return orcherr.NotFoundf("semaphore %s not found", semID)
	}

	s.mu.Lock()
	s.permits += n
	s.mu.Unlock()
	return nil
}

// --- Event ---

type eventState struct {
	mu   sync.Mutex
	set  bool
	cond *sync.Cond
}

// SetEvent idempotently sets the named event, waking all waiters.
func (p *Protocol) SetEvent(teamID, eventID string) {
	e := p.eventFor(teamID, eventID)
	e.mu.Lock()
	e.set = true
	e.cond.Broadcast()
	e.mu.Unlock()
}

// ClearEvent idempotently clears the named event.
func (p *Protocol) ClearEvent(teamID, eventID string) {
	e := p.eventFor(teamID, eventID)
	e.mu.Lock()
	e.set = false
	e.mu.Unlock()
}

// WaitEvent blocks until the event is set or the context is done.
func (p *Protocol) WaitEvent(ctx context.Context, teamID, eventID string) error {
	e := p.eventFor(teamID, eventID)

	e.mu.Lock()
	for !e.set {
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				e.mu.Lock()
				e.cond.Broadcast()
				e.mu.Unlock()
			case <-done:
			}
		}()
		e.cond.Wait()
		close(done)
		if ctx.Err() != nil && !e.set {
			e.mu.Unlock()
			return orcherr.Wrap(orcherr.Timeout, "event wait timed out", ctx.Err())
		}
	}
	e.mu.Unlock()
	return nil
}

func (p *Protocol) eventFor(teamID, eventID string) *eventState {
	key := scopedKey(teamID, eventID)

	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.events[key]
	if !ok {
		e = &eventState{}
		e.cond = sync.NewCond(&e.mu)
		p.events[key] = e
	}
	return e
}
