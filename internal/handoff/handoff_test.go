package handoff

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxteam/orchestrator-core/internal/models"
)

type fakeRegistry struct {
	mu      sync.Mutex
	granted map[string]models.AccessLevel
	revoked []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{granted: make(map[string]models.AccessLevel)}
}

func (f *fakeRegistry) GrantAccess(ctx context.Context, docID, actor, agentID string, level models.AccessLevel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.granted[agentID] = level
	return nil
}

func (f *fakeRegistry) RevokeAccess(ctx context.Context, docID, actor, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, agentID)
	return nil
}

func TestCreateGrantsReadAccess(t *testing.T) {
	reg := newFakeRegistry()
	p := New(reg)
	ctx := context.Background()

	h, err := p.Create(ctx, CreateRequest{DocumentID: "doc-1", From: "a1", To: "a2", ExpectedAction: models.ActionReview})
	require.NoError(t, err)
	assert.Equal(t, models.HandoffPending, h.Status)

	reg.mu.Lock()
	assert.Equal(t, models.AccessRead, reg.granted["a2"])
	reg.mu.Unlock()
}

func TestAcceptGrantsWriteForEditLikeAction(t *testing.T) {
	reg := newFakeRegistry()
	p := New(reg)
	ctx := context.Background()

	h, err := p.Create(ctx, CreateRequest{DocumentID: "doc-1", From: "a1", To: "a2", ExpectedAction: models.ActionEdit})
	require.NoError(t, err)

	_, err = p.Deliver(ctx, h.ID)
	require.NoError(t, err)

	_, err = p.Accept(ctx, h.ID)
	require.NoError(t, err)

	reg.mu.Lock()
	assert.Equal(t, models.AccessWrite, reg.granted["a2"])
	reg.mu.Unlock()
}

func TestCompleteWithFailingValidatorYieldsFailed(t *testing.T) {
	p := New(nil)
	ctx := context.Background()

	p.RegisterValidator("strict", validatorFunc(func(ctx context.Context, h *models.Handoff, resultDocID string) (bool, string) {
		return false, "missing tests"
	}))

	h, err := p.Create(ctx, CreateRequest{DocumentID: "doc-1", From: "a1", To: "a2", ValidatorID: "strict"})
	require.NoError(t, err)
	_, err = p.Deliver(ctx, h.ID)
	require.NoError(t, err)
	_, err = p.Accept(ctx, h.ID)
	require.NoError(t, err)

	completed, err := p.Complete(ctx, h.ID, "result-doc")
	require.NoError(t, err)
	assert.Equal(t, models.HandoffFailed, completed.Status)
	assert.Equal(t, "missing tests", completed.FailureReason)
}

type validatorFunc func(ctx context.Context, h *models.Handoff, resultDocID string) (bool, string)

func (f validatorFunc) Validate(ctx context.Context, h *models.Handoff, resultDocID string) (bool, string) {
	return f(ctx, h, resultDocID)
}

func TestQueueOrderedByPriorityThenAge(t *testing.T) {
	p := New(nil)
	ctx := context.Background()

	_, err := p.Create(ctx, CreateRequest{DocumentID: "d1", From: "a1", To: "a2", Priority: models.PriorityLow})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	urgent, err := p.Create(ctx, CreateRequest{DocumentID: "d2", From: "a1", To: "a2", Priority: models.PriorityCritical})
	require.NoError(t, err)

	queue := p.Queue("a2")
	require.Len(t, queue, 2)
	assert.Equal(t, urgent.ID, queue[0].ID)
}

func TestCheckDeadlinesReturnsOverdueActive(t *testing.T) {
	p := New(nil)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	h, err := p.Create(ctx, CreateRequest{DocumentID: "d1", From: "a1", To: "a2", Deadline: &past})
	require.NoError(t, err)

	overdue := p.CheckDeadlines(time.Now())
	require.Len(t, overdue, 1)
	assert.Equal(t, h.ID, overdue[0].ID)
}

func TestTransferMovesQueueAndACLs(t *testing.T) {
	reg := newFakeRegistry()
	p := New(reg)
	ctx := context.Background()

	h, err := p.Create(ctx, CreateRequest{DocumentID: "d1", From: "a1", To: "a2"})
	require.NoError(t, err)

	_, err = p.Transfer(ctx, h.ID, "a3")
	require.NoError(t, err)

	assert.Empty(t, p.Queue("a2"))
	require.Len(t, p.Queue("a3"), 1)

	reg.mu.Lock()
	assert.Contains(t, reg.revoked, "a2")
	assert.Equal(t, models.AccessRead, reg.granted["a3"])
	reg.mu.Unlock()
}
