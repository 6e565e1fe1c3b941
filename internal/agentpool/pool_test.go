package agentpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxteam/orchestrator-core/internal/controlplane"
	"github.com/fluxteam/orchestrator-core/internal/models"
)

func newTestPool(size int) *Pool {
	control := controlplane.NewNoopControlPlane(controlplane.Resources{Cores: 1000, MemoryMB: 1000000, StorageMB: 1000000, BandwidthMb: 1000000})
	cfg := Config{MaxSize: 20, AutoScale: true, PerformanceFloor: 0.5, PerAgentCost: controlplane.Resources{Cores: 1}}
	return New(control, cfg, size)
}

func TestAllocateSelectsBySkillMatch(t *testing.T) {
	p := newTestPool(0)
	p.mu.Lock()
	a1 := p.spawnAgentLocked()
	a1.Skills = []string{"golang", "testing"}
	a2 := p.spawnAgentLocked()
	a2.Skills = []string{"golang"}
	p.mu.Unlock()

	agents, err := p.Allocate(context.Background(), Request{TeamID: "team-1", RequiredSkills: []string{"golang"}, OptionalSkills: []string{"testing"}, Count: 1})
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, a1.ID, agents[0].ID) // more matching skills scores higher
}

func TestAllocateQueuesOnShortage(t *testing.T) {
	p := newTestPool(0)
	cfg := Config{MaxSize: 0, AutoScale: false, PerformanceFloor: 0.5}
	p.maxSize = cfg.MaxSize
	p.autoScale = cfg.AutoScale

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Allocate(ctx, Request{TeamID: "team-1", Count: 1})
	assert.Error(t, err)
}

func TestReleaseDrainsQueue(t *testing.T) {
	p := newTestPool(1)

	// Take the only agent.
	agents, err := p.Allocate(context.Background(), Request{TeamID: "team-1", Count: 1})
	require.NoError(t, err)
	require.Len(t, agents, 1)

	// Queue a second request against the now-exhausted pool.
	p.autoScale = false
	resultCh := make(chan []*models.Agent, 1)
	go func() {
		got, err := p.Allocate(context.Background(), Request{TeamID: "team-2", Count: 1})
		require.NoError(t, err)
		resultCh <- got
	}()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, p.Release(context.Background(), "team-1", nil))

	select {
	case got := <-resultCh:
		require.Len(t, got, 1)
		assert.Equal(t, agents[0].ID, got[0].ID)
	case <-time.After(time.Second):
		t.Fatal("queued allocation was never drained")
	}
}

func TestUpdatePerformanceDemotesBelowFloor(t *testing.T) {
	p := newTestPool(1)
	status := p.Status()
	require.Len(t, status, 1)

	require.NoError(t, p.UpdatePerformance(status[0].ID, -0.9))
	p.HealthTick()

	updated := p.Status()
	assert.Equal(t, models.AgentMaintenance, updated[0].State)
}

func TestShutdownRejectsNewAllocations(t *testing.T) {
	p := newTestPool(1)
	p.Shutdown()

	_, err := p.Allocate(context.Background(), Request{TeamID: "team-1", Count: 1})
	assert.Error(t, err)
}
