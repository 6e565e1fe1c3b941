package team

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxteam/orchestrator-core/internal/agentpool"
	"github.com/fluxteam/orchestrator-core/internal/controlplane"
	"github.com/fluxteam/orchestrator-core/internal/models"
)

func newTestOrchestrator(poolSize int) (*Orchestrator, *agentpool.Pool) {
	control := controlplane.NewNoopControlPlane(controlplane.Resources{Cores: 1000, MemoryMB: 1e9, StorageMB: 1e9, BandwidthMb: 1e9})
	pool := agentpool.New(control, agentpool.Config{MaxSize: 50, AutoScale: true, PerformanceFloor: 0.5, PerAgentCost: controlplane.Resources{Cores: 1}}, poolSize)
	cfg := Config{
		MinSize: 1, MaxSize: 10, MaxTeams: 5, LeaderThreshold: 3,
		AutoDissolveIdle: time.Hour, PerformingThreshold: 0.7,
		BaseResources:      controlplane.Resources{Cores: 1},
		PerMemberResources: controlplane.Resources{Cores: 1},
	}
	return New(pool, control, cfg), pool
}

func TestFormTeamAssignsLeaderAboveThreshold(t *testing.T) {
	o, _ := newTestOrchestrator(5)
	team, err := o.FormTeam(context.Background(), FormRequest{Mission: "ship it", Size: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, team.Size())

	leaderCount := 0
	for _, m := range team.Members {
		if m.Role == models.RoleLeader {
			leaderCount++
		}
	}
	assert.Equal(t, 1, leaderCount)
}

func TestFormTeamRejectsOutOfRangeSize(t *testing.T) {
	o, _ := newTestOrchestrator(5)
	_, err := o.FormTeam(context.Background(), FormRequest{Mission: "x", Size: 100})
	assert.Error(t, err)
}

func TestFormTeamRejectsWhenAtMaxTeams(t *testing.T) {
	o, _ := newTestOrchestrator(20)
	for i := 0; i < 5; i++ {
		_, err := o.FormTeam(context.Background(), FormRequest{Mission: "x", Size: 1})
		require.NoError(t, err)
	}
	_, err := o.FormTeam(context.Background(), FormRequest{Mission: "x", Size: 1})
	assert.Error(t, err)
}

func TestCompleteTaskUpdatesRollingMetricsAndPromotesNorming(t *testing.T) {
	o, _ := newTestOrchestrator(3)
	team, err := o.FormTeam(context.Background(), FormRequest{Mission: "x", Size: 2})
	require.NoError(t, err)

	require.NoError(t, o.AssignTask(team.ID, "task-1"))
	require.NoError(t, o.CompleteTask(team.ID, "task-1", TaskMetrics{Quality: 0.8, Efficiency: 0.9}))

	updated, err := o.Get(team.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TeamNorming, updated.State)
	assert.Equal(t, 0.8, updated.Metrics.Quality)
	assert.Contains(t, updated.CompletedTaskIDs, "task-1")
}

func TestDissolveTeamReleasesAgents(t *testing.T) {
	o, pool := newTestOrchestrator(3)
	team, err := o.FormTeam(context.Background(), FormRequest{Mission: "x", Size: 2})
	require.NoError(t, err)

	_, err = o.DissolveTeam(context.Background(), team.ID, "done")
	require.NoError(t, err)

	for _, a := range pool.Status() {
		assert.Equal(t, models.AgentAvailable, a.State)
	}

	_, err = o.Get(team.ID)
	assert.Error(t, err)
}

func TestMonitorTickFlagsIdleTeamsForDissolve(t *testing.T) {
	o, _ := newTestOrchestrator(3)
	team, err := o.FormTeam(context.Background(), FormRequest{Mission: "x", Size: 2})
	require.NoError(t, err)

	o.cfg.AutoDissolveIdle = time.Millisecond
	time.Sleep(2 * time.Millisecond)

	candidates := o.MonitorTick(time.Now())
	assert.Contains(t, candidates, team.ID)
}

func TestRecommendationsFlagMissingQA(t *testing.T) {
	o, _ := newTestOrchestrator(3)
	team, err := o.FormTeam(context.Background(), FormRequest{Mission: "x", Size: 2})
	require.NoError(t, err)

	recs, err := o.Recommendations(team.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, recs)
}
