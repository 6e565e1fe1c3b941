package agilemetrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxteam/orchestrator-core/internal/models"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return parsed
}

func TestVelocityAveragesCompletedPoints(t *testing.T) {
	r := New()
	r.PutSprint(&models.SprintVelocity{SprintID: "s1", TeamID: "team-1", CommittedPoints: 20, CompletedPoints: 18})
	r.PutSprint(&models.SprintVelocity{SprintID: "s2", TeamID: "team-1", CommittedPoints: 22, CompletedPoints: 22})

	got := r.Velocity("team-1", []string{"s1", "s2"})
	assert.Equal(t, 20.0, got)
}

func TestCycleTimeAndLeadTimeOrdering(t *testing.T) {
	r := New()
	created := mustTime(t, "2026-01-01")
	started := created.AddDate(0, 0, 2)
	ended := started.AddDate(0, 0, 3)

	r.PutStory(&models.TaskPerformance{StoryID: "story-1", CreatedAt: created, StartedAt: &started, EndedAt: &ended})

	cycle := r.CycleTime([]string{"story-1"})
	lead := r.LeadTime([]string{"story-1"})

	assert.Equal(t, 72.0, cycle)
	assert.Equal(t, 120.0, lead)
	assert.GreaterOrEqual(t, lead, cycle)
}

func TestThroughputFiltersByTeam(t *testing.T) {
	r := New()
	start := mustTime(t, "2026-01-01")
	end := mustTime(t, "2026-01-08")
	midpoint := mustTime(t, "2026-01-04")

	r.PutStory(&models.TaskPerformance{StoryID: "a", TeamID: "team-1", EndedAt: &midpoint})
	r.PutStory(&models.TaskPerformance{StoryID: "b", TeamID: "team-2", EndedAt: &midpoint})

	got := r.Throughput("team-1", start, end)
	assert.Greater(t, got, 0.0)

	gotOther := r.Throughput("team-2", start, end)
	assert.Equal(t, got, gotOther)

	r.PutStory(&models.TaskPerformance{StoryID: "c", TeamID: "team-1", EndedAt: &midpoint})
	gotAfterThird := r.Throughput("team-1", start, end)
	assert.Greater(t, gotAfterThird, got)
}

func TestBurndownTracksRemainingPointsPerSprint(t *testing.T) {
	r := New()
	start := mustTime(t, "2026-01-01")
	end := mustTime(t, "2026-01-03")
	r.PutSprint(&models.SprintVelocity{SprintID: "s1", TeamID: "team-1", CommittedPoints: 10, StartDate: start, EndDate: end})

	endedDay2 := mustTime(t, "2026-01-02")
	r.PutStory(&models.TaskPerformance{StoryID: "story-1", SprintID: "s1", Points: 4, EndedAt: &endedDay2})

	// story from a different sprint must not affect this sprint's burndown
	r.PutSprint(&models.SprintVelocity{SprintID: "s2", TeamID: "team-1", CommittedPoints: 5, StartDate: start, EndDate: end})
	r.PutStory(&models.TaskPerformance{StoryID: "story-2", SprintID: "s2", Points: 5, EndedAt: &endedDay2})

	points := r.Burndown("s1")
	require.Len(t, points, 3)
	assert.Equal(t, 10.0, points[0].Remaining)
	assert.Equal(t, 6.0, points[1].Remaining)
	assert.Equal(t, 6.0, points[2].Remaining)
}

func TestDefectRateAndReworkRateScopedToTeamAndSprint(t *testing.T) {
	r := New()
	r.PutStory(&models.TaskPerformance{StoryID: "a", TeamID: "team-1", SprintID: "s1", Defects: 2, Reworked: true})
	r.PutStory(&models.TaskPerformance{StoryID: "b", TeamID: "team-1", SprintID: "s1", Defects: 0})
	// different team, same sprint id, must not be counted
	r.PutStory(&models.TaskPerformance{StoryID: "c", TeamID: "team-2", SprintID: "s1", Defects: 9, Reworked: true})

	defectRate := r.DefectRate("team-1", []string{"s1"})
	reworkRate := r.ReworkRate("team-1", []string{"s1"})

	assert.Equal(t, 1.0, defectRate)
	assert.Equal(t, 50.0, reworkRate)
}

func TestCommitmentReliabilityEmptySetIsFullyReliable(t *testing.T) {
	r := New()
	assert.Equal(t, 100.0, r.CommitmentReliability("team-1", nil))
}

func TestTrendClassification(t *testing.T) {
	assert.Equal(t, models.TrendInsufficientData, Trend([]float64{1, 2}))
	assert.Equal(t, models.TrendStable, Trend([]float64{10, 10, 10, 10}))
	assert.Equal(t, models.TrendImproving, Trend([]float64{10, 14, 18, 22}))
	assert.Equal(t, models.TrendDeclining, Trend([]float64{22, 18, 14, 10}))
}

func TestSummarizeReturnsNilWithoutSamples(t *testing.T) {
	r := New()
	assert.Nil(t, r.Summarize("team-1", models.MetricVelocity, time.Hour))
}

func TestSummarizeWindowsBySampleTimestamp(t *testing.T) {
	r := New()
	r.record(models.MetricVelocity, 10, "team-1", "")
	r.record(models.MetricVelocity, 20, "team-1", "")

	summary := r.Summarize("team-1", models.MetricVelocity, time.Hour)
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.SampleSize)
	assert.Equal(t, 20.0, summary.CurrentValue)
	assert.Equal(t, 15.0, summary.Average)
}

func TestTeamHealthDefaultsTo50WithNoData(t *testing.T) {
	r := New()
	report := r.TeamHealth("team-1", time.Hour)
	assert.Equal(t, 50.0, report.OverallHealthScore)
}

func TestTeamHealthReflectsGoodCommitmentReliability(t *testing.T) {
	r := New()
	r.record(models.MetricCommitment, 95, "team-1", "")

	report := r.TeamHealth("team-1", time.Hour)
	assert.Greater(t, report.OverallHealthScore, 50.0)
}
