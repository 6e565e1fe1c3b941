package agilemetrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxteam/orchestrator-core/internal/models"
)

func recordSprints(tr *VelocityTracker, teamID string, completed ...float64) {
	for i, c := range completed {
		tr.RecordSprintVelocity(models.SprintVelocity{
			SprintID:        "s" + string(rune('0'+i)),
			SprintNumber:    i + 1,
			TeamID:          teamID,
			CommittedPoints: c + 2,
			CompletedPoints: c,
			TeamSize:        5,
			WorkingDays:     10,
		})
	}
}

func TestPredictWithNoHistoryReturnsVeryLowConfidence(t *testing.T) {
	tr := NewVelocityTracker()
	pred := tr.Predict("team-1", 1, false)
	assert.Equal(t, models.ConfidenceVeryLow, pred.Confidence)
	assert.Equal(t, 0.0, pred.PredictedVelocity)
}

func TestPredictWithSingleSprintReturnsLastValue(t *testing.T) {
	tr := NewVelocityTracker()
	recordSprints(tr, "team-1", 20)

	pred := tr.Predict("team-1", 1, false)
	assert.Equal(t, 20.0, pred.PredictedVelocity)
	assert.Equal(t, models.ConfidenceVeryLow, pred.Confidence)
}

func TestPredictWeightsRecentSprintsMoreHeavily(t *testing.T) {
	tr := NewVelocityTracker()
	recordSprints(tr, "team-1", 10, 10, 10, 30)

	pred := tr.Predict("team-1", 1, false)
	// weighted average should sit closer to the most recent (30) sprint
	// than a plain arithmetic mean (15) would.
	assert.Greater(t, pred.PredictedVelocity, 15.0)
}

func TestPredictStableHistoryYieldsHigherConfidenceThanVolatile(t *testing.T) {
	stable := NewVelocityTracker()
	recordSprints(stable, "team-1", 20, 20, 20, 20, 20)

	volatile := NewVelocityTracker()
	recordSprints(volatile, "team-1", 5, 40, 3, 38, 6)

	stablePred := stable.Predict("team-1", 1, false)
	volatilePred := volatile.Predict("team-1", 1, false)

	assert.Greater(t, stablePred.ConfidencePercentage, volatilePred.ConfidencePercentage)
}

func TestPredictAppliesCapacityAdjustment(t *testing.T) {
	tr := NewVelocityTracker()
	recordSprints(tr, "team-1", 20, 20, 20, 20)

	withoutAdjustment := tr.Predict("team-1", 1, false)

	tr.SetCapacityAdjustment("team-1", models.CapacityAdjustment{HolidayImpact: 0.5})
	withAdjustment := tr.Predict("team-1", 1, true)

	assert.Less(t, withAdjustment.PredictedVelocity, withoutAdjustment.PredictedVelocity)
}

func TestTrendDetectsIncreasingVelocity(t *testing.T) {
	tr := NewVelocityTracker()
	recordSprints(tr, "team-1", 10, 15, 20, 25, 30, 35)

	trend := tr.Trend("team-1")
	assert.Equal(t, "increasing", trend.TrendDirection)
}

func TestMaturityLevelRequiresSprintHistory(t *testing.T) {
	tr := NewVelocityTracker()
	recordSprints(tr, "team-1", 20)
	assert.Equal(t, "forming", tr.Trend("team-1").MaturityLevel)

	tr2 := NewVelocityTracker()
	recordSprints(tr2, "team-1", 20, 20, 20, 20, 20, 20, 20)
	assert.NotEqual(t, "forming", tr2.Trend("team-1").MaturityLevel)
}

func TestPlanCapacityAppliesLargerBufferForRiskFactors(t *testing.T) {
	tr := NewVelocityTracker()
	recordSprints(tr, "team-1", 20, 20, 20, 20, 20)

	plan := tr.PlanCapacity("team-1", "s-next", 10, 5, nil)
	require.NotNil(t, plan)
	assert.Less(t, plan.RecommendedCommitment, plan.AvailableCapacity)

	riskyPlan := tr.PlanCapacity("team-1", "s-next", 10, 5, []string{"new_team_members", "holiday_week"})
	assert.Greater(t, riskyPlan.BufferPercentage, plan.BufferPercentage)
}

func TestCommitmentAnalysisTracksOvercommitment(t *testing.T) {
	tr := NewVelocityTracker()
	tr.RecordSprintVelocity(models.SprintVelocity{SprintID: "s1", TeamID: "team-1", CommittedPoints: 20, CompletedPoints: 15})
	tr.RecordSprintVelocity(models.SprintVelocity{SprintID: "s2", TeamID: "team-1", CommittedPoints: 20, CompletedPoints: 20})

	analysis := tr.CommitmentAnalysis("team-1")
	assert.InDelta(t, 50.0, analysis.OvercommitmentRate, 0.01)
	assert.Greater(t, analysis.AverageCommitted, analysis.AverageCompleted)
}
