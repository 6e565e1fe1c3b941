package quality

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxteam/orchestrator-core/internal/models"
)

func TestEvaluatePassesWhenAllThresholdsMet(t *testing.T) {
	g := New(nil)
	g.RegisterGate(models.QualityGate{
		ID:   "story-gate",
		Kind: models.GateStory,
		Thresholds: models.Thresholds{
			MinCoverage: 0.8, MaxCriticalIssues: 0, MaxHighIssues: 2, MinSecurityScore: 70,
		},
	})

	report, err := g.Evaluate(context.Background(), EvaluateRequest{
		GateID:    "story-gate",
		Target:    "story-1",
		Assessor:  "agent-a",
		Checklist: &models.ChecklistTotals{Total: 10, Passed: 9, Failed: 0, Skipped: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionPass, report.Decision)
	assert.InDelta(t, 0.9, report.Metrics.Coverage, 1e-9)
}

func TestEvaluateFailsOnCriticalIssueOverage(t *testing.T) {
	g := New(nil)
	g.RegisterGate(models.QualityGate{
		ID:         "release-gate",
		Kind:       models.GateRelease,
		Thresholds: models.Thresholds{MaxCriticalIssues: 0},
	})

	critical := func(ctx context.Context, target string) []models.QualityIssue {
		return []models.QualityIssue{{
			ID: "issue-1", Severity: models.SeverityCritical, Category: models.CategorySecurity,
		}}
	}

	report, err := g.Evaluate(context.Background(), EvaluateRequest{
		GateID: "release-gate", Target: "release-1", Assessor: "agent-a",
		CustomChecks: []CustomCheck{critical},
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionFail, report.Decision)
}

func TestEvaluateConcernsOnLowCoverage(t *testing.T) {
	g := New(nil)
	g.RegisterGate(models.QualityGate{
		ID:         "story-gate",
		Thresholds: models.Thresholds{MinCoverage: 0.9},
	})

	report, err := g.Evaluate(context.Background(), EvaluateRequest{
		GateID:    "story-gate",
		Target:    "story-1",
		Checklist: &models.ChecklistTotals{Total: 10, Passed: 5, Failed: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionConcerns, report.Decision)
	assert.NotEmpty(t, report.Recommendations)
}

func TestWaivePreservesPriorDecision(t *testing.T) {
	g := New(nil)
	g.RegisterGate(models.QualityGate{ID: "story-gate", Thresholds: models.Thresholds{MaxCriticalIssues: 0}})

	critical := func(ctx context.Context, target string) []models.QualityIssue {
		return []models.QualityIssue{{Severity: models.SeverityCritical, Category: models.CategorySecurity}}
	}
	report, err := g.Evaluate(context.Background(), EvaluateRequest{
		GateID: "story-gate", Target: "story-1", CustomChecks: []CustomCheck{critical},
	})
	require.NoError(t, err)
	require.Equal(t, models.DecisionFail, report.Decision)

	waived, err := g.Waive(context.Background(), report.ID, "accepted risk for this release", "lead-agent")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionWaived, waived.Decision)
	assert.Equal(t, models.DecisionFail, waived.PriorDecision)
	assert.Equal(t, "lead-agent", waived.Waiver.Actor)
}

func TestEvaluateUnknownGateReturnsNotFound(t *testing.T) {
	g := New(nil)
	_, err := g.Evaluate(context.Background(), EvaluateRequest{GateID: "missing", Target: "x"})
	assert.Error(t, err)
}
