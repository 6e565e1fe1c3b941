package retro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxteam/orchestrator-core/internal/models"
)

func TestKeywordSentimentClassifiesPositiveAndNegative(t *testing.T) {
	assert.Equal(t, models.SentimentPositive, KeywordSentiment("Great collaboration on the API implementation."))
	assert.Equal(t, models.SentimentNegative, KeywordSentiment("Testing was slow and we found a problem."))
	assert.Equal(t, models.SentimentNeutral, KeywordSentiment("We shipped the feature on Tuesday."))
}

func TestKeywordSentimentAmplifiesWithIntensifiers(t *testing.T) {
	got := KeywordSentiment("This was absolutely amazing and wonderful and fantastic and excellent work.")
	assert.Equal(t, models.SentimentVeryPositive, got)
}

func TestOverallSentimentAveragesScores(t *testing.T) {
	got := OverallSentiment([]models.Sentiment{models.SentimentPositive, models.SentimentPositive, models.SentimentNeutral})
	assert.Equal(t, models.SentimentPositive, got)
}

func TestOverallSentimentEmptyIsNeutral(t *testing.T) {
	assert.Equal(t, models.SentimentNeutral, OverallSentiment(nil))
}

func TestKeywordThemesCountsKeywordOccurrences(t *testing.T) {
	items := []models.FeedbackItem{
		{Content: "We need better communication and more sync meetings."},
		{Content: "Testing quality needs work, too many bugs slipped through review."},
	}
	themes := KeywordThemes(items)
	require.NotEmpty(t, themes)
	assert.Equal(t, "quality", themes[0].Name)
}

func TestPatternDetectorFindsRecurringIssue(t *testing.T) {
	items := []models.FeedbackItem{
		{Category: models.FeedbackWentWrong, Content: "deployment failed again", Timestamp: time.Now()},
		{Category: models.FeedbackWentWrong, Content: "another deploy broke production", Timestamp: time.Now()},
		{Category: models.FeedbackWentWrong, Content: "release process is fragile", Timestamp: time.Now()},
	}
	var d PatternDetector
	patterns := d.DetectPatterns(items, nil)
	require.NotEmpty(t, patterns)
	assert.Contains(t, patterns[0].PatternType, "deployment")
}

func TestPatternDetectorFindsDecliningMorale(t *testing.T) {
	now := time.Now()
	items := []models.FeedbackItem{
		{Content: "a", Sentiment: models.SentimentNegative, Timestamp: now},
		{Content: "b", Sentiment: models.SentimentVeryNegative, Timestamp: now},
		{Content: "c", Sentiment: models.SentimentNegative, Timestamp: now},
		{Content: "d", Sentiment: models.SentimentPositive, Timestamp: now},
	}
	var d PatternDetector
	patterns := d.DetectPatterns(items, nil)
	found := false
	for _, p := range patterns {
		if p.PatternType == "Declining Team Morale" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAnalyzerCollectFeedbackClassifiesSentiment(t *testing.T) {
	a := New(nil, nil)
	item := a.CollectFeedback("agent-1", models.FeedbackWentWell, "Great teamwork this sprint.", []string{"teamwork"})
	assert.Equal(t, models.SentimentPositive, item.Sentiment)
}

func TestAnalyzerActionItemLifecycle(t *testing.T) {
	a := New(nil, nil)
	due := time.Now().Add(14 * 24 * time.Hour)
	item := a.CreateActionItem("Automate tests", "wire up CI", "agent-3", models.PriorityHigh, &due, nil)
	require.Equal(t, "AI-0001", item.ID)
	assert.Equal(t, models.ActionItemPending, item.Status)

	err := a.UpdateActionItemStatus(item.ID, models.ActionItemCompleted)
	require.NoError(t, err)

	pending := a.GetPendingActionItems("")
	assert.Empty(t, pending)
}

func TestAnalyzerUpdateActionItemStatusUnknownIDReturnsNotFound(t *testing.T) {
	a := New(nil, nil)
	err := a.UpdateActionItemStatus("missing", models.ActionItemCompleted)
	assert.Error(t, err)
}

func TestAnalyzerGetPendingActionItemsOrdersByPriority(t *testing.T) {
	a := New(nil, nil)
	a.CreateActionItem("low", "", "", models.PriorityLow, nil, nil)
	a.CreateActionItem("critical", "", "", models.PriorityCritical, nil, nil)
	a.CreateActionItem("medium", "", "", models.PriorityMedium, nil, nil)

	items := a.GetPendingActionItems("")
	require.Len(t, items, 3)
	assert.Equal(t, "critical", items[0].Title)
	assert.Equal(t, "medium", items[1].Title)
	assert.Equal(t, "low", items[2].Title)
}

func TestAnalyzeRetrospectiveProducesReport(t *testing.T) {
	a := New(nil, nil)
	f1 := a.CollectFeedback("agent-1", models.FeedbackWentWell, "Great collaboration on the API implementation. Team communication was excellent.", []string{"collaboration"})
	f2 := a.CollectFeedback("agent-2", models.FeedbackWentWrong, "Testing was slow and we found bugs late in the sprint.", []string{"testing"})
	f3 := a.CollectFeedback("agent-3", models.FeedbackIdeas, "We should automate more of our testing process.", []string{"automation"})

	a.CreateActionItem("Automate integration tests", "set up CI", "agent-3", models.PriorityHigh, nil, nil)

	report := a.AnalyzeRetrospective("sprint-001", "team-alpha", []models.FeedbackItem{f1, f2, f3}, []string{"agent-1", "agent-2", "agent-3"}, 5)

	require.NotNil(t, report)
	assert.Equal(t, "sprint-001", report.SprintID)
	assert.InDelta(t, 0.6, report.ParticipationRate, 0.001)
	assert.NotEmpty(t, report.KeyThemes)
	assert.Len(t, report.ActionItems, 1)
}

func TestGetHistoricalTrendsAggregatesAcrossReports(t *testing.T) {
	a := New(nil, nil)
	for i := 0; i < 3; i++ {
		a.AnalyzeRetrospective("sprint-00"+string(rune('1'+i)), "team-alpha", nil, []string{"agent-1"}, 2)
	}

	trends := a.GetHistoricalTrends("team-alpha", 5)
	require.NotNil(t, trends)
	assert.Len(t, trends.ParticipationTrend, 3)
}

func TestGetHistoricalTrendsUnknownTeamReturnsNil(t *testing.T) {
	a := New(nil, nil)
	assert.Nil(t, a.GetHistoricalTrends("team-none", 5))
}

func TestToMarkdownRendersKeySections(t *testing.T) {
	a := New(nil, nil)
	f1 := a.CollectFeedback("agent-1", models.FeedbackWentWell, "Great teamwork.", nil)
	report := a.AnalyzeRetrospective("sprint-001", "team-alpha", []models.FeedbackItem{f1}, []string{"agent-1"}, 2)

	md := ToMarkdown(report)
	assert.Contains(t, md, "# Sprint Retrospective Report")
	assert.Contains(t, md, "sprint-001")
	assert.Contains(t, md, "What Went Well")
}
