// Package retro implements the retrospective subsystem extending Agile
// Metrics (C8): feedback collection, sentiment/theme/pattern analysis
// through pluggable classifiers, action item tracking, and historical
// trend reporting across sprints.
package retro

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

// Analyzer is the retrospective analysis system for one orchestrator
// instance, grounded on
// original_source/agile/retrospective_analyzer.py's RetrospectiveAnalyzer.
type Analyzer struct {
	mu sync.Mutex

	sentiment SentimentClassifier
	themes    ThemeExtractor
	patterns  PatternDetector

	feedbackHistory []models.FeedbackItem
	actionItems     map[string]*models.ActionItem
	reportHistory   []models.RetrospectiveReport
	actionCounter   int
}

// New builds an Analyzer. A nil classifier/extractor falls back to the
// package's keyword-heuristic defaults.
func New(sentiment SentimentClassifier, themes ThemeExtractor) *Analyzer {
	if sentiment == nil {
		sentiment = KeywordSentiment
	}
	if themes == nil {
		themes = KeywordThemes
	}
	return &Analyzer{
		sentiment:   sentiment,
		themes:      themes,
		actionItems: make(map[string]*models.ActionItem),
	}
}

// CollectFeedback classifies and records one feedback item.
func (a *Analyzer) CollectFeedback(agentID string, category models.FeedbackCategory, content string, tags []string) models.FeedbackItem {
	item := models.FeedbackItem{
		AgentID:   agentID,
		Category:  category,
		Content:   content,
		Sentiment: a.sentiment(content),
		Tags:      tags,
		Timestamp: time.Now().UTC(),
	}
	a.mu.Lock()
	a.feedbackHistory = append(a.feedbackHistory, item)
	a.mu.Unlock()
	return item
}

// CreateActionItem registers a new tracked follow-up.
func (a *Analyzer) CreateActionItem(title, description, assignedTo string, priority models.ActionItemPriority, dueDate *time.Time, tags []string) *models.ActionItem {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.actionCounter++
	now := time.Now().UTC()
	item := &models.ActionItem{
		ID:          fmt.Sprintf("AI-%04d", a.actionCounter),
		Title:       title,
		Description: description,
		AssignedTo:  assignedTo,
		Priority:    priority,
		Status:      models.ActionItemPending,
		DueDate:     dueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
		Tags:        tags,
	}
	a.actionItems[item.ID] = item
	return item
}

// UpdateActionItemStatus transitions an action item, stamping
// CompletedAt when it reaches ActionItemCompleted.
func (a *Analyzer) UpdateActionItemStatus(actionID string, status models.ActionItemStatus) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	item, ok := a.actionItems[actionID]
	if !ok {
		return orcherr.NotFoundf("action item %s not found", actionID)
	}
	now := time.Now().UTC()
	item.Status = status
	item.UpdatedAt = now
	if status == models.ActionItemCompleted {
		item.CompletedAt = &now
	}
	return nil
}

// GetPendingActionItems returns pending/in-progress items, optionally
// filtered by assignee, sorted by priority then due date.
func (a *Analyzer) GetPendingActionItems(assignedTo string) []models.ActionItem {
	a.mu.Lock()
	defer a.mu.Unlock()

	var items []models.ActionItem
	for _, item := range a.actionItems {
		if item.Status != models.ActionItemPending && item.Status != models.ActionItemInProgress {
			continue
		}
		if assignedTo != "" && item.AssignedTo != assignedTo {
			continue
		}
		items = append(items, *item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return priorityRank(items[i].Priority) < priorityRank(items[j].Priority)
		}
		return dueDateOrMax(items[i].DueDate).Before(dueDateOrMax(items[j].DueDate))
	})
	return items
}

func priorityRank(p models.ActionItemPriority) int {
	switch p {
	case models.PriorityCritical:
		return 0
	case models.PriorityHigh:
		return 1
	case models.PriorityMedium:
		return 2
	default:
		return 3
	}
}

func dueDateOrMax(d *time.Time) time.Time {
	if d == nil {
		return time.Unix(1<<62, 0)
	}
	return *d
}

// AnalyzeRetrospective produces a full retrospective report from one
// sprint's feedback, recording it into the analyzer's history for later
// trend analysis.
func (a *Analyzer) AnalyzeRetrospective(sprintID, teamID string, feedback []models.FeedbackItem, participants []string, totalTeamSize int) *models.RetrospectiveReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	var sentiments []models.Sentiment
	for _, f := range feedback {
		if f.Sentiment != "" {
			sentiments = append(sentiments, f.Sentiment)
		}
	}
	teamSentiment := OverallSentiment(sentiments)
	sentimentScores := SentimentDistribution(sentiments)

	keyThemes := a.themes(feedback)

	patterns := a.patterns.DetectPatterns(feedback, a.feedbackHistory)

	var participationRate float64
	if totalTeamSize > 0 {
		participationRate = float64(len(participants)) / float64(totalTeamSize)
	}

	var completed, total int
	actionItems := make([]models.ActionItem, 0, len(a.actionItems))
	for _, item := range a.actionItems {
		actionItems = append(actionItems, *item)
		total++
		if item.Status == models.ActionItemCompleted {
			completed++
		}
	}
	sort.Slice(actionItems, func(i, j int) bool { return actionItems[i].ID < actionItems[j].ID })

	var completionRate float64
	if total > 0 {
		completionRate = float64(completed) / float64(total)
	}

	recommendations := generateRecommendations(feedback, patterns, teamSentiment, completionRate)

	report := models.RetrospectiveReport{
		SprintID:                 sprintID,
		TeamID:                   teamID,
		Date:                     time.Now().UTC(),
		Participants:             participants,
		FeedbackItems:            feedback,
		ActionItems:              actionItems,
		TeamSentiment:            teamSentiment,
		SentimentScores:          sentimentScores,
		ImprovementPatterns:      patterns,
		KeyThemes:                keyThemes,
		ParticipationRate:        participationRate,
		ActionItemCompletionRate: completionRate,
		Recommendations:          recommendations,
	}

	a.feedbackHistory = append(a.feedbackHistory, feedback...)
	a.reportHistory = append(a.reportHistory, report)
	return &report
}

func generateRecommendations(feedback []models.FeedbackItem, patterns []models.ImprovementPattern, sentiment models.Sentiment, completionRate float64) []string {
	var recs []string

	if sentiment == models.SentimentNegative || sentiment == models.SentimentVeryNegative {
		recs = append(recs, "Team morale appears low. Consider a team-building session or addressing specific concerns raised.")
	}
	if completionRate < 0.5 {
		recs = append(recs, "Action item completion rate is below 50%. Review action item assignments and priorities.")
	}

	top := patterns
	if len(top) > 3 {
		top = top[:3]
	}
	for _, p := range top {
		if len(p.SuggestedActions) > 0 {
			recs = append(recs, p.SuggestedActions[0])
		}
	}

	var wentWrong, ideas int
	for _, f := range feedback {
		switch f.Category {
		case models.FeedbackWentWrong:
			wentWrong++
		case models.FeedbackIdeas:
			ideas++
		}
	}
	if len(feedback) > 0 && float64(wentWrong) > float64(len(feedback))*0.5 {
		recs = append(recs, "High volume of issues reported. Consider a focused problem-solving session.")
	}
	if ideas > 5 {
		recs = append(recs, "Many improvement ideas suggested. Schedule an innovation workshop to explore them.")
	}

	return recs
}

// GetHistoricalTrends analyzes a team's most recent retrospectives.
func (a *Analyzer) GetHistoricalTrends(teamID string, lookbackSprints int) *models.HistoricalTrends {
	a.mu.Lock()
	defer a.mu.Unlock()

	var teamReports []models.RetrospectiveReport
	for _, r := range a.reportHistory {
		if r.TeamID == teamID {
			teamReports = append(teamReports, r)
		}
	}
	if lookbackSprints > 0 && len(teamReports) > lookbackSprints {
		teamReports = teamReports[len(teamReports)-lookbackSprints:]
	}
	if len(teamReports) == 0 {
		return nil
	}

	trends := &models.HistoricalTrends{TeamID: teamID}
	for _, r := range teamReports {
		trends.SentimentTrend = append(trends.SentimentTrend, r.TeamSentiment)
		trends.ParticipationTrend = append(trends.ParticipationTrend, r.ParticipationRate)
		trends.CompletionTrend = append(trends.CompletionTrend, r.ActionItemCompletionRate)
		trends.ActionItemsTrend = append(trends.ActionItemsTrend, len(r.ActionItems))
	}
	trends.RecurringThemes = RecurringThemes(teamReports)
	return trends
}
