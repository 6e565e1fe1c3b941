package models

import "time"

// FeedbackCategory buckets a retrospective feedback item.
type FeedbackCategory string

const (
	FeedbackWentWell    FeedbackCategory = "went_well"
	FeedbackWentWrong   FeedbackCategory = "went_wrong"
	FeedbackIdeas       FeedbackCategory = "ideas"
	FeedbackKudos       FeedbackCategory = "kudos"
	FeedbackActionItems FeedbackCategory = "action_items"
)

// Sentiment is the classified tone of a feedback item.
type Sentiment string

const (
	SentimentVeryPositive Sentiment = "very_positive"
	SentimentPositive     Sentiment = "positive"
	SentimentNeutral      Sentiment = "neutral"
	SentimentNegative     Sentiment = "negative"
	SentimentVeryNegative Sentiment = "very_negative"
)

// ActionItemStatus is an action item's position in its lifecycle.
type ActionItemStatus string

const (
	ActionItemPending    ActionItemStatus = "pending"
	ActionItemInProgress ActionItemStatus = "in_progress"
	ActionItemCompleted  ActionItemStatus = "completed"
	ActionItemCancelled  ActionItemStatus = "cancelled"
	ActionItemDeferred   ActionItemStatus = "deferred"
)

// ActionItemPriority orders action items for triage.
type ActionItemPriority string

const (
	PriorityCritical ActionItemPriority = "critical"
	PriorityHigh     ActionItemPriority = "high"
	PriorityMedium   ActionItemPriority = "medium"
	PriorityLow      ActionItemPriority = "low"
)

// FeedbackItem is one team member's input to a retrospective.
type FeedbackItem struct {
	AgentID   string           `json:"agent_id"`
	Category  FeedbackCategory `json:"category"`
	Content   string           `json:"content"`
	Sentiment Sentiment        `json:"sentiment,omitempty"`
	Tags      []string         `json:"tags,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ActionItem is a tracked follow-up from a retrospective.
type ActionItem struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	AssignedTo      string             `json:"assigned_to,omitempty"`
	CreatedBy       string             `json:"created_by,omitempty"`
	Priority        ActionItemPriority `json:"priority"`
	Status          ActionItemStatus   `json:"status"`
	DueDate         *time.Time         `json:"due_date,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
	Tags            []string           `json:"tags,omitempty"`
	RelatedFeedback []string           `json:"related_feedback,omitempty"`
}

// Theme is a recurring topic extracted from feedback content, with the
// number of matches found.
type Theme struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ImprovementPattern is a pattern detected across one or more
// retrospectives' feedback.
type ImprovementPattern struct {
	PatternType      string    `json:"pattern_type"`
	Description      string    `json:"description"`
	Occurrences      int       `json:"occurrences"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	AffectedAreas    []string  `json:"affected_areas"`
	SuggestedActions []string  `json:"suggested_actions"`
	Confidence       float64   `json:"confidence"`
}

// RetrospectiveReport is the comprehensive output of analyzing one
// sprint's retrospective feedback.
type RetrospectiveReport struct {
	SprintID                 string               `json:"sprint_id"`
	TeamID                   string               `json:"team_id"`
	Date                     time.Time            `json:"date"`
	Participants             []string             `json:"participants"`
	FeedbackItems            []FeedbackItem       `json:"feedback_items"`
	ActionItems              []ActionItem         `json:"action_items"`
	TeamSentiment            Sentiment            `json:"team_sentiment"`
	SentimentScores          map[Sentiment]float64 `json:"sentiment_scores"`
	ImprovementPatterns      []ImprovementPattern `json:"improvement_patterns"`
	KeyThemes                []Theme              `json:"key_themes"`
	ParticipationRate        float64              `json:"participation_rate"`
	ActionItemCompletionRate float64              `json:"action_item_completion_rate"`
	Recommendations          []string             `json:"recommendations"`
}

// HistoricalTrends summarizes a team's retrospective metrics across its
// most recent sprints.
type HistoricalTrends struct {
	TeamID            string      `json:"team_id"`
	SentimentTrend    []Sentiment `json:"sentiment_trend"`
	ParticipationTrend []float64  `json:"participation_trend"`
	CompletionTrend   []float64   `json:"completion_trend"`
	ActionItemsTrend  []int       `json:"action_items_trend"`
	RecurringThemes   []string    `json:"recurring_themes"`
}
