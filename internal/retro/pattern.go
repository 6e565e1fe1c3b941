package retro

import (
	"fmt"
	"strings"
	"time"

	"github.com/fluxteam/orchestrator-core/internal/models"
)

// PatternDetector finds recurring issues and sentiment patterns across
// current and historical feedback. Grounded on
// original_source/agile/retrospective_analyzer.py's PatternDetector.
type PatternDetector struct{}

var issueCategories = map[string][]string{
	"communication": {"communication", "meeting", "sync", "discussion"},
	"testing":       {"test", "testing", "qa", "quality"},
	"deployment":    {"deploy", "deployment", "release", "production"},
	"documentation": {"document", "documentation", "readme"},
	"performance":   {"slow", "performance", "speed", "latency"},
	"planning":      {"planning", "estimation", "sprint", "story"},
}

const patternOccurrenceThreshold = 3

// DetectPatterns combines current and historical "went wrong" feedback to
// find recurring issue keywords, plus a declining-morale sentiment
// pattern, mirroring detect_patterns.
func (PatternDetector) DetectPatterns(current, historical []models.FeedbackItem) []models.ImprovementPattern {
	all := append(append([]models.FeedbackItem(nil), historical...), current...)

	var wrongItems []models.FeedbackItem
	for _, item := range all {
		if item.Category == models.FeedbackWentWrong {
			wrongItems = append(wrongItems, item)
		}
	}

	var patterns []models.ImprovementPattern
	keywordCounts := extractIssueKeywords(wrongItems)
	for keyword, occurrences := range keywordCounts {
		if occurrences < patternOccurrenceThreshold {
			continue
		}
		first, last := firstLastMatching(wrongItems, keyword)
		patterns = append(patterns, models.ImprovementPattern{
			PatternType:   fmt.Sprintf("Recurring %s Issues", keyword),
			Description:   fmt.Sprintf("Multiple team members reported issues related to %s", keyword),
			Occurrences:   occurrences,
			FirstSeen:     first,
			LastSeen:      last,
			AffectedAreas: []string{keyword},
			SuggestedActions: []string{
				fmt.Sprintf("Conduct focused session on improving %s", keyword),
				fmt.Sprintf("Create action items to address %s concerns", keyword),
			},
			Confidence: minFloat(0.9, float64(occurrences)/10),
		})
	}

	if sentimentPattern, ok := detectSentimentPattern(all); ok {
		patterns = append(patterns, sentimentPattern)
	}

	return patterns
}

func extractIssueKeywords(items []models.FeedbackItem) map[string]int {
	counts := make(map[string]int)
	for _, item := range items {
		lower := strings.ToLower(item.Content)
		for category, keywords := range issueCategories {
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					counts[category]++
					break
				}
			}
		}
	}
	return counts
}

func firstLastMatching(items []models.FeedbackItem, keyword string) (time.Time, time.Time) {
	var first, last time.Time
	for _, item := range items {
		if !strings.Contains(strings.ToLower(item.Content), keyword) {
			continue
		}
		if first.IsZero() || item.Timestamp.Before(first) {
			first = item.Timestamp
		}
		if last.IsZero() || item.Timestamp.After(last) {
			last = item.Timestamp
		}
	}
	return first, last
}

func detectSentimentPattern(items []models.FeedbackItem) (models.ImprovementPattern, bool) {
	var sentiments []models.FeedbackItem
	for _, item := range items {
		if item.Sentiment != "" {
			sentiments = append(sentiments, item)
		}
	}
	if len(sentiments) == 0 {
		return models.ImprovementPattern{}, false
	}

	negative := 0
	for _, item := range sentiments {
		if item.Sentiment == models.SentimentNegative || item.Sentiment == models.SentimentVeryNegative {
			negative++
		}
	}
	ratio := float64(negative) / float64(len(sentiments))
	if ratio <= 0.4 {
		return models.ImprovementPattern{}, false
	}

	var negativeItems []models.FeedbackItem
	for _, item := range sentiments {
		if item.Sentiment == models.SentimentNegative || item.Sentiment == models.SentimentVeryNegative {
			negativeItems = append(negativeItems, item)
		}
	}
	first, last := negativeItems[0].Timestamp, negativeItems[0].Timestamp
	for _, item := range negativeItems {
		if item.Timestamp.Before(first) {
			first = item.Timestamp
		}
		if item.Timestamp.After(last) {
			last = item.Timestamp
		}
	}

	return models.ImprovementPattern{
		PatternType:   "Declining Team Morale",
		Description:   "High percentage of negative sentiment in feedback",
		Occurrences:   negative,
		FirstSeen:     first,
		LastSeen:      last,
		AffectedAreas: []string{"team_morale", "motivation"},
		SuggestedActions: []string{
			"Schedule team morale session",
			"Address root causes of dissatisfaction",
			"Implement team recognition program",
		},
		Confidence: minFloat(0.95, ratio*2),
	}, true
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
