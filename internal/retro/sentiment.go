package retro

import (
	"strings"

	"github.com/fluxteam/orchestrator-core/internal/models"
)

// SentimentClassifier assigns a sentiment to a piece of feedback text.
// Swappable per spec.md §9's pluggable-classifiers design note; no
// component in this package assumes a specific implementation.
type SentimentClassifier func(text string) models.Sentiment

var positiveWords = map[string]bool{
	"good": true, "great": true, "excellent": true, "awesome": true,
	"fantastic": true, "perfect": true, "happy": true, "pleased": true,
	"satisfied": true, "successful": true, "effective": true,
	"improved": true, "better": true, "best": true, "love": true,
	"amazing": true, "wonderful": true,
}

var negativeWords = map[string]bool{
	"bad": true, "poor": true, "terrible": true, "awful": true,
	"horrible": true, "worst": true, "unhappy": true, "disappointed": true,
	"frustrated": true, "failed": true, "ineffective": true,
	"problem": true, "issue": true, "difficult": true, "hard": true,
	"slow": true, "blocked": true,
}

var intensifiers = map[string]bool{
	"very": true, "extremely": true, "really": true, "totally": true,
	"absolutely": true, "completely": true,
}

// KeywordSentiment is the default SentimentClassifier: a keyword-count
// heuristic with intensifier amplification, grounded on
// original_source/agile/retrospective_analyzer.py's SentimentAnalyzer.analyze.
func KeywordSentiment(text string) models.Sentiment {
	words := strings.Fields(strings.ToLower(text))

	var positive, negative, intensified float64
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()")
		if positiveWords[w] {
			positive++
		}
		if negativeWords[w] {
			negative++
		}
		if intensifiers[w] {
			intensified++
		}
	}

	if intensified > 0 {
		positive *= 1 + intensified*0.5
		negative *= 1 + intensified*0.5
	}

	switch {
	case positive > negative*1.5:
		if positive > 3 {
			return models.SentimentVeryPositive
		}
		return models.SentimentPositive
	case negative > positive*1.5:
		if negative > 3 {
			return models.SentimentVeryNegative
		}
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

var sentimentScore = map[models.Sentiment]float64{
	models.SentimentVeryPositive: 2,
	models.SentimentPositive:     1,
	models.SentimentNeutral:      0,
	models.SentimentNegative:     -1,
	models.SentimentVeryNegative: -2,
}

// OverallSentiment averages a set of classified sentiments into one
// team-level sentiment, mirroring _calculate_overall_sentiment.
func OverallSentiment(sentiments []models.Sentiment) models.Sentiment {
	if len(sentiments) == 0 {
		return models.SentimentNeutral
	}
	var total float64
	for _, s := range sentiments {
		total += sentimentScore[s]
	}
	avg := total / float64(len(sentiments))

	switch {
	case avg >= 1.5:
		return models.SentimentVeryPositive
	case avg >= 0.5:
		return models.SentimentPositive
	case avg >= -0.5:
		return models.SentimentNeutral
	case avg >= -1.5:
		return models.SentimentNegative
	default:
		return models.SentimentVeryNegative
	}
}

// SentimentDistribution is the fraction of sentiments at each level.
func SentimentDistribution(sentiments []models.Sentiment) map[models.Sentiment]float64 {
	if len(sentiments) == 0 {
		return nil
	}
	counts := make(map[models.Sentiment]int)
	for _, s := range sentiments {
		counts[s]++
	}
	dist := make(map[models.Sentiment]float64, len(counts))
	for s, c := range counts {
		dist[s] = float64(c) / float64(len(sentiments))
	}
	return dist
}
