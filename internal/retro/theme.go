package retro

import (
	"sort"
	"strings"

	"github.com/fluxteam/orchestrator-core/internal/models"
)

// ThemeExtractor finds recurring topics across a batch of feedback.
// Swappable per spec.md §9's pluggable-classifiers design note.
type ThemeExtractor func(items []models.FeedbackItem) []models.Theme

var themeKeywords = map[string][]string{
	"communication":  {"communication", "communicate", "discuss", "meeting", "sync"},
	"process":        {"process", "workflow", "procedure", "method", "approach"},
	"quality":        {"quality", "bug", "defect", "testing", "review"},
	"performance":    {"performance", "speed", "slow", "fast", "efficient"},
	"collaboration":  {"collaboration", "teamwork", "together", "coordinate"},
	"planning":       {"planning", "plan", "estimation", "sprint", "backlog"},
	"documentation":  {"documentation", "document", "readme", "comment"},
	"automation":     {"automation", "automate", "manual", "script"},
	"learning":       {"learning", "training", "knowledge", "skill"},
	"tools":          {"tool", "software", "system", "platform"},
}

// KeywordThemes is the default ThemeExtractor: a keyword-frequency count
// over a fixed theme/keyword table, grounded on
// original_source/agile/retrospective_analyzer.py's _extract_themes.
func KeywordThemes(items []models.FeedbackItem) []models.Theme {
	var all strings.Builder
	for _, item := range items {
		all.WriteString(item.Content)
		all.WriteString(" ")
	}
	lower := strings.ToLower(all.String())

	var themes []models.Theme
	for theme, keywords := range themeKeywords {
		count := 0
		for _, kw := range keywords {
			count += strings.Count(lower, kw)
		}
		if count > 0 {
			themes = append(themes, models.Theme{Name: theme, Count: count})
		}
	}

	sort.Slice(themes, func(i, j int) bool {
		if themes[i].Count != themes[j].Count {
			return themes[i].Count > themes[j].Count
		}
		return themes[i].Name < themes[j].Name
	})
	return themes
}

// RecurringThemes returns the themes appearing among each report's top 3
// key themes in at least half of the given reports, grounded on
// _find_recurring_themes.
func RecurringThemes(reports []models.RetrospectiveReport) []string {
	if len(reports) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, r := range reports {
		top := r.KeyThemes
		if len(top) > 3 {
			top = top[:3]
		}
		for _, theme := range top {
			counts[theme.Name]++
		}
	}

	minOccurrences := float64(len(reports)) / 2
	var recurring []string
	for theme, count := range counts {
		if float64(count) >= minOccurrences {
			recurring = append(recurring, theme)
		}
	}
	sort.Strings(recurring)
	return recurring
}
