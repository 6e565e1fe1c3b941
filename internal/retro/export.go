package retro

import (
	"fmt"
	"strings"

	"github.com/fluxteam/orchestrator-core/internal/models"
)

// ToMarkdown renders a retrospective report as markdown, mirroring
// original_source/agile/retrospective_analyzer.py's
// RetrospectiveReport.to_markdown.
func ToMarkdown(r *models.RetrospectiveReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Sprint Retrospective Report\n\n")
	fmt.Fprintf(&b, "**Sprint:** %s\n", r.SprintID)
	fmt.Fprintf(&b, "**Team:** %s\n", r.TeamID)
	fmt.Fprintf(&b, "**Date:** %s\n", r.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "**Participants:** %d (%s)\n", len(r.Participants), strings.Join(r.Participants, ", "))
	fmt.Fprintf(&b, "**Participation Rate:** %.1f%%\n\n", r.ParticipationRate*100)

	fmt.Fprintf(&b, "## Team Sentiment: %s\n\n", titleCase(string(r.TeamSentiment)))
	b.WriteString("### Sentiment Breakdown\n")
	for sentiment, score := range r.SentimentScores {
		fmt.Fprintf(&b, "- %s: %.1f%%\n", sentiment, score*100)
	}
	b.WriteString("\n")

	if len(r.KeyThemes) > 0 {
		b.WriteString("## Key Themes\n\n")
		themes := r.KeyThemes
		if len(themes) > 5 {
			themes = themes[:5]
		}
		for _, theme := range themes {
			fmt.Fprintf(&b, "- **%s** (mentioned %d times)\n", theme.Name, theme.Count)
		}
		b.WriteString("\n")
	}

	writeFeedbackSection(&b, "What Went Well", r.FeedbackItems, models.FeedbackWentWell, true)
	writeFeedbackSection(&b, "What Could Be Improved", r.FeedbackItems, models.FeedbackWentWrong, true)
	writeFeedbackSection(&b, "Ideas and Suggestions", r.FeedbackItems, models.FeedbackIdeas, true)
	writeFeedbackSection(&b, "Kudos", r.FeedbackItems, models.FeedbackKudos, false)

	if len(r.ActionItems) > 0 {
		b.WriteString("## Action Items\n\n")
		fmt.Fprintf(&b, "**Completion Rate:** %.1f%%\n\n", r.ActionItemCompletionRate*100)

		for _, priority := range []models.ActionItemPriority{
			models.PriorityCritical, models.PriorityHigh, models.PriorityMedium, models.PriorityLow,
		} {
			var group []models.ActionItem
			for _, item := range r.ActionItems {
				if item.Priority == priority {
					group = append(group, item)
				}
			}
			if len(group) == 0 {
				continue
			}
			fmt.Fprintf(&b, "### %s Priority\n\n", titleCase(string(priority)))
			for _, item := range group {
				status := "pending"
				if item.Status == models.ActionItemCompleted {
					status = "done"
				}
				fmt.Fprintf(&b, "- [%s] **%s**\n", status, item.Title)
				assignee := item.AssignedTo
				if assignee == "" {
					assignee = "Unassigned"
				}
				fmt.Fprintf(&b, "  - Assigned to: %s\n", assignee)
				fmt.Fprintf(&b, "  - Status: %s\n", item.Status)
				if item.DueDate != nil {
					fmt.Fprintf(&b, "  - Due: %s\n", item.DueDate.Format("2006-01-02"))
				}
				b.WriteString("\n")
			}
		}
	}

	if len(r.ImprovementPatterns) > 0 {
		b.WriteString("## Detected Patterns\n\n")
		for _, p := range r.ImprovementPatterns {
			fmt.Fprintf(&b, "### %s\n", p.PatternType)
			fmt.Fprintf(&b, "- **Description:** %s\n", p.Description)
			fmt.Fprintf(&b, "- **Occurrences:** %d\n", p.Occurrences)
			fmt.Fprintf(&b, "- **Confidence:** %.1f%%\n", p.Confidence*100)
			fmt.Fprintf(&b, "- **Affected Areas:** %s\n", strings.Join(p.AffectedAreas, ", "))
			b.WriteString("- **Suggested Actions:**\n")
			for _, action := range p.SuggestedActions {
				fmt.Fprintf(&b, "  - %s\n", action)
			}
			b.WriteString("\n")
		}
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("## Recommendations\n\n")
		for i, rec := range r.Recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n")
	return b.String()
}

func writeFeedbackSection(b *strings.Builder, heading string, items []models.FeedbackItem, category models.FeedbackCategory, limit bool) {
	var matched []models.FeedbackItem
	for _, item := range items {
		if item.Category == category {
			matched = append(matched, item)
		}
	}
	if len(matched) == 0 {
		return
	}
	if limit && len(matched) > 10 {
		matched = matched[:10]
	}

	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, item := range matched {
		fmt.Fprintf(b, "- %s (*%s*)\n", item.Content, item.AgentID)
	}
	b.WriteString("\n")
}

func titleCase(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
