// Package agilemetrics implements the Agile Metrics component (C8):
// velocity, cycle/lead time, throughput, burndown/burnup, defect/rework
// rate, commitment reliability, trend classification, and velocity
// prediction for AI-agent teams.
package agilemetrics

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/fluxteam/orchestrator-core/internal/models"
)

// Recorder owns recorded samples plus the sprint/story data those
// derived metrics are computed from (spec.md §4.8).
type Recorder struct {
	mu sync.RWMutex

	samples map[string][]models.Sample // key: scopeKey(teamID, type)
	sprints map[string]*models.SprintVelocity
	stories map[string]*models.TaskPerformance
	teams   map[string]map[string]any

	mirror Mirror
}

// Mirror durably records every sample in a second system of record
// (Postgres, when enabled), alongside the Recorder's in-memory series
// (SPEC_FULL.md §1.5).
type Mirror interface {
	MirrorMetricSample(ctx context.Context, sample models.Sample) error
}

// New builds an empty Recorder.
func New() *Recorder {
	return &Recorder{
		samples: make(map[string][]models.Sample),
		sprints: make(map[string]*models.SprintVelocity),
		stories: make(map[string]*models.TaskPerformance),
		teams:   make(map[string]map[string]any),
	}
}

// SetMirror wires the Postgres history mirror. Record mirrors samples
// best-effort: a mirror failure never blocks or fails recording.
func (r *Recorder) SetMirror(m Mirror) { r.mirror = m }

func scopeKey(teamID string, t models.MetricType) string {
	if teamID == "" {
		return "global/" + string(t)
	}
	return teamID + "/" + string(t)
}

// Record appends a sample to the series for (teamID, type).
func (r *Recorder) Record(sample models.Sample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}
	r.mu.Lock()
	key := scopeKey(sample.TeamID, sample.Type)
	r.samples[key] = append(r.samples[key], sample)
	r.mu.Unlock()

	if r.mirror != nil {
		go func(s models.Sample) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.mirror.MirrorMetricSample(ctx, s); err != nil {
				slog.Error("mirror agile metric sample failed", "type", s.Type, "error", err)
			}
		}(sample)
	}
}

// PutSprint registers sprint data used by the derived-metric calculations.
func (r *Recorder) PutSprint(sprint *models.SprintVelocity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sprints[sprint.SprintID] = sprint
}

// PutStory registers story/task data used by the derived-metric calculations.
func (r *Recorder) PutStory(story *models.TaskPerformance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stories[story.StoryID] = story
}

// Velocity is the average of completed points across sprintIDs
// (spec.md §4.8 "average of completed-points across specified sprints").
func (r *Recorder) Velocity(teamID string, sprintIDs []string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total float64
	var n int
	for _, id := range sprintIDs {
		sprint, ok := r.sprints[id]
		if !ok {
			continue
		}
		total += sprint.CompletedPoints
		n++
	}
	if n == 0 {
		return 0
	}
	velocity := total / float64(n)
	r.record(models.MetricVelocity, velocity, teamID, "")
	return velocity
}

// CycleTime is the mean of end-start hours across storyIDs.
func (r *Recorder) CycleTime(storyIDs []string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var hours []float64
	for _, id := range storyIDs {
		story, ok := r.stories[id]
		if !ok || story.StartedAt == nil || story.EndedAt == nil {
			continue
		}
		hours = append(hours, story.EndedAt.Sub(*story.StartedAt).Hours())
	}
	if len(hours) == 0 {
		return 0
	}
	mean, _ := stats.Mean(stats.Float64Data(hours))
	r.record(models.MetricCycleTime, mean, "", "")
	return mean
}

// LeadTime is the mean of end-created hours across storyIDs; by
// construction it is >= CycleTime for the same set since creation
// precedes (or equals) start (spec.md §4.8 invariant).
func (r *Recorder) LeadTime(storyIDs []string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var hours []float64
	for _, id := range storyIDs {
		story, ok := r.stories[id]
		if !ok || story.EndedAt == nil {
			continue
		}
		hours = append(hours, story.EndedAt.Sub(story.CreatedAt).Hours())
	}
	if len(hours) == 0 {
		return 0
	}
	mean, _ := stats.Mean(stats.Float64Data(hours))
	r.record(models.MetricLeadTime, mean, "", "")
	return mean
}

// Throughput is completed-count over days in [start, end] for teamID.
func (r *Recorder) Throughput(teamID string, start, end time.Time) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	completed := 0
	for _, story := range r.stories {
		if story.TeamID != teamID || story.EndedAt == nil {
			continue
		}
		if !story.EndedAt.Before(start) && !story.EndedAt.After(end) {
			completed++
		}
	}
	days := end.Sub(start).Hours() / 24
	if days < 1 {
		days = 1
	}
	throughput := float64(completed) / days
	r.record(models.MetricThroughput, throughput, teamID, "")
	return throughput
}

// BurndownPoint is one day's remaining-points reading.
type BurndownPoint struct {
	Date      time.Time
	Remaining float64
}

// Burndown computes daily remaining points across a sprint's window
// (spec.md §4.8: "remaining = committed - sum(points of stories whose
// end-date <= day)").
func (r *Recorder) Burndown(sprintID string) []BurndownPoint {
	r.mu.RLock()
	sprint, ok := r.sprints[sprintID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	var points []BurndownPoint
	remaining := sprint.CommittedPoints
	for day := dateOnly(sprint.StartDate); !day.After(dateOnly(sprint.EndDate)); day = day.AddDate(0, 0, 1) {
		completedToday := r.pointsCompletedOn(sprintID, day, day)
		remaining -= completedToday
		points = append(points, BurndownPoint{Date: day, Remaining: remaining})
	}
	return points
}

// BurnupPoint is one day's cumulative-completed reading.
type BurnupPoint struct {
	Date      time.Time
	Completed float64
}

// Burnup computes cumulative completed points against a constant scope
// line (spec.md §4.8, "dually" to Burndown).
func (r *Recorder) Burnup(sprintID string) ([]BurnupPoint, float64) {
	r.mu.RLock()
	sprint, ok := r.sprints[sprintID]
	r.mu.RUnlock()
	if !ok {
		return nil, 0
	}

	var points []BurnupPoint
	start := dateOnly(sprint.StartDate)
	end := dateOnly(sprint.EndDate)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		completed := r.pointsCompletedOn(sprintID, start, day)
		points = append(points, BurnupPoint{Date: day, Completed: completed})
	}
	return points, sprint.CommittedPoints
}

func (r *Recorder) pointsCompletedOn(sprintID string, windowStart, windowEnd time.Time) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total float64
	for _, story := range r.stories {
		if story.SprintID != sprintID || story.EndedAt == nil {
			continue
		}
		day := dateOnly(*story.EndedAt)
		if !day.Before(windowStart) && !day.After(windowEnd) {
			total += story.Points
		}
	}
	return total
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DefectRate is total defects / total stories for the given sprints.
func (r *Recorder) DefectRate(teamID string, sprintIDs []string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := toSet(sprintIDs)
	var totalStories, totalDefects int
	for _, story := range r.stories {
		if story.TeamID != teamID || !set[story.SprintID] {
			continue
		}
		totalStories++
		totalDefects += story.Defects
	}
	if totalStories == 0 {
		return 0
	}
	rate := float64(totalDefects) / float64(totalStories)
	r.record(models.MetricDefectRate, rate, teamID, "")
	return rate
}

// ReworkRate is the percentage of stories requiring rework.
func (r *Recorder) ReworkRate(teamID string, sprintIDs []string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := toSet(sprintIDs)
	var totalStories, reworked int
	for _, story := range r.stories {
		if story.TeamID != teamID || !set[story.SprintID] {
			continue
		}
		totalStories++
		if story.Reworked {
			reworked++
		}
	}
	if totalStories == 0 {
		return 0
	}
	rate := float64(reworked) / float64(totalStories) * 100
	r.record(models.MetricReworkRate, rate, teamID, "")
	return rate
}

// CommitmentReliability is sum(completed)/sum(committed) x 100 over the
// given sprints; an empty commitment set is reported as 100% reliable.
func (r *Recorder) CommitmentReliability(teamID string, sprintIDs []string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var committed, completed float64
	for _, id := range sprintIDs {
		sprint, ok := r.sprints[id]
		if !ok || sprint.TeamID != teamID {
			continue
		}
		committed += sprint.CommittedPoints
		completed += sprint.CompletedPoints
	}
	if committed == 0 {
		return 100
	}
	reliability := completed / committed * 100
	r.record(models.MetricCommitment, reliability, teamID, "")
	return reliability
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func (r *Recorder) record(t models.MetricType, value float64, teamID, sprintID string) {
	key := scopeKey(teamID, t)
	r.samples[key] = append(r.samples[key], models.Sample{
		Type: t, Value: value, Timestamp: time.Now().UTC(), TeamID: teamID, SprintID: sprintID,
	})
}

// Trend classifies a series by linear-regression slope (spec.md §4.8):
// fewer than 3 samples is INSUFFICIENT_DATA; relative slope under 5% is
// STABLE; otherwise the sign of the slope decides IMPROVING/DECLINING.
func Trend(values []float64) models.Trend {
	if len(values) < 3 {
		return models.TrendInsufficientData
	}
	slope := regressionSlope(values)
	mean, _ := stats.Mean(stats.Float64Data(values))
	denom := mean
	if denom == 0 {
		denom = 1
	}
	relative := math.Abs(slope) / denom
	switch {
	case relative < 0.05:
		return models.TrendStable
	case slope > 0:
		return models.TrendImproving
	default:
		return models.TrendDeclining
	}
}

func regressionSlope(values []float64) float64 {
	n := float64(len(values))
	var xMean float64
	for i := range values {
		xMean += float64(i)
	}
	xMean /= n
	yMean, _ := stats.Mean(stats.Float64Data(values))

	var numerator, denominator float64
	for i, v := range values {
		dx := float64(i) - xMean
		numerator += dx * (v - yMean)
		denominator += dx * dx
	}
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// Summarize returns windowed summary statistics for one metric series
// (spec.md §4.8's "get summary" shape, supplemented from
// original_source/metrics/agile_metrics.py's MetricSummary).
func (r *Recorder) Summarize(teamID string, metricType models.MetricType, window time.Duration) *models.MetricSummary {
	r.mu.RLock()
	series := append([]models.Sample(nil), r.samples[scopeKey(teamID, metricType)]...)
	r.mu.RUnlock()
	if len(series) == 0 {
		return nil
	}

	end := time.Now().UTC()
	start := end.Add(-window)
	sort.Slice(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })

	var values []float64
	for _, s := range series {
		if !s.Timestamp.Before(start) && !s.Timestamp.After(end) {
			values = append(values, s.Value)
		}
	}
	if len(values) == 0 {
		return nil
	}

	mean, _ := stats.Mean(stats.Float64Data(values))
	median, _ := stats.Median(stats.Float64Data(values))
	min, _ := stats.Min(stats.Float64Data(values))
	max, _ := stats.Max(stats.Float64Data(values))
	var stdDev float64
	if len(values) > 1 {
		stdDev, _ = stats.StandardDeviationSample(stats.Float64Data(values))
	}

	var changePct float64
	if len(values) > 1 && values[0] != 0 {
		changePct = (values[len(values)-1] - values[0]) / values[0] * 100
	}

	return &models.MetricSummary{
		Type:             metricType,
		CurrentValue:     values[len(values)-1],
		Average:          mean,
		Median:           median,
		StdDev:           stdDev,
		MinValue:         min,
		MaxValue:         max,
		Trend:            Trend(values),
		ChangePercentage: changePct,
		SampleSize:       len(values),
		PeriodStart:      start,
		PeriodEnd:        end,
	}
}

// TeamHealth assembles every derived summary for teamID plus a
// composite health score (spec.md §4.8 supplemented from
// original_source/metrics/agile_metrics.py's _calculate_health_score).
func (r *Recorder) TeamHealth(teamID string, window time.Duration) *models.TeamHealthReport {
	report := &models.TeamHealthReport{
		TeamID:                teamID,
		Velocity:              r.Summarize(teamID, models.MetricVelocity, window),
		CycleTime:             r.Summarize(teamID, models.MetricCycleTime, window),
		LeadTime:              r.Summarize(teamID, models.MetricLeadTime, window),
		Throughput:            r.Summarize(teamID, models.MetricThroughput, window),
		DefectRate:            r.Summarize(teamID, models.MetricDefectRate, window),
		ReworkRate:            r.Summarize(teamID, models.MetricReworkRate, window),
		CommitmentReliability: r.Summarize(teamID, models.MetricCommitment, window),
	}
	report.OverallHealthScore = healthScore(report)
	return report
}

func healthScore(r *models.TeamHealthReport) float64 {
	var scores []float64

	if r.Velocity != nil && r.Velocity.Trend != models.TrendInsufficientData {
		switch r.Velocity.Trend {
		case models.TrendImproving:
			scores = append(scores, 100)
		case models.TrendStable:
			scores = append(scores, 75)
		default:
			scores = append(scores, 50)
		}
	}
	if r.CycleTime != nil && r.CycleTime.CurrentValue > 0 {
		normalized := 100 - (r.CycleTime.CurrentValue-40)/1.6
		scores = append(scores, clamp(normalized, 0, 100))
	}
	if r.DefectRate != nil {
		normalized := 100 * (1 - r.DefectRate.CurrentValue)
		scores = append(scores, clamp(normalized, 0, 100))
	}
	if r.CommitmentReliability != nil {
		scores = append(scores, r.CommitmentReliability.CurrentValue)
	}

	if len(scores) == 0 {
		return 50
	}
	mean, _ := stats.Mean(stats.Float64Data(scores))
	return mean
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
