package agilemetrics

import (
	"math"
	"sort"
	"sync"

	"github.com/montanaflynn/stats"

	"github.com/fluxteam/orchestrator-core/internal/models"
)

// VelocityTracker predicts future velocity from recorded sprint history,
// grounded on original_source/metrics/velocity_tracker.py's weighted
// moving average plus trend and capacity-factor adjustment (spec.md §4.8
// "Velocity prediction").
type VelocityTracker struct {
	mu sync.RWMutex

	sprints    map[string][]models.SprintVelocity // team id -> sprints, sorted by SprintNumber
	capacity   map[string]models.CapacityAdjustment
	accuracy   map[string][]float64 // team id -> completed/committed ratios, most recent last
}

// NewVelocityTracker builds an empty tracker.
func NewVelocityTracker() *VelocityTracker {
	return &VelocityTracker{
		sprints:  make(map[string][]models.SprintVelocity),
		capacity: make(map[string]models.CapacityAdjustment),
		accuracy: make(map[string][]float64),
	}
}

// RecordSprintVelocity appends a completed sprint's velocity data, keeping
// the team's history sorted by sprint number, and updates the rolling
// commitment-accuracy history used by prediction confidence.
func (t *VelocityTracker) RecordSprintVelocity(v models.SprintVelocity) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sprints[v.TeamID] = append(t.sprints[v.TeamID], v)
	sort.Slice(t.sprints[v.TeamID], func(i, j int) bool {
		return t.sprints[v.TeamID][i].SprintNumber < t.sprints[v.TeamID][j].SprintNumber
	})

	if v.CommittedPoints > 0 {
		history := append(t.accuracy[v.TeamID], v.CompletedPoints/v.CommittedPoints)
		if len(history) > 10 {
			history = history[len(history)-10:]
		}
		t.accuracy[v.TeamID] = history
	}
}

// SetCapacityAdjustment records the capacity factors (team size change,
// holiday impact, new-member ratio) applied to predictions for teamID.
func (t *VelocityTracker) SetCapacityAdjustment(teamID string, adj models.CapacityAdjustment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.capacity[teamID] = adj
}

// AverageVelocity is the mean completed points over the last n sprints
// (0 means every recorded sprint).
func (t *VelocityTracker) AverageVelocity(teamID string, lastN int) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	velocities := t.sprints[teamID]
	if lastN > 0 && lastN < len(velocities) {
		velocities = velocities[len(velocities)-lastN:]
	}
	if len(velocities) == 0 {
		return 0
	}
	points := completedPoints(velocities)
	mean, _ := stats.Mean(stats.Float64Data(points))
	return mean
}

// RollingAverage computes a window-size rolling average across the
// team's sprint history; fewer sprints than windowSize returns nil.
func (t *VelocityTracker) RollingAverage(teamID string, windowSize int) []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	velocities := t.sprints[teamID]
	if len(velocities) < windowSize {
		return nil
	}
	var out []float64
	for i := windowSize - 1; i < len(velocities); i++ {
		window := completedPoints(velocities[i-windowSize+1 : i+1])
		mean, _ := stats.Mean(stats.Float64Data(window))
		out = append(out, mean)
	}
	return out
}

func completedPoints(velocities []models.SprintVelocity) []float64 {
	out := make([]float64, len(velocities))
	for i, v := range velocities {
		out[i] = v.CompletedPoints
	}
	return out
}

// exponentialWeights returns n weights w_i = (1-alpha)^(n-i-1), alpha=0.3,
// normalized to sum to 1 (spec.md §4.8's velocity-prediction formula).
func exponentialWeights(n int) []float64 {
	const alpha = 0.3
	weights := make([]float64, n)
	var total float64
	for i := 0; i < n; i++ {
		w := math.Pow(1-alpha, float64(n-i-1))
		weights[i] = w
		total += w
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

// Predict forecasts velocity futureSprintCount sprints ahead using a
// weighted moving average adjusted by trend and capacity factors.
func (t *VelocityTracker) Predict(teamID string, futureSprintCount int, considerCapacity bool) models.VelocityPrediction {
	t.mu.RLock()
	velocities := append([]models.SprintVelocity(nil), t.sprints[teamID]...)
	adj := t.capacity[teamID]
	accuracy := append([]float64(nil), t.accuracy[teamID]...)
	t.mu.RUnlock()

	if len(velocities) == 0 {
		return models.VelocityPrediction{
			TeamID:      teamID,
			Confidence:  models.ConfidenceVeryLow,
			Recommendation: "insufficient data for prediction",
		}
	}

	points := completedPoints(velocities)
	if len(velocities) < 2 {
		last := points[len(points)-1]
		return models.VelocityPrediction{
			TeamID:               teamID,
			PredictedVelocity:    last,
			Confidence:           models.ConfidenceVeryLow,
			ConfidencePercentage: 25,
			LowerBound:           last * 0.5,
			UpperBound:           last * 1.5,
			Recommendation:       "need at least 2 sprints for an accurate prediction",
		}
	}

	weights := exponentialWeights(len(points))
	var weightedAvg float64
	for i, w := range weights {
		weightedAvg += w * points[i]
	}

	trend := regressionSlope(points)
	predicted := weightedAvg + trend*float64(futureSprintCount)

	if considerCapacity {
		predicted *= capacityAdjustmentFactor(adj)
	}

	stdDev, _ := stats.StandardDeviationSample(stats.Float64Data(points))
	confidence, confidencePct := predictionConfidence(len(velocities), points, stdDev, accuracy)

	margin := 1.96 * stdDev / math.Sqrt(float64(len(velocities)))
	lower := predicted - margin
	if lower < 0 {
		lower = 0
	}
	upper := predicted + margin

	return models.VelocityPrediction{
		TeamID:               teamID,
		PredictedVelocity:    round1(predicted),
		Confidence:           confidence,
		ConfidencePercentage: confidencePct,
		LowerBound:           round1(lower),
		UpperBound:           round1(upper),
		FactorsConsidered:    []string{"weighted_average", "trend_analysis", "capacity_factors"},
		Recommendation:       velocityRecommendation(predicted, confidence, trend, points),
	}
}

func capacityAdjustmentFactor(adj models.CapacityAdjustment) float64 {
	factor := 1.0
	if adj.TeamSizeChange != 0 {
		factor *= adj.TeamSizeChange
	}
	if adj.HolidayImpact != 0 {
		factor *= 1 - adj.HolidayImpact
	}
	if adj.NewMembersRatio != 0 {
		factor *= 1 - adj.NewMembersRatio*0.3
	}
	return factor
}

func predictionConfidence(sprintCount int, points []float64, stdDev float64, accuracy []float64) (models.PredictionConfidence, float64) {
	dataPointsScore := math.Min(100, float64(sprintCount)*10)

	mean, _ := stats.Mean(stats.Float64Data(points))
	var cv float64
	if mean > 0 {
		cv = stdDev / mean * 100
	} else {
		cv = 100
	}
	stabilityScore := clamp(100-cv, 0, 100)

	accuracyScore := accuracyScore(accuracy)

	pct := dataPointsScore*0.3 + stabilityScore*0.5 + accuracyScore*0.2
	switch {
	case pct > 80:
		return models.ConfidenceHigh, pct
	case pct > 60:
		return models.ConfidenceMedium, pct
	case pct > 40:
		return models.ConfidenceLow, pct
	default:
		return models.ConfidenceVeryLow, pct
	}
}

// accuracyScore maps historical completed/committed ratios to a 0-100
// score: a mean ratio within [0.8, 1.2] scores proportionally to how close
// it is to 1; a mean further off scores 0 (original_source's proxy for prediction
// accuracy, since no stored predictions exist to compare against).
func accuracyScore(ratios []float64) float64 {
	if len(ratios) == 0 {
		return 50
	}
	mean, _ := stats.Mean(stats.Float64Data(ratios))
	if mean < 0.8 || mean > 1.2 {
		return 0
	}
	return 100 * (1 - math.Abs(1-mean)/0.2)
}

func velocityRecommendation(predicted float64, confidence models.PredictionConfidence, trend float64, points []float64) string {
	var parts []string
	switch confidence {
	case models.ConfidenceHigh:
		parts = append(parts, "high confidence prediction: commit to the forecast value")
	case models.ConfidenceMedium:
		parts = append(parts, "moderate confidence: consider a range around the forecast value")
	default:
		parts = append(parts, "low confidence: be conservative and commit below the forecast value")
	}
	if trend > 0.5 {
		parts = append(parts, "velocity trending up, team is improving")
	} else if trend < -0.5 {
		parts = append(parts, "velocity trending down, investigate impediments")
	}
	if len(points) > 2 {
		mean, _ := stats.Mean(stats.Float64Data(points))
		stdDev, _ := stats.StandardDeviationSample(stats.Float64Data(points))
		if mean > 0 && stdDev/mean > 0.3 {
			parts = append(parts, "high variance detected, focus on consistency")
		}
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += ". " + p
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Trend analyzes the velocity series' direction and the team's maturity
// level (original_source/metrics/velocity_tracker.py's get_velocity_trend).
func (t *VelocityTracker) Trend(teamID string) models.VelocityTrendReport {
	t.mu.RLock()
	velocities := append([]models.SprintVelocity(nil), t.sprints[teamID]...)
	t.mu.RUnlock()

	if len(velocities) == 0 {
		return models.VelocityTrendReport{TeamID: teamID, TrendDirection: "unknown", MaturityLevel: "forming"}
	}

	points := completedPoints(velocities)
	slope := regressionSlope(points)

	direction := "stable"
	if slope > 0.5 {
		direction = "increasing"
	} else if slope < -0.5 {
		direction = "decreasing"
	}
	strength := math.Min(1, math.Abs(slope)/5)

	mean, _ := stats.Mean(stats.Float64Data(points))
	var variance float64
	if len(points) > 1 {
		variance, _ = stats.VarianceSample(stats.Float64Data(points))
	}
	var cv float64
	if mean > 0 {
		cv = math.Sqrt(variance) / mean
	} else {
		cv = 1
	}
	stability := clamp(100*(1-cv), 0, 100)

	return models.VelocityTrendReport{
		TeamID:          teamID,
		TrendDirection:  direction,
		TrendStrength:   strength,
		AverageVelocity: mean,
		Variance:        variance,
		StabilityScore:  stability,
		MaturityLevel:   maturityLevel(len(velocities), stability, direction),
	}
}

func maturityLevel(sprintCount int, stability float64, direction string) string {
	switch {
	case sprintCount < 3:
		return "forming"
	case sprintCount < 6:
		return "stabilizing"
	case stability > 70 && (direction == "stable" || direction == "increasing"):
		if sprintCount > 12 {
			return "optimizing"
		}
		return "mature"
	case stability > 50:
		return "stabilizing"
	default:
		return "forming"
	}
}

// PlanCapacity recommends a commitment for an upcoming sprint, buffered
// by the current prediction's confidence and any named risk factors.
func (t *VelocityTracker) PlanCapacity(teamID, sprintID string, workingDays, teamSize int, riskFactors []string) models.CapacityPlan {
	prediction := t.Predict(teamID, 1, true)

	t.mu.RLock()
	velocities := t.sprints[teamID]
	t.mu.RUnlock()

	var available float64
	if len(velocities) > 0 {
		recent := velocities
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		var perPersonDay []float64
		for _, v := range recent {
			if v.WorkingDays > 0 && v.TeamSize > 0 {
				perPersonDay = append(perPersonDay, v.CompletedPoints/float64(v.WorkingDays*v.TeamSize))
			}
		}
		if len(perPersonDay) > 0 {
			mean, _ := stats.Mean(stats.Float64Data(perPersonDay))
			available = mean * float64(workingDays*teamSize)
		}
	} else {
		available = float64(workingDays*teamSize) * 1.5
	}

	var buffer float64
	switch prediction.Confidence {
	case models.ConfidenceHigh:
		buffer = 10
	case models.ConfidenceMedium:
		buffer = 20
	default:
		buffer = 30
	}
	buffer += float64(len(riskFactors)) * 5

	recommended := available * (1 - buffer/100)

	adjustments := make(map[string]float64)
	for _, f := range riskFactors {
		if f == "new_team_members" {
			adjustments["new_member_adjustment"] = -0.2
			recommended *= 0.8
		}
	}

	return models.CapacityPlan{
		TeamID:                teamID,
		SprintID:              sprintID,
		AvailableCapacity:     round1(available),
		RecommendedCommitment: round1(recommended),
		BufferPercentage:      buffer,
		RiskFactors:           riskFactors,
		Adjustments:           adjustments,
	}
}

// CommitmentAnalysis summarizes how reliably the team delivers what it
// commits to.
func (t *VelocityTracker) CommitmentAnalysis(teamID string) models.CommitmentAnalysis {
	t.mu.RLock()
	velocities := t.sprints[teamID]
	t.mu.RUnlock()

	if len(velocities) == 0 {
		return models.CommitmentAnalysis{}
	}

	var committed, completed []float64
	var overcommitted int
	for _, v := range velocities {
		committed = append(committed, v.CommittedPoints)
		completed = append(completed, v.CompletedPoints)
		if v.CommittedPoints > v.CompletedPoints {
			overcommitted++
		}
	}

	avgCommitted, _ := stats.Mean(stats.Float64Data(committed))
	avgCompleted, _ := stats.Mean(stats.Float64Data(completed))

	var rates []float64
	for i := range velocities {
		if committed[i] > 0 {
			rates = append(rates, completed[i]/committed[i]*100)
		}
	}
	var completionRate float64
	if len(rates) > 0 {
		completionRate, _ = stats.Mean(stats.Float64Data(rates))
	}

	return models.CommitmentAnalysis{
		AverageCommitted:   avgCommitted,
		AverageCompleted:   avgCompleted,
		CompletionRate:     completionRate,
		OvercommitmentRate: float64(overcommitted) / float64(len(velocities)) * 100,
	}
}
