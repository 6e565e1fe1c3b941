// Package quality implements the Quality Gate (C7): threshold evaluation
// against a checklist and declared criteria, composite scoring, and
// waivers. Grounded on the Agent Pool/Team Orchestrator's lock-then-clone
// convention; the scoring/decision algorithm itself follows spec.md §4.7
// literally since no teacher file carries an equivalent gate.
package quality

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluxteam/orchestrator-core/internal/audit"
	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/obsmetrics"
	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

// CriterionPredicate evaluates a named criterion against a target and its
// seeded metrics, returning pass/fail.
type CriterionPredicate func(ctx context.Context, target string, metrics models.MetricsSnapshot) bool

// CustomCheck runs an assessor-supplied check, optionally emitting issues.
type CustomCheck func(ctx context.Context, target string) []models.QualityIssue

// Gate owns registered quality gates, their criteria predicates, and every
// report it has produced (spec.md §4.7).
type Gate struct {
	mu sync.RWMutex

	gates      map[string]models.QualityGate
	predicates map[string]CriterionPredicate
	reports    map[string]*models.GateReport

	store  Store
	mirror Mirror
	audit  *audit.Logger
}

// Store persists gate reports (spec.md §6).
type Store interface {
	Save(ctx context.Context, reports map[string]*models.GateReport) error
	Load(ctx context.Context) (map[string]*models.GateReport, error)
}

// Mirror durably records every gate report in a second system of record
// (Postgres, when enabled) on top of the in-process Store — a historical
// ledger Store's file-backed snapshot doesn't keep (SPEC_FULL.md §1.5).
type Mirror interface {
	MirrorGateReport(ctx context.Context, report *models.GateReport) error
}

// SetMirror wires the Postgres history mirror. Evaluate mirrors reports
// best-effort: a mirror failure never fails the evaluation itself.
func (g *Gate) SetMirror(m Mirror) { g.mirror = m }

// SetAudit wires an audit trail for every gate decision.
func (g *Gate) SetAudit(l *audit.Logger) { g.audit = l }

// New builds a Gate with the built-in criterion predicates registered.
func New(store Store) *Gate {
	g := &Gate{
		gates:      make(map[string]models.QualityGate),
		predicates: make(map[string]CriterionPredicate),
		reports:    make(map[string]*models.GateReport),
		store:      store,
	}
	g.registerBuiltins()
	return g
}

// RegisterGate makes a named gate configuration available to Evaluate.
func (g *Gate) RegisterGate(gate models.QualityGate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gates[gate.ID] = gate
}

// RegisterCriterion makes a named predicate available for gates to declare.
func (g *Gate) RegisterCriterion(id string, pred CriterionPredicate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.predicates[id] = pred
}

func (g *Gate) registerBuiltins() {
	g.predicates["coverage_met"] = func(ctx context.Context, target string, m models.MetricsSnapshot) bool {
		return m.Coverage >= 0.8
	}
	g.predicates["no_critical_issues"] = func(ctx context.Context, target string, m models.MetricsSnapshot) bool {
		return true // always passes: MetricsSnapshot carries no issue counts; critical issues are enforced by MaxCriticalIssues in decide
	}
}

// EvaluateRequest bundles the inputs to one evaluation pass.
type EvaluateRequest struct {
	GateID      string
	Target      string
	Assessor    string
	Checklist   *models.ChecklistTotals
	CustomChecks []CustomCheck
}

// Evaluate runs spec.md §4.7's algorithm: seed metrics from the checklist,
// emit compliance issues for unjustified failures, run criteria and custom
// checks, compute composite scores, and decide PASS/CONCERNS/FAIL.
func (g *Gate) Evaluate(ctx context.Context, req EvaluateRequest) (*models.GateReport, error) {
	g.mu.RLock()
	gate, ok := g.gates[req.GateID]
	g.mu.RUnlock()
	if !ok {
		return nil, orcherr.NotFoundf("quality gate %s not found", req.GateID)
	}

	report := &models.GateReport{
		ID:        uuid.New().String(),
		GateID:    req.GateID,
		Target:    req.Target,
		Decision:  models.DecisionPending,
		CreatedAt: time.Now().UTC(),
	}

	metrics := seedMetrics(req.Checklist)

	var issues []models.QualityIssue
	if req.Checklist != nil && req.Checklist.Failed > 0 {
		issues = append(issues, models.QualityIssue{
			ID:          uuid.New().String(),
			Title:       "unjustified checklist failures",
			Description: "one or more checklist items failed without a recorded justification",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryCompliance,
			Finding:     "failed checklist items present",
			DetectedAt:  time.Now().UTC(),
		})
	}

	g.mu.RLock()
	predicates := g.predicates
	g.mu.RUnlock()

	var failedRequired int
	for _, c := range gate.Criteria {
		pred, ok := predicates[c.ID]
		passed := ok && pred(ctx, req.Target, metrics)
		if passed {
			report.PassedCriteria = append(report.PassedCriteria, c.ID)
		} else {
			report.FailedCriteria = append(report.FailedCriteria, c.ID)
			if c.Required {
				failedRequired++
			}
		}
	}

	for _, check := range req.CustomChecks {
		issues = append(issues, check(ctx, req.Target)...)
	}
	report.Issues = issues

	metrics.SecurityScore = scoreFor(issues, models.CategorySecurity, 20)
	metrics.PerformanceScore = scoreFor(issues, models.CategoryPerformance, 15)
	if metrics.MaintainabilityScore == 0 {
		metrics.MaintainabilityScore = 100
	}
	if metrics.DocumentationScore == 0 {
		metrics.DocumentationScore = 100
	}
	if metrics.TestScore == 0 {
		metrics.TestScore = metrics.Coverage * 100
	}
	if metrics.ComplianceScore == 0 {
		metrics.ComplianceScore = 100
	}
	metrics.OverallScore = compositeScore(metrics)
	report.Metrics = metrics

	report.Decision = decide(gate.Thresholds, metrics, issues, failedRequired)
	report.Recommendations = recommendations(gate.Thresholds, metrics, failedRequired)

	g.mu.Lock()
	g.reports[report.ID] = report
	g.mu.Unlock()

	obsmetrics.RecordGateDecision(string(report.Decision))

	if g.audit != nil {
		g.audit.LogGateDecision(ctx, report.GateID, report.Target, string(report.Decision),
			countSeverity(issues, models.SeverityCritical), countSeverity(issues, models.SeverityHigh))
	}
	g.mirrorReport(report)

	if err := g.persist(ctx); err != nil {
		return nil, err
	}
	return cloneReport(report), nil
}

// mirrorReport writes report to the Postgres mirror, when configured,
// without blocking the caller on a secondary store's latency.
func (g *Gate) mirrorReport(report *models.GateReport) {
	if g.mirror == nil {
		return
	}
	snapshot := cloneReport(report)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.mirror.MirrorGateReport(ctx, snapshot); err != nil {
			slog.Error("mirror quality gate report failed", "report_id", snapshot.ID, "error", err)
		}
	}()
}

func seedMetrics(checklist *models.ChecklistTotals) models.MetricsSnapshot {
	if checklist == nil {
		return models.MetricsSnapshot{}
	}
	m := models.MetricsSnapshot{
		Total: checklist.Total, Passed: checklist.Passed,
		Failed: checklist.Failed, Skipped: checklist.Skipped,
	}
	if checklist.Total > 0 {
		m.Coverage = float64(checklist.Passed) / float64(checklist.Total)
	}
	return m
}

func scoreFor(issues []models.QualityIssue, category models.IssueCategory, penalty float64) float64 {
	count := 0
	for _, i := range issues {
		if i.Category == category {
			count++
		}
	}
	score := 100 - penalty*float64(count)
	if score < 0 {
		return 0
	}
	return score
}

// compositeWeights sum to 1 across coverage, maintainability, security,
// performance, documentation, test, compliance (spec.md §4.7 step 5).
var compositeWeights = struct {
	Coverage, Maintainability, Security, Performance, Documentation, Test, Compliance float64
}{0.2, 0.15, 0.2, 0.15, 0.1, 0.1, 0.1}

func compositeScore(m models.MetricsSnapshot) float64 {
	w := compositeWeights
	return m.Coverage*100*w.Coverage +
		m.MaintainabilityScore*w.Maintainability +
		m.SecurityScore*w.Security +
		m.PerformanceScore*w.Performance +
		m.DocumentationScore*w.Documentation +
		m.TestScore*w.Test +
		m.ComplianceScore*w.Compliance
}

func countSeverity(issues []models.QualityIssue, sev models.Severity) int {
	n := 0
	for _, i := range issues {
		if i.Severity == sev {
			n++
		}
	}
	return n
}

// decide implements spec.md §4.7 step 6's decision order exactly.
func decide(t models.Thresholds, m models.MetricsSnapshot, issues []models.QualityIssue, failedRequired int) models.Decision {
	critical := countSeverity(issues, models.SeverityCritical)
	high := countSeverity(issues, models.SeverityHigh)

	switch {
	case critical > t.MaxCriticalIssues:
		return models.DecisionFail
	case high > t.MaxHighIssues:
		return models.DecisionConcerns
	case t.MinCoverage > 0 && m.Coverage < t.MinCoverage:
		return models.DecisionConcerns
	case t.MinSecurityScore > 0 && m.SecurityScore < t.MinSecurityScore:
		return models.DecisionConcerns
	case failedRequired > 3:
		return models.DecisionFail
	case failedRequired > 0:
		return models.DecisionConcerns
	default:
		return models.DecisionPass
	}
}

func recommendations(t models.Thresholds, m models.MetricsSnapshot, failedRequired int) []string {
	var recs []string
	if t.MinCoverage > 0 && m.Coverage < t.MinCoverage {
		recs = append(recs, "increase test coverage to meet the minimum threshold")
	}
	if t.MinSecurityScore > 0 && m.SecurityScore < t.MinSecurityScore {
		recs = append(recs, "address outstanding security issues")
	}
	if failedRequired > 0 {
		recs = append(recs, "resolve failed required criteria before re-evaluating")
	}
	return recs
}

// Waive sets decision=WAIVED on an existing report, preserving the prior
// decision in notes and stamping reason/actor (spec.md §4.7 "Waivers").
func (g *Gate) Waive(ctx context.Context, reportID, reason, actor string) (*models.GateReport, error) {
	g.mu.Lock()
	report, ok := g.reports[reportID]
	if !ok {
		g.mu.Unlock()
		return nil, orcherr.NotFoundf("gate report %s not found", reportID)
	}
	report.PriorDecision = report.Decision
	if report.Notes != "" {
		report.Notes += "; "
	}
	report.Notes += "prior decision: " + string(report.Decision)
	report.Decision = models.DecisionWaived
	report.Waiver = &models.Waiver{Reason: reason, Actor: actor, At: time.Now().UTC()}
	result := cloneReport(report)
	g.mu.Unlock()

	obsmetrics.RecordGateDecision(string(models.DecisionWaived))

	if err := g.persist(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// Get fetches a gate report by id.
func (g *Gate) Get(reportID string) (*models.GateReport, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	report, ok := g.reports[reportID]
	if !ok {
		return nil, orcherr.NotFoundf("gate report %s not found", reportID)
	}
	return cloneReport(report), nil
}

func cloneReport(r *models.GateReport) *models.GateReport {
	cp := *r
	cp.PassedCriteria = append([]string(nil), r.PassedCriteria...)
	cp.FailedCriteria = append([]string(nil), r.FailedCriteria...)
	cp.WaivedCriteria = append([]string(nil), r.WaivedCriteria...)
	cp.Recommendations = append([]string(nil), r.Recommendations...)
	cp.Issues = append([]models.QualityIssue(nil), r.Issues...)
	return &cp
}

func (g *Gate) persist(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	g.mu.RLock()
	snapshot := make(map[string]*models.GateReport, len(g.reports))
	for id, r := range g.reports {
		snapshot[id] = r
	}
	g.mu.RUnlock()

	if err := g.store.Save(ctx, snapshot); err != nil {
		return orcherr.Wrap(orcherr.Fatal, "persist quality gate reports", err)
	}
	return nil
}

// LoadSnapshot restores reports from store.
func (g *Gate) LoadSnapshot(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	snapshot, err := g.store.Load(ctx)
	if err != nil {
		return orcherr.Wrap(orcherr.Fatal, "load quality gate reports", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if snapshot != nil {
		g.reports = snapshot
	}
	return nil
}
