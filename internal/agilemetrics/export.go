package agilemetrics

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

// ExportFormat selects the serialization used by Export.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportYAML     ExportFormat = "yaml"
	ExportCSV      ExportFormat = "csv"
	ExportMarkdown ExportFormat = "markdown"
)

// Export renders a team health report in the requested format, mirroring
// original_source/metrics/agile_metrics.py's _export_json/_export_csv/
// _export_markdown trio.
func Export(report *models.TeamHealthReport, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportJSON:
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, orcherr.Wrap(orcherr.Fatal, "marshal team health report as json", err)
		}
		return out, nil

	case ExportYAML:
		out, err := yaml.Marshal(report)
		if err != nil {
			return nil, orcherr.Wrap(orcherr.Fatal, "marshal team health report as yaml", err)
		}
		return out, nil

	case ExportCSV:
		return exportCSV(report), nil

	case ExportMarkdown:
		return exportMarkdown(report), nil

	default:
		return nil, orcherr.InvalidArgumentf("unsupported export format %q", format)
	}
}

func exportCSV(report *models.TeamHealthReport) []byte {
	var b strings.Builder
	w := csv.NewWriter(&b)
	w.Write([]string{"metric", "current_value", "average", "median", "std_dev", "trend", "sample_size"})
	for _, row := range summaryRows(report) {
		if row.summary == nil {
			continue
		}
		w.Write([]string{
			row.label,
			strconv.FormatFloat(row.summary.CurrentValue, 'f', 2, 64),
			strconv.FormatFloat(row.summary.Average, 'f', 2, 64),
			strconv.FormatFloat(row.summary.Median, 'f', 2, 64),
			strconv.FormatFloat(row.summary.StdDev, 'f', 2, 64),
			string(row.summary.Trend),
			strconv.Itoa(row.summary.SampleSize),
		})
	}
	w.Flush()
	return []byte(b.String())
}

func exportMarkdown(report *models.TeamHealthReport) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Team Health Report: %s\n\n", report.TeamID)
	fmt.Fprintf(&b, "**Overall health score:** %.1f/100\n\n", report.OverallHealthScore)
	b.WriteString("| Metric | Current | Average | Median | Std Dev | Trend | Samples |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, row := range summaryRows(report) {
		if row.summary == nil {
			continue
		}
		fmt.Fprintf(&b, "| %s | %.2f | %.2f | %.2f | %.2f | %s | %d |\n",
			row.label, row.summary.CurrentValue, row.summary.Average, row.summary.Median,
			row.summary.StdDev, row.summary.Trend, row.summary.SampleSize)
	}
	return []byte(b.String())
}

type summaryRow struct {
	label   string
	summary *models.MetricSummary
}

func summaryRows(report *models.TeamHealthReport) []summaryRow {
	return []summaryRow{
		{"Velocity", report.Velocity},
		{"Cycle Time", report.CycleTime},
		{"Lead Time", report.LeadTime},
		{"Throughput", report.Throughput},
		{"Defect Rate", report.DefectRate},
		{"Rework Rate", report.ReworkRate},
		{"Commitment Reliability", report.CommitmentReliability},
	}
}

// ExportPrediction renders a velocity prediction as markdown, mirroring
// original_source/metrics/velocity_tracker.py's report formatting.
func ExportPrediction(p models.VelocityPrediction) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Velocity Prediction: %s\n\n", p.TeamID)
	fmt.Fprintf(&b, "**Predicted velocity:** %.1f (%.1f - %.1f)\n\n", p.PredictedVelocity, p.LowerBound, p.UpperBound)
	fmt.Fprintf(&b, "**Confidence:** %s (%.0f%%)\n\n", p.Confidence, p.ConfidencePercentage)
	if len(p.FactorsConsidered) > 0 {
		fmt.Fprintf(&b, "**Factors considered:** %s\n\n", strings.Join(p.FactorsConsidered, ", "))
	}
	fmt.Fprintf(&b, "%s\n", p.Recommendation)
	return []byte(b.String())
}
