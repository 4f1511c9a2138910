// Package reporter renders an analysis report as text, JSON or CSV.
package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/costwatch/cost-advisor/pkg/models"
)

// Format represents the output format
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Reporter writes analysis reports
type Reporter struct {
	format Format
}

// New creates a new reporter
func New(format Format) (*Reporter, error) {
	switch format {
	case FormatText, FormatJSON, FormatCSV:
		return &Reporter{format: format}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// Write renders the report in the configured format.
func (r *Reporter) Write(report *models.AnalysisReport, w io.Writer) error {
	switch r.format {
	case FormatJSON:
		return writeJSON(report, w)
	case FormatCSV:
		return writeCSV(report, w)
	default:
		return writeText(report, w)
	}
}

// writeText renders the human-readable summary.
func writeText(report *models.AnalysisReport, w io.Writer) error {
	var b strings.Builder

	b.WriteString("Cost Optimization Report\n")
	b.WriteString("========================\n\n")
	fmt.Fprintf(&b, "Run:       %s\n", report.RunID)
	fmt.Fprintf(&b, "Started:   %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Duration:  %s\n\n", report.CompletedAt.Sub(report.StartedAt).Round(1e6))

	b.WriteString("Regions\n-------\n")
	for _, region := range report.Regions {
		line := fmt.Sprintf("  %-16s %-10s %4d resources", region.Region, region.Status, region.ResourceCount)
		if region.Cost != nil {
			line += fmt.Sprintf("   $%.2f/30d", region.Cost.TotalCost)
		}
		if region.Error != "" {
			line += "   " + region.Error
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")

	b.WriteString("Recommendations\n---------------\n")
	if len(report.Recommendations) == 0 {
		b.WriteString("  none\n")
	}
	for _, rec := range report.Recommendations {
		fmt.Fprintf(&b, "  [%s] %s %s (%s, %s)\n", rec.Priority, rec.Action, rec.ResourceID, rec.Region, rec.Kind)
		fmt.Fprintf(&b, "      %s", rec.CurrentConfig)
		if rec.TargetConfig != "" {
			fmt.Fprintf(&b, " -> %s", rec.TargetConfig)
		}
		fmt.Fprintf(&b, "   pattern=%s risk=%s confidence=%.2f", rec.Pattern, rec.Risk, rec.Confidence)
		if rec.Degraded {
			b.WriteString(" (degraded)")
		}
		b.WriteString("\n")
		if rec.MonthlySavings > 0 {
			fmt.Fprintf(&b, "      saves $%.2f/month ($%.2f/year)\n", rec.MonthlySavings, rec.AnnualSavings)
		}
		fmt.Fprintf(&b, "      %s\n", rec.Reason)
	}
	b.WriteString("\n")

	b.WriteString("Summary\n-------\n")
	fmt.Fprintf(&b, "  Resources analyzed:     %d\n", report.Summary.ResourceCount)
	fmt.Fprintf(&b, "  Regions scanned:        %d (%d failed)\n", report.Summary.RegionsScanned, report.Summary.RegionsFailed)
	fmt.Fprintf(&b, "  High priority:          %d\n", report.Summary.CountsByPriority[models.PriorityHigh])
	fmt.Fprintf(&b, "  Estimated savings:      $%.2f/month ($%.2f/year)\n",
		report.Summary.TotalMonthlySavings, report.Summary.TotalAnnualSavings)

	_, err := io.WriteString(w, b.String())
	return err
}
