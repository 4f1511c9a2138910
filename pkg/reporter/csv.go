package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/costwatch/cost-advisor/pkg/models"
)

// writeJSON renders the full report as indented JSON.
func writeJSON(report *models.AnalysisReport, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// writeCSV renders one row per recommendation plus summary rows.
func writeCSV(report *models.AnalysisReport, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"Resource ID",
		"Kind",
		"Region",
		"Current Config",
		"Target Config",
		"Pattern",
		"Action",
		"Monthly Savings ($)",
		"Annual Savings ($)",
		"Risk",
		"Priority",
		"Confidence",
		"Degraded",
		"Reason",
		"Steps",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rec := range report.Recommendations {
		row := []string{
			rec.ResourceID,
			string(rec.Kind),
			rec.Region,
			rec.CurrentConfig,
			rec.TargetConfig,
			string(rec.Pattern),
			string(rec.Action),
			fmt.Sprintf("%.2f", rec.MonthlySavings),
			fmt.Sprintf("%.2f", rec.AnnualSavings),
			string(rec.Risk),
			string(rec.Priority),
			fmt.Sprintf("%.2f", rec.Confidence),
			fmt.Sprintf("%t", rec.Degraded),
			rec.Reason,
			strings.Join(rec.Steps, "; "),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Write([]string{})
	cw.Write([]string{"SUMMARY"})
	cw.Write([]string{"Resources Analyzed", fmt.Sprintf("%d", report.Summary.ResourceCount)})
	cw.Write([]string{"Regions Scanned", fmt.Sprintf("%d", report.Summary.RegionsScanned)})
	cw.Write([]string{"Regions Failed", fmt.Sprintf("%d", report.Summary.RegionsFailed)})
	cw.Write([]string{"Total Monthly Savings", fmt.Sprintf("$%.2f", report.Summary.TotalMonthlySavings)})
	cw.Write([]string{"Total Annual Savings", fmt.Sprintf("$%.2f", report.Summary.TotalAnnualSavings)})

	return nil
}
