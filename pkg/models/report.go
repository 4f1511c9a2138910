package models

import "time"

// RegionState is the terminal status of one region's analysis pipeline
type RegionState string

const (
	RegionOK       RegionState = "OK"
	RegionFailed   RegionState = "FAILED"
	RegionTimedOut RegionState = "TIMED_OUT"
)

// RegionResult records how a single region's pipeline ended. A failed
// region never aborts the run; the failure is carried here instead.
type RegionResult struct {
	Region        string
	Status        RegionState
	Error         string // error class/message when Status != OK
	ResourceCount int
	Cost          *CostSnapshot
}

// ReportSummary aggregates totals across all successful regions.
type ReportSummary struct {
	TotalMonthlySavings float64
	TotalAnnualSavings  float64
	CountsByPriority    map[Priority]int
	CountsByAction      map[ActionType]int
	ResourceCount       int
	RegionsScanned      int
	RegionsFailed       int
}

// AnalysisReport is the aggregate output of one analysis run. It always
// returns successfully to the caller; failed regions are enumerated in
// Regions rather than raised as errors.
type AnalysisReport struct {
	RunID           string
	StartedAt       time.Time
	CompletedAt     time.Time
	Recommendations []OptimizationRecommendation
	Summary         ReportSummary
	Regions         []RegionResult
}

// FailedRegions returns the names of regions that did not complete.
func (r *AnalysisReport) FailedRegions() []string {
	var failed []string
	for _, region := range r.Regions {
		if region.Status != RegionOK {
			failed = append(failed, region.Region)
		}
	}
	return failed
}
