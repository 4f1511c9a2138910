package models

import "time"

// ActionType represents the recommended optimization action
type ActionType string

const (
	ActionDownsize ActionType = "DOWNSIZE"
	ActionUpsize   ActionType = "UPSIZE"
	ActionDelete   ActionType = "DELETE"
	ActionOptimize ActionType = "OPTIMIZE"
	ActionNoChange ActionType = "NO_CHANGE"
)

// UsagePattern classifies a resource's temporal behavior
type UsagePattern string

const (
	PatternSteady   UsagePattern = "STEADY"
	PatternVariable UsagePattern = "VARIABLE"
	PatternBatch    UsagePattern = "BATCH"
	PatternIdle     UsagePattern = "IDLE"
)

// RiskLevel represents the risk of applying a recommendation
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Priority represents how urgently a recommendation should be acted on
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// UsageStats holds the statistics derived from a resource's primary
// metric series over the analysis window.
type UsageStats struct {
	Mean        float64
	P50         float64
	P90         float64
	P95         float64
	P99         float64
	Peak        float64
	WastePct    float64 // 100 * (1 - p95/capacity), floored at 0
	SampleCount int
}

// OptimizationRecommendation is the engine's output unit: one per resource
// per analysis run. Immutable after creation; a new run produces a new
// recommendation rather than patching an old one.
type OptimizationRecommendation struct {
	ID         string
	ResourceID string
	Kind       ResourceKind
	Region     string

	CurrentConfig string
	TargetConfig  string

	Pattern UsagePattern
	Stats   UsageStats

	Action         ActionType
	MonthlySavings float64
	AnnualSavings  float64
	Risk           RiskLevel
	Priority       Priority
	Confidence     float64 // [0, 1]
	Reason         string

	// Steps is the ordered implementation plan for the action.
	Steps []string

	// Degraded marks recommendations produced by the rule-based fallback
	// after the AI analyzer failed or its circuit opened.
	Degraded bool

	CreatedAt time.Time
}
