// Package analyzer turns raw resource utilization series into optimization
// recommendations. Analyze is a pure function: identical input produces
// identical output, and absent data yields a NO_CHANGE recommendation with
// zero confidence rather than an error.
package analyzer

import (
	"fmt"

	"github.com/costwatch/cost-advisor/pkg/models"
	"github.com/costwatch/cost-advisor/pkg/pricing"
)

// Thresholds holds the tunable constants behind classification, action
// selection and prioritization. The defaults come from operational
// experience, not derivation; treat them as configuration.
type Thresholds struct {
	// MinSamples below which no sizing recommendation is made.
	MinSamples int

	// IdleP99 is the p99 utilization below which a resource with no
	// activity counts as idle.
	IdleP99 float64
	// NearZeroActivity is the total activity count under which traffic
	// is considered absent over the whole window.
	NearZeroActivity float64

	// SteadyCV is the coefficient-of-variation bound for STEADY.
	SteadyCV float64
	// BurstMultiple and BurstFractionMax define BATCH: activity is
	// concentrated when fewer than BurstFractionMax of samples sit above
	// BurstMultiple times the median.
	BurstMultiple    float64
	BurstFractionMax float64

	// DownsizeWastePct is the waste percentage above which a steady or
	// batch resource is downsized.
	DownsizeWastePct float64
	// SaturationPct is the p95/p99 utilization above which a resource
	// is upsized.
	SaturationPct float64
	// OptimizeWastePct is the memory-waste bound that triggers a
	// configuration-level tuning recommendation for functions.
	OptimizeWastePct float64
	// OptimizeSavingsFraction estimates the share of the monthly rate
	// recovered by configuration tuning.
	OptimizeSavingsFraction float64

	// Priority boundaries (monthly USD / waste percent).
	HighSavings    float64
	MediumSavings  float64
	HighWastePct   float64
	MediumWastePct float64

	// IdealSampleCount is the sample count treated as full data quality.
	IdealSampleCount int
	// TrendConfidenceMin is the regression fit below which growth is ignored.
	TrendConfidenceMin float64
}

// DefaultThresholds returns the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSamples:              10,
		IdleP99:                 2.0,
		NearZeroActivity:        1.0,
		SteadyCV:                0.2,
		BurstMultiple:           3.0,
		BurstFractionMax:        0.15,
		DownsizeWastePct:        60,
		SaturationPct:           85,
		OptimizeWastePct:        60,
		OptimizeSavingsFraction: 0.2,
		HighSavings:             50,
		MediumSavings:           20,
		HighWastePct:            70,
		MediumWastePct:          40,
		IdealSampleCount:        2000,
		TrendConfidenceMin:      0.6,
	}
}

// activityMetrics are the count-class series summed for the idle check.
var activityMetrics = []string{
	models.MetricRequestCount,
	models.MetricInvocations,
	models.MetricConnections,
	models.MetricIOPS,
}

// Analyzer is the rule-based recommendation synthesizer.
type Analyzer struct {
	thresholds Thresholds
	pricing    pricing.Provider
}

// New creates an analyzer with the given thresholds and pricing table.
func New(thresholds Thresholds, provider pricing.Provider) *Analyzer {
	if provider == nil {
		provider = pricing.NewStaticProvider()
	}
	return &Analyzer{thresholds: thresholds, pricing: provider}
}

// Thresholds returns the analyzer's active thresholds.
func (a *Analyzer) Thresholds() Thresholds { return a.thresholds }

// Analyze derives usage statistics for one resource and synthesizes an
// optimization recommendation. It never fails: a resource without usable
// data gets a NO_CHANGE recommendation with confidence 0.
func (a *Analyzer) Analyze(resource models.ResourceRecord) models.OptimizationRecommendation {
	rec := models.OptimizationRecommendation{
		ResourceID:    resource.ID,
		Kind:          resource.Kind,
		Region:        resource.Region,
		CurrentConfig: resource.Configuration,
		Action:        models.ActionNoChange,
		Risk:          models.RiskLow,
		Priority:      models.PriorityLow,
	}

	primary := resource.Series(primaryMetricFor(resource.Kind))
	pct, ok := CalculatePercentiles(primary)
	sampleCount := len(primary.Samples)
	rec.Stats.SampleCount = sampleCount

	if !ok || sampleCount < a.thresholds.MinSamples {
		rec.Confidence = 0
		rec.Reason = fmt.Sprintf("insufficient data: %d samples (need %d)", sampleCount, a.thresholds.MinSamples)
		return rec
	}

	values := primary.Values()
	cv := CoefficientOfVariation(values)
	activity := totalActivity(resource)
	pattern := a.classifyPattern(pct, cv, values, activity)

	waste := a.wasteFor(resource, pattern, pct)
	rec.Pattern = pattern
	rec.Stats = models.UsageStats{
		Mean:        pct.Mean,
		P50:         pct.P50,
		P90:         pct.P90,
		P95:         pct.P95,
		P99:         pct.P99,
		Peak:        pct.Peak,
		WastePct:    waste,
		SampleCount: sampleCount,
	}

	action, target, reason := a.selectAction(resource, pattern, pct, waste, activity)

	// A strongly growing resource is left alone even when current waste
	// is high: today's headroom is tomorrow's capacity.
	if action == models.ActionDownsize {
		trend := CalculateGrowthTrend(primary)
		if trend.IsGrowing && trend.Confidence >= a.thresholds.TrendConfidenceMin {
			action = models.ActionNoChange
			target = ""
			reason = fmt.Sprintf("downsize suppressed: utilization growing %.1f%%/month", trend.RatePerMonth)
		}
	}

	rec.Action = action
	rec.TargetConfig = target
	rec.Reason = reason
	rec.MonthlySavings = a.savingsFor(resource, action, target)
	rec.AnnualSavings = rec.MonthlySavings * 12
	rec.Priority = a.priorityFor(action, pattern, rec.MonthlySavings, waste)
	rec.Risk = riskFor(action, pattern, resource.IsProduction())
	rec.Confidence = a.confidenceFor(sampleCount, pattern)
	rec.Steps = StepsFor(action, resource.Kind, resource.Configuration, target)

	return rec
}

// classifyPattern buckets temporal behavior into IDLE, STEADY, BATCH or
// VARIABLE.
func (a *Analyzer) classifyPattern(pct Percentiles, cv float64, values []float64, activity float64) models.UsagePattern {
	if pct.P99 < a.thresholds.IdleP99 && activity < a.thresholds.NearZeroActivity {
		return models.PatternIdle
	}
	if cv < a.thresholds.SteadyCV {
		return models.PatternSteady
	}
	if a.isBatch(pct, values) {
		return models.PatternBatch
	}
	return models.PatternVariable
}

// isBatch reports whether activity is concentrated in a small fraction of
// strongly above-baseline periods.
func (a *Analyzer) isBatch(pct Percentiles, values []float64) bool {
	baseline := pct.P50
	if baseline <= 0 {
		baseline = pct.Mean
	}
	if baseline <= 0 {
		return false
	}

	bursts := 0
	for _, v := range values {
		if v > baseline*a.thresholds.BurstMultiple {
			bursts++
		}
	}
	fraction := float64(bursts) / float64(len(values))
	return bursts > 0 && fraction < a.thresholds.BurstFractionMax
}

// wasteFor computes 100*(1 - p95/capacity), floored at zero. Capacity is
// only well-defined for utilization-percentage metrics; count-class kinds
// report full waste when idle and zero otherwise.
func (a *Analyzer) wasteFor(resource models.ResourceRecord, pattern models.UsagePattern, pct Percentiles) float64 {
	switch resource.Kind {
	case models.KindCompute, models.KindDatabase:
		waste := 100 * (1 - pct.P95/100)
		if waste < 0 {
			waste = 0
		}
		return waste
	case models.KindFunction:
		if memPct, ok := CalculatePercentiles(resource.Series(models.MetricMemoryUsage)); ok {
			waste := 100 * (1 - memPct.P95/100)
			if waste < 0 {
				waste = 0
			}
			return waste
		}
		if pattern == models.PatternIdle {
			return 100
		}
		return 0
	default:
		if pattern == models.PatternIdle {
			return 100
		}
		return 0
	}
}

// selectAction picks the recommended action and, for downsizing, the
// target configuration.
func (a *Analyzer) selectAction(
	resource models.ResourceRecord,
	pattern models.UsagePattern,
	pct Percentiles,
	waste float64,
	activity float64,
) (models.ActionType, string, string) {
	t := a.thresholds

	if pattern == models.PatternIdle && activity < t.NearZeroActivity {
		return models.ActionDelete, "",
			fmt.Sprintf("idle: p99 utilization %.1f%% with no dependent traffic over the window", pct.P99)
	}

	if isUtilizationKind(resource.Kind) && (pct.P95 > t.SaturationPct || pct.P99 > t.SaturationPct) {
		return models.ActionUpsize, "",
			fmt.Sprintf("approaching saturation: p95 %.1f%%, p99 %.1f%%", pct.P95, pct.P99)
	}

	if isUtilizationKind(resource.Kind) && waste > t.DownsizeWastePct &&
		(pattern == models.PatternSteady || pattern == models.PatternBatch) {
		if target, ok := a.pricing.DownsizeTarget(resource.Kind, resource.Configuration); ok {
			return models.ActionDownsize, target,
				fmt.Sprintf("over-provisioned: %.0f%% of capacity unused at p95", waste)
		}
		return models.ActionNoChange, "",
			fmt.Sprintf("%.0f%% waste but already the smallest configuration in its family", waste)
	}

	if action, reason, ok := a.optimizeSignal(resource); ok {
		return action, "", reason
	}

	return models.ActionNoChange, "", "utilization within acceptable bounds"
}

// optimizeSignal detects configuration-level tuning opportunities that do
// not imply a size change.
func (a *Analyzer) optimizeSignal(resource models.ResourceRecord) (models.ActionType, string, bool) {
	switch resource.Kind {
	case models.KindFunction:
		mem := resource.Series(models.MetricMemoryUsage)
		memPct, ok := CalculatePercentiles(mem)
		if ok && len(mem.Samples) >= a.thresholds.MinSamples {
			memWaste := 100 * (1 - memPct.P95/100)
			if memWaste > a.thresholds.OptimizeWastePct {
				return models.ActionOptimize,
					fmt.Sprintf("configured memory mismatch: %.0f%% unused at p95", memWaste), true
			}
		}
	case models.KindVolume:
		if resource.Configuration == "gp2" {
			return models.ActionOptimize, "volume class tuning: gp3 offers the same baseline at lower cost", true
		}
	}
	return models.ActionNoChange, "", false
}

// savingsFor estimates monthly savings from the pricing table. Unknown
// configurations yield zero savings rather than a guess.
func (a *Analyzer) savingsFor(resource models.ResourceRecord, action models.ActionType, target string) float64 {
	current, ok := a.pricing.MonthlyCost(resource.Kind, resource.Configuration)
	if !ok {
		return 0
	}

	switch action {
	case models.ActionDelete:
		return current
	case models.ActionDownsize:
		smaller, ok := a.pricing.MonthlyCost(resource.Kind, target)
		if !ok {
			return 0
		}
		savings := current - smaller
		if savings < 0 {
			return 0
		}
		return savings
	case models.ActionOptimize:
		return current * a.thresholds.OptimizeSavingsFraction
	default:
		return 0
	}
}

// priorityFor is a deterministic function of action, savings and waste.
// Increasing savings while holding waste fixed never lowers the priority.
func (a *Analyzer) priorityFor(action models.ActionType, pattern models.UsagePattern, savings, waste float64) models.Priority {
	t := a.thresholds

	if action == models.ActionDelete && pattern == models.PatternIdle {
		return models.PriorityHigh
	}
	if action == models.ActionNoChange {
		return models.PriorityLow
	}
	if savings > t.HighSavings || waste > t.HighWastePct {
		return models.PriorityHigh
	}
	if savings >= t.MediumSavings || waste >= t.MediumWastePct {
		return models.PriorityMedium
	}
	return models.PriorityLow
}

// riskFor rates the blast radius of applying the recommendation.
func riskFor(action models.ActionType, pattern models.UsagePattern, production bool) models.RiskLevel {
	if action == models.ActionNoChange {
		return models.RiskLow
	}
	if production {
		return models.RiskHigh
	}
	if action == models.ActionDelete && pattern == models.PatternIdle {
		return models.RiskLow
	}
	if action == models.ActionOptimize {
		return models.RiskLow
	}
	if pattern == models.PatternVariable || pattern == models.PatternBatch {
		return models.RiskHigh
	}
	if action == models.ActionDownsize && pattern == models.PatternSteady {
		return models.RiskMedium
	}
	return models.RiskMedium
}

// confidenceFor combines data quality with how cleanly the pattern was
// classified, clamped to [0, 1].
func (a *Analyzer) confidenceFor(sampleCount int, pattern models.UsagePattern) float64 {
	quality := float64(sampleCount) / float64(a.thresholds.IdealSampleCount)
	if quality > 1 {
		quality = 1
	}

	var patternConfidence float64
	switch pattern {
	case models.PatternSteady:
		patternConfidence = 0.95
	case models.PatternIdle:
		patternConfidence = 0.90
	case models.PatternBatch:
		patternConfidence = 0.80
	default:
		patternConfidence = 0.75
	}

	confidence := quality * patternConfidence
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// primaryMetricFor names the series that drives classification per kind.
func primaryMetricFor(kind models.ResourceKind) string {
	switch kind {
	case models.KindCompute, models.KindDatabase:
		return models.MetricCPUUtilization
	case models.KindLoadBalancer:
		return models.MetricRequestCount
	case models.KindFunction:
		return models.MetricInvocations
	case models.KindVolume:
		return models.MetricIOPS
	default:
		return models.MetricCPUUtilization
	}
}

// isUtilizationKind reports whether the kind's primary metric is a 0-100
// utilization percentage (as opposed to a raw count).
func isUtilizationKind(kind models.ResourceKind) bool {
	switch kind {
	case models.KindCompute, models.KindDatabase:
		return true
	default:
		return false
	}
}

// totalActivity sums the count-class series as the dependent-traffic signal.
func totalActivity(resource models.ResourceRecord) float64 {
	total := 0.0
	for _, name := range activityMetrics {
		for _, s := range resource.Series(name).Samples {
			total += s.Value
		}
	}
	return total
}
