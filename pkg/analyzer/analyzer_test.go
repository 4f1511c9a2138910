package analyzer

import (
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/costwatch/cost-advisor/pkg/models"
)

func hourlySeries(name string, n int, value func(i int) float64) models.MetricSeries {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	samples := make([]models.Sample, n)
	for i := 0; i < n; i++ {
		samples[i] = models.Sample{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Value:     value(i),
		}
	}
	return models.MetricSeries{Name: name, Samples: samples}
}

func computeResource(id, config string, cpu models.MetricSeries) models.ResourceRecord {
	return models.ResourceRecord{
		ID:            id,
		Kind:          models.KindCompute,
		Region:        "us-east-1",
		Configuration: config,
		Metrics:       map[string]models.MetricSeries{models.MetricCPUUtilization: cpu},
	}
}

func TestAnalyzeOverProvisionedSteadyCompute(t *testing.T) {
	a := New(DefaultThresholds(), nil)

	// 30 days of hourly CPU cycling between 20% and 30%: steady, with
	// roughly 70% of capacity unused at p95.
	cpu := hourlySeries(models.MetricCPUUtilization, 720, func(i int) float64 {
		return 20 + 10*float64(i%20)/19
	})
	rec := a.Analyze(computeResource("i-0abc", "m5.xlarge", cpu))

	if rec.Action != models.ActionDownsize {
		t.Fatalf("Action = %s, want %s (%s)", rec.Action, models.ActionDownsize, rec.Reason)
	}
	if rec.TargetConfig != "m5.large" {
		t.Errorf("TargetConfig = %q, want m5.large", rec.TargetConfig)
	}
	if rec.Pattern != models.PatternSteady {
		t.Errorf("Pattern = %s, want %s", rec.Pattern, models.PatternSteady)
	}
	if rec.Stats.WastePct < 65 || rec.Stats.WastePct > 75 {
		t.Errorf("WastePct = %.1f, want ~70", rec.Stats.WastePct)
	}
	if math.Abs(rec.MonthlySavings-70.08) > 0.01 {
		t.Errorf("MonthlySavings = %.2f, want 70.08", rec.MonthlySavings)
	}
	if math.Abs(rec.AnnualSavings-rec.MonthlySavings*12) > 1e-9 {
		t.Errorf("AnnualSavings = %.2f, want 12x monthly", rec.AnnualSavings)
	}
	if rec.Priority != models.PriorityHigh {
		t.Errorf("Priority = %s, want %s", rec.Priority, models.PriorityHigh)
	}
	if rec.Risk != models.RiskMedium {
		t.Errorf("Risk = %s, want %s", rec.Risk, models.RiskMedium)
	}
	if len(rec.Steps) == 0 {
		t.Error("expected implementation steps for a downsize")
	}
}

func TestAnalyzeIdleLoadBalancer(t *testing.T) {
	a := New(DefaultThresholds(), nil)

	requests := hourlySeries(models.MetricRequestCount, 200, func(int) float64 { return 0 })
	rec := a.Analyze(models.ResourceRecord{
		ID:            "lb-1",
		Kind:          models.KindLoadBalancer,
		Region:        "eu-west-1",
		Configuration: "application",
		Metrics:       map[string]models.MetricSeries{models.MetricRequestCount: requests},
	})

	if rec.Action != models.ActionDelete {
		t.Fatalf("Action = %s, want %s (%s)", rec.Action, models.ActionDelete, rec.Reason)
	}
	if rec.Pattern != models.PatternIdle {
		t.Errorf("Pattern = %s, want %s", rec.Pattern, models.PatternIdle)
	}
	if rec.Risk != models.RiskLow {
		t.Errorf("Risk = %s, want %s for delete-on-idle", rec.Risk, models.RiskLow)
	}
	if rec.Priority != models.PriorityHigh {
		t.Errorf("Priority = %s, want %s", rec.Priority, models.PriorityHigh)
	}
	if math.Abs(rec.MonthlySavings-16.43) > 0.01 {
		t.Errorf("MonthlySavings = %.2f, want the full monthly rate 16.43", rec.MonthlySavings)
	}
}

func TestAnalyzeInsufficientSamples(t *testing.T) {
	a := New(DefaultThresholds(), nil)

	cpu := hourlySeries(models.MetricCPUUtilization, 5, func(int) float64 { return 50 })
	rec := a.Analyze(computeResource("i-sparse", "m5.large", cpu))

	if rec.Action != models.ActionNoChange {
		t.Fatalf("Action = %s, want %s", rec.Action, models.ActionNoChange)
	}
	if rec.Confidence != 0 {
		t.Errorf("Confidence = %.2f, want 0", rec.Confidence)
	}
	if !strings.Contains(rec.Reason, "insufficient data") {
		t.Errorf("Reason = %q, want it to mention insufficient data", rec.Reason)
	}
	if rec.Stats.SampleCount != 5 {
		t.Errorf("SampleCount = %d, want 5", rec.Stats.SampleCount)
	}
}

func TestAnalyzeSaturatedComputeUpsizes(t *testing.T) {
	a := New(DefaultThresholds(), nil)

	cpu := hourlySeries(models.MetricCPUUtilization, 720, func(i int) float64 {
		return 90 + 4*float64(i%10)/9
	})
	rec := a.Analyze(computeResource("i-hot", "m5.large", cpu))

	if rec.Action != models.ActionUpsize {
		t.Fatalf("Action = %s, want %s (%s)", rec.Action, models.ActionUpsize, rec.Reason)
	}
	if rec.MonthlySavings != 0 {
		t.Errorf("MonthlySavings = %.2f, want 0 for an upsize", rec.MonthlySavings)
	}
}

func TestAnalyzeGrowthSuppressesDownsize(t *testing.T) {
	a := New(DefaultThresholds(), nil)

	// Steady but growing from 28% to 38% over the month: current waste is
	// above the downsize bar, but the trend means headroom is being consumed.
	cpu := hourlySeries(models.MetricCPUUtilization, 720, func(i int) float64 {
		return 28 + 10*float64(i)/719
	})
	rec := a.Analyze(computeResource("i-growing", "m5.xlarge", cpu))

	if rec.Action != models.ActionNoChange {
		t.Fatalf("Action = %s, want %s (%s)", rec.Action, models.ActionNoChange, rec.Reason)
	}
	if !strings.Contains(rec.Reason, "growing") {
		t.Errorf("Reason = %q, want it to mention growth", rec.Reason)
	}
	if rec.MonthlySavings != 0 {
		t.Errorf("MonthlySavings = %.2f, want 0 when the downsize is suppressed", rec.MonthlySavings)
	}
}

func TestAnalyzeProductionLabelRaisesRisk(t *testing.T) {
	a := New(DefaultThresholds(), nil)

	cpu := hourlySeries(models.MetricCPUUtilization, 720, func(i int) float64 {
		return 20 + 10*float64(i%20)/19
	})
	resource := computeResource("i-prod", "m5.xlarge", cpu)
	resource.Labels = map[string]string{"environment": "production"}

	rec := a.Analyze(resource)
	if rec.Action != models.ActionDownsize {
		t.Fatalf("Action = %s, want %s", rec.Action, models.ActionDownsize)
	}
	if rec.Risk != models.RiskHigh {
		t.Errorf("Risk = %s, want %s for a production-tagged resource", rec.Risk, models.RiskHigh)
	}
}

func TestAnalyzeSmallestConfigNotDownsized(t *testing.T) {
	a := New(DefaultThresholds(), nil)

	cpu := hourlySeries(models.MetricCPUUtilization, 720, func(i int) float64 {
		return 10 + 5*float64(i%20)/19
	})
	rec := a.Analyze(computeResource("i-tiny", "t3.micro", cpu))

	if rec.Action != models.ActionNoChange {
		t.Fatalf("Action = %s, want %s (%s)", rec.Action, models.ActionNoChange, rec.Reason)
	}
	if !strings.Contains(rec.Reason, "smallest") {
		t.Errorf("Reason = %q, want it to mention the smallest configuration", rec.Reason)
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	a := New(DefaultThresholds(), nil)

	cpu := hourlySeries(models.MetricCPUUtilization, 720, func(i int) float64 {
		return 20 + 10*float64(i%20)/19
	})
	resource := computeResource("i-0abc", "m5.xlarge", cpu)

	first := a.Analyze(resource)
	second := a.Analyze(resource)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Analyze is not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestPriorityMonotonicInSavings(t *testing.T) {
	a := New(DefaultThresholds(), nil)
	rank := map[models.Priority]int{
		models.PriorityLow:    0,
		models.PriorityMedium: 1,
		models.PriorityHigh:   2,
	}

	prev := -1
	for _, savings := range []float64{0, 10, 19.99, 20, 35, 50, 50.01, 100, 500} {
		p := a.priorityFor(models.ActionDownsize, models.PatternSteady, savings, 30)
		if rank[p] < prev {
			t.Fatalf("priority dropped to %s at savings %.2f", p, savings)
		}
		prev = rank[p]
	}
}

func TestAnalyzeFunctionMemoryOptimize(t *testing.T) {
	a := New(DefaultThresholds(), nil)

	invocations := hourlySeries(models.MetricInvocations, 720, func(i int) float64 {
		return 100 + 10*float64(i%20)/19
	})
	memory := hourlySeries(models.MetricMemoryUsage, 720, func(i int) float64 {
		return 25 + 5*float64(i%10)/9
	})
	rec := a.Analyze(models.ResourceRecord{
		ID:            "fn-reports",
		Kind:          models.KindFunction,
		Region:        "us-east-1",
		Configuration: "1024MB",
		Metrics: map[string]models.MetricSeries{
			models.MetricInvocations: invocations,
			models.MetricMemoryUsage: memory,
		},
	})

	if rec.Action != models.ActionOptimize {
		t.Fatalf("Action = %s, want %s (%s)", rec.Action, models.ActionOptimize, rec.Reason)
	}
	if rec.Risk != models.RiskLow {
		t.Errorf("Risk = %s, want %s for configuration tuning", rec.Risk, models.RiskLow)
	}
	if rec.MonthlySavings <= 0 {
		t.Errorf("MonthlySavings = %.2f, want > 0", rec.MonthlySavings)
	}
}
