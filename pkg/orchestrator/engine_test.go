package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/costwatch/cost-advisor/pkg/ai"
	"github.com/costwatch/cost-advisor/pkg/analyzer"
	"github.com/costwatch/cost-advisor/pkg/config"
	"github.com/costwatch/cost-advisor/pkg/metrics"
	"github.com/costwatch/cost-advisor/pkg/models"
	"github.com/costwatch/cost-advisor/pkg/resilience"
)

type fakeCosts struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string]error
}

func newFakeCosts() *fakeCosts {
	return &fakeCosts{calls: map[string]int{}, errs: map[string]error{}}
}

func (f *fakeCosts) Name() string { return "fake" }

func (f *fakeCosts) FetchCostSnapshot(_ context.Context, region string) (models.CostSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[region]++
	if err := f.errs[region]; err != nil {
		return models.CostSnapshot{}, err
	}
	return models.CostSnapshot{
		Region:    region,
		TotalCost: 1234.56,
		ByService: []models.ServiceCost{{ServiceName: "Amazon Elastic Compute Cloud - Compute", Cost: 1000}},
		FetchedAt: time.Now(),
	}, nil
}

func (f *fakeCosts) callCount(region string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[region]
}

type fakeResources struct {
	byRegion map[string][]models.ResourceRecord
	errs     map[string]error
	block    map[string]bool // block until ctx is done
}

func (f *fakeResources) CollectResources(ctx context.Context, region string, _ time.Duration) ([]models.ResourceRecord, error) {
	if f.block[region] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.errs[region]; err != nil {
		return nil, err
	}
	return f.byRegion[region], nil
}

type failingStrategy struct{ calls int }

func (s *failingStrategy) Name() string { return "failing" }

func (s *failingStrategy) Recommend(context.Context, models.ResourceRecord) (models.OptimizationRecommendation, error) {
	s.calls++
	return models.OptimizationRecommendation{}, resilience.Transient("remote analysis", errors.New("boom"))
}

type schemaViolatingStrategy struct{ calls int }

func (s *schemaViolatingStrategy) Name() string { return "off-contract" }

func (s *schemaViolatingStrategy) Recommend(context.Context, models.ResourceRecord) (models.OptimizationRecommendation, error) {
	s.calls++
	return models.OptimizationRecommendation{}, &resilience.SchemaViolationError{Reason: "not JSON"}
}

func idleResource(id, region string, kind models.ResourceKind, cfg string) models.ResourceRecord {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	metricName := models.MetricCPUUtilization
	if kind == models.KindLoadBalancer {
		metricName = models.MetricRequestCount
	}
	samples := make([]models.Sample, 200)
	for i := range samples {
		samples[i] = models.Sample{Timestamp: base.Add(time.Duration(i) * time.Hour)}
	}
	return models.ResourceRecord{
		ID:            id,
		Kind:          kind,
		Region:        region,
		Configuration: cfg,
		Metrics: map[string]models.MetricSeries{
			metricName: {Name: metricName, Samples: samples},
		},
	}
}

func testConfig(regions ...string) *config.Config {
	cfg := config.NewConfig()
	cfg.Regions = regions
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryMaxDelay = 2 * time.Millisecond
	cfg.FetchTimeout = time.Second
	cfg.RunTimeout = 5 * time.Second
	return cfg
}

func ruleBased() ai.Strategy {
	return ai.NewRuleBased(analyzer.New(analyzer.DefaultThresholds(), nil))
}

func TestRunIsolatesRegionFailure(t *testing.T) {
	costs := newFakeCosts()
	resources := &fakeResources{
		byRegion: map[string][]models.ResourceRecord{
			"ap-south-1": {idleResource("i-a", "ap-south-1", models.KindCompute, "m5.xlarge")},
			"us-east-1":  {idleResource("lb-b", "us-east-1", models.KindLoadBalancer, "application")},
		},
		errs: map[string]error{"eu-west-1": errors.New("describe failed: access denied")},
	}

	engine, err := New(Options{
		Config:    testConfig("us-east-1", "eu-west-1", "ap-south-1"),
		Costs:     costs,
		Resources: resources,
		Fallback:  ruleBased(),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.Regions) != 3 {
		t.Fatalf("Regions = %d, want 3", len(report.Regions))
	}
	byRegion := map[string]models.RegionResult{}
	for _, r := range report.Regions {
		byRegion[r.Region] = r
	}
	if byRegion["eu-west-1"].Status != models.RegionFailed {
		t.Errorf("eu-west-1 status = %s, want FAILED", byRegion["eu-west-1"].Status)
	}
	if byRegion["eu-west-1"].Error == "" {
		t.Error("failed region should carry its error")
	}
	if byRegion["us-east-1"].Status != models.RegionOK || byRegion["ap-south-1"].Status != models.RegionOK {
		t.Error("healthy regions should complete despite the failure")
	}
	if len(report.Recommendations) != 2 {
		t.Errorf("Recommendations = %d, want 2 from the healthy regions", len(report.Recommendations))
	}
	if report.Summary.RegionsFailed != 1 || report.Summary.RegionsScanned != 3 {
		t.Errorf("Summary = %+v", report.Summary)
	}
	if failed := report.FailedRegions(); len(failed) != 1 || failed[0] != "eu-west-1" {
		t.Errorf("FailedRegions = %v", failed)
	}
}

func TestRunFallsBackWhenStrategyFails(t *testing.T) {
	costs := newFakeCosts()
	resources := &fakeResources{
		byRegion: map[string][]models.ResourceRecord{
			"us-east-1": {idleResource("i-a", "us-east-1", models.KindCompute, "m5.xlarge")},
		},
	}
	strategy := &failingStrategy{}

	engine, err := New(Options{
		Config:    testConfig("us-east-1"),
		Costs:     costs,
		Resources: resources,
		Strategy:  strategy,
		Fallback:  ruleBased(),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Recommendations) != 1 {
		t.Fatalf("Recommendations = %d, want 1", len(report.Recommendations))
	}

	rec := report.Recommendations[0]
	if !rec.Degraded {
		t.Error("fallback recommendation should be marked degraded")
	}
	if rec.Action != models.ActionDelete {
		t.Errorf("Action = %s, want DELETE from the rule engine", rec.Action)
	}
	if rec.ID == "" || rec.CreatedAt.IsZero() {
		t.Error("recommendation should carry an ID and timestamp")
	}
	if strategy.calls != 3 {
		t.Errorf("strategy calls = %d, want 3 (transient errors are retried)", strategy.calls)
	}
}

func TestRunRetriesSchemaViolationsThenDegrades(t *testing.T) {
	costs := newFakeCosts()
	resources := &fakeResources{
		byRegion: map[string][]models.ResourceRecord{
			"us-east-1": {idleResource("i-a", "us-east-1", models.KindCompute, "m5.xlarge")},
		},
	}
	strategy := &schemaViolatingStrategy{}

	engine, err := New(Options{
		Config:    testConfig("us-east-1"),
		Costs:     costs,
		Resources: resources,
		Strategy:  strategy,
		Fallback:  ruleBased(),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strategy.calls != 3 {
		t.Errorf("strategy calls = %d, want 3 (schema violations are re-sampled)", strategy.calls)
	}
	if len(report.Recommendations) != 1 || !report.Recommendations[0].Degraded {
		t.Error("expected a degraded rule-based recommendation")
	}
}

func TestRunOrdersRecommendationsBySavings(t *testing.T) {
	costs := newFakeCosts()
	resources := &fakeResources{
		byRegion: map[string][]models.ResourceRecord{
			"us-east-1": {
				idleResource("lb-small", "us-east-1", models.KindLoadBalancer, "application"), // 16.43/mo
				idleResource("i-big", "us-east-1", models.KindCompute, "m5.xlarge"),          // 140.16/mo
			},
		},
	}

	engine, err := New(Options{
		Config:    testConfig("us-east-1"),
		Costs:     costs,
		Resources: resources,
		Fallback:  ruleBased(),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Recommendations) != 2 {
		t.Fatalf("Recommendations = %d, want 2", len(report.Recommendations))
	}
	if report.Recommendations[0].ResourceID != "i-big" {
		t.Errorf("first recommendation = %s, want the largest savings first", report.Recommendations[0].ResourceID)
	}
	wantTotal := report.Recommendations[0].MonthlySavings + report.Recommendations[1].MonthlySavings
	if report.Summary.TotalMonthlySavings != wantTotal {
		t.Errorf("TotalMonthlySavings = %.2f, want %.2f", report.Summary.TotalMonthlySavings, wantTotal)
	}
	if report.Summary.TotalAnnualSavings != wantTotal*12 {
		t.Errorf("TotalAnnualSavings = %.2f, want 12x monthly", report.Summary.TotalAnnualSavings)
	}
}

func TestRunMarksSlowRegionTimedOut(t *testing.T) {
	costs := newFakeCosts()
	costs.errs["us-east-1"] = errors.New("billing unavailable")
	resources := &fakeResources{block: map[string]bool{"us-east-1": true}}

	cfg := testConfig("us-east-1")
	cfg.RunTimeout = 50 * time.Millisecond

	engine, err := New(Options{
		Config:    cfg,
		Costs:     costs,
		Resources: resources,
		Fallback:  ruleBased(),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Regions) != 1 {
		t.Fatalf("Regions = %d, want 1", len(report.Regions))
	}
	if report.Regions[0].Status != models.RegionTimedOut {
		t.Errorf("Status = %s, want TIMED_OUT", report.Regions[0].Status)
	}
}

func TestCostSnapshotsAreCachedAcrossRuns(t *testing.T) {
	costs := newFakeCosts()
	resources := &fakeResources{byRegion: map[string][]models.ResourceRecord{"us-east-1": {}}}

	engine, err := New(Options{
		Config:    testConfig("us-east-1"),
		Costs:     costs,
		Resources: resources,
		Fallback:  ruleBased(),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := engine.Run(context.Background()); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}
	if got := costs.callCount("us-east-1"); got != 1 {
		t.Errorf("provider calls = %d, want 1 (snapshot served from cache)", got)
	}
}

func TestRunContinuesWithoutCostData(t *testing.T) {
	costs := newFakeCosts()
	costs.errs["us-east-1"] = errors.New("cost explorer throttled")
	resources := &fakeResources{
		byRegion: map[string][]models.ResourceRecord{
			"us-east-1": {idleResource("i-a", "us-east-1", models.KindCompute, "m5.large")},
		},
	}

	engine, err := New(Options{
		Config:    testConfig("us-east-1"),
		Costs:     costs,
		Resources: resources,
		Fallback:  ruleBased(),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Regions[0].Status != models.RegionOK {
		t.Errorf("Status = %s, want OK without billing data", report.Regions[0].Status)
	}
	if report.Regions[0].Cost != nil {
		t.Error("Cost should be nil when the snapshot failed")
	}
	if len(report.Recommendations) != 1 {
		t.Errorf("Recommendations = %d, want the analysis to proceed", len(report.Recommendations))
	}
}

func TestRunRejectsCancelledContext(t *testing.T) {
	engine, err := New(Options{
		Config:    testConfig("us-east-1"),
		Costs:     newFakeCosts(),
		Resources: &fakeResources{},
		Fallback:  ruleBased(),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCollectionIsBoundedByFetchTimeout(t *testing.T) {
	costs := newFakeCosts()
	resources := &fakeResources{block: map[string]bool{"us-east-1": true}}

	cfg := testConfig("us-east-1")
	cfg.FetchTimeout = 20 * time.Millisecond

	engine, err := New(Options{
		Config:    cfg,
		Costs:     costs,
		Resources: resources,
		Fallback:  ruleBased(),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Regions[0].Status != models.RegionTimedOut {
		t.Errorf("Status = %s, want TIMED_OUT", report.Regions[0].Status)
	}
	if elapsed := time.Since(start); elapsed >= cfg.RunTimeout {
		t.Errorf("run took %v, the per-call timeout should cut collection short", elapsed)
	}
}

func TestRunDegradesEverythingWhenAIBreakerOpens(t *testing.T) {
	costs := newFakeCosts()
	byRegion := map[string][]models.ResourceRecord{}
	regions := []string{"ap-south-1", "eu-west-1", "us-east-1"}
	for _, region := range regions {
		for _, id := range []string{"i-a", "i-b", "i-c"} {
			byRegion[region] = append(byRegion[region], idleResource(id+"-"+region, region, models.KindCompute, "m5.large"))
		}
	}
	strategy := &failingStrategy{}

	cfg := testConfig(regions...)
	cfg.MaxConcurrentRegions = 1

	m := metrics.New(prometheus.NewRegistry())
	engine, err := New(Options{
		Config:    cfg,
		Costs:     costs,
		Resources: &fakeResources{byRegion: byRegion},
		Strategy:  strategy,
		Fallback:  ruleBased(),
		Metrics:   m,
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// A dead analyzer degrades recommendations; it never fails a region.
	for _, r := range report.Regions {
		if r.Status != models.RegionOK {
			t.Errorf("%s status = %s, want OK", r.Region, r.Status)
		}
	}
	if len(report.Recommendations) != 9 {
		t.Fatalf("Recommendations = %d, want 9", len(report.Recommendations))
	}
	for _, rec := range report.Recommendations {
		if !rec.Degraded {
			t.Errorf("%s not degraded", rec.ResourceID)
		}
	}

	// Two resources reach the strategy (3 attempts, then 2 more to trip
	// the threshold of 5); every later call is rejected at the breaker.
	if strategy.calls != 5 {
		t.Errorf("strategy calls = %d, want 5", strategy.calls)
	}
	if got := testutil.ToFloat64(m.BreakerTransitions.WithLabelValues("ai-analyzer", "closed", "open")); got != 1 {
		t.Errorf("closed->open transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RetryAttempts.WithLabelValues("ai-recommendation")); got != 4 {
		t.Errorf("ai-recommendation retries = %v, want 4", got)
	}
}
