// Package orchestrator runs the end-to-end analysis: fan out across
// regions with bounded concurrency, fetch cached cost snapshots and
// resource inventories through the resilience layer, produce one
// recommendation per resource, and aggregate everything into a single
// report. A failing region degrades the report; it never aborts the run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/costwatch/cost-advisor/pkg/ai"
	"github.com/costwatch/cost-advisor/pkg/cache"
	"github.com/costwatch/cost-advisor/pkg/collector"
	"github.com/costwatch/cost-advisor/pkg/config"
	"github.com/costwatch/cost-advisor/pkg/metrics"
	"github.com/costwatch/cost-advisor/pkg/models"
	"github.com/costwatch/cost-advisor/pkg/resilience"
)

// Dependency names for the breaker registry. Each remote dependency has
// its own circuit so a billing outage cannot trip the AI path or vice versa.
const (
	depCostProvider = "cost-provider"
	depCollector    = "resource-collector"
	depAIAnalyzer   = "ai-analyzer"
)

// Options wires the engine's collaborators. Strategy may be nil, in
// which case Fallback serves every resource directly.
type Options struct {
	Config    *config.Config
	Costs     collector.CostProvider
	Resources collector.ResourceCollector
	Strategy  ai.Strategy
	Fallback  ai.Strategy
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Engine coordinates one analysis run.
type Engine struct {
	cfg       *config.Config
	costs     collector.CostProvider
	resources collector.ResourceCollector
	strategy  ai.Strategy
	fallback  ai.Strategy
	metrics   *metrics.Metrics
	log       *zap.Logger

	breakers  *resilience.Registry
	retrier   *resilience.Retrier
	aiRetrier *resilience.Retrier
	costCache *cache.TTLCache

	nowFunc func() time.Time
}

// New validates the options and builds an engine.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("orchestrator: config is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	if opts.Costs == nil || opts.Resources == nil {
		return nil, fmt.Errorf("orchestrator: cost provider and resource collector are required")
	}
	if opts.Fallback == nil {
		return nil, fmt.Errorf("orchestrator: fallback strategy is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cfg := opts.Config
	retryCfg := resilience.RetryConfig{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Factor:      2,
	}
	retrier, err := resilience.NewRetrier(retryCfg, nil, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	// The AI path also re-samples the model on schema violations; a later
	// completion may parse even when the first one did not.
	aiRetrier, err := resilience.NewRetrier(retryCfg, func(err error) bool {
		return resilience.IsTransient(err) || resilience.IsSchemaViolation(err)
	}, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	breakers := resilience.NewRegistry(resilience.BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
	}, opts.Logger)

	costCache := cache.New(cfg.CostCacheTTL)

	e := &Engine{
		cfg:       cfg,
		costs:     opts.Costs,
		resources: opts.Resources,
		strategy:  opts.Strategy,
		fallback:  opts.Fallback,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		breakers:  breakers,
		retrier:   retrier,
		aiRetrier: aiRetrier,
		costCache: costCache,
		nowFunc:   time.Now,
	}

	if e.metrics != nil {
		costCache.OnLookup(e.metrics.CacheHits.Inc, e.metrics.CacheMisses.Inc)
		breakers.OnStateChange(func(dependency string, from, to resilience.CircuitState) {
			e.metrics.BreakerTransitions.WithLabelValues(dependency, from.String(), to.String()).Inc()
		})
		countRetry := func(op string) {
			e.metrics.RetryAttempts.WithLabelValues(op).Inc()
		}
		retrier.OnRetry(countRetry)
		aiRetrier.OnRetry(countRetry)
	}
	return e, nil
}

// Run analyzes every configured region and returns the aggregate report.
// The error return is reserved for setup problems (an already-cancelled
// context); per-region failures are reported inside the report.
func (e *Engine) Run(ctx context.Context) (*models.AnalysisReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout)
	defer cancel()

	started := e.nowFunc().UTC()
	report := &models.AnalysisReport{
		RunID:     uuid.New().String(),
		StartedAt: started,
	}

	e.log.Info("analysis run started",
		zap.String("run_id", report.RunID),
		zap.Strings("regions", e.cfg.Regions))

	type regionOutcome struct {
		result models.RegionResult
		recs   []models.OptimizationRecommendation
	}

	workers := e.cfg.MaxConcurrentRegions
	if workers > len(e.cfg.Regions) {
		workers = len(e.cfg.Regions)
	}

	regionCh := make(chan string)
	outcomes := make([]regionOutcome, 0, len(e.cfg.Regions))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for region := range regionCh {
				result, recs := e.analyzeRegion(ctx, region)
				mu.Lock()
				outcomes = append(outcomes, regionOutcome{result: result, recs: recs})
				mu.Unlock()
			}
		}()
	}
	for _, region := range e.cfg.Regions {
		regionCh <- region
	}
	close(regionCh)
	wg.Wait()

	for _, outcome := range outcomes {
		report.Regions = append(report.Regions, outcome.result)
		report.Recommendations = append(report.Recommendations, outcome.recs...)
		if e.metrics != nil {
			e.metrics.RegionOutcomes.WithLabelValues(outcome.result.Region, string(outcome.result.Status)).Inc()
		}
	}

	sortReport(report)
	report.CompletedAt = e.nowFunc().UTC()
	report.Summary = summarize(report)

	if e.metrics != nil {
		e.metrics.AnalysisSeconds.Observe(report.CompletedAt.Sub(started).Seconds())
		e.metrics.EstimatedSavings.Set(report.Summary.TotalMonthlySavings)
		for _, rec := range report.Recommendations {
			e.metrics.Recommendations.WithLabelValues(string(rec.Action)).Inc()
		}
	}

	e.log.Info("analysis run completed",
		zap.String("run_id", report.RunID),
		zap.Int("resources", report.Summary.ResourceCount),
		zap.Int("regions_failed", report.Summary.RegionsFailed),
		zap.Float64("monthly_savings", report.Summary.TotalMonthlySavings))
	return report, nil
}

// analyzeRegion runs one region's pipeline: cost snapshot, inventory,
// then one recommendation per resource.
func (e *Engine) analyzeRegion(ctx context.Context, region string) (models.RegionResult, []models.OptimizationRecommendation) {
	result := models.RegionResult{Region: region, Status: models.RegionOK}

	snapshot, err := e.costSnapshot(ctx, region)
	if err != nil {
		// Cost data enriches the report but is not required to analyze
		// resource utilization.
		e.log.Warn("cost snapshot unavailable",
			zap.String("region", region),
			zap.Error(err))
	} else {
		result.Cost = &snapshot
	}

	resources, err := e.collectResources(ctx, region)
	if err != nil {
		result.Status = statusFor(err)
		result.Error = err.Error()
		e.log.Error("region analysis failed",
			zap.String("region", region),
			zap.String("status", string(result.Status)),
			zap.Error(err))
		return result, nil
	}
	result.ResourceCount = len(resources)

	recs := make([]models.OptimizationRecommendation, 0, len(resources))
	for _, resource := range resources {
		recs = append(recs, e.recommend(ctx, resource))
	}
	return result, recs
}

// costSnapshot serves the region's billing data through the TTL cache;
// a miss goes to the provider behind the retry policy and breaker.
func (e *Engine) costSnapshot(ctx context.Context, region string) (models.CostSnapshot, error) {
	value, err := e.costCache.GetOrLoad(ctx, region, func(ctx context.Context) (any, error) {
		var snapshot models.CostSnapshot
		err := e.retrier.Do(ctx, "fetch-cost-snapshot", func(ctx context.Context) error {
			return e.breakers.Get(depCostProvider).Execute(ctx, func(ctx context.Context) error {
				fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
				defer cancel()

				start := e.nowFunc()
				var fetchErr error
				snapshot, fetchErr = e.costs.FetchCostSnapshot(fetchCtx, region)
				if e.metrics != nil {
					e.metrics.FetchSeconds.WithLabelValues(depCostProvider).Observe(e.nowFunc().Sub(start).Seconds())
				}
				return fetchErr
			})
		})
		if err != nil {
			return nil, err
		}
		return snapshot, nil
	})
	if err != nil {
		if e.metrics != nil && resilience.IsCircuitOpen(err) {
			e.metrics.BreakerRejections.WithLabelValues(depCostProvider).Inc()
		}
		return models.CostSnapshot{}, err
	}
	snapshot, ok := value.(models.CostSnapshot)
	if !ok {
		return models.CostSnapshot{}, fmt.Errorf("unexpected cache entry %T for region %s", value, region)
	}
	return snapshot, nil
}

func (e *Engine) collectResources(ctx context.Context, region string) ([]models.ResourceRecord, error) {
	var resources []models.ResourceRecord
	err := e.retrier.Do(ctx, "collect-resources", func(ctx context.Context) error {
		return e.breakers.Get(depCollector).Execute(ctx, func(ctx context.Context) error {
			fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
			defer cancel()

			start := e.nowFunc()
			var collectErr error
			resources, collectErr = e.resources.CollectResources(fetchCtx, region, e.cfg.MetricsDuration)
			if e.metrics != nil {
				e.metrics.FetchSeconds.WithLabelValues(depCollector).Observe(e.nowFunc().Sub(start).Seconds())
			}
			return collectErr
		})
	})
	return resources, err
}

// recommend produces one recommendation, preferring the primary strategy
// and falling back to the deterministic engine when it fails. The
// fallback result carries the Degraded flag.
func (e *Engine) recommend(ctx context.Context, resource models.ResourceRecord) models.OptimizationRecommendation {
	rec, err := e.primaryRecommendation(ctx, resource)
	if err != nil {
		e.log.Warn("primary strategy unavailable, using rule-based fallback",
			zap.String("resource_id", resource.ID),
			zap.Error(err))
		if e.metrics != nil {
			e.metrics.DegradedAnalyses.Inc()
			if resilience.IsCircuitOpen(err) {
				e.metrics.BreakerRejections.WithLabelValues(depAIAnalyzer).Inc()
			}
		}
		rec, _ = e.fallback.Recommend(ctx, resource)
		rec.Degraded = true
	}

	rec.ID = uuid.New().String()
	rec.CreatedAt = e.nowFunc().UTC()
	if e.metrics != nil {
		e.metrics.ResourcesAnalyzed.Inc()
	}
	return rec
}

func (e *Engine) primaryRecommendation(ctx context.Context, resource models.ResourceRecord) (models.OptimizationRecommendation, error) {
	if e.strategy == nil {
		return e.fallback.Recommend(ctx, resource)
	}

	var rec models.OptimizationRecommendation
	err := e.aiRetrier.Do(ctx, "ai-recommendation", func(ctx context.Context) error {
		return e.breakers.Get(depAIAnalyzer).Execute(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
			defer cancel()

			start := e.nowFunc()
			var recErr error
			rec, recErr = e.strategy.Recommend(callCtx, resource)
			if e.metrics != nil {
				e.metrics.FetchSeconds.WithLabelValues(depAIAnalyzer).Observe(e.nowFunc().Sub(start).Seconds())
			}
			return recErr
		})
	})
	return rec, err
}

// sortReport orders regions by name and recommendations by savings, so
// two runs over the same data render identically.
func sortReport(report *models.AnalysisReport) {
	sort.Slice(report.Regions, func(i, j int) bool {
		return report.Regions[i].Region < report.Regions[j].Region
	})
	sort.Slice(report.Recommendations, func(i, j int) bool {
		a, b := report.Recommendations[i], report.Recommendations[j]
		if a.MonthlySavings != b.MonthlySavings {
			return a.MonthlySavings > b.MonthlySavings
		}
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		return a.ResourceID < b.ResourceID
	})
}

func summarize(report *models.AnalysisReport) models.ReportSummary {
	summary := models.ReportSummary{
		CountsByPriority: map[models.Priority]int{},
		CountsByAction:   map[models.ActionType]int{},
	}
	for _, rec := range report.Recommendations {
		summary.TotalMonthlySavings += rec.MonthlySavings
		summary.TotalAnnualSavings += rec.AnnualSavings
		summary.CountsByPriority[rec.Priority]++
		summary.CountsByAction[rec.Action]++
	}
	summary.ResourceCount = len(report.Recommendations)
	for _, region := range report.Regions {
		summary.RegionsScanned++
		if region.Status != models.RegionOK {
			summary.RegionsFailed++
		}
	}
	return summary
}

// statusFor maps the terminal error of a region pipeline to its status.
func statusFor(err error) models.RegionState {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.RegionTimedOut
	}
	return models.RegionFailed
}
