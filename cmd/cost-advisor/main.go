package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/costwatch/cost-advisor/pkg/ai"
	"github.com/costwatch/cost-advisor/pkg/analyzer"
	"github.com/costwatch/cost-advisor/pkg/collector"
	"github.com/costwatch/cost-advisor/pkg/config"
	"github.com/costwatch/cost-advisor/pkg/metrics"
	"github.com/costwatch/cost-advisor/pkg/orchestrator"
	"github.com/costwatch/cost-advisor/pkg/reporter"
	"github.com/costwatch/cost-advisor/pkg/storage"
)

var (
	regions     []string
	format      string
	metricsAddr string
	historyN    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cost-advisor",
		Short: "Resilient cloud cost optimization analysis",
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze configured regions and print recommendations",
		Run:   runAnalyze,
	}
	analyzeCmd.Flags().StringSliceVarP(&regions, "regions", "r", nil, "Regions to analyze (overrides COST_ADVISOR_REGIONS)")
	analyzeCmd.Flags().StringVarP(&format, "output", "o", "", "Output format: text, json, csv")
	analyzeCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent analysis runs from storage",
		Run:   runHistory,
	}
	historyCmd.Flags().IntVarP(&historyN, "limit", "l", 20, "Number of runs to list")

	rootCmd.AddCommand(analyzeCmd, historyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	if verbose {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}

func runAnalyze(cmd *cobra.Command, args []string) {
	cfg := config.NewConfig()
	if len(regions) > 0 {
		cfg.Regions = regions
	}
	if format != "" {
		cfg.OutputFormat = format
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Verbose)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineMetrics := metrics.NewDefault()
	if metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				logger.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	aws, err := collector.NewAWS(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if account, err := aws.AccountID(ctx); err == nil {
		logger.Info("analyzing account", zap.String("account_id", account))
	}

	thresholds := analyzer.DefaultThresholds()
	thresholds.DownsizeWastePct = cfg.DownsizeWastePct
	thresholds.SaturationPct = cfg.SaturationPct
	thresholds.IdleP99 = cfg.IdleP99
	thresholds.SteadyCV = cfg.SteadyCV
	ruleEngine := analyzer.New(thresholds, nil)

	var strategy ai.Strategy
	if cfg.AIEnabled {
		strategy = ai.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, ruleEngine, logger)
	}

	engine, err := orchestrator.New(orchestrator.Options{
		Config:    cfg,
		Costs:     aws,
		Resources: aws,
		Strategy:  strategy,
		Fallback:  ai.NewRuleBased(ruleEngine),
		Metrics:   engineMetrics,
		Logger:    logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	report, err := engine.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.StorageEnabled {
		store, err := storage.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		if err := store.SaveReport(ctx, report); err != nil {
			logger.Error("failed to persist report", zap.Error(err))
		}
	}

	out, err := reporter.New(reporter.Format(cfg.OutputFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := out.Write(report, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(report.FailedRegions()) > 0 {
		os.Exit(2)
	}
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg := config.NewConfig()
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "Error: DATABASE_URL must be set to read run history")
		os.Exit(1)
	}

	store, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), historyN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-38s %-22s %9s %8s %14s\n", "RUN", "STARTED", "RESOURCES", "FAILED", "SAVINGS/MO")
	for _, run := range runs {
		fmt.Printf("%-38s %-22s %9d %8d %14s\n",
			run.RunID,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Summary.ResourceCount,
			run.Summary.RegionsFailed,
			fmt.Sprintf("$%.2f", run.Summary.TotalMonthlySavings),
		)
	}
}
