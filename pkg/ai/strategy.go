// Package ai provides recommendation strategies: a deterministic
// rule-based engine and an LLM-backed strategy that can be layered on
// top of it. The orchestrator treats both through the Strategy
// interface and falls back to the rule-based engine when the remote
// strategy is unavailable.
package ai

import (
	"context"

	"github.com/costwatch/cost-advisor/pkg/analyzer"
	"github.com/costwatch/cost-advisor/pkg/models"
)

// Strategy produces an optimization recommendation for one resource.
type Strategy interface {
	Name() string
	Recommend(ctx context.Context, resource models.ResourceRecord) (models.OptimizationRecommendation, error)
}

// RuleBased wraps the deterministic analyzer as a Strategy. It never
// returns an error and never blocks, which makes it the fallback of
// last resort.
type RuleBased struct {
	analyzer *analyzer.Analyzer
}

// NewRuleBased creates the rule-based strategy.
func NewRuleBased(a *analyzer.Analyzer) *RuleBased {
	return &RuleBased{analyzer: a}
}

func (r *RuleBased) Name() string { return "rule-based" }

// Recommend runs the deterministic analysis. The context is accepted
// for interface symmetry; the analysis itself is pure computation.
func (r *RuleBased) Recommend(_ context.Context, resource models.ResourceRecord) (models.OptimizationRecommendation, error) {
	return r.analyzer.Analyze(resource), nil
}
