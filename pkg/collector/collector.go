// Package collector defines how resources and billing data enter the
// engine, plus the AWS implementation of both ports.
package collector

import (
	"context"
	"time"

	"github.com/costwatch/cost-advisor/pkg/models"
)

// CostProvider fetches a region's billing snapshot. Implementations are
// expected to be slow and unreliable; the orchestrator wraps calls in a
// retry policy and a circuit breaker and caches the results.
type CostProvider interface {
	FetchCostSnapshot(ctx context.Context, region string) (models.CostSnapshot, error)
	Name() string
}

// ResourceCollector inventories a region's resources together with
// their metric series over the analysis window.
type ResourceCollector interface {
	CollectResources(ctx context.Context, region string, window time.Duration) ([]models.ResourceRecord, error)
}
