package models

import "time"

// ServiceCost is one entry in a cost breakdown, ranked by cost.
type ServiceCost struct {
	ServiceName string
	Cost        float64
}

// CostSnapshot is a point-in-time cost summary for one region: the total
// spend over the analysis window plus a ranked per-service breakdown.
// Snapshots are cached per region with a TTL to avoid redundant calls to
// the cost provider.
type CostSnapshot struct {
	Region    string
	TotalCost float64
	Window    time.Duration
	ByService []ServiceCost
	FetchedAt time.Time
}
