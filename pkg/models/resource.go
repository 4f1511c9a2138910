package models

import "time"

// ResourceKind identifies the class of cloud resource being analyzed
type ResourceKind string

const (
	KindCompute      ResourceKind = "COMPUTE"
	KindDatabase     ResourceKind = "DATABASE"
	KindLoadBalancer ResourceKind = "LOAD_BALANCER"
	KindFunction     ResourceKind = "FUNCTION"
	KindVolume       ResourceKind = "VOLUME"
)

// Well-known metric names attached to a ResourceRecord
const (
	MetricCPUUtilization = "cpu_utilization"
	MetricMemoryUsage    = "memory_usage"
	MetricRequestCount   = "request_count"
	MetricInvocations    = "invocations"
	MetricIOPS           = "iops"
	MetricConnections    = "connections"
)

// Sample represents a single metric data point
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// MetricSeries is an ordered sequence of samples for one metric over the
// analysis window. Timestamps are non-decreasing; the series is read-only
// once handed to the analyzer.
type MetricSeries struct {
	Name    string
	Samples []Sample
}

// Values extracts just the sample values, in order.
func (m MetricSeries) Values() []float64 {
	values := make([]float64, len(m.Samples))
	for i, s := range m.Samples {
		values[i] = s.Value
	}
	return values
}

// IsEmpty reports whether the series has no samples.
func (m MetricSeries) IsEmpty() bool {
	return len(m.Samples) == 0
}

// ResourceRecord is one analyzed unit: a compute instance, database,
// load balancer, serverless function, or block volume. Produced by the
// collector; read-only to the analyzer.
type ResourceRecord struct {
	ID            string
	Kind          ResourceKind
	Region        string
	Configuration string // instance class, volume type, memory size, etc.
	Labels        map[string]string
	Metrics       map[string]MetricSeries
}

// Series returns the named metric series, or an empty series if absent.
func (r ResourceRecord) Series(name string) MetricSeries {
	if s, ok := r.Metrics[name]; ok {
		return s
	}
	return MetricSeries{Name: name}
}

// IsProduction reports whether the resource carries a production label.
// Production-tagged resources always get a HIGH risk rating for any
// capacity-changing action.
func (r ResourceRecord) IsProduction() bool {
	for _, key := range []string{"environment", "env", "stage"} {
		switch r.Labels[key] {
		case "production", "prod":
			return true
		}
	}
	return false
}
