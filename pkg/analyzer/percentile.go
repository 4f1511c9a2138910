package analyzer

import (
	"math"
	"sort"

	"github.com/costwatch/cost-advisor/pkg/models"
)

// Percentiles contains the statistics derived from one metric series
type Percentiles struct {
	Mean float64
	P50  float64
	P90  float64
	P95  float64
	P99  float64
	Peak float64
	Min  float64
}

// CalculatePercentiles computes mean, P50, P90, P95, P99, peak and min
// from a series' samples. Returns false when the series is empty.
func CalculatePercentiles(series models.MetricSeries) (Percentiles, bool) {
	if series.IsEmpty() {
		return Percentiles{}, false
	}

	values := series.Values()
	sort.Float64s(values)

	return Percentiles{
		Mean: calculateAverage(values),
		P50:  calculatePercentile(values, 50),
		P90:  calculatePercentile(values, 90),
		P95:  calculatePercentile(values, 95),
		P99:  calculatePercentile(values, 99),
		Peak: values[len(values)-1],
		Min:  values[0],
	}, true
}

// calculatePercentile computes the Nth percentile using linear interpolation
func calculatePercentile(sortedValues []float64, percentile float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if len(sortedValues) == 1 {
		return sortedValues[0]
	}

	n := float64(len(sortedValues))
	rank := (percentile / 100.0) * (n - 1)

	lowerIndex := int(math.Floor(rank))
	upperIndex := int(math.Ceil(rank))

	if lowerIndex == upperIndex {
		return sortedValues[lowerIndex]
	}

	lowerValue := sortedValues[lowerIndex]
	upperValue := sortedValues[upperIndex]
	fraction := rank - float64(lowerIndex)

	return lowerValue + (upperValue-lowerValue)*fraction
}

// calculateAverage computes the mean of values
func calculateAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// CoefficientOfVariation measures relative variability (std-dev / mean).
// Low CV means a steady workload; high CV means a spiky one.
func CoefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	mean := calculateAverage(values)
	if mean == 0 {
		return 0
	}

	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}

	variance := sumSquaredDiff / float64(len(values))
	return math.Sqrt(variance) / mean
}
