package analyzer

import (
	"github.com/costwatch/cost-advisor/pkg/models"
)

// trendMinSamples is the minimum sample count for a meaningful regression.
const trendMinSamples = 100

// GrowthTrend describes utilization growth over the analysis window
type GrowthTrend struct {
	RatePerMonth float64 // % growth per month
	Confidence   float64 // R² of the regression fit
	IsGrowing    bool
}

// CalculateGrowthTrend fits a linear regression over a series and converts
// the slope to percentage growth per month. A strongly growing resource
// should not be downsized even when current waste is high.
func CalculateGrowthTrend(series models.MetricSeries) GrowthTrend {
	samples := series.Samples
	if len(samples) < trendMinSamples {
		return GrowthTrend{}
	}

	startTime := samples[0].Timestamp
	x := make([]float64, len(samples)) // hours since window start
	y := make([]float64, len(samples))
	for i, sample := range samples {
		x[i] = sample.Timestamp.Sub(startTime).Hours()
		y[i] = sample.Value
	}

	slope, _, r2 := linearRegression(x, y)

	currentAvg := calculateAverage(y)
	hoursPerMonth := 24.0 * 30.0
	absoluteGrowthPerMonth := slope * hoursPerMonth

	var ratePerMonth float64
	if currentAvg > 0 {
		ratePerMonth = (absoluteGrowthPerMonth / currentAvg) * 100.0
	}

	return GrowthTrend{
		RatePerMonth: ratePerMonth,
		Confidence:   r2,
		IsGrowing:    ratePerMonth > 3.0,
	}
}

// linearRegression performs simple linear regression.
// Returns: slope, intercept, R² (coefficient of determination)
func linearRegression(x, y []float64) (slope, intercept, r2 float64) {
	n := float64(len(x))
	if n == 0 {
		return 0, 0, 0
	}

	meanX := calculateAverage(x)
	meanY := calculateAverage(y)

	numerator := 0.0
	denominator := 0.0
	for i := 0; i < len(x); i++ {
		numerator += (x[i] - meanX) * (y[i] - meanY)
		denominator += (x[i] - meanX) * (x[i] - meanX)
	}

	if denominator == 0 {
		return 0, meanY, 0
	}

	slope = numerator / denominator
	intercept = meanY - slope*meanX

	ssTotal := 0.0
	ssRes := 0.0
	for i := 0; i < len(x); i++ {
		predicted := slope*x[i] + intercept
		ssRes += (y[i] - predicted) * (y[i] - predicted)
		ssTotal += (y[i] - meanY) * (y[i] - meanY)
	}

	if ssTotal == 0 {
		r2 = 0
	} else {
		r2 = 1.0 - (ssRes / ssTotal)
	}
	if r2 < 0 {
		r2 = 0
	} else if r2 > 1 {
		r2 = 1
	}

	return slope, intercept, r2
}
