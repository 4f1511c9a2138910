package pricing

import (
	"github.com/costwatch/cost-advisor/pkg/models"
)

// kindTable maps configuration -> monthly USD rate for one resource kind.
type kindTable map[string]float64

// sizeLadders lists configurations from largest to smallest within one
// family; downsizing steps one rung down the ladder.
var sizeLadders = map[models.ResourceKind][][]string{
	models.KindCompute: {
		{"m5.4xlarge", "m5.2xlarge", "m5.xlarge", "m5.large"},
		{"c5.4xlarge", "c5.2xlarge", "c5.xlarge", "c5.large"},
		{"t3.xlarge", "t3.large", "t3.medium", "t3.small", "t3.micro"},
	},
	models.KindDatabase: {
		{"db.m5.2xlarge", "db.m5.xlarge", "db.m5.large"},
		{"db.t3.large", "db.t3.medium", "db.t3.small", "db.t3.micro"},
	},
	models.KindVolume: {
		{"io1", "gp2", "gp3"},
	},
	models.KindFunction: {
		{"3008MB", "2048MB", "1024MB", "512MB", "256MB", "128MB"},
	},
}

// defaultRates holds approximate us-east-1 on-demand monthly rates.
var defaultRates = map[models.ResourceKind]kindTable{
	models.KindCompute: {
		"m5.4xlarge": 560.64,
		"m5.2xlarge": 280.32,
		"m5.xlarge":  140.16,
		"m5.large":   70.08,
		"c5.4xlarge": 495.72,
		"c5.2xlarge": 247.86,
		"c5.xlarge":  123.93,
		"c5.large":   61.97,
		"t3.xlarge":  121.47,
		"t3.large":   60.74,
		"t3.medium":  30.37,
		"t3.small":   15.18,
		"t3.micro":   7.59,
	},
	models.KindDatabase: {
		"db.m5.2xlarge": 499.32,
		"db.m5.xlarge":  249.66,
		"db.m5.large":   124.83,
		"db.t3.large":   99.28,
		"db.t3.medium":  49.64,
		"db.t3.small":   24.82,
		"db.t3.micro":   12.41,
	},
	models.KindLoadBalancer: {
		"application": 16.43,
		"network":     16.43,
		"classic":     18.25,
	},
	models.KindFunction: {
		"3008MB": 36.75,
		"2048MB": 25.01,
		"1024MB": 12.51,
		"512MB":  6.25,
		"256MB":  3.13,
		"128MB":  1.56,
	},
	models.KindVolume: {
		"io1": 125.00,
		"gp2": 10.00,
		"gp3": 8.00,
	},
}

// StaticProvider serves rates from an in-memory reference table.
type StaticProvider struct {
	rates map[models.ResourceKind]kindTable
}

// NewStaticProvider returns a provider backed by the built-in rate table.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{rates: defaultRates}
}

// NewStaticProviderWithRates overrides the built-in table, for tests or
// customer-specific rate cards. Kinds absent from rates fall back to the
// built-in table.
func NewStaticProviderWithRates(rates map[models.ResourceKind]map[string]float64) *StaticProvider {
	merged := make(map[models.ResourceKind]kindTable, len(defaultRates))
	for kind, table := range defaultRates {
		merged[kind] = table
	}
	for kind, table := range rates {
		merged[kind] = table
	}
	return &StaticProvider{rates: merged}
}

func (p *StaticProvider) Name() string {
	return "static"
}

// MonthlyCost returns the monthly rate for the configuration, if known.
func (p *StaticProvider) MonthlyCost(kind models.ResourceKind, config string) (float64, bool) {
	table, ok := p.rates[kind]
	if !ok {
		return 0, false
	}
	rate, ok := table[config]
	return rate, ok
}

// DownsizeTarget returns the next configuration down in the family ladder.
func (p *StaticProvider) DownsizeTarget(kind models.ResourceKind, config string) (string, bool) {
	for _, ladder := range sizeLadders[kind] {
		for i, step := range ladder {
			if step == config {
				if i+1 < len(ladder) {
					return ladder[i+1], true
				}
				return "", false // already the smallest in its family
			}
		}
	}
	return "", false
}
