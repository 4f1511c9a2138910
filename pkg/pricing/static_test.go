package pricing

import (
	"testing"

	"github.com/costwatch/cost-advisor/pkg/models"
)

func TestMonthlyCostLookup(t *testing.T) {
	p := NewStaticProvider()

	cost, ok := p.MonthlyCost(models.KindCompute, "m5.xlarge")
	if !ok {
		t.Fatal("expected rate for m5.xlarge")
	}
	if cost != 140.16 {
		t.Errorf("expected 140.16, got %.2f", cost)
	}

	if _, ok := p.MonthlyCost(models.KindCompute, "z9.mega"); ok {
		t.Error("expected miss for unknown configuration")
	}
}

func TestDownsizeTarget(t *testing.T) {
	p := NewStaticProvider()

	cases := []struct {
		kind   models.ResourceKind
		config string
		want   string
		ok     bool
	}{
		{models.KindCompute, "m5.xlarge", "m5.large", true},
		{models.KindCompute, "m5.large", "", false}, // bottom of family
		{models.KindDatabase, "db.m5.xlarge", "db.m5.large", true},
		{models.KindVolume, "gp2", "gp3", true},
		{models.KindFunction, "1024MB", "512MB", true},
		{models.KindCompute, "unknown", "", false},
	}

	for _, tc := range cases {
		got, ok := p.DownsizeTarget(tc.kind, tc.config)
		if ok != tc.ok || got != tc.want {
			t.Errorf("DownsizeTarget(%s, %s) = (%q, %v), want (%q, %v)",
				tc.kind, tc.config, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDownsizeSavesMoney(t *testing.T) {
	p := NewStaticProvider()

	for _, kind := range []models.ResourceKind{models.KindCompute, models.KindDatabase} {
		for _, ladder := range sizeLadders[kind] {
			for _, config := range ladder {
				target, ok := p.DownsizeTarget(kind, config)
				if !ok {
					continue
				}
				current, _ := p.MonthlyCost(kind, config)
				smaller, _ := p.MonthlyCost(kind, target)
				if smaller >= current {
					t.Errorf("%s %s -> %s does not reduce cost (%.2f -> %.2f)",
						kind, config, target, current, smaller)
				}
			}
		}
	}
}

func TestRateOverride(t *testing.T) {
	p := NewStaticProviderWithRates(map[models.ResourceKind]map[string]float64{
		models.KindCompute: {"m5.xlarge": 99.99},
	})

	cost, ok := p.MonthlyCost(models.KindCompute, "m5.xlarge")
	if !ok || cost != 99.99 {
		t.Errorf("expected overridden rate 99.99, got %.2f ok=%v", cost, ok)
	}

	// Untouched kinds keep the built-in table.
	if _, ok := p.MonthlyCost(models.KindVolume, "gp2"); !ok {
		t.Error("expected built-in volume rates preserved")
	}
}
