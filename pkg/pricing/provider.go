// Package pricing supplies the static reference table used to turn a
// recommendation into an estimated dollar amount. Rates are provided
// reference data, not computed.
package pricing

import (
	"github.com/costwatch/cost-advisor/pkg/models"
)

// Provider defines the interface for resource pricing data
type Provider interface {
	// MonthlyCost returns the monthly rate for a resource kind and
	// configuration (instance class, volume type, memory size).
	MonthlyCost(kind models.ResourceKind, config string) (float64, bool)

	// DownsizeTarget returns the next configuration down within the
	// same family, if one exists.
	DownsizeTarget(kind models.ResourceKind, config string) (string, bool)

	Name() string
}
