package analyzer

import (
	"fmt"

	"github.com/costwatch/cost-advisor/pkg/models"
)

// StepsFor returns the ordered implementation checklist for a
// recommendation. NO_CHANGE has no steps.
func StepsFor(action models.ActionType, kind models.ResourceKind, current, target string) []string {
	switch action {
	case models.ActionDownsize:
		return []string{
			fmt.Sprintf("Snapshot current configuration (%s) and recent utilization baselines", current),
			"Schedule a low-traffic maintenance window",
			fmt.Sprintf("Resize from %s to %s", current, target),
			"Verify application health checks and latency after the change",
			"Monitor utilization for two weeks; roll back if p95 exceeds 70%",
		}
	case models.ActionUpsize:
		return []string{
			"Confirm saturation is sustained, not a one-off event",
			"Schedule a maintenance window",
			fmt.Sprintf("Move %s to the next larger configuration in its family", current),
			"Verify headroom returned below 70% at p95",
		}
	case models.ActionDelete:
		return []string{
			"Confirm no upstream dependencies reference this resource",
			"Take a final backup or snapshot",
			"Stop the resource and hold it for a grace period",
			"Delete after the grace period expires",
			"Verify the charge disappears from the next billing cycle",
		}
	case models.ActionOptimize:
		if kind == models.KindVolume {
			return []string{
				"Confirm current IOPS and throughput fit within the gp3 baseline",
				"Migrate the volume class (online, no detach required)",
				"Verify I/O latency is unchanged",
			}
		}
		return []string{
			"Review configured memory against observed peak usage",
			"Lower the configured memory with 20% headroom above peak",
			"Verify invocation duration and error rates are unchanged",
		}
	default:
		return nil
	}
}
