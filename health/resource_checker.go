package health

import (
	"context"
	"fmt"

	"github.com/riftlabs/dispatchcore/resource"
)

// resourceChecker reports the most recent resource-pressure event the
// process-wide resource.Monitor has recorded (see resource.Config's
// DetailedStats). With no recorded pressure it reports Healthy; the
// monitor's own cleanup intensity at the most recent breach maps to
// Degraded (Conservative/Balanced) or Unhealthy (Aggressive).
type resourceChecker struct {
	m *resource.Monitor
}

// NewResourceChecker adapts a resource.Monitor's pressure history into
// a Checker. Requires Config.DetailedStats to be set on the Monitor,
// or this always reports Healthy with no details.
func NewResourceChecker(m *resource.Monitor) Checker {
	return &resourceChecker{m: m}
}

func (c *resourceChecker) Name() string { return "resource-monitor" }

func (c *resourceChecker) Check(ctx context.Context) Result {
	history := c.m.History()
	if len(history) == 0 {
		return Healthy("no resource pressure recorded")
	}

	latest := history[len(history)-1]
	details := map[string]any{
		"baseline_bytes":   latest.BaselineBytes,
		"current_bytes":    latest.CurrentBytes,
		"growth_rate_bps":  latest.GrowthRateBps,
		"intensity":        latest.Intensity.String(),
		"memory_reclaimed": latest.MemoryReclaimed,
		"at":               latest.At,
	}

	switch latest.Intensity {
	case resource.Aggressive:
		return Unhealthy(fmt.Sprintf("resource monitor last ran an aggressive cleanup at %s", latest.At), nil).WithDetails(details)
	default:
		return Degraded(fmt.Sprintf("resource monitor last ran a %s cleanup at %s", latest.Intensity, latest.At)).WithDetails(details)
	}
}
