package health

import (
	"context"
	"fmt"

	"github.com/riftlabs/dispatchcore/circuit"
	"github.com/riftlabs/dispatchcore/session"
)

// circuitChecker reports a streaming circuit breaker's state as a
// Checker, so a dispatcher's breakers show up next to any other
// component on the same liveness/readiness endpoint.
//
// Grounded on MemoryChecker's shape (a Checker wrapping one
// dispatchcore subsystem's own snapshot method) rather than on a new
// polling mechanism.
type circuitChecker struct {
	name string
	rt   session.RequestType
	reg  *circuit.Registry
	cfg  circuit.Config
}

// NewCircuitBreakerChecker reports Healthy while rt's breaker is
// Closed, Degraded while Half-Open (recovering), and Unhealthy while
// Open (admission currently refused).
func NewCircuitBreakerChecker(reg *circuit.Registry, rt session.RequestType, cfg circuit.Config) Checker {
	return &circuitChecker{name: "circuit:" + string(rt), rt: rt, reg: reg, cfg: cfg}
}

func (c *circuitChecker) Name() string { return c.name }

func (c *circuitChecker) Check(ctx context.Context) Result {
	b := c.reg.Breaker(c.rt, c.cfg)
	m := b.Metrics()

	details := map[string]any{
		"request_type": string(c.rt),
		"records":      m.Records,
		"failures":     m.Failures,
		"last_change":  m.LastChange,
	}

	switch m.State {
	case circuit.Closed:
		return Healthy(fmt.Sprintf("%s: circuit closed", c.rt)).WithDetails(details)
	case circuit.HalfOpen:
		return Degraded(fmt.Sprintf("%s: circuit half-open, probing recovery", c.rt)).WithDetails(details)
	default:
		return Unhealthy(fmt.Sprintf("%s: circuit open", c.rt), circuit.ErrOpen).WithDetails(details)
	}
}
