package dispatch

import (
	"github.com/riftlabs/dispatchcore/circuit"
	"github.com/riftlabs/dispatchcore/health"
	"github.com/riftlabs/dispatchcore/resource"
	"github.com/riftlabs/dispatchcore/session"
)

// Scope bundles the state a family of Dispatchers shares when they
// must not depend on circuit.Default or a package-level resource
// monitor: an isolated breaker registry, a resource monitor, and a
// health.Aggregator exposing both through the liveness/readiness
// surface (health.RegisterHandlers/DetailedHandler accept Health
// directly). circuit.NewRegistry and resource.NewMonitor already
// support running fully isolated instances; Scope is the convenience
// that bundles them with a health surface so a caller gets one object
// to build Dispatchers against instead of wiring all three by hand.
type Scope struct {
	Circuits  *circuit.Registry
	Resources *resource.Monitor
	Health    *health.Aggregator
}

// NewScope creates an isolated Scope: a fresh circuit.Registry, a
// resource.Monitor built from resourceCfg, and a health.Aggregator
// with the resource monitor already registered as a Checker under the
// name "resource".
func NewScope(resourceCfg resource.Config) *Scope {
	mon := resource.NewMonitor(resourceCfg)
	agg := health.NewAggregator()
	agg.Register("resource", health.NewResourceChecker(mon))
	return &Scope{
		Circuits:  circuit.NewRegistry(),
		Resources: mon,
		Health:    agg,
	}
}

// RegisterCircuitChecker adds rt's breaker, from this Scope's
// Circuits registry, to Health under the name "circuit:<rt>". New
// calls it automatically for every Dispatcher built with both a Scope
// and Circuit configured, so a caller normally never calls this
// directly; it is exported for a host that wants a circuit breaker on
// the health surface without going through a Dispatcher at all.
func (s *Scope) RegisterCircuitChecker(rt session.RequestType, cfg circuit.Config) {
	s.Health.Register("circuit:"+string(rt), health.NewCircuitBreakerChecker(s.Circuits, rt, cfg))
}
