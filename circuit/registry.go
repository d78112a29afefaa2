package circuit

import (
	"sync"

	"github.com/riftlabs/dispatchcore/session"
)

// Registry holds one Breaker per session.RequestType. The zero value
// is not usable; construct one with NewRegistry.
//
// Half-Open admission is a race: many goroutines may call Admit for
// the same request type at the moment a breaker's BreakDuration
// elapses, all observing Open and wanting to be the one that takes
// the trial slot. That race is resolved inside Breaker.Admit itself
// (a mutex-guarded trial counter admits at most TrialRequestCount
// callers), not at the registry level — collapsing concurrent
// admissions behind a single shared result here would let only one
// of N racing callers actually decide the outcome for all of them,
// which is the wrong shape for an admission check every caller must
// evaluate independently.
type Registry struct {
	mu       sync.Mutex
	breakers map[session.RequestType]*Breaker
}

// NewRegistry creates an empty Registry. Most programs share one
// Registry process-wide via Default; NewRegistry exists for tests and
// for hosts that want isolated breaker state per dispatcher instance.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[session.RequestType]*Breaker)}
}

// Breaker returns the breaker for rt, creating it with cfg on first
// use. cfg is ignored on subsequent calls for the same rt — the
// breaker is a singleton per request type, as required by the
// shared-state model.
func (r *Registry) Breaker(rt session.RequestType, cfg Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[rt]
	if !ok {
		b = newBreaker(rt, cfg)
		r.breakers[rt] = b
	}
	return b
}

// Reset discards all breakers. Intended for tests that need a clean
// process-wide state between cases.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = make(map[session.RequestType]*Breaker)
}

// Default is the process-wide registry used by dispatchers that don't
// construct their own.
var Default = NewRegistry()

// For returns the Default registry's breaker for rt.
func For(rt session.RequestType, cfg Config) *Breaker {
	return Default.Breaker(rt, cfg)
}

// ResetAll clears the Default registry. Test-only reset hook.
func ResetAll() {
	Default.Reset()
}
