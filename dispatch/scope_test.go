package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riftlabs/dispatchcore/circuit"
	"github.com/riftlabs/dispatchcore/clock"
	"github.com/riftlabs/dispatchcore/health"
	"github.com/riftlabs/dispatchcore/observe"
	"github.com/riftlabs/dispatchcore/resource"
	"github.com/riftlabs/dispatchcore/seq"
)

func TestNewScope_RegistersResourceCheckerImmediately(t *testing.T) {
	scope := NewScope(resource.Config{Clock: clock.NewFake(time.Unix(0, 0))})

	names := scope.Health.CheckerNames()
	if len(names) != 1 || names[0] != "resource" {
		t.Fatalf("checker names = %v, want [resource]", names)
	}

	got, err := scope.Health.Check(context.Background(), "resource")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != health.StatusHealthy {
		t.Fatalf("status = %v, want Healthy with no pressure yet", got.Status)
	}
}

func TestDispatcher_ScopeSuppliesResourceMonitorAndCircuitRegistry(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	boom := errors.New("boom")
	h := seq.AlwaysFailing[string, int](nil, boom, nil)

	scope := NewScope(resource.Config{Clock: fc})
	d := New[string, int](Config[string, int]{
		Handler: h,
		Meta:    observe.RequestMeta{Name: "unstable"},
		Scope:   scope,
		Circuit: &CircuitOptions{
			Config: circuit.Config{
				FailureThresholdPercentage: 50,
				MinimumThroughput:          1,
				SamplingDuration:           time.Minute,
				BreakDuration:              time.Minute,
				TrialRequestCount:          1,
				Clock:                      fc,
			},
		},
	})

	if _, err := seq.Collect(d.Dispatch(context.Background(), "req")); !errors.Is(err, boom) {
		t.Fatalf("expected first call to surface boom, got %v", err)
	}
	if _, err := seq.Collect(d.Dispatch(context.Background(), "req")); !errors.Is(err, circuit.ErrOpen) {
		t.Fatalf("expected ErrOpen once the breaker trips, got %v", err)
	}

	names := scope.Health.CheckerNames()
	wantNames := map[string]bool{"resource": true, "circuit:unstable": true}
	if len(names) != len(wantNames) {
		t.Fatalf("checker names = %v, want %v", names, wantNames)
	}
	for _, n := range names {
		if !wantNames[n] {
			t.Fatalf("unexpected checker name %q", n)
		}
	}

	got, err := scope.Health.Check(context.Background(), "circuit:unstable")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != health.StatusUnhealthy {
		t.Fatalf("status = %v, want Unhealthy after the breaker trips", got.Status)
	}
}
