package reporter

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/riftlabs/dispatchcore/clock"
	"github.com/riftlabs/dispatchcore/seq"
	"github.com/riftlabs/dispatchcore/session"
)

type recordingSink struct {
	mu        sync.Mutex
	reports   []Metrics
	criticals []Metrics
	warnings  []string
}

func (s *recordingSink) Report(_ context.Context, m Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, m)
}

func (s *recordingSink) ReportCritical(_ context.Context, m Metrics, warning string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criticals = append(s.criticals, m)
	s.warnings = append(s.warnings, warning)
}

func (s *recordingSink) snapshot() (reports, criticals int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports), len(s.criticals)
}

func TestReporter_HealthyStreamPushesFinalReport(t *testing.T) {
	sink := &recordingSink{}
	sess := session.New("rt", time.Now(), nil)
	cfg := Config{HealthCheckInterval: time.Hour, Sink: sink}
	r := New[string, int](sess, cfg)

	h := seq.FromSlice[string, int]([]int{1, 2, 3}, nil)
	items, err := seq.Collect(r.Wrap()(context.Background(), "req", h))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	reports, criticals := sink.snapshot()
	if reports != 1 || criticals != 0 {
		t.Fatalf("expected 1 final healthy report, got reports=%d criticals=%d", reports, criticals)
	}
	if sink.reports[0].Status != Healthy {
		t.Fatalf("expected Healthy status, got %v", sink.reports[0].Status)
	}
	if !sink.reports[0].Final {
		t.Fatal("expected the sole report to be marked Final")
	}
}

func TestReporter_TerminalFailureReportsCriticalAndPropagates(t *testing.T) {
	sink := &recordingSink{}
	sess := session.New("rt", time.Now(), nil)
	cfg := Config{HealthCheckInterval: time.Hour, Sink: sink}
	r := New[string, int](sess, cfg)

	wantErr := errors.New("boom")
	h := seq.AlwaysFailing[string, int](nil, wantErr, nil)
	_, err := seq.Collect(r.Wrap()(context.Background(), "req", h))
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected reporter to propagate the failure, got %v", err)
	}

	_, criticals := sink.snapshot()
	if criticals != 1 {
		t.Fatalf("expected exactly one critical push, got %d", criticals)
	}
	if sink.criticals[0].Status != Failed {
		t.Fatalf("expected Failed status, got %v", sink.criticals[0].Status)
	}
	if sink.warnings[0] != warnTerminalFailure {
		t.Fatalf("expected terminal-failure warning, got %q", sink.warnings[0])
	}
}

func TestReporter_StallDetectionOnPeriodicPush(t *testing.T) {
	fake := clock.NewFake(time.Now())
	sink := &recordingSink{}
	sess := session.New("rt", fake.Now(), nil)
	cfg := Config{
		HealthCheckInterval:     20 * time.Millisecond,
		StallDetectionThreshold: 5 * time.Millisecond,
		Sink:                    sink,
		Clock:                   fake,
	}
	r := New[string, int](sess, cfg)

	blockUntil := make(chan struct{})
	h := func(ctx context.Context, req string) iter.Seq2[int, error] {
		return func(yield func(int, error) bool) {
			if !yield(1, nil) {
				return
			}
			<-blockUntil
		}
	}

	done := make(chan struct{})
	go func() {
		r.Wrap()(context.Background(), "req", h)(func(int, error) bool { return true })
		close(done)
	}()

	// Let the first item land, then advance the fake clock past both
	// the stall threshold and the check interval without producing
	// anything further.
	time.Sleep(20 * time.Millisecond)
	fake.Advance(50 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	close(blockUntil)
	<-done

	_, criticals := sink.snapshot()
	if criticals == 0 {
		t.Fatal("expected at least one critical stall push")
	}
	foundStall := false
	for _, w := range sink.warnings {
		if w == warnStall {
			foundStall = true
		}
	}
	if !foundStall {
		t.Fatalf("expected a stall warning among %v", sink.warnings)
	}
}

func TestReporter_PresetsAreDistinct(t *testing.T) {
	presets := []Config{HighPerformance(), DataProcessing(), LongRunning(), RealTime(), Development()}
	seen := map[Config]bool{}
	for _, p := range presets {
		if seen[p] {
			t.Fatalf("preset %+v duplicates another preset", p)
		}
		seen[p] = true
	}
	if len(presets) != 5 {
		t.Fatalf("expected 5 presets, got %d", len(presets))
	}
}
