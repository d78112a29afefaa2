// Package circuit implements the per-request-type circuit breaker
// state machine: a rolling-window failure tracker with Closed, Open,
// and Half-Open states, reused by both the streaming retry-wrapped
// dispatch path and (structurally, though out of this package's
// scope) unary dispatch.
//
// One Breaker exists per session.RequestType, held in a Registry.
// All state transitions happen inside the per-breaker mutex; admit()
// purges records older than the sampling window on every call so the
// minimum-throughput and failure-percentage checks always operate on
// the current window, never a lifetime total.
package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/riftlabs/dispatchcore/clock"
	"github.com/riftlabs/dispatchcore/observe"
	"github.com/riftlabs/dispatchcore/session"
)

// State is one of Closed, Open, or Half-Open.
type State int

const (
	// Closed means requests are admitted and failures are tracked.
	Closed State = iota
	// Open means all admission is refused until BreakDuration elapses.
	Open
	// HalfOpen means a bounded number of trial requests are admitted
	// to probe recovery.
	HalfOpen
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures a Breaker. Every duration-typed field is
// evaluated against cfg.Clock, which defaults to clock.Default.
type Config struct {
	// FailureThresholdPercentage is the failure rate, in percent
	// (0-100), that trips the breaker in Closed state.
	FailureThresholdPercentage float64

	// MinimumThroughput is the minimum number of records in the
	// current window required before the failure percentage is
	// evaluated at all.
	MinimumThroughput int

	// SamplingDuration is the rolling window width; records older
	// than this are purged on every Admit/Record call.
	SamplingDuration time.Duration

	// BreakDuration is how long the breaker stays Open before
	// admitting a Half-Open trial.
	BreakDuration time.Duration

	// TrialRequestCount is the number of concurrent trial
	// admissions allowed while Half-Open, and the number of
	// consecutive trial successes required to close the breaker.
	TrialRequestCount int

	// PartialSuccessThreshold reclassifies a failed stream as a
	// success for circuit-accounting purposes when it produced at
	// least this many items before failing. Zero disables
	// reclassification.
	PartialSuccessThreshold int

	// ShouldCountAsFailure decides whether an error counts against
	// the breaker at all. Returning false means the outcome is
	// excluded from accounting entirely (neither success nor
	// failure) — used by presets that exclude validation/business
	// errors from tripping the breaker. Default: all non-nil errors
	// count as failures.
	ShouldCountAsFailure func(err error) bool

	// OnStateChange, if set, is called synchronously whenever this
	// breaker transitions state.
	OnStateChange func(rt session.RequestType, from, to State)

	// Logger receives one entry per state transition (Warn on a trip
	// to Open, Info otherwise). Defaults to a no-op logger. State
	// transitions are breaker-wide events rather than scoped to any
	// one caller's request, so they are logged against
	// context.Background() rather than a per-call context.
	Logger observe.Logger

	Clock clock.Clock
}

func (c Config) withDefaults() Config {
	if c.FailureThresholdPercentage <= 0 {
		c.FailureThresholdPercentage = 50
	}
	if c.MinimumThroughput <= 0 {
		c.MinimumThroughput = 5
	}
	if c.SamplingDuration <= 0 {
		c.SamplingDuration = time.Minute
	}
	if c.BreakDuration <= 0 {
		c.BreakDuration = 30 * time.Second
	}
	if c.TrialRequestCount <= 0 {
		c.TrialRequestCount = 1
	}
	if c.ShouldCountAsFailure == nil {
		c.ShouldCountAsFailure = func(err error) bool { return err != nil }
	}
	if c.Logger == nil {
		c.Logger = observe.NewNoopLogger()
	}
	if c.Clock == nil {
		c.Clock = clock.Default
	}
	return c
}

type record struct {
	success  bool
	at       time.Time
	stream   bool
	items    int
	duration time.Duration
}

// Breaker is the per-request-type circuit breaker state machine.
type Breaker struct {
	rt  session.RequestType
	cfg Config

	mu               sync.Mutex
	state            State
	lastTransition   time.Time
	halfOpenInFlight int
	halfOpenOK       int
	records          []record
}

func newBreaker(rt session.RequestType, cfg Config) *Breaker {
	now := cfg.Clock.Now()
	return &Breaker{rt: rt, cfg: cfg.withDefaults(), state: Closed, lastTransition: now}
}

// Admit decides whether a request or stream for this breaker's
// request type may proceed. Returns ErrOpen if admission is refused.
// A streaming dispatch calls Admit exactly once per stream, not once
// per item.
func (b *Breaker) Admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Clock.Now()
	b.syncStateLocked(now)
	b.purgeLocked(now)

	switch b.state {
	case Open:
		return ErrOpen
	case HalfOpen:
		if b.halfOpenInFlight >= b.cfg.TrialRequestCount {
			return ErrOpen
		}
		b.halfOpenInFlight++
		return nil
	default:
		return nil
	}
}

// Record reports the outcome of a unary-style call: success/failure
// and the error that caused failure, if any.
func (b *Breaker) Record(success bool, err error) {
	b.recordOutcome(success, err, false, 0, 0)
}

// RecordStream reports the outcome of a streaming dispatch, including
// how many items it produced and how long it ran, which together
// drive the partial-success reclassification.
func (b *Breaker) RecordStream(success bool, err error, itemCount int, duration time.Duration) {
	b.recordOutcome(success, err, true, itemCount, duration)
}

func (b *Breaker) recordOutcome(success bool, err error, stream bool, items int, duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && !b.cfg.ShouldCountAsFailure(err) {
		return
	}

	effective := success
	if stream && !effective && b.cfg.PartialSuccessThreshold > 0 && items >= b.cfg.PartialSuccessThreshold {
		effective = true
	}

	now := b.cfg.Clock.Now()
	b.syncStateLocked(now)
	b.purgeLocked(now)
	b.records = append(b.records, record{success: effective, at: now, stream: stream, items: items, duration: duration})

	switch b.state {
	case Closed:
		total := len(b.records)
		if total < b.cfg.MinimumThroughput {
			return
		}
		failures := 0
		for _, r := range b.records {
			if !r.success {
				failures++
			}
		}
		pct := float64(failures) / float64(total) * 100
		if pct >= b.cfg.FailureThresholdPercentage {
			b.transitionLocked(Open, now)
		}

	case HalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		if !effective {
			b.transitionLocked(Open, now)
			return
		}
		b.halfOpenOK++
		if b.halfOpenOK >= b.cfg.TrialRequestCount {
			b.transitionLocked(Closed, now)
			b.records = nil
		}

	case Open:
		// admit() owns the Open->Half-Open timer; a record arriving
		// while Open (e.g. a racing in-flight call) is a no-op.
	}
}

// syncStateLocked applies the Open -> Half-Open timeout transition.
// Must be called with b.mu held.
func (b *Breaker) syncStateLocked(now time.Time) {
	if b.state == Open && now.Sub(b.lastTransition) >= b.cfg.BreakDuration {
		b.transitionLocked(HalfOpen, now)
	}
}

func (b *Breaker) transitionLocked(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.lastTransition = now
	if to == HalfOpen {
		b.halfOpenInFlight = 0
		b.halfOpenOK = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.rt, from, to)
	}

	fields := []observe.Field{
		{Key: "request_type", Value: string(b.rt)},
		{Key: "from", Value: from.String()},
		{Key: "to", Value: to.String()},
	}
	ctx := context.Background()
	if to == Open {
		b.cfg.Logger.Warn(ctx, "circuit breaker tripped", fields...)
	} else {
		b.cfg.Logger.Info(ctx, "circuit breaker state transition", fields...)
	}
}

// purgeLocked drops records older than SamplingDuration. Must be
// called with b.mu held.
func (b *Breaker) purgeLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.SamplingDuration)
	i := 0
	for ; i < len(b.records); i++ {
		if b.records[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		b.records = b.records[i:]
	}
}

// State returns the current state, applying the Open -> Half-Open
// timeout first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncStateLocked(b.cfg.Clock.Now())
	return b.state
}

// Reset forces the breaker back to Closed and clears its history.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.cfg.Clock.Now()
	b.transitionLocked(Closed, now)
	b.records = nil
	b.halfOpenInFlight = 0
	b.halfOpenOK = 0
}

// Metrics summarizes the breaker's current window.
type Metrics struct {
	State      State
	Records    int
	Failures   int
	LastChange time.Time
}

// Metrics returns a snapshot of the breaker's current window.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.cfg.Clock.Now()
	b.syncStateLocked(now)
	b.purgeLocked(now)

	failures := 0
	for _, r := range b.records {
		if !r.success {
			failures++
		}
	}
	return Metrics{State: b.state, Records: len(b.records), Failures: failures, LastChange: b.lastTransition}
}
