// Package session defines the stream session record shared by every
// streaming behavior: the circuit breaker keys on a request's type,
// while the backpressure valve, resource monitor, and health reporter
// each own and mutate one session's counters for the lifetime of a
// single streaming dispatch call.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

// RequestType is the stable identifier used as the key for per-type
// resilience state (circuit breaker history, registered presets).
// Implementations SHOULD use the compile-time type; TypeOf derives it
// from the fully-qualified type name, which is stable across restarts
// within a single binary.
type RequestType string

// TypeOf derives the RequestType for a request type R from its
// reflected type name. Two distinct types with the same name in
// different packages still collide only if reflect.Type.String()
// collides, which Go's package-qualified names prevent in practice.
func TypeOf[R any]() RequestType {
	var zero R
	t := reflect.TypeOf(zero)
	if t == nil {
		// R is an interface type instantiated with a nil value; fall
		// back to the static type parameter via a pointer trick.
		t = reflect.TypeOf(&zero).Elem()
	}
	return RequestType(t.String())
}

// ID is an 8-byte random session identifier, rendered as 16 hex
// characters.
type ID string

// NewID generates a fresh random session ID.
func NewID() ID {
	var b [8]byte
	// crypto/rand.Read never returns a short read without an error on
	// supported platforms; a failure here means the OS entropy source
	// is broken, which is not something a session ID can route around.
	if _, err := rand.Read(b[:]); err != nil {
		panic("session: failed to read random bytes: " + err.Error())
	}
	return ID(hex.EncodeToString(b[:]))
}

// Session is created once per streaming dispatch and owned exclusively
// by the behavior that created it (typically the Backpressure Valve,
// which sits closest to the caller). Counters are updated by the
// producer task and read by the consumer loop without locking, per the
// single-writer rule; Errors and Warnings are infrequent enough to
// guard with a mutex.
type Session struct {
	ID          ID
	RequestType RequestType
	Start       time.Time

	// StrategyConfig is an immutable snapshot of whatever strategy
	// configuration (backpressure, retry, ...) produced this session,
	// kept for diagnostics and final reporting.
	StrategyConfig any

	produced       atomic.Int64
	consumed       atomic.Int64
	dropped        atomic.Int64
	sampled        atomic.Int64
	throttleDelay  atomic.Int64 // nanoseconds
	blockTime      atomic.Int64 // nanoseconds
	peakMemory     atomic.Uint64
	lastActivityNs atomic.Int64
	activeNs       atomic.Int64 // cumulative nanoseconds spent with backpressure active

	mu       sync.Mutex
	errs     []error
	warnings []string
}

// New creates a session for rt, stamped with the given start time and
// an immutable strategy configuration snapshot.
func New(rt RequestType, start time.Time, strategyConfig any) *Session {
	s := &Session{
		ID:             NewID(),
		RequestType:    rt,
		Start:          start,
		StrategyConfig: strategyConfig,
	}
	s.lastActivityNs.Store(start.UnixNano())
	return s
}

// RecordProduced increments the produced counter. Called by the
// producer task exactly once per item it observes from upstream.
func (s *Session) RecordProduced() { s.produced.Add(1) }

// RecordConsumed increments the consumed counter. Called by the
// consumer loop exactly once per item it yields to the caller.
func (s *Session) RecordConsumed() { s.consumed.Add(1) }

// RecordDropped increments the dropped counter (lossy backpressure
// strategies).
func (s *Session) RecordDropped() { s.dropped.Add(1) }

// RecordSampled increments the sampled counter (items kept by the
// Sample strategy while pressure is active).
func (s *Session) RecordSampled() { s.sampled.Add(1) }

// AddThrottleDelay accumulates wall-clock time spent sleeping under
// the Throttle strategy.
func (s *Session) AddThrottleDelay(d time.Duration) { s.throttleDelay.Add(int64(d)) }

// AddBlockTime accumulates wall-clock time spent polling under the
// Block strategy.
func (s *Session) AddBlockTime(d time.Duration) { s.blockTime.Add(int64(d)) }

// AddActiveDuration accumulates wall-clock time during which
// backpressure was active, for the effectiveness-score calculation.
func (s *Session) AddActiveDuration(d time.Duration) { s.activeNs.Add(int64(d)) }

// TouchActivity records that an item was just produced or consumed, so
// the Health Reporter's stall detector has a last-activity timestamp.
func (s *Session) TouchActivity(now time.Time) { s.lastActivityNs.Store(now.UnixNano()) }

// LastActivity returns the last recorded activity timestamp.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivityNs.Load())
}

// RecordMemory updates the peak memory watermark if current exceeds
// the stored peak.
func (s *Session) RecordMemory(current uint64) {
	for {
		peak := s.peakMemory.Load()
		if current <= peak {
			return
		}
		if s.peakMemory.CompareAndSwap(peak, current) {
			return
		}
	}
}

// RecordError appends a terminal or observed error to the session's
// error list.
func (s *Session) RecordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

// RecordWarning appends a health warning to the session's warning
// list.
func (s *Session) RecordWarning(w string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, w)
}

// Stats is an immutable point-in-time snapshot of a session, safe to
// hand to reporting code or test assertions.
type Stats struct {
	ID             ID
	RequestType    RequestType
	Start          time.Time
	Produced       int64
	Consumed       int64
	Dropped        int64
	Sampled        int64
	ThrottleDelay  time.Duration
	BlockTime      time.Duration
	PeakMemory     uint64
	LastActivity   time.Time
	ActiveDuration time.Duration
	Errors         []error
	Warnings       []string
}

// Snapshot copies the session's current state into a Stats value.
func (s *Session) Snapshot() Stats {
	s.mu.Lock()
	errs := append([]error(nil), s.errs...)
	warnings := append([]string(nil), s.warnings...)
	s.mu.Unlock()

	return Stats{
		ID:             s.ID,
		RequestType:    s.RequestType,
		Start:          s.Start,
		Produced:       s.produced.Load(),
		Consumed:       s.consumed.Load(),
		Dropped:        s.dropped.Load(),
		Sampled:        s.sampled.Load(),
		ThrottleDelay:  time.Duration(s.throttleDelay.Load()),
		BlockTime:      time.Duration(s.blockTime.Load()),
		PeakMemory:     s.peakMemory.Load(),
		LastActivity:   s.LastActivity(),
		ActiveDuration: time.Duration(s.activeNs.Load()),
		Errors:         errs,
		Warnings:       warnings,
	}
}
