// Package resource implements the process-wide memory monitor: it
// tracks a per-session baseline, samples current process memory and
// elapsed time to derive a growth rate, and triggers cleanup of one
// of three intensities when either threshold is breached.
//
// The session registry is a TTL-keyed map in the same spirit as the
// teacher's in-memory cache (lazy-expiry lookups, mutex-guarded map),
// adapted here to track live monitoring state per session rather than
// cached byte values, and swept by a background goroutine instead of
// expired lazily on read.
package resource

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/riftlabs/dispatchcore/clock"
	"github.com/riftlabs/dispatchcore/observe"
	"github.com/riftlabs/dispatchcore/session"
)

// Intensity is one of the three cleanup levels.
type Intensity int

const (
	Conservative Intensity = iota
	Balanced
	Aggressive
)

func (i Intensity) String() string {
	switch i {
	case Conservative:
		return "conservative"
	case Balanced:
		return "balanced"
	case Aggressive:
		return "aggressive"
	default:
		return "unknown"
	}
}

// Config configures a Monitor.
type Config struct {
	MaxMemoryThresholdBytes                 uint64
	MemoryGrowthRateThresholdBytesPerSecond float64
	MonitoringInterval                      time.Duration
	FastCheckEveryNItems                    int
	Intensity                               Intensity

	// OnPressure, if set, is invoked with a snapshot whenever a
	// threshold is breached, after cleanup has run.
	OnPressure func(PressureContext)

	// DetailedStats, when true, keeps every PressureContext the
	// monitor produces available via Monitor.History, for diagnostics
	// during development. When false, History stays empty.
	DetailedStats bool

	// Logger receives one Warn entry per breach, after cleanup has
	// run. Defaults to a no-op logger. Logged against
	// context.Background(): breaches are sampled off a background
	// interval check as often as a per-item one, so there is no
	// single caller's request context to attribute the event to.
	Logger observe.Logger

	Clock clock.Clock
}

func (c Config) withDefaults() Config {
	if c.MonitoringInterval <= 0 {
		c.MonitoringInterval = 30 * time.Second
	}
	if c.FastCheckEveryNItems <= 0 {
		c.FastCheckEveryNItems = 1000
	}
	if c.Logger == nil {
		c.Logger = observe.NewNoopLogger()
	}
	if c.Clock == nil {
		c.Clock = clock.Default
	}
	return c
}

// PressureContext is the snapshot handed to OnPressure and to the
// cleanup logger on every breach.
type PressureContext struct {
	SessionID       session.ID
	BaselineBytes   uint64
	CurrentBytes    uint64
	GrowthRateBps   float64
	Intensity       Intensity
	MemoryReclaimed uint64
	At              time.Time
}

type sessionRecord struct {
	sess         *session.Session
	baseline     uint64
	lastSample   uint64
	lastSampleAt time.Time
	itemsSeen    int
	completedAt  time.Time // zero until the session ends
}

// Monitor tracks memory pressure across all active sessions and runs
// a periodic sweep that evicts completed session records older than
// 10 minutes.
type Monitor struct {
	cfg Config

	mu       sync.Mutex
	sessions map[session.ID]*sessionRecord
	history  []PressureContext
}

// NewMonitor creates a Monitor from cfg.
func NewMonitor(cfg Config) *Monitor {
	return &Monitor{cfg: cfg.withDefaults(), sessions: make(map[session.ID]*sessionRecord)}
}

// Register starts tracking sess with a memory baseline captured now.
func (m *Monitor) Register(sess *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	baseline := readMemory()
	m.sessions[sess.ID] = &sessionRecord{
		sess:         sess,
		baseline:     baseline,
		lastSample:   baseline,
		lastSampleAt: m.cfg.Clock.Now(),
	}
}

// Complete marks sess's record as finished, making it eligible for
// eviction by the next sweep once 10 minutes have elapsed.
func (m *Monitor) Complete(id session.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.sessions[id]; ok {
		r.completedAt = m.cfg.Clock.Now()
	}
}

// CheckItem performs the fast per-item check: every FastCheckEveryNItems
// calls, it compares current memory against the absolute threshold
// only (no growth-rate derivative, since that needs an elapsed
// baseline sample).
func (m *Monitor) CheckItem(id session.ID) {
	m.mu.Lock()
	r, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	r.itemsSeen++
	if r.itemsSeen%m.cfg.FastCheckEveryNItems != 0 {
		return
	}
	current := readMemory()
	if m.cfg.MaxMemoryThresholdBytes > 0 && current >= m.cfg.MaxMemoryThresholdBytes {
		m.breach(r, current)
	}
}

// CheckInterval performs the full background check: absolute
// threshold and growth-rate derivative since the last sample.
func (m *Monitor) CheckInterval(id session.ID) {
	m.mu.Lock()
	r, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return
	}

	now := m.cfg.Clock.Now()
	current := readMemory()
	elapsed := now.Sub(r.lastSampleAt).Seconds()

	breached := m.cfg.MaxMemoryThresholdBytes > 0 && current >= m.cfg.MaxMemoryThresholdBytes

	var rate float64
	if elapsed > 0 && current > r.lastSample {
		rate = float64(current-r.lastSample) / elapsed
		if m.cfg.MemoryGrowthRateThresholdBytesPerSecond > 0 && rate >= m.cfg.MemoryGrowthRateThresholdBytesPerSecond {
			breached = true
		}
	}

	r.lastSample = current
	r.lastSampleAt = now

	if breached {
		m.breachWithRate(r, current, rate)
	}
}

func (m *Monitor) breach(r *sessionRecord, current uint64) {
	m.breachWithRate(r, current, 0)
}

func (m *Monitor) breachWithRate(r *sessionRecord, current uint64, rate float64) {
	before := current
	cleanup(m.cfg.Intensity)
	after := readMemory()

	var reclaimed uint64
	if before > after {
		reclaimed = before - after
	}

	pc := PressureContext{
		SessionID:       r.sess.ID,
		BaselineBytes:   r.baseline,
		CurrentBytes:    current,
		GrowthRateBps:   rate,
		Intensity:       m.cfg.Intensity,
		MemoryReclaimed: reclaimed,
		At:              m.cfg.Clock.Now(),
	}
	r.sess.RecordMemory(current)
	if m.cfg.DetailedStats {
		m.mu.Lock()
		m.history = append(m.history, pc)
		m.mu.Unlock()
	}
	if m.cfg.OnPressure != nil {
		m.cfg.OnPressure(pc)
	}
	m.cfg.Logger.Warn(context.Background(), "resource pressure breach, ran cleanup",
		observe.Field{Key: "session_id", Value: string(pc.SessionID)},
		observe.Field{Key: "intensity", Value: pc.Intensity.String()},
		observe.Field{Key: "current_bytes", Value: pc.CurrentBytes},
		observe.Field{Key: "baseline_bytes", Value: pc.BaselineBytes},
		observe.Field{Key: "growth_rate_bps", Value: pc.GrowthRateBps},
		observe.Field{Key: "memory_reclaimed", Value: pc.MemoryReclaimed},
	)
}

// History returns every PressureContext recorded so far. Only
// populated when Config.DetailedStats is true.
func (m *Monitor) History() []PressureContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PressureContext, len(m.history))
	copy(out, m.history)
	return out
}

// cleanup runs the GC hinting appropriate to intensity. Conservative
// nudges a young-generation style collection; Balanced adds a second
// pass; Aggressive adds a further pass plus a free-OS-memory hint,
// approximating "dispose orphaned resources by weak reference" on a
// runtime that has no weak references for arbitrary objects.
func cleanup(intensity Intensity) {
	runtime.GC()
	if intensity == Conservative {
		return
	}
	runtime.GC()
	if intensity == Balanced {
		return
	}
	runtime.GC()
	debug.FreeOSMemory()
}

func readMemory() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// Reset discards every tracked session record and the detailed
// pressure history. Test-only reset hook, mirroring
// circuit.Registry.Reset for the session registry this package owns.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[session.ID]*sessionRecord)
	m.history = nil
}

// Sweep evicts completed session records older than 10 minutes. Run
// at most once per MonitoringInterval by the caller (see RunSweeper).
func (m *Monitor) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, r := range m.sessions {
		if !r.completedAt.IsZero() && now.Sub(r.completedAt) > 10*time.Minute {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}

// RunSweeper runs the process-wide periodic sweep until ctx is
// cancelled, sleeping MonitoringInterval between sweeps. It is the
// one long-lived background goroutine the resource monitor owns, and
// is the natural fit for errgroup: a caller wiring several such
// process-wide loops (this sweeper, the health reporter's push loop)
// can run them under one errgroup.Group and stop everything on the
// first unexpected error.
func (m *Monitor) RunSweeper(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			if !m.cfg.Clock.Sleep(m.cfg.MonitoringInterval, ctx.Done()) {
				return ctx.Err()
			}
			m.Sweep(m.cfg.Clock.Now())
		}
	})
	return g.Wait()
}
