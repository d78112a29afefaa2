// Package reporter implements the Health Reporter: a session-scoped
// aggregator that watches throughput, latency, stall, memory, and
// error-rate signals for one streaming dispatch and periodically
// pushes a classification to an external sink.
//
// Like the resource monitor (package resource), the reporter reads
// process memory directly rather than depending on resource.Monitor —
// the spec treats the two as independent, commutative behaviors that
// happen to both watch memory, and a production deployment is free to
// wire them in either order or drop one.
package reporter

import (
	"context"
	"fmt"
	"iter"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/riftlabs/dispatchcore/bridge"
	"github.com/riftlabs/dispatchcore/clock"
	"github.com/riftlabs/dispatchcore/seq"
	"github.com/riftlabs/dispatchcore/session"
)

// Status is the rolling health classification pushed to a Sink.
type Status int

const (
	// Healthy: no warnings observed.
	Healthy Status = iota
	// Warning: 1-2 warnings observed.
	Warning
	// Unhealthy: 3 or more warnings observed.
	Unhealthy
	// Failed: the stream ended in a terminal exception.
	Failed
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Warning:
		return "warning"
	case Unhealthy:
		return "unhealthy"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Metrics is the point-in-time snapshot pushed to a Sink.
type Metrics struct {
	SessionID      session.ID
	RequestType    session.RequestType
	At             time.Time
	Produced       int64
	Consumed       int64
	Errors         int
	ItemsPerSecond float64
	ErrorRate      float64
	Stalled        bool
	MemoryGrowth   uint64
	Status         Status
	Warnings       []string
	Final          bool
}

// Sink is the external collaborator metrics are pushed to. Critical
// warnings (stall, high error rate, resource exhaustion) go through
// ReportCritical instead of Report so a sink can page on them
// differently than routine pushes.
type Sink interface {
	Report(ctx context.Context, m Metrics)
	ReportCritical(ctx context.Context, m Metrics, warning string)
}

// NoopSink discards every report. Useful as a default and in tests
// that don't care about the push side.
type NoopSink struct{}

func (NoopSink) Report(context.Context, Metrics)                {}
func (NoopSink) ReportCritical(context.Context, Metrics, string) {}

// Config configures a Reporter.
type Config struct {
	// StallDetectionThreshold: no item observed for this long is a
	// stall warning.
	StallDetectionThreshold time.Duration

	// MemoryGrowthThresholdBytes: current - baseline above this is a
	// high-memory-growth warning.
	MemoryGrowthThresholdBytes uint64

	// MinimumThroughputItemsPerSecond: observed items/sec below this
	// (after at least 100 items produced) is a low-throughput
	// warning.
	MinimumThroughputItemsPerSecond float64

	// MaximumErrorRate: errors/produced above this (after at least 1
	// item produced) is a high-error-rate warning.
	MaximumErrorRate float64

	// HealthCheckInterval is how often the reporter pushes to Sink.
	HealthCheckInterval time.Duration

	Sink Sink

	Clock clock.Clock
}

func (c Config) withDefaults() Config {
	if c.StallDetectionThreshold <= 0 {
		c.StallDetectionThreshold = 30 * time.Second
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.Sink == nil {
		c.Sink = NoopSink{}
	}
	if c.Clock == nil {
		c.Clock = clock.Default
	}
	return c
}

const lowThroughputMinItems = 100

// Reporter wraps a seq.Handler, watching sess and pushing Metrics to
// Config.Sink every HealthCheckInterval plus once more when the
// stream ends.
type Reporter[Req, T any] struct {
	cfg      Config
	sess     *session.Session
	baseline uint64
}

// New creates a Reporter bound to sess. sess must already be
// registered with the producing pipeline (see package session); the
// reporter only reads it.
func New[Req, T any](sess *session.Session, cfg Config) *Reporter[Req, T] {
	return &Reporter[Req, T]{cfg: cfg.withDefaults(), sess: sess, baseline: readMemory()}
}

// Wrap returns a Behavior that runs next under health observation.
func (r *Reporter[Req, T]) Wrap() seq.Behavior[Req, T] {
	return func(ctx context.Context, req Req, next seq.Next[Req, T]) iter.Seq2[T, error] {
		return func(yield func(T, error) bool) {
			r.run(ctx, req, next, yield)
		}
	}
}

func (r *Reporter[Req, T]) run(ctx context.Context, req Req, next seq.Next[Req, T], yield func(T, error) bool) {
	b := bridge.New[T](ctx, 0)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var terminal error

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		var failure error
		next(ctx, req)(func(item T, err error) bool {
			if err != nil {
				failure = err
				return false
			}
			r.sess.RecordProduced()
			r.sess.TouchActivity(r.cfg.Clock.Now())
			if werr := b.Write(item); werr != nil {
				failure = werr
				return false
			}
			return true
		})
		if failure != nil {
			mu.Lock()
			terminal = failure
			mu.Unlock()
			r.sess.RecordError(failure)
			b.Fault(failure)
			return failure
		}
		b.Close()
		return nil
	})
	g.Go(func() error {
		for {
			if !r.cfg.Clock.Sleep(r.cfg.HealthCheckInterval, gctx.Done()) {
				return nil
			}
			r.push(gctx, false)
		}
	})

	b.Seq(func(item T, err error) bool {
		if err == nil {
			r.sess.RecordConsumed()
		}
		return yield(item, err)
	})
	cancel()
	_ = g.Wait()

	mu.Lock()
	fin := terminal
	mu.Unlock()
	r.pushFinal(ctx, fin)
}

// push computes the current classification and pushes it to the
// sink, using ReportCritical for stall / high-error-rate / resource
// warnings.
func (r *Reporter[Req, T]) push(ctx context.Context, final bool) Metrics {
	m := r.classify(final, nil)
	r.dispatch(ctx, m)
	return m
}

func (r *Reporter[Req, T]) pushFinal(ctx context.Context, terminal error) {
	m := r.classify(true, terminal)
	r.dispatch(ctx, m)
}

func (r *Reporter[Req, T]) dispatch(ctx context.Context, m Metrics) {
	critical := m.Status == Failed
	for _, w := range m.Warnings {
		if w == warnStall || w == warnHighErrorRate || w == warnResourceExhaustion {
			critical = true
		}
	}
	if critical {
		warning := "unhealthy"
		if len(m.Warnings) > 0 {
			warning = m.Warnings[0]
		}
		if m.Status == Failed {
			warning = warnTerminalFailure
		}
		r.cfg.Sink.ReportCritical(ctx, m, warning)
		return
	}
	r.cfg.Sink.Report(ctx, m)
}

const (
	warnStall              = "stall detected"
	warnHighMemoryGrowth   = "high memory growth"
	warnLowThroughput      = "low throughput"
	warnHighErrorRate      = "high error rate"
	warnResourceExhaustion = "resource exhaustion"
	warnTerminalFailure    = "terminal failure"
)

func (r *Reporter[Req, T]) classify(final bool, terminal error) Metrics {
	now := r.cfg.Clock.Now()
	stats := r.sess.Snapshot()

	elapsed := now.Sub(stats.Start).Seconds()
	var itemsPerSec float64
	if elapsed > 0 {
		itemsPerSec = float64(stats.Produced) / elapsed
	}

	var errRate float64
	if stats.Produced > 0 {
		errRate = float64(len(stats.Errors)) / float64(stats.Produced)
	}

	stalled := terminal == nil && !stats.LastActivity.IsZero() &&
		now.Sub(stats.LastActivity) > r.cfg.StallDetectionThreshold

	current := readMemory()
	var growth uint64
	if current > r.baseline {
		growth = current - r.baseline
	}

	var warnings []string
	if stalled {
		warnings = append(warnings, warnStall)
		r.sess.RecordWarning(warnStall)
	}
	if r.cfg.MemoryGrowthThresholdBytes > 0 && growth > r.cfg.MemoryGrowthThresholdBytes {
		warnings = append(warnings, warnHighMemoryGrowth)
		r.sess.RecordWarning(warnHighMemoryGrowth)
	}
	if r.cfg.MinimumThroughputItemsPerSecond > 0 && stats.Produced >= lowThroughputMinItems && itemsPerSec < r.cfg.MinimumThroughputItemsPerSecond {
		warnings = append(warnings, warnLowThroughput)
		r.sess.RecordWarning(warnLowThroughput)
	}
	if r.cfg.MaximumErrorRate > 0 && stats.Produced >= 1 && errRate > r.cfg.MaximumErrorRate {
		warnings = append(warnings, warnHighErrorRate)
		r.sess.RecordWarning(warnHighErrorRate)
	}

	status := Healthy
	switch {
	case terminal != nil:
		status = Failed
	case len(warnings) >= 3:
		status = Unhealthy
	case len(warnings) >= 1:
		status = Warning
	}

	return Metrics{
		SessionID:      stats.ID,
		RequestType:    stats.RequestType,
		At:             now,
		Produced:       stats.Produced,
		Consumed:       stats.Consumed,
		Errors:         len(stats.Errors),
		ItemsPerSecond: itemsPerSec,
		ErrorRate:      errRate,
		Stalled:        stalled,
		MemoryGrowth:   growth,
		Status:         status,
		Warnings:       warnings,
		Final:          final,
	}
}

func readMemory() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// String renders m for logging.
func (m Metrics) String() string {
	return fmt.Sprintf("reporter: %s rt=%s produced=%d consumed=%d items/s=%.1f err_rate=%.3f warnings=%v",
		m.Status, m.RequestType, m.Produced, m.Consumed, m.ItemsPerSecond, m.ErrorRate, m.Warnings)
}
