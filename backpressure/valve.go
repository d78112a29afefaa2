// Package backpressure implements the five-strategy valve that
// mediates a producer task feeding a bounded queue against a consumer
// loop draining it, applying Buffer, Drop, Throttle, Sample, or Block
// semantics once the estimated in-flight item count crosses a high
// water mark, with hysteresis holding the valve active until it falls
// back to a low water mark.
package backpressure

import (
	"context"
	"iter"
	"math"
	"time"

	"github.com/riftlabs/dispatchcore/bridge"
	"github.com/riftlabs/dispatchcore/clock"
	"github.com/riftlabs/dispatchcore/seq"
	"github.com/riftlabs/dispatchcore/session"
)

// Strategy is one of the five valve behaviors applied while active.
type Strategy int

const (
	Buffer Strategy = iota
	Drop
	Throttle
	Sample
	Block
)

func (s Strategy) String() string {
	switch s {
	case Buffer:
		return "buffer"
	case Drop:
		return "drop"
	case Throttle:
		return "throttle"
	case Sample:
		return "sample"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// Config configures a Valve.
type Config struct {
	Strategy Strategy

	// MaxBufferSize is the nominal capacity estBuffer is measured
	// against; it also bounds the internal channel, whatever the
	// strategy.
	MaxBufferSize int

	// HighWaterMarkThreshold and LowWaterMarkThreshold are fractions
	// of MaxBufferSize (0,1] defining the hysteresis band.
	HighWaterMarkThreshold float64
	LowWaterMarkThreshold  float64

	// MaxThrottleDelayMs is the maximum per-item sleep the Throttle
	// strategy applies at full pressure.
	MaxThrottleDelayMs int

	// SampleRate keeps one item out of every SampleRate produced,
	// in Sample mode.
	SampleRate int

	// PreferNewerItems is accepted for configuration compatibility
	// only: Drop mode discards the incoming item whatever its value,
	// and never evicts an already buffered one; see doc.go.
	PreferNewerItems bool

	// CustomTrigger, if set, is consulted alongside the water-mark
	// check and may additionally force the valve active.
	CustomTrigger func(estBuffer, maxBufferSize int) bool

	Clock clock.Clock
}

func (c Config) withDefaults() Config {
	if c.MaxBufferSize <= 0 {
		c.MaxBufferSize = 1000
	}
	if c.HighWaterMarkThreshold <= 0 {
		c.HighWaterMarkThreshold = 0.8
	}
	if c.LowWaterMarkThreshold <= 0 {
		c.LowWaterMarkThreshold = 0.5
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 1
	}
	if c.Clock == nil {
		c.Clock = clock.Default
	}
	return c
}

const (
	bufferWriteTimeout = time.Second
	blockPollInterval  = 100 * time.Millisecond
	blockSafetyTimeout = 30 * time.Second
)

// Valve mediates one streaming session.
type Valve[Req, T any] struct {
	cfg  Config
	high int
	low  int
}

// New creates a Valve from cfg.
func New[Req, T any](cfg Config) *Valve[Req, T] {
	cfg = cfg.withDefaults()
	return &Valve[Req, T]{
		cfg:  cfg,
		high: int(math.Floor(float64(cfg.MaxBufferSize) * cfg.HighWaterMarkThreshold)),
		low:  int(math.Floor(float64(cfg.MaxBufferSize) * cfg.LowWaterMarkThreshold)),
	}
}

// Wrap returns a Behavior that applies the valve between next and the
// caller, recording statistics onto sess.
func (v *Valve[Req, T]) Wrap(sess *session.Session) seq.Behavior[Req, T] {
	return func(ctx context.Context, req Req, next seq.Next[Req, T]) iter.Seq2[T, error] {
		return func(yield func(T, error) bool) {
			v.run(ctx, req, next, sess, yield)
		}
	}
}

func (v *Valve[Req, T]) run(ctx context.Context, req Req, next seq.Next[Req, T], sess *session.Session, yield func(T, error) bool) {
	b := bridge.New[T](ctx, v.cfg.MaxBufferSize)
	active := false
	produced := 0

	go func() {
		var failure error
		next(ctx, req)(func(item T, err error) bool {
			if err != nil {
				failure = err
				return false
			}
			produced++
			sess.RecordProduced()
			consumed := int(sess.Snapshot().Consumed)
			estBuffer := produced - consumed

			if !active && estBuffer >= v.high {
				active = true
			} else if v.cfg.CustomTrigger != nil && v.cfg.CustomTrigger(estBuffer, v.cfg.MaxBufferSize) {
				active = true
			}

			var ok bool
			if active {
				ok = v.applyStrategy(ctx, item, produced, estBuffer, b, sess)
			} else {
				ok = b.Write(item) == nil
			}

			if active && estBuffer <= v.low {
				active = false
			}
			return ok
		})
		if failure != nil {
			b.Fault(failure)
		} else {
			b.Close()
		}
	}()

	b.Seq(func(item T, err error) bool {
		if err == nil {
			sess.RecordConsumed()
		}
		return yield(item, err)
	})
}

// applyStrategy applies the configured strategy to a single item
// while the valve is active. Returns false if the producer should
// stop (consumer went away / context cancelled).
func (v *Valve[Req, T]) applyStrategy(ctx context.Context, item T, produced, estBuffer int, b *bridge.Bridge[T], sess *session.Session) bool {
	switch v.cfg.Strategy {
	case Drop:
		if estBuffer >= v.cfg.MaxBufferSize {
			sess.RecordDropped()
			return true
		}
		return b.Write(item) == nil

	case Sample:
		if produced%v.cfg.SampleRate != 0 {
			sess.RecordSampled()
			return true
		}
		return b.Write(item) == nil

	case Throttle:
		pressure := math.Min(1, float64(estBuffer)/float64(v.cfg.MaxBufferSize))
		delay := time.Duration(pressure*float64(v.cfg.MaxThrottleDelayMs)) * time.Millisecond
		start := v.cfg.Clock.Now()
		if !v.cfg.Clock.Sleep(delay, ctx.Done()) {
			return false
		}
		sess.AddThrottleDelay(v.cfg.Clock.Now().Sub(start))
		return b.Write(item) == nil

	case Block:
		start := v.cfg.Clock.Now()
		deadline := start.Add(blockSafetyTimeout)
		for {
			consumed := int(sess.Snapshot().Consumed)
			if produced-consumed <= v.low {
				break
			}
			if v.cfg.Clock.Now().After(deadline) {
				break
			}
			if !v.cfg.Clock.Sleep(blockPollInterval, ctx.Done()) {
				return false
			}
		}
		sess.AddBlockTime(v.cfg.Clock.Now().Sub(start))
		return b.Write(item) == nil

	default: // Buffer
		timeout := make(chan struct{})
		go func() {
			v.cfg.Clock.Sleep(bufferWriteTimeout, nil)
			close(timeout)
		}()
		if b.TryWrite(item, timeout) {
			return true
		}
		sess.RecordDropped()
		return true
	}
}

// Score computes the [0,100] effectiveness score from a session
// snapshot, per the formula: start at 100, penalize unintended loss
// for non-lossy strategies, penalize excessive delay for non-delay
// strategies, and penalize chronic pressure above 50% active time.
func Score(strategy Strategy, stats session.Stats, activeFraction float64) float64 {
	score := 100.0

	if strategy != Drop && strategy != Sample && stats.Produced > 0 {
		lossFraction := float64(stats.Dropped) / float64(stats.Produced)
		score -= math.Min(50, 50*lossFraction)
	}

	if strategy != Throttle && strategy != Block {
		delay := stats.ThrottleDelay + stats.BlockTime
		if delay > 0 {
			score -= 30
		}
	}

	score -= 20 * math.Max(0, activeFraction-0.5)

	if score < 0 {
		score = 0
	}
	return score
}
