// Package retry implements the streaming retry driver: it wraps a
// seq.Handler with an attempt counter, an elapsed-time budget, a
// delay strategy, and a retry predicate, restarting the downstream
// sequence from scratch on each retryable failure.
//
// The driver never redelivers items from a failed attempt — it
// relies on the channel bridge (package bridge) to have already
// handed them to the consumer before the failure surfaced, so
// delivery is "at least once per successful attempt, possibly
// duplicated across attempts," matching the no-exactly-once
// guarantee the rest of the system assumes.
package retry

import (
	"context"
	"fmt"
	"iter"
	"math/rand"
	"time"

	"github.com/riftlabs/dispatchcore/bridge"
	"github.com/riftlabs/dispatchcore/clock"
	"github.com/riftlabs/dispatchcore/seq"
)

// Strategy computes the delay before attempt N (1-based: the delay
// waited before the Nth retry, i.e. after the first failure).
type Strategy func(initial time.Duration, attempt int) time.Duration

// Fixed always waits the initial delay.
func Fixed(initial time.Duration, attempt int) time.Duration {
	return initial
}

// Exponential waits initial * 2^attempt.
func Exponential(initial time.Duration, attempt int) time.Duration {
	return initial * time.Duration(1<<uint(attempt))
}

// ExponentialJitter waits initial * 2^attempt, perturbed by uniform
// noise in [0.75, 1.25] of the base delay.
func ExponentialJitter(initial time.Duration, attempt int) time.Duration {
	base := Exponential(initial, attempt)
	lo := float64(base) * 0.75
	spread := float64(base) * 0.5
	d := time.Duration(lo + rand.Float64()*spread)
	if d < 0 {
		d = 0
	}
	return d
}

// Config configures a Driver.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the
	// first. A stream that fails on attempt MaxAttempts terminates
	// with a *StreamFailureError rather than retrying again.
	MaxAttempts int

	// InitialDelay seeds the delay Strategy.
	InitialDelay time.Duration

	// MaxTotalRetryTime bounds the wall time elapsed since the first
	// attempt started, attempt execution included: a retry whose delay
	// would bring that elapsed time to or past the bound is not
	// started. Zero means no bound.
	MaxTotalRetryTime time.Duration

	// Strategy computes the delay before each retry. Defaults to
	// Fixed.
	Strategy Strategy

	// RetryIf classifies whether an error is retryable. Defaults to
	// "always retryable".
	RetryIf func(err error) bool

	// OnRetry, if set, is called before each retry with the attempt
	// number (1-based, the attempt about to be started) and the
	// error that caused the retry.
	OnRetry func(attempt int, err error)

	// ResumeFromPosition is accepted but not read by the driver: every
	// retry restarts the stream at item 0, whether or not Req
	// implements Seekable. See Seekable.
	ResumeFromPosition bool

	Clock clock.Clock
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.Strategy == nil {
		c.Strategy = Fixed
	}
	if c.RetryIf == nil {
		c.RetryIf = func(error) bool { return true }
	}
	if c.Clock == nil {
		c.Clock = clock.Default
	}
	return c
}

// Seekable is an optional extension a request type may implement to
// let the retry driver resume a stream from the last delivered
// position instead of restarting from item 0. No preset or driver
// code currently exercises this — the source this was distilled from
// declares the option but never implements it, and guessing at wire
// semantics here would be just that: a guess. It is declared so a
// future driver revision has a seam to attach to.
type Seekable[Req any] interface {
	WithResumePosition(req Req, lastDelivered int) Req
}

// StreamFailureError is the terminal error the driver faults the
// channel with whenever it gives up on a stream — whether because the
// retry predicate rejected the failure outright or because attempts
// or the total retry budget were exhausted. It carries the total item
// count observed across all attempts, the attempt count, and the
// final underlying cause, matching the spec's StreamingFailure kind
// (§7): "produced when the retry driver gives up (either exhausted or
// non-retryable)".
type StreamFailureError struct {
	Attempts      int
	ItemsProduced int
	Retryable     bool
	Cause         error
}

func (e *StreamFailureError) Error() string {
	if !e.Retryable {
		return fmt.Sprintf("retry: stream failed with non-retryable error (%d items produced): %v", e.ItemsProduced, e.Cause)
	}
	return fmt.Sprintf("retry: stream failed after %d attempts (%d items produced): %v", e.Attempts, e.ItemsProduced, e.Cause)
}

func (e *StreamFailureError) Unwrap() error { return e.Cause }

// Driver wraps a seq.Handler with retry semantics.
type Driver[Req, T any] struct {
	cfg Config
}

// New creates a Driver from cfg.
func New[Req, T any](cfg Config) *Driver[Req, T] {
	return &Driver[Req, T]{cfg: cfg.withDefaults()}
}

// Wrap returns a Behavior that retries next according to the
// driver's configuration.
func (d *Driver[Req, T]) Wrap() seq.Behavior[Req, T] {
	return func(ctx context.Context, req Req, next seq.Next[Req, T]) iter.Seq2[T, error] {
		return func(yield func(T, error) bool) {
			d.run(ctx, req, next, yield)
		}
	}
}

func (d *Driver[Req, T]) run(ctx context.Context, req Req, next seq.Next[Req, T], yield func(T, error) bool) {
	b := bridge.New[T](ctx, 0)

	go func() {
		start := d.cfg.Clock.Now()
		itemsProduced := 0

		for attempt := 1; ; attempt++ {
			failure := d.runOneAttempt(ctx, req, next, b, &itemsProduced)
			if failure == nil {
				b.Close()
				return
			}

			if !d.cfg.RetryIf(failure) {
				b.Fault(&StreamFailureError{Attempts: attempt, ItemsProduced: itemsProduced, Retryable: false, Cause: failure})
				return
			}
			if attempt >= d.cfg.MaxAttempts {
				b.Fault(&StreamFailureError{Attempts: attempt, ItemsProduced: itemsProduced, Retryable: true, Cause: failure})
				return
			}

			delay := d.cfg.Strategy(d.cfg.InitialDelay, attempt)
			elapsed := d.cfg.Clock.Now().Sub(start)
			if d.cfg.MaxTotalRetryTime > 0 && elapsed+delay >= d.cfg.MaxTotalRetryTime {
				b.Fault(&StreamFailureError{Attempts: attempt, ItemsProduced: itemsProduced, Retryable: true, Cause: failure})
				return
			}

			if d.cfg.OnRetry != nil {
				d.cfg.OnRetry(attempt+1, failure)
			}

			if !d.cfg.Clock.Sleep(delay, ctx.Done()) {
				b.Fault(ctx.Err())
				return
			}
		}
	}()

	b.Seq(yield)
}

// runOneAttempt drives a single downstream sequence to completion,
// writing every item to the bridge. Returns the failure that ended
// the attempt, or nil on a clean finish.
func (d *Driver[Req, T]) runOneAttempt(ctx context.Context, req Req, next seq.Next[Req, T], b *bridge.Bridge[T], itemsProduced *int) error {
	var failure error
	next(ctx, req)(func(item T, err error) bool {
		if err != nil {
			failure = err
			return false
		}
		if werr := b.Write(item); werr != nil {
			failure = werr
			return false
		}
		*itemsProduced++
		return true
	})
	return failure
}
