// Package bridge implements the Channel Bridge: a single-producer,
// single-consumer queue that isolates the try/catch around advancing
// an upstream sequence from the range loop the caller observes.
//
// Every behavior in dispatchcore that needs to recover from a failing
// upstream sequence (retry, circuit breaker, backpressure valve,
// resource monitor, health reporter) spawns exactly one producer
// goroutine that ranges over the upstream iter.Seq2, writes each item
// to a Bridge, and closes or faults the bridge once that sequence ends;
// the caller-facing loop then just ranges over Bridge.Seq with no
// error handling beyond propagating the fault once the range ends.
//
// Go's range-over-func can in fact wrap a yield in a try/catch (a
// deferred recover), so this isolation is not strictly required the
// way it is in languages without first-class channels — but it is
// kept anyway because it cleanly decouples failure handling from
// consumption and gives backpressure a natural home: a bounded Bridge
// is exactly the channel the Backpressure Valve needs for wait-on-full
// semantics, and an unbounded one is what Retry, the circuit breaker,
// and the health reporter need so the producer never blocks on a slow
// consumer.
package bridge

import (
	"context"
	"iter"
	"sync"
)

// Bridge moves items of type T from one producer goroutine to one
// consumer. A capacity of 0 makes it behave as an unbounded queue (the
// producer never blocks on Write, bounded only by available memory); a
// positive capacity makes Write block once that many items are
// queued.
type Bridge[T any] struct {
	ctx      context.Context
	capacity int

	bounded chan T // used when capacity > 0

	in  chan T // used when capacity == 0 (unbounded producer side)
	out chan T // used when capacity == 0 (unbounded consumer side)

	closeOnce sync.Once

	mu     sync.Mutex
	fault  error
	closed bool
}

// New creates a Bridge scoped to ctx. Once ctx is done, a blocked
// Write unblocks and returns ctx.Err() instead of waiting on room or
// on the consumer.
func New[T any](ctx context.Context, capacity int) *Bridge[T] {
	b := &Bridge[T]{ctx: ctx, capacity: capacity}
	if capacity > 0 {
		b.bounded = make(chan T, capacity)
	} else {
		b.in = make(chan T)
		b.out = make(chan T)
		go b.relay()
	}
	return b
}

// relay absorbs writes on an unbounded Bridge into a growable internal
// queue so the producer is never blocked by a slow consumer, only by
// ctx cancellation.
func (b *Bridge[T]) relay() {
	var queue []T
	for {
		if len(queue) == 0 {
			v, ok := <-b.in
			if !ok {
				close(b.out)
				return
			}
			queue = append(queue, v)
			continue
		}
		select {
		case v, ok := <-b.in:
			if !ok {
				for _, item := range queue {
					b.out <- item
				}
				close(b.out)
				return
			}
			queue = append(queue, v)
		case b.out <- queue[0]:
			queue = queue[1:]
		}
	}
}

// Write enqueues item, blocking if the bridge is bounded and full.
// Returns ctx.Err() if the bridge's context is done before room
// becomes available.
func (b *Bridge[T]) Write(item T) error {
	if b.capacity > 0 {
		select {
		case b.bounded <- item:
			return nil
		case <-b.ctx.Done():
			return b.ctx.Err()
		}
	}
	select {
	case b.in <- item:
		return nil
	case <-b.ctx.Done():
		return b.ctx.Err()
	}
}

// TryWrite enqueues item, giving up and returning false if timeout
// fires first or the bridge's context is done first. Used by the
// Backpressure Valve's Buffer strategy, which falls back to dropping
// an item after a bounded wait rather than blocking indefinitely.
func (b *Bridge[T]) TryWrite(item T, timeout <-chan struct{}) bool {
	dst := b.bounded
	if b.capacity == 0 {
		dst = b.in
	}
	select {
	case dst <- item:
		return true
	case <-timeout:
		return false
	case <-b.ctx.Done():
		return false
	}
}

// Close closes the bridge, signaling the consumer that no more items
// will arrive. Idempotent.
func (b *Bridge[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.closeOnce.Do(func() {
		if b.capacity > 0 {
			close(b.bounded)
		} else {
			close(b.in)
		}
	})
}

// Fault closes the bridge carrying an error that the consumer
// observes after draining whatever was already queued. Idempotent
// with Close; only the first call of either has effect.
func (b *Bridge[T]) Fault(err error) {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		b.fault = err
	}
	b.mu.Unlock()
	b.Close()
}

// Seq ranges over everything written to the bridge, in order, until
// the producer closes it; if the producer faulted, the final
// iteration yields the fault error instead of an item.
func (b *Bridge[T]) Seq(yield func(T, error) bool) {
	src := b.bounded
	if b.capacity == 0 {
		src = b.out
	}
	for item := range src {
		if !yield(item, nil) {
			return
		}
	}

	b.mu.Lock()
	fault := b.fault
	b.mu.Unlock()
	if fault != nil {
		var zero T
		yield(zero, fault)
	}
}

// AsSeq2 adapts Seq to the iter.Seq2 signature expected by
// seq.Handler return values.
func (b *Bridge[T]) AsSeq2() iter.Seq2[T, error] { return b.Seq }
