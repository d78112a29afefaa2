// Package seq defines the lazy, restartable sequence abstraction that
// every streaming behavior in dispatchcore wraps: a handler produces a
// fresh iter.Seq2[T, error] on every call, a behavior wraps a handler
// and produces another one, and the composer (see package pipeline)
// chains them into a single callable the caller ranges over.
//
// This mirrors the SSE stream handler shape used elsewhere in the Go
// ecosystem (a func(context.Context, Req) iter.Seq2[Res, error] handed
// to range-over-func) rather than a hand-rolled iterator interface:
// calling a Handler a second time naturally produces an independent
// sequence restarted from its beginning, which is exactly the
// restart semantics the retry driver depends on.
package seq

import (
	"context"
	"iter"
)

// Handler produces a lazy, single-use sequence of T for a given
// request. Calling Handler twice on the same request MUST yield two
// independent sequences, each restarted from the beginning; handlers
// that wrap external resources (a DB cursor, an HTTP stream) must
// reopen them on every call.
//
// The consumer may stop ranging at any point; a well-behaved Handler
// observes ctx cancellation and releases resources promptly when the
// range loop's yield returns false.
type Handler[Req, T any] func(ctx context.Context, req Req) iter.Seq2[T, error]

// Next is the signature a Behavior invokes to run the remainder of the
// chain. It has exactly the shape of Handler so a Behavior can treat
// "everything downstream of me" as an opaque handler.
type Next[Req, T any] = Handler[Req, T]

// Behavior wraps a Handler with cross-cutting concern (retry, circuit
// breaking, backpressure, ...). It receives next, the remainder of the
// chain, as an opaque callable and returns its own sequence built on
// top of it. A Behavior must not reorder or duplicate items beyond
// what its documented semantics permit (see package backpressure for
// the one exception: the Sample and Drop strategies are explicitly
// lossy).
type Behavior[Req, T any] func(ctx context.Context, req Req, next Next[Req, T]) iter.Seq2[T, error]

// Collect drains s into a slice, returning the first error
// encountered (if any) together with whatever items were yielded
// before it. Intended for tests and for callers that want the
// eager/unary flavor of a streaming handler.
func Collect[T any](s iter.Seq2[T, error]) ([]T, error) {
	var items []T
	var finalErr error
	s(func(v T, err error) bool {
		if err != nil {
			finalErr = err
			return false
		}
		items = append(items, v)
		return true
	})
	return items, finalErr
}

// FromSlice builds a Handler that replays a fixed slice of items on
// every call, useful for tests that need a restartable, side-effect
// free upstream. onCall, if non-nil, is invoked once per call with
// the 1-based attempt number before any item is yielded, so tests can
// vary behavior (e.g. fail early) across retry attempts.
func FromSlice[Req, T any](items []T, onCall func(attempt int)) Handler[Req, T] {
	var calls int
	return func(ctx context.Context, req Req) iter.Seq2[T, error] {
		calls++
		attempt := calls
		return func(yield func(T, error) bool) {
			if onCall != nil {
				onCall(attempt)
			}
			for _, item := range items {
				select {
				case <-ctx.Done():
					yield(*new(T), ctx.Err())
					return
				default:
				}
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// Failing builds a Handler that yields the given items and then fails
// with err on the given call number (1-based); on any other call it
// yields the items and succeeds. Useful for retry-driver tests that
// need "fails on attempts 1 and 2, succeeds on attempt 3".
func Failing[Req, T any](items []T, failOnAttempt int, err error) Handler[Req, T] {
	var calls int
	return func(ctx context.Context, req Req) iter.Seq2[T, error] {
		calls++
		attempt := calls
		return func(yield func(T, error) bool) {
			for _, item := range items {
				select {
				case <-ctx.Done():
					yield(*new(T), ctx.Err())
					return
				default:
				}
				if !yield(item, nil) {
					return
				}
			}
			if attempt == failOnAttempt {
				yield(*new(T), err)
			}
		}
	}
}

// AlwaysFailing builds a Handler that yields the given items on every
// call and then always fails with err. attempts, if non-nil, is
// incremented once per call so tests can assert the invocation count.
func AlwaysFailing[Req, T any](items []T, err error, attempts *int) Handler[Req, T] {
	return func(ctx context.Context, req Req) iter.Seq2[T, error] {
		if attempts != nil {
			*attempts++
		}
		return func(yield func(T, error) bool) {
			for _, item := range items {
				select {
				case <-ctx.Done():
					yield(*new(T), ctx.Err())
					return
				default:
				}
				if !yield(item, nil) {
					return
				}
			}
			yield(*new(T), err)
		}
	}
}
