package dispatch

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoHandler is returned when a Dispatcher has no handler registered
// for the request's type.
var ErrNoHandler = errors.New("dispatch: no handler registered for request type")

// ErrCancelled replaces context.Canceled/DeadlineExceeded at the
// dispatcher boundary; it does not wrap them. Per the taxonomy, cancellation is cooperative
// and is not itself a failure the health reporter or circuit breaker
// ever sees as one — this sentinel exists only so callers have a
// single, stable error to check for regardless of which suspension
// point observed ctx.Done() first.
var ErrCancelled = errors.New("dispatch: cancelled")

// StreamingFailure is the terminal error a caller observes when a
// streaming dispatch call fails mid-stream because the retry driver
// exhausted its budget or gave up on a non-retryable failure. A
// circuit-breaker admission refusal is not wrapped in it; the
// dispatcher passes circuit.ErrOpen through as-is. It carries the count of items
// the caller already received and the time the failure was recorded,
// so a caller can tell a clean zero-item failure from one that
// happened after partial delivery.
type StreamingFailure struct {
	RequestType   string
	ItemsProduced int
	FailureTime   time.Time
	Cause         error
}

func (e *StreamingFailure) Error() string {
	return fmt.Sprintf("dispatch: streaming failure for %s after %d items (at %s): %v",
		e.RequestType, e.ItemsProduced, e.FailureTime.Format(time.RFC3339Nano), e.Cause)
}

func (e *StreamingFailure) Unwrap() error { return e.Cause }
