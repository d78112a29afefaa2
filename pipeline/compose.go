// Package pipeline implements the Pipeline Composer: it orders a set
// of streaming behaviors around a handler so that each behavior sees
// the next one (or the handler, at the innermost position) as an
// opaque "run the rest of the stream" operation.
//
// The composer never inspects or transforms the items that flow
// through the resulting sequence — it only builds the call chain.
// Behaviors that need their own try/catch semantics (retry, the
// streaming circuit breaker, the backpressure valve, the resource
// monitor, the health reporter) each use the channel bridge (package
// bridge) internally to isolate their failure handling from the
// iterator the caller ultimately observes; the composer itself stays
// a thin, allocation-light closure builder.
package pipeline

import (
	"context"
	"iter"

	"github.com/riftlabs/dispatchcore/seq"
)

// Compose builds chain(request) = b1(b2(...bn(handler)...)) so that
// b1 runs outermost: it is the first behavior to see the request and
// the last to see each item on the way back out. Behaviors are applied
// in registration order — Compose folds the slice from the end so the
// first element ends up outermost.
//
// Composing zero behaviors returns handler itself, unwrapped, so
// calling Compose(handler) is observationally identical to calling
// handler directly.
func Compose[Req, T any](handler seq.Handler[Req, T], behaviors ...seq.Behavior[Req, T]) seq.Handler[Req, T] {
	chain := handler
	for i := len(behaviors) - 1; i >= 0; i-- {
		chain = bind(behaviors[i], chain)
	}
	return chain
}

// bind closes a single behavior over the handler it wraps, turning it
// back into a plain seq.Handler so the next fold iteration (or the
// caller) can treat it uniformly.
func bind[Req, T any](b seq.Behavior[Req, T], next seq.Handler[Req, T]) seq.Handler[Req, T] {
	return func(ctx context.Context, req Req) iter.Seq2[T, error] {
		return b(ctx, req, next)
	}
}
