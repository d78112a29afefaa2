package circuit

import (
	"context"
	"iter"

	"github.com/riftlabs/dispatchcore/bridge"
	"github.com/riftlabs/dispatchcore/seq"
	"github.com/riftlabs/dispatchcore/session"
)

// WrapStream returns a Behavior implementing the streaming circuit
// breaker: it admits the stream exactly once (not once per item) and,
// on completion, records the outcome including item count and
// duration so presets with PartialSuccessThreshold can reclassify a
// late failure as a success.
//
// This is the innermost behavior in the recommended pipeline order
// (§4.H of the spec: F -> E -> G -> D -> C -> handler) — it is the
// one that actually decides whether the handler runs at all.
//
// Go methods cannot carry their own type parameters, so the Req/T
// pair is threaded through this package-level function instead of a
// *Registry method.
func WrapStream[Req, T any](r *Registry, rt session.RequestType, cfg Config) seq.Behavior[Req, T] {
	b := r.Breaker(rt, cfg)
	clk := cfg.withDefaults().Clock
	return func(ctx context.Context, req Req, next seq.Next[Req, T]) iter.Seq2[T, error] {
		return func(yield func(T, error) bool) {
			if err := b.Admit(); err != nil {
				var zero T
				yield(zero, err)
				return
			}

			start := clk.Now()
			br := bridge.New[T](ctx, 0)
			itemCount := 0

			go func() {
				var failure error
				next(ctx, req)(func(item T, err error) bool {
					if err != nil {
						failure = err
						return false
					}
					itemCount++
					if werr := br.Write(item); werr != nil {
						failure = werr
						return false
					}
					return true
				})
				duration := clk.Now().Sub(start)
				b.RecordStream(failure == nil, failure, itemCount, duration)
				if failure != nil {
					br.Fault(failure)
					return
				}
				br.Close()
			}()

			br.Seq(yield)
		}
	}
}
