package resource

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"

	"github.com/riftlabs/dispatchcore/bridge"
	"github.com/riftlabs/dispatchcore/seq"
	"github.com/riftlabs/dispatchcore/session"
)

// WrapStream returns a Behavior that registers sess with m for the
// lifetime of one streaming dispatch call: it runs the per-item fast
// check on every item the downstream handler produces and the full
// interval check on a background timer, and always calls Complete
// when the stream ends (successfully, on failure, or on
// cancellation), regardless of which path ended it.
//
// Like circuit.WrapStream, the Req/T pair is threaded through this
// package-level function because Go methods cannot carry their own
// type parameters.
func WrapStream[Req, T any](m *Monitor, sess *session.Session) seq.Behavior[Req, T] {
	return func(ctx context.Context, req Req, next seq.Next[Req, T]) iter.Seq2[T, error] {
		return func(yield func(T, error) bool) {
			m.Register(sess)
			defer m.Complete(sess.ID)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			br := bridge.New[T](ctx, 0)
			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				var failure error
				next(ctx, req)(func(item T, err error) bool {
					if err != nil {
						failure = err
						return false
					}
					m.CheckItem(sess.ID)
					if werr := br.Write(item); werr != nil {
						failure = werr
						return false
					}
					return true
				})
				if failure != nil {
					br.Fault(failure)
					return failure
				}
				br.Close()
				return nil
			})

			g.Go(func() error {
				for {
					if !m.cfg.Clock.Sleep(m.cfg.MonitoringInterval, gctx.Done()) {
						return nil
					}
					m.CheckInterval(sess.ID)
				}
			})

			br.Seq(yield)
			cancel()
			g.Wait()
		}
	}
}
