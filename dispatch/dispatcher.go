// Package dispatch wires the five streaming behaviors (resource
// monitor, backpressure valve, health reporter, retry driver, circuit
// breaker) around a handler using the pipeline composer, and
// translates their failures into the taxonomy described by this
// module's error types.
//
// A Dispatcher is built once per request type; each Dispatch call
// opens a fresh session.Session and, for the behaviors that are
// session-scoped (backpressure, health reporter, resource monitor),
// builds their Behavior fresh for that session. The circuit breaker
// is the exception: it is keyed by request type in a shared Registry
// and is admitted at most once per stream regardless of how many
// Dispatch calls share that request type.
package dispatch

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/riftlabs/dispatchcore/backpressure"
	"github.com/riftlabs/dispatchcore/circuit"
	"github.com/riftlabs/dispatchcore/clock"
	"github.com/riftlabs/dispatchcore/observe"
	"github.com/riftlabs/dispatchcore/pipeline"
	"github.com/riftlabs/dispatchcore/reporter"
	"github.com/riftlabs/dispatchcore/resource"
	"github.com/riftlabs/dispatchcore/retry"
	"github.com/riftlabs/dispatchcore/seq"
	"github.com/riftlabs/dispatchcore/session"
)

// CircuitOptions enables the streaming circuit breaker for a
// Dispatcher. The breaker is keyed by the request type derived from
// Config.Meta, so every Dispatcher sharing a Registry and a Meta
// identity shares one Breaker; Registry is typically circuit.Default.
type CircuitOptions struct {
	Registry *circuit.Registry
	Config   circuit.Config
}

// Config configures a Dispatcher. Every field beyond Handler and
// Meta is optional; a nil/zero sub-config skips that behavior
// entirely, so a bare Config{Handler: h, Meta: m} dispatches with no
// resilience behaviors at all — observationally identical to calling
// Handler directly, per the pipeline composer's zero-behavior
// guarantee.
type Config[Req, T any] struct {
	Handler seq.Handler[Req, T]
	Meta    observe.RequestMeta

	Backpressure *backpressure.Config
	Reporter     *reporter.Config
	Retry        *retry.Config
	Circuit      *CircuitOptions

	// ResourceMonitor, if set, is shared across Dispatchers (and
	// typically across request types) so its background sweeper and
	// session registry are process-wide, as the spec requires.
	// Ignored when Scope is set and this is left nil — Scope.Resources
	// is used instead.
	ResourceMonitor *resource.Monitor

	// Scope, if set, supplies ResourceMonitor and Circuit.Registry
	// when those are left nil, and has this Dispatcher's circuit
	// breaker (if Circuit is configured) registered onto its Health
	// aggregator automatically.
	Scope *Scope

	Observer observe.Observer
	Clock    clock.Clock
}

// Dispatcher runs one request type's streaming pipeline.
type Dispatcher[Req, T any] struct {
	cfg     Config[Req, T]
	tracer  observe.Tracer
	metrics observe.Metrics
	clk     clock.Clock
}

// New builds a Dispatcher from cfg. Handler must be non-nil; Dispatch
// returns ErrNoHandler immediately otherwise, matching the taxonomy
// even though handler registration/discovery itself is out of scope
// here.
func New[Req, T any](cfg Config[Req, T]) *Dispatcher[Req, T] {
	if cfg.Scope != nil {
		if cfg.ResourceMonitor == nil {
			cfg.ResourceMonitor = cfg.Scope.Resources
		}
		if cfg.Circuit != nil {
			circuitOpts := *cfg.Circuit
			if circuitOpts.Registry == nil {
				circuitOpts.Registry = cfg.Scope.Circuits
			}
			cfg.Circuit = &circuitOpts

			rt := session.RequestType(cfg.Meta.RequestTypeID())
			cfg.Scope.RegisterCircuitChecker(rt, cfg.Circuit.Config)
		}
	}

	d := &Dispatcher[Req, T]{cfg: cfg, clk: cfg.Clock}
	if d.clk == nil {
		d.clk = clock.Default
	}
	if cfg.Observer != nil {
		d.tracer = observe.NewTracerFromObserver(cfg.Observer)
		d.metrics = observe.NewMetricsFromObserver(cfg.Observer)
	} else {
		d.tracer = observe.NewNoopTracer()
		d.metrics = observe.NewNoopMetrics()
	}
	return d
}

// Dispatch runs the request through the configured pipeline and
// returns a lazy, restartable sequence of results. The returned
// sequence carries exactly one terminal failure, translated per §7:
// CircuitOpen for admission refusal, StreamingFailure for anything
// the retry driver gives up on, and the handler's own errors
// otherwise.
func (d *Dispatcher[Req, T]) Dispatch(ctx context.Context, req Req) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if d.cfg.Handler == nil {
			yield(*new(T), ErrNoHandler)
			return
		}

		start := d.clk.Now()
		ctx, span := d.tracer.StartSpan(ctx, d.cfg.Meta)

		rt := session.RequestType(d.cfg.Meta.RequestTypeID())
		sess := session.New(rt, start, d.cfg)

		behaviors, itemsProducedPtr := d.buildBehaviors(sess, rt)

		chain := pipeline.Compose[Req, T](d.cfg.Handler, behaviors...)

		var finalErr error
		chain(ctx, req)(func(v T, err error) bool {
			if err != nil {
				finalErr = translate(err, rt, *itemsProducedPtr, d.clk.Now())
				return yield(v, finalErr)
			}
			*itemsProducedPtr++
			return yield(v, nil)
		})

		d.tracer.EndSpan(span, finalErr)
		d.metrics.RecordExecution(ctx, d.cfg.Meta, d.clk.Now().Sub(start), finalErr)
	}
}

// buildBehaviors assembles the per-call behavior chain in the
// recommended outermost-to-innermost order: resource monitor,
// backpressure valve, health reporter, retry driver, circuit breaker.
// It also returns a pointer the caller increments per successfully
// yielded item, so a translated failure can report how many items the
// caller already saw.
func (d *Dispatcher[Req, T]) buildBehaviors(sess *session.Session, rt session.RequestType) ([]seq.Behavior[Req, T], *int) {
	itemsProduced := new(int)
	var behaviors []seq.Behavior[Req, T]

	if d.cfg.ResourceMonitor != nil {
		behaviors = append(behaviors, resource.WrapStream[Req, T](d.cfg.ResourceMonitor, sess))
	}
	if d.cfg.Backpressure != nil {
		v := backpressure.New[Req, T](*d.cfg.Backpressure)
		behaviors = append(behaviors, v.Wrap(sess))
	}
	if d.cfg.Reporter != nil {
		rep := reporter.New[Req, T](sess, *d.cfg.Reporter)
		behaviors = append(behaviors, rep.Wrap())
	}
	if d.cfg.Retry != nil {
		rd := retry.New[Req, T](*d.cfg.Retry)
		behaviors = append(behaviors, rd.Wrap())
	}
	if d.cfg.Circuit != nil {
		reg := d.cfg.Circuit.Registry
		if reg == nil {
			reg = circuit.Default
		}
		behaviors = append(behaviors, circuit.WrapStream[Req, T](reg, rt, d.cfg.Circuit.Config))
	}

	return behaviors, itemsProduced
}

// translate maps a raw failure surfacing at the outermost edge of the
// chain to the dispatch error taxonomy (§7). A circuit-breaker
// rejection is reported as-is (errors.Is(err, circuit.ErrOpen) still
// works for a caller that checks directly); a retry.StreamFailureError
// — the retry driver giving up, whether exhausted or non-retryable —
// is re-expressed as StreamingFailure with the request type and
// current item count attached; a cancellation is normalized to
// ErrCancelled; anything else (a handler failure with no retry
// behavior configured) propagates unchanged.
func translate(err error, rt session.RequestType, itemsProduced int, at time.Time) error {
	if err == nil {
		return nil
	}

	var streamFailure *retry.StreamFailureError
	switch {
	case errors.Is(err, circuit.ErrOpen):
		return err
	case errors.As(err, &streamFailure):
		return &StreamingFailure{
			RequestType:   string(rt),
			ItemsProduced: itemsProduced,
			FailureTime:   at,
			Cause:         err,
		}
	case ctxCancelled(err):
		return ErrCancelled
	default:
		return err
	}
}

func ctxCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
