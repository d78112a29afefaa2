package observe

import (
	"context"
	"time"
)

// ExecuteFunc is the signature for dispatch call functions.
// This is the standard function signature that Middleware wraps.
type ExecuteFunc func(ctx context.Context, req RequestMeta, input any) (any, error)

// Middleware wraps dispatch call with observability (tracing, metrics, logging).
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe ExecuteFunc.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from wrapped function are recorded and propagated unchanged.
//   - Ownership: Input/output values are passed through without modification.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// Wrap wraps an ExecuteFunc with tracing, metrics, and logging.
func (m *Middleware) Wrap(fn ExecuteFunc) ExecuteFunc {
	return func(ctx context.Context, req RequestMeta, input any) (any, error) {
		// Start span
		ctx, span := m.tracer.StartSpan(ctx, req)

		// Record start time
		start := time.Now()

		// Execute the function
		result, err := fn(ctx, req, input)

		// Calculate duration
		duration := time.Since(start)

		// End span (records error status if err != nil)
		m.tracer.EndSpan(span, err)

		// Record metrics
		m.metrics.RecordExecution(ctx, req, duration, err)

		// Log the execution
		reqLogger := m.logger.WithRequest(req)
		fields := []Field{
			{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		}

		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			reqLogger.Error(ctx, "dispatch call failed", fields...)
		} else {
			reqLogger.Info(ctx, "dispatch call completed", fields...)
		}

		return result, err
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
// This is a convenience function for common use cases.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	tracer := newTracer(obs.Tracer())

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(tracer, metrics, obs.Logger()), nil
}

// NewTracerFromObserver exposes the Tracer an Observer would otherwise
// only hand to a Middleware, for callers (like package dispatch) that
// instrument a single span around a whole streaming call rather than
// a single request/response pair.
func NewTracerFromObserver(obs Observer) Tracer {
	return newTracer(obs.Tracer())
}

// NewMetricsFromObserver mirrors NewTracerFromObserver for Metrics.
// Unlike MiddlewareFromObserver it never returns an error: a meter
// that fails to register its instruments falls back to a no-op
// recorder rather than failing dispatcher construction.
func NewMetricsFromObserver(obs Observer) Metrics {
	m, err := newMetrics(obs.Meter())
	if err != nil {
		return &noopMetrics{}
	}
	return m
}

// NewNoopTracer and NewNoopMetrics give callers that construct their
// instrumentation without a full Observer (tests, or a dispatcher
// with observability disabled) the same no-op implementations
// NewObserver falls back to internally.
func NewNoopTracer() Tracer {
	return newNoopTracer()
}

func NewNoopMetrics() Metrics {
	return &noopMetrics{}
}

// NewNoopLogger gives packages outside observe (circuit, resource) a
// default Logger for their own Config.Logger field without requiring
// every caller to build a full Observer first.
func NewNoopLogger() Logger {
	return &noopLogger{}
}
