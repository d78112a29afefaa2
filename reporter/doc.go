// Package reporter is the Health Reporter behavior: the fifth of the
// five streaming behaviors, watching a stream session for stall,
// memory growth, low throughput, and high error rate, and pushing a
// rolling health classification to an external Sink on a fixed
// interval and once more when the stream ends.
//
// Grounded on package resource for the session-scoped, clock-injected
// shape (a behavior that watches a session.Session without mutating
// the caller's items) and on package circuit for the presets-as-
// functions convention. Unlike resource, reporter has no process-wide
// registry: one Reporter exists per session, matching the spec's
// "stream session... owned exclusively by the behavior that created
// it" for everything except the circuit breaker.
package reporter
