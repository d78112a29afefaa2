// Package dispatch is the top-level streaming entry point: it is
// grounded on package resilience's Executor (functional-options
// composition of optional resilience patterns, built inside-out) but
// replaces its fixed unary chain with pipeline.Compose over whichever
// streaming behaviors a Config enables, and on observe's Middleware
// for the span-plus-metrics-plus-log shape around one call — adapted
// here to wrap an entire stream instead of a single request/response
// pair, since unary dispatch itself is out of scope.
package dispatch
