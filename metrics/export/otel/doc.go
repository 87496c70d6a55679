// Package otel publishes goEnroll engine counters as OpenTelemetry
// observable instruments, one counter per flow with the outcome carried
// as attributes.
//
// A single callback reads [goEnroll.Engine.MetricsSnapshot] on each
// collection cycle. [Collector] wraps a private MeterProvider and a manual
// reader for pull-style deployments; otherwise callers supply their own
// Meter to [New].
//
// # What this package must NOT do
//
//   - Install a global MeterProvider.
//   - Mutate engine state.
package otel
