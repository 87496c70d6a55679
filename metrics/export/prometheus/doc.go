// Package prometheus renders goEnroll engine metrics in Prometheus text
// exposition format.
//
// Counters are grouped into one labelled family per flow, for example
// goenroll_login_events_total{method="quick",outcome="success"}. The single
// histogram is goenroll_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
