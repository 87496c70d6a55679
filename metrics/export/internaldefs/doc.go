// Package internaldefs maps engine counters onto the per-flow families and
// bucket bounds shared by the Prometheus and OTel exporters, so both
// publish the same series.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
