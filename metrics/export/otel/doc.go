// Package otel binds session counters to OpenTelemetry asynchronous instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per session counter. The refresh
// latency histogram becomes a "_bucket" gauge carrying an "le" attribute per upper bound
// plus a "_count" gauge. Audit and invalidation queue totals share one counter,
// gosession_queue_events_total, split by the "queue" and "outcome" attributes. A single
// callback reads [goSession.Manager.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate session state.
package otel
