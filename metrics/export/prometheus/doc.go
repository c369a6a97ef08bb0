// Package prometheus exposes session counters as a Prometheus collector.
//
// [NewPrometheusExporter] wraps a [goSession.Manager]. The exporter is a
// prometheus.Collector backed by a private registry; [PrometheusExporter.Handler]
// serves that registry and [PrometheusExporter.Register] adds the collector to a
// caller's registry instead. Counter names are gosession_*_total; the single
// histogram is gosession_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register anything in the global Prometheus registry.
//   - Mutate session state.
package prometheus
