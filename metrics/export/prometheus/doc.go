// Package prometheus exposes campusAuth engine metrics to Prometheus.
//
// [Exporter] implements prometheus.Collector. Mount [Exporter.Handler] on
// /metrics or register the exporter on an existing registry. Counters are
// named campus_*_total; the latency histograms are
// campus_validate_latency_seconds and campus_authorize_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
