// Package otel publishes campusAuth engine metrics through an OpenTelemetry
// Meter.
//
// [NewExporter] creates an Int64ObservableCounter per engine counter and an
// Int64ObservableGauge per latency bucket, all fed by one callback that
// reads [campusAuth.Engine.MetricsSnapshot] on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
