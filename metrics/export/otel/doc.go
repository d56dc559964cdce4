// Package otel provides OpenTelemetry metric exporter bindings for keygate
// counters.
//
// [NewOTelExporter] registers an Int64ObservableCounter instrument for each
// engine counter. A single callback reads [keygate.Engine.MetricsSnapshot]
// on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider — callers supply the Meter.
//   - Mutate engine state.
package otel
