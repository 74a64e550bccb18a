// Package otel exposes goIdentity engine metrics through OpenTelemetry
// observable instruments.
//
// [NewExporter] registers one callback that reads the engine snapshot on
// every collection. Histogram buckets are exported as cumulative gauges.
//
// # What this package must NOT do
//
//   - Configure a MeterProvider. Callers pass the Meter.
//   - Mutate engine state.
package otel
