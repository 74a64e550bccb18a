// Package prometheus exposes goIdentity engine metrics as a Prometheus
// collector.
//
// [NewCollector] reads the engine snapshot on every scrape. Counter names
// are goidentity_*_total and the one histogram is
// goidentity_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers pick the registry.
//   - Mutate engine state.
package prometheus
