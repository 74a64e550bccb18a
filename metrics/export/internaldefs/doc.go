// Package internaldefs holds the metric names, help strings and bucket
// bounds shared by the exporters.
//
// Both the Prometheus and OTel exporters read these tables, so a metric has
// one name regardless of how it is exported.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
