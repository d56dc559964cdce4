// Package prometheus renders keygate metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] accepts a [keygate.Engine] and exposes an
// [net/http.Handler] that renders every engine counter. Counter names are
// prefixed keygate_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the
//     Handler.
//   - Mutate engine state.
package prometheus
