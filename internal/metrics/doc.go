// Package metrics exposes Prometheus collectors for the echo server and an
// optional HTTP exporter serving them on /metrics.
//
// Each Collector owns its registry so several servers can run in one process
// without colliding. A nil *Collector is valid and records nothing.
package metrics
