// Package sinks implements progress consumers: structured logs, Prometheus
// collectors and the run ledger.
package sinks
