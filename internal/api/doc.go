// Package api hosts the operator HTTP surface that runs beside a pipeline.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs and /v1/runs/{run_id} for the run ledger, when a
//     store.RunRepository is configured.
package api
