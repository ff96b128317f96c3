// Package main hosts the tourpipe command line.
//
// Architecture overview:
//   - run: reads the URL list, fetches each page through the Colly probe (promoting to a headless Chromedp
//     render when the detector asks for it), reduces the document, splits it into tour chunks and structures each
//     chunk with the configured LLM provider. The page's records are merged into the tabular store (CSV or SQLite)
//     before the next page starts, so an interrupted run keeps everything merged so far.
//   - merge: folds a standalone fresh CSV into a store without touching externally-owned columns.
//   - dedupe: drops duplicate rows from a store, optionally restricted to an allow list of booking links.
//
// Plumbing: Viper populates config from .env, a config file and TOURS_* variables; zap provides structured
// logging; a progress Hub fans run events out to the log, Prometheus and (with a DSN) the Postgres run ledger.
// Snapshots of fetched documents go to the local or GCS archive, and a Pub/Sub notification is published per
// merged page when a topic is configured. Setting server.port exposes /healthz, /metrics and the run ledger
// while a run is in progress.
//
// Quick checklist:
//   - Configure OPENAI_API_KEY or GEMINI_API_KEY (llm.provider selects which).
//   - Run locally: go run ./cmd/tourpipe run --input urls.txt --output data/tours.csv --scope reefco
//   - Exit status is nonzero only when the input cannot be found, the configuration is invalid or the store
//     cannot be read or written. Per-page failures are logged and counted.
package main
