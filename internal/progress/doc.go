// Package progress carries pipeline milestones from the orchestrator to
// pluggable sinks. A Hub buffers events on a background goroutine and flushes
// them in batches so the pipeline never waits on metrics or ledger writes.
package progress
