package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/tour-ingest/internal/store"
)

// SnapshotStore indexes archived page documents.
type SnapshotStore struct {
	pool  pool
	table string
}

// NewSnapshotStore wraps an open pool. An empty table defaults to page_snapshots.
func NewSnapshotStore(p pool, table string) (*SnapshotStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "page_snapshots"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SnapshotStore{pool: p, table: table}, nil
}

// EnsureSchema creates the snapshot table when missing.
func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id     UUID NOT NULL,
	url        TEXT NOT NULL,
	final_url  TEXT NOT NULL,
	hash       TEXT NOT NULL,
	blob_uri   TEXT NOT NULL,
	rendered   BOOLEAN NOT NULL,
	bytes      BIGINT NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create snapshot schema: %w", err)
	}
	return nil
}

// RecordSnapshot inserts one row.
func (s *SnapshotStore) RecordSnapshot(ctx context.Context, snap store.Snapshot) error {
	if snap.URL == "" {
		return fmt.Errorf("snapshot url is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, url, final_url, hash, blob_uri, rendered, bytes, fetched_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, s.table)
	_, err := s.pool.Exec(ctx, query,
		snap.RunID, snap.URL, snap.FinalURL, snap.Hash, snap.BlobURI,
		snap.Rendered, snap.Bytes, snap.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}
