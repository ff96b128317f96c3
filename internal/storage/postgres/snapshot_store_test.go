package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tour-ingest/internal/store"
)

func TestSnapshotStoreInsertsRow(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	s, err := NewSnapshotStore(mock, "")
	require.NoError(t, err)

	snap := store.Snapshot{
		RunID:     uuid.New(),
		URL:       "https://example.com/reef",
		FinalURL:  "https://example.com/reef/",
		Hash:      "abc123",
		BlobURI:   "gs://bucket/reef/abc123.html",
		Rendered:  true,
		Bytes:     2048,
		FetchedAt: time.Unix(1700000000, 0).UTC(),
	}
	mock.ExpectExec("INSERT INTO page_snapshots").
		WithArgs(snap.RunID, snap.URL, snap.FinalURL, snap.Hash, snap.BlobURI, snap.Rendered, snap.Bytes, snap.FetchedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordSnapshot(context.Background(), snap))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewSnapshotStore(nil, "")
	assert.Error(t, err)

	mock := newMock(t)
	_, err = NewSnapshotStore(mock, "bad-name;drop")
	assert.Error(t, err)

	s, err := NewSnapshotStore(mock, "snaps")
	require.NoError(t, err)
	assert.Error(t, s.RecordSnapshot(context.Background(), store.Snapshot{}))
}
