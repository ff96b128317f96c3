package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tour-ingest/internal/progress"
	"github.com/JakeFAU/tour-ingest/internal/store"
)

func TestStoreSinkPersistsRun(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now()

	batch := []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, Scope: "reef", TS: now},
		{RunID: runID, Stage: progress.StagePageSegmented, URL: "https://a", Chunks: 2, TS: now},
		{RunID: runID, Stage: progress.StageChunkStructured, URL: "https://a", TS: now},
		{RunID: runID, Stage: progress.StageChunkRejected, URL: "https://a", TS: now},
		{RunID: runID, Stage: progress.StagePageMerged, URL: "https://a", Chunks: 2, Structured: 1, Rejected: 1, Appended: 1, TS: now},
		{RunID: runID, Stage: progress.StagePageFailed, URL: "https://b", Note: "timeout", TS: now},
		{RunID: runID, Stage: progress.StageRunDone, TS: now.Add(time.Minute)},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, []uuid.UUID{runUUID}, repo.starts)
	require.Len(t, repo.pages, 2)
	assert.Equal(t, "merged", repo.pages[0].State)
	assert.Equal(t, "failed", repo.pages[1].State)
	assert.Equal(t, "timeout", repo.pages[1].Note)

	require.Len(t, repo.completes, 1)
	done := repo.completes[0]
	assert.Equal(t, store.RunSuccess, done.status)
	assert.Equal(t, store.RunTotals{Pages: 2, Failed: 1, Chunks: 2, Structured: 1, Rejected: 1, Appended: 1}, done.totals)
	assert.Empty(t, sink.totals)
}

func TestStoreSinkRunError(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageRunDone, TS: time.Now(), Note: "store unwritable"},
	}))
	require.Len(t, repo.completes, 1)
	assert.Equal(t, store.RunError, repo.completes[0].status)
	require.NotNil(t, repo.completes[0].errMsg)
	assert.Equal(t, "store unwritable", *repo.completes[0].errMsg)
}

func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(&fakeRunRepo{fail: true}, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(uuid.New()), Stage: progress.StageRunStart, TS: time.Now()},
	})
	require.Error(t, err)
}

type completeCall struct {
	runID  uuid.UUID
	status store.RunStatus
	totals store.RunTotals
	errMsg *string
}

type fakeRunRepo struct {
	fail      bool
	starts    []uuid.UUID
	pages     []store.PageOutcome
	completes []completeCall
}

var errFake = errors.New("repo down")

func (f *fakeRunRepo) StartRun(_ context.Context, runID uuid.UUID, _ string, _ time.Time) error {
	if f.fail {
		return errFake
	}
	f.starts = append(f.starts, runID)
	return nil
}

func (f *fakeRunRepo) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	_ time.Time,
	status store.RunStatus,
	totals store.RunTotals,
	errMsg *string,
) error {
	if f.fail {
		return errFake
	}
	f.completes = append(f.completes, completeCall{runID: runID, status: status, totals: totals, errMsg: errMsg})
	return nil
}

func (f *fakeRunRepo) RecordPage(_ context.Context, page store.PageOutcome) error {
	if f.fail {
		return errFake
	}
	f.pages = append(f.pages, page)
	return nil
}

func (f *fakeRunRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return store.Run{}, store.ErrNotFound
}

func (f *fakeRunRepo) ListRuns(context.Context, string, int, int) ([]store.Run, error) {
	return nil, nil
}
