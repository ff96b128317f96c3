package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/tour-ingest/internal/progress"
	"github.com/JakeFAU/tour-ingest/internal/store"
)

// StoreSink writes run starts, terminal page states and run completion to a
// store.RunRepository. Intermediate stages are tallied into the run totals.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
	totals map[[16]byte]*store.RunTotals
}

// NewStoreSink constructs a StoreSink for repo.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger, totals: make(map[[16]byte]*store.RunTotals)}
}

// Consume forwards batch to the repository and returns its first error. The
// hub calls Consume from a single goroutine.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		if err := s.consume(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) consume(ctx context.Context, evt progress.Event) error {
	runID := evt.RunUUID()
	totals := s.totalsFor(evt.RunID)
	switch evt.Stage {
	case progress.StageRunStart:
		if err := s.repo.StartRun(ctx, runID, evt.Scope, evt.TS); err != nil {
			return fmt.Errorf("start run: %w", err)
		}
	case progress.StageChunkStructured:
		totals.Structured++
	case progress.StageChunkRejected:
		totals.Rejected++
	case progress.StagePageSegmented:
		totals.Chunks += evt.Chunks
	case progress.StagePageMerged, progress.StagePageFailed:
		totals.Pages++
		state := "merged"
		if evt.Stage == progress.StagePageFailed {
			totals.Failed++
			state = "failed"
		}
		totals.Appended += evt.Appended
		totals.Updated += evt.Updated
		if err := s.repo.RecordPage(ctx, store.PageOutcome{
			RunID:      runID,
			URL:        evt.URL,
			State:      state,
			Chunks:     evt.Chunks,
			Structured: evt.Structured,
			Rejected:   evt.Rejected,
			Appended:   evt.Appended,
			Updated:    evt.Updated,
			Note:       evt.Note,
			At:         evt.TS,
		}); err != nil {
			return fmt.Errorf("record page: %w", err)
		}
	case progress.StageRunDone:
		status := store.RunSuccess
		var note *string
		if evt.Note != "" {
			status = store.RunError
			msg := evt.Note
			note = &msg
		}
		if err := s.repo.CompleteRun(ctx, runID, evt.TS, status, *totals, note); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
		delete(s.totals, evt.RunID)
	}
	return nil
}

func (s *StoreSink) totalsFor(id [16]byte) *store.RunTotals {
	t, ok := s.totals[id]
	if !ok {
		t = &store.RunTotals{}
		s.totals[id] = t
	}
	return t
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
