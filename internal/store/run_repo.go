package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the pipeline_runs.status column.
type RunStatus string

// Run statuses.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run is one pipeline_runs row.
type Run struct {
	ID           uuid.UUID
	Scope        string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       RunStatus
	ErrorMessage *string
	Totals       RunTotals
}

// RunTotals are the end-of-run counters.
type RunTotals struct {
	Pages      int64 `json:"pages"`
	Failed     int64 `json:"failed"`
	Chunks     int64 `json:"chunks"`
	Structured int64 `json:"structured"`
	Rejected   int64 `json:"rejected"`
	Appended   int64 `json:"appended"`
	Updated    int64 `json:"updated"`
}

// PageOutcome is one pipeline_pages row: the terminal state of a page.
type PageOutcome struct {
	RunID      uuid.UUID
	URL        string
	State      string
	Chunks     int64
	Structured int64
	Rejected   int64
	Appended   int64
	Updated    int64
	Note       string
	At         time.Time
}

// Snapshot is one archived page document.
type Snapshot struct {
	RunID     uuid.UUID
	URL       string
	FinalURL  string
	Hash      string
	BlobURI   string
	Rendered  bool
	Bytes     int64
	FetchedAt time.Time
}

// RunRepository persists the run ledger.
type RunRepository interface {
	StartRun(ctx context.Context, runID uuid.UUID, scope string, startedAt time.Time) error
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, totals RunTotals, errMsg *string) error
	RecordPage(ctx context.Context, page PageOutcome) error
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	ListRuns(ctx context.Context, scope string, limit, offset int) ([]Run, error)
}

// SnapshotRecorder indexes archived documents.
type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, snap Snapshot) error
}
