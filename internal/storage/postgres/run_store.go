package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/tour-ingest/internal/store"
)

const runSchema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id            UUID PRIMARY KEY,
	scope         TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	status        TEXT NOT NULL,
	error_message TEXT,
	pages         BIGINT NOT NULL DEFAULT 0,
	failed        BIGINT NOT NULL DEFAULT 0,
	chunks        BIGINT NOT NULL DEFAULT 0,
	structured    BIGINT NOT NULL DEFAULT 0,
	rejected      BIGINT NOT NULL DEFAULT 0,
	appended      BIGINT NOT NULL DEFAULT 0,
	updated       BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS pipeline_pages (
	run_id     UUID NOT NULL REFERENCES pipeline_runs(id),
	url        TEXT NOT NULL,
	state      TEXT NOT NULL,
	chunks     BIGINT NOT NULL,
	structured BIGINT NOT NULL,
	rejected   BIGINT NOT NULL,
	appended   BIGINT NOT NULL,
	updated    BIGINT NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	at         TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, url)
);`

// RunStore implements store.RunRepository.
type RunStore struct {
	pool pool
}

// NewRunStore wraps an open pool.
func NewRunStore(p pool) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: p}, nil
}

// Close releases the pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the ledger tables when missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, runSchema); err != nil {
		return fmt.Errorf("create run ledger schema: %w", err)
	}
	return nil
}

// StartRun records a running run. Repeated starts are ignored.
func (s *RunStore) StartRun(ctx context.Context, runID uuid.UUID, scope string, startedAt time.Time) error {
	query := `
		INSERT INTO pipeline_runs (id, scope, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;`
	if _, err := s.pool.Exec(ctx, query, runID, scope, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// CompleteRun stamps the final status and totals.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	totals store.RunTotals,
	errMsg *string,
) error {
	query := `
		UPDATE pipeline_runs
		SET finished_at = $1, status = $2, error_message = $3,
			pages = $4, failed = $5, chunks = $6, structured = $7,
			rejected = $8, appended = $9, updated = $10
		WHERE id = $11;`
	res, err := s.pool.Exec(ctx, query,
		finishedAt, string(status), errMsg,
		totals.Pages, totals.Failed, totals.Chunks, totals.Structured,
		totals.Rejected, totals.Appended, totals.Updated,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RecordPage upserts the terminal state of one page.
func (s *RunStore) RecordPage(ctx context.Context, page store.PageOutcome) error {
	query := `
		INSERT INTO pipeline_pages (run_id, url, state, chunks, structured, rejected, appended, updated, note, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, url) DO UPDATE
		SET state = EXCLUDED.state, chunks = EXCLUDED.chunks, structured = EXCLUDED.structured,
			rejected = EXCLUDED.rejected, appended = EXCLUDED.appended, updated = EXCLUDED.updated,
			note = EXCLUDED.note, at = EXCLUDED.at;`
	_, err := s.pool.Exec(ctx, query,
		page.RunID, page.URL, page.State,
		page.Chunks, page.Structured, page.Rejected, page.Appended, page.Updated,
		page.Note, page.At,
	)
	if err != nil {
		return fmt.Errorf("failed to record page: %w", err)
	}
	return nil
}

const runColumns = `id, scope, started_at, finished_at, status, error_message,
	pages, failed, chunks, structured, rejected, appended, updated`

// GetRun loads one run or returns store.ErrNotFound.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first. An empty scope lists every scope.
func (s *RunStore) ListRuns(ctx context.Context, scope string, limit, offset int) ([]store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs
		WHERE ($1 = '' OR scope = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	rows, err := s.pool.Query(ctx, query, scope, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		status string
	)
	err := row.Scan(
		&run.ID, &run.Scope, &run.StartedAt, &run.FinishedAt, &status, &run.ErrorMessage,
		&run.Totals.Pages, &run.Totals.Failed, &run.Totals.Chunks, &run.Totals.Structured,
		&run.Totals.Rejected, &run.Totals.Appended, &run.Totals.Updated,
	)
	if err != nil {
		return store.Run{}, err
	}
	run.Status = store.RunStatus(status)
	return run, nil
}
