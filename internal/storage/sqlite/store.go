// Package sqlite persists the reconciled tour table in a SQLite file.
//
// The column declaration and rows are stored in order, so a round trip
// reproduces the table exactly, unknown columns included.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

const schema = `
CREATE TABLE IF NOT EXISTS table_columns (
	position INTEGER PRIMARY KEY,
	name     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS table_rows (
	position INTEGER PRIMARY KEY,
	row_id   TEXT NOT NULL DEFAULT '',
	cells    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_table_rows_row_id ON table_rows(row_id);
`

// Config captures the SQLite store parameters.
type Config struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Store is a tour.TableStore backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (creating if needed) the database at cfg.Path.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, path: cfg.Path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the whole table in stored order.
func (s *Store) Load(ctx context.Context) (tour.Table, error) {
	var t tour.Table

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM table_columns ORDER BY position`)
	if err != nil {
		return tour.Table{}, fmt.Errorf("querying columns: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return tour.Table{}, fmt.Errorf("scanning column: %w", err)
		}
		t.Columns = append(t.Columns, name)
	}
	if err := closeRows(rows); err != nil {
		return tour.Table{}, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT cells FROM table_rows ORDER BY position`)
	if err != nil {
		return tour.Table{}, fmt.Errorf("querying rows: %w", err)
	}
	for rows.Next() {
		var cells string
		if err := rows.Scan(&cells); err != nil {
			_ = rows.Close()
			return tour.Table{}, fmt.Errorf("scanning row: %w", err)
		}
		row := make(tour.Row)
		if err := json.Unmarshal([]byte(cells), &row); err != nil {
			_ = rows.Close()
			return tour.Table{}, fmt.Errorf("decoding row: %w", err)
		}
		t.Rows = append(t.Rows, row)
	}
	if err := closeRows(rows); err != nil {
		return tour.Table{}, err
	}
	return t, nil
}

// Save replaces the stored table inside one transaction.
func (s *Store) Save(ctx context.Context, t tour.Table) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM table_columns`); err != nil {
		return fmt.Errorf("clearing columns: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM table_rows`); err != nil {
		return fmt.Errorf("clearing rows: %w", err)
	}
	for i, col := range t.Columns {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO table_columns (position, name) VALUES (?, ?)`, i, col); err != nil {
			return fmt.Errorf("inserting column %q: %w", col, err)
		}
	}
	for i, row := range t.Rows {
		cells := make(map[string]string, len(t.Columns))
		for _, col := range t.Columns {
			cells[col] = row[col]
		}
		payload, mErr := json.Marshal(cells)
		if mErr != nil {
			err = mErr
			return fmt.Errorf("encoding row %d: %w", i, err)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO table_rows (position, row_id, cells) VALUES (?, ?, ?)`,
			i, row[tour.KeyColumn], string(payload)); err != nil {
			return fmt.Errorf("inserting row %d: %w", i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("iterating rows: %w", err)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("closing rows: %w", err)
	}
	return nil
}
