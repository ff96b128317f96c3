package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

// TableStore keeps one scope's table in memory.
type TableStore struct {
	mu    sync.RWMutex
	table tour.Table
	saves int
	// SaveErr, when set, is returned by every Save.
	SaveErr error
}

// NewTableStore returns a store seeded with a copy of initial.
func NewTableStore(initial tour.Table) *TableStore {
	return &TableStore{table: initial.Clone()}
}

// Load returns a deep copy of the stored table.
func (s *TableStore) Load(_ context.Context) (tour.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Clone(), nil
}

// Save replaces the stored table with a copy of t.
func (s *TableStore) Save(_ context.Context, t tour.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.table = t.Clone()
	s.saves++
	return nil
}

// Saves counts successful saves.
func (s *TableStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
