package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

func TestTableStoreIsolatesCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	seed := tour.Table{Columns: []string{"id", "name"}, Rows: []tour.Row{{"id": "a", "name": "Reef"}}}
	store := NewTableStore(seed)
	seed.Rows[0]["name"] = "mutated"

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Reef", got.Rows[0]["name"])

	got.Rows[0]["name"] = "Sunset"
	require.NoError(t, store.Save(ctx, got))
	got.Rows[0]["name"] = "later"

	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Sunset", again.Rows[0]["name"])
	assert.Equal(t, 1, store.Saves())
}

func TestTableStoreSaveError(t *testing.T) {
	t.Parallel()

	store := NewTableStore(tour.Table{})
	store.SaveErr = errors.New("disk full")
	assert.Error(t, store.Save(context.Background(), tour.Table{}))
	assert.Zero(t, store.Saves())
}
