package reconcile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tour-ingest/internal/reconcile"
	"github.com/JakeFAU/tour-ingest/internal/tour"
)

func TestScoreWeightsDescriptionAndPrice(t *testing.T) {
	bare := tour.Row{"id": "a", "name": "Reef"}
	rich := tour.Row{"id": "a", "name": "Reef", "description": "Snorkel", "price_adult": "$99"}

	assert.Equal(t, 2, reconcile.Score(bare))
	assert.Equal(t, 4+5+2, reconcile.Score(rich))
}

func TestDedupeKeepsBestRowAtFirstPosition(t *testing.T) {
	table := tour.Table{
		Columns: []string{"id", "name", "description", "source_url"},
		Rows: []tour.Row{
			{"id": "1", "name": "Reef", "source_url": "https://example.com/reef"},
			{"id": "2", "name": "Sail", "source_url": "https://example.com/sail"},
			{"id": "3", "name": "Reef", "description": "Full day", "source_url": "https://EXAMPLE.com/reef/"},
		},
	}

	out, stats := reconcile.Dedupe(table, nil)

	require.Len(t, out.Rows, 2)
	assert.Equal(t, "3", out.Rows[0][tour.ColID])
	assert.Equal(t, "2", out.Rows[1][tour.ColID])
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 2, stats.Kept)
}

func TestDedupeTieKeepsFirst(t *testing.T) {
	table := tour.Table{
		Columns: []string{"id", "source_url"},
		Rows: []tour.Row{
			{"id": "first", "source_url": "https://example.com/a"},
			{"id": "second", "source_url": "https://example.com/a"},
		},
	}
	out, _ := reconcile.Dedupe(table, nil)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "first", out.Rows[0][tour.ColID])
}

func TestDedupeAllowList(t *testing.T) {
	table := tour.Table{
		Columns: []string{"id", "source_url"},
		Rows: []tour.Row{
			{"id": "a", "source_url": "https://example.com/a"},
			{"id": "b", "source_url": "https://example.com/b"},
			{"id": "c"},
		},
	}
	out, stats := reconcile.Dedupe(table, []string{"https://example.com/b/", ""})

	require.Len(t, out.Rows, 1)
	assert.Equal(t, "b", out.Rows[0][tour.ColID])
	assert.Equal(t, 2, stats.NotAllowed)
}

func TestDedupeKeepsUnlinkedRowsWithoutAllowList(t *testing.T) {
	table := tour.Table{
		Columns: []string{"id", "source_url"},
		Rows:    []tour.Row{{"id": "a"}, {"id": "b"}},
	}
	out, stats := reconcile.Dedupe(table, nil)
	assert.Len(t, out.Rows, 2)
	assert.Equal(t, 2, stats.UnlinkedRow)
}
