package reconcile_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tour-ingest/internal/reconcile"
	"github.com/JakeFAU/tour-ingest/internal/storage/csvstore"
	"github.com/JakeFAU/tour-ingest/internal/tour"
)

func record(id, url, name string) tour.Record {
	return tour.Record{
		ID:        id,
		SourceURL: url,
		Name:      tour.Known(name),
		Classification: tour.Classification{
			DurationCategory: tour.DurationFullDay,
			TourType:         tour.TypeWater,
			Locations:        []string{"Whitehaven Beach"},
			Audience:         tour.AudienceGeneral,
			IntensityLevel:   tour.IntensityModerate,
		},
	}
}

func TestMergeIntoEmptyTableAppendsInOrder(t *testing.T) {
	out, stats := reconcile.Merge(tour.Table{}, []tour.Record{
		record("b", "https://example.com/b", "Bravo"),
		record("a", "https://example.com/a", "Alpha"),
	})

	assert.Equal(t, tour.CanonicalColumns(nil), out.Columns)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "b", out.Rows[0][tour.ColID])
	assert.Equal(t, "Alpha", out.Rows[1][tour.ColName])
	assert.Equal(t, "Whitehaven Beach", out.Rows[1][tour.ColLocations])
	assert.Equal(t, reconcile.MatchByID, stats.Mode)
	assert.Equal(t, 2, stats.Appended)
}

func TestMergePreservesExternalAndUnknownColumns(t *testing.T) {
	existing := tour.Table{
		Columns: []string{"id", "name", "description", "image_url", "review_rating", "partner_notes"},
		Rows: []tour.Row{{
			"id":            "x",
			"name":          "Old name",
			"description":   "Kept description",
			"image_url":     "https://cdn.example.com/x.jpg",
			"review_rating": "4.8",
			"partner_notes": "call ahead",
		}},
	}
	fresh := record("x", "https://example.com/x", "New name")
	fresh.Description = tour.Unknown()
	fresh.PriceChild = tour.Known("")

	out, stats := reconcile.Merge(existing, []tour.Record{fresh})

	require.Len(t, out.Rows, 1)
	row := out.Rows[0]
	assert.Equal(t, "New name", row[tour.ColName])
	assert.Equal(t, "Kept description", row[tour.ColDescription])
	assert.Equal(t, "", row[tour.ColPriceChild])
	assert.Equal(t, "https://cdn.example.com/x.jpg", row["image_url"])
	assert.Equal(t, "4.8", row["review_rating"])
	assert.Equal(t, "call ahead", row["partner_notes"])
	assert.Equal(t, "partner_notes", out.Columns[len(out.Columns)-1])
	assert.Equal(t, 1, stats.Updated)
	assert.Zero(t, stats.Untouched)
}

func TestMergeKnownEmptyClearsButUnknownKeeps(t *testing.T) {
	existing := tour.Table{
		Columns: []string{"id", "menu", "itinerary"},
		Rows:    []tour.Row{{"id": "x", "menu": "Prawns", "itinerary": "9am depart"}},
	}
	fresh := record("x", "https://example.com/x", "Reef")
	fresh.Menu = tour.Known("")

	out, _ := reconcile.Merge(existing, []tour.Record{fresh})
	assert.Equal(t, "", out.Rows[0][tour.ColMenu])
	assert.Equal(t, "9am depart", out.Rows[0][tour.ColItinerary])
}

func TestMergeFallsBackToCanonicalURL(t *testing.T) {
	existing := tour.Table{
		Columns: []string{"id", "name", "source_url", "active"},
		Rows: []tour.Row{
			{"id": "legacy-1", "name": "Old", "source_url": "HTTPS://Example.com/tours/reef/?utm_source=x", "active": "yes"},
			{"id": "legacy-2", "name": "Other", "source_url": "https://example.com/tours/other"},
		},
	}

	out, stats := reconcile.Merge(existing, []tour.Record{
		record("fresh-1", "https://example.com/tours/reef", "Reef Day"),
	})

	assert.Equal(t, reconcile.MatchByURL, stats.Mode)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "fresh-1", out.Rows[0][tour.ColID])
	assert.Equal(t, "Reef Day", out.Rows[0][tour.ColName])
	assert.Equal(t, "yes", out.Rows[0]["active"])
	assert.Equal(t, "legacy-2", out.Rows[1][tour.ColID])
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.Untouched)
}

func TestMergeLegacyLinkColumnMatches(t *testing.T) {
	existing := tour.Table{
		Columns: []string{"id", "name", "link_booking"},
		Rows:    []tour.Row{{"id": "old", "name": "Old", "link_booking": "https://example.com/reef"}},
	}
	out, stats := reconcile.Merge(existing, []tour.Record{record("new", "https://example.com/reef", "Reef")})

	assert.Equal(t, reconcile.MatchByURL, stats.Mode)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "new", out.Rows[0][tour.ColID])
}

func TestMergeAmbiguousURLAppends(t *testing.T) {
	existing := tour.Table{
		Columns: []string{"id", "source_url"},
		Rows: []tour.Row{
			{"id": "one", "source_url": "https://example.com/reef"},
			{"id": "two", "source_url": "https://example.com/reef/"},
		},
	}
	out, stats := reconcile.Merge(existing, []tour.Record{record("three", "https://example.com/reef", "Reef")})

	require.Len(t, out.Rows, 3)
	assert.Equal(t, "one", out.Rows[0][tour.ColID])
	assert.Equal(t, "two", out.Rows[1][tour.ColID])
	assert.Equal(t, "three", out.Rows[2][tour.ColID])
	assert.Equal(t, 1, stats.Ambiguous)
	assert.Equal(t, 1, stats.Appended)
}

func TestMergeSharedPageURLClaimsOnce(t *testing.T) {
	existing := tour.Table{
		Columns: []string{"id", "source_url"},
		Rows:    []tour.Row{{"id": "old", "source_url": "https://example.com/tours"}},
	}
	out, stats := reconcile.Merge(existing, []tour.Record{
		record("first", "https://example.com/tours", "First"),
		record("second", "https://example.com/tours", "Second"),
	})

	require.Len(t, out.Rows, 2)
	assert.Equal(t, "first", out.Rows[0][tour.ColID])
	assert.Equal(t, "second", out.Rows[1][tour.ColID])
	assert.Equal(t, 1, stats.Ambiguous)
}

func TestMergeFirstIncomingWinsAndFirstStoredWins(t *testing.T) {
	existing := tour.Table{
		Columns: []string{"id", "name"},
		Rows: []tour.Row{
			{"id": "x", "name": "first stored"},
			{"id": "x", "name": "second stored"},
		},
	}
	out, stats := reconcile.Merge(existing, []tour.Record{
		record("x", "https://example.com/x", "winner"),
		record("x", "https://example.com/x", "loser"),
	})

	require.Len(t, out.Rows, 2)
	assert.Equal(t, "winner", out.Rows[0][tour.ColName])
	assert.Equal(t, "second stored", out.Rows[1][tour.ColName])
	assert.Equal(t, 1, stats.Duplicates)
}

func TestMergeIsIdempotent(t *testing.T) {
	existing := tour.Table{
		Columns: []string{"id", "name", "source_url", "review_count", "extra"},
		Rows: []tour.Row{
			{"id": "legacy", "name": "Old", "source_url": "https://example.com/a", "review_count": "12", "extra": "e"},
		},
	}
	fresh := []tour.Record{
		record("a1", "https://example.com/a", "Alpha"),
		record("b1", "https://example.com/b", "Bravo"),
	}

	once, _ := reconcile.Merge(existing, fresh)
	twice, stats := reconcile.Merge(once, fresh)

	var first, second bytes.Buffer
	require.NoError(t, csvstore.Encode(&first, once))
	require.NoError(t, csvstore.Encode(&second, twice))
	assert.Equal(t, first.String(), second.String())
	assert.Equal(t, reconcile.MatchByID, stats.Mode)
	assert.Zero(t, stats.Appended)

	reloaded, err := csvstore.Decode(&first)
	require.NoError(t, err)
	thrice, _ := reconcile.Merge(reloaded, fresh)
	var third bytes.Buffer
	require.NoError(t, csvstore.Encode(&third, thrice))
	assert.Equal(t, second.String(), third.String())
}

func TestMergeTablesIgnoresEmptyCells(t *testing.T) {
	existing := tour.Table{
		Columns: []string{"id", "name", "description"},
		Rows:    []tour.Row{{"id": "x", "name": "Old", "description": "Stored"}},
	}
	fresh := tour.Table{
		Columns: []string{"id", "name", "description", "image_url"},
		Rows: []tour.Row{
			{"id": "x", "name": "New", "description": "", "image_url": "ignored-on-update"},
			{"id": "y", "name": "Added", "image_url": "https://cdn.example.com/y.jpg"},
		},
	}

	out, stats := reconcile.MergeTables(existing, fresh)

	require.Len(t, out.Rows, 2)
	assert.Equal(t, "New", out.Rows[0][tour.ColName])
	assert.Equal(t, "Stored", out.Rows[0][tour.ColDescription])
	assert.Equal(t, "", out.Rows[0]["image_url"])
	assert.Equal(t, "https://cdn.example.com/y.jpg", out.Rows[1]["image_url"])
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.Appended)
}
