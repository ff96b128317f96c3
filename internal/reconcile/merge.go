// Package reconcile merges freshly structured tour records into a durable
// tabular store without touching externally-owned columns.
package reconcile

import (
	"strings"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

// legacyLinkColumn is consulted when a stored row predates source_url.
const legacyLinkColumn = "link_booking"

// MatchMode is the key a merge matched on.
type MatchMode string

// Match modes.
const (
	MatchByID  MatchMode = "id"
	MatchByURL MatchMode = "url"
)

// Stats summarizes one merge.
type Stats struct {
	Mode     MatchMode
	Updated  int
	Appended int
	// Ambiguous counts fresh rows appended because their URL matched more
	// than one stored row, or another fresh row already claimed the match.
	Ambiguous int
	// Duplicates counts fresh rows dropped because an earlier fresh row had
	// the same identifier.
	Duplicates int
	// Untouched counts stored rows no fresh row matched.
	Untouched int
}

type incoming struct {
	id    string
	url   string
	cells map[string]tour.Field
	// passthrough holds external cells carried onto appended rows only.
	passthrough map[string]string
}

// Merge folds fresh records into existing. Rows are matched by identifier
// when the two identifier sets intersect, otherwise by canonical source URL.
// Only Known content fields overwrite stored cells; external columns and
// columns outside the partition are never written for matched rows.
// Applying Merge again with the same fresh records is a no-op.
func Merge(existing tour.Table, fresh []tour.Record) (tour.Table, Stats) {
	in := make([]incoming, 0, len(fresh))
	for _, rec := range fresh {
		in = append(in, incoming{id: rec.ID, url: rec.SourceURL, cells: rec.Cells()})
	}
	return merge(existing, in)
}

// MergeTables folds a fresh table into existing, as the standalone reconcile
// does. Empty fresh cells carry no opinion.
func MergeTables(existing, fresh tour.Table) (tour.Table, Stats) {
	in := make([]incoming, 0, len(fresh.Rows))
	for _, row := range fresh.Rows {
		item := incoming{
			id:          strings.TrimSpace(row[tour.KeyColumn]),
			url:         rowLink(row),
			cells:       make(map[string]tour.Field, len(tour.ContentColumns)+1),
			passthrough: make(map[string]string),
		}
		if item.id != "" {
			item.cells[tour.KeyColumn] = tour.Known(item.id)
		}
		for _, col := range tour.ContentColumns {
			item.cells[col] = tour.FromCell(row[col])
		}
		for _, col := range tour.ExternalColumns {
			if v := row[col]; v != "" {
				item.passthrough[col] = v
			}
		}
		in = append(in, item)
	}
	return merge(existing, in)
}

func merge(existing tour.Table, fresh []incoming) (tour.Table, Stats) {
	out := existing.Normalize()
	var stats Stats

	fresh = dedupeByID(fresh, &stats)

	byID := make(map[string][]int)
	for i, row := range out.Rows {
		if id := strings.TrimSpace(row[tour.KeyColumn]); id != "" {
			byID[id] = append(byID[id], i)
		}
	}
	stats.Mode = MatchByID
	if len(out.Rows) > 0 && !intersects(byID, fresh) {
		stats.Mode = MatchByURL
	}

	touched := make(map[int]struct{})
	switch stats.Mode {
	case MatchByID:
		for _, item := range fresh {
			if idx, ok := byID[item.id]; ok && item.id != "" {
				update(out.Rows[idx[0]], item, false)
				touched[idx[0]] = struct{}{}
				stats.Updated++
				continue
			}
			out.Rows = appendRow(out, item)
			stats.Appended++
		}
	case MatchByURL:
		byURL := make(map[string][]int)
		for i, row := range out.Rows {
			if link := rowLink(row); link != "" {
				key := tour.MustCanonicalURL(link)
				byURL[key] = append(byURL[key], i)
			}
		}
		for _, item := range fresh {
			key := tour.MustCanonicalURL(item.url)
			idx := byURL[key]
			switch {
			case item.url == "" || len(idx) == 0:
				out.Rows = appendRow(out, item)
				stats.Appended++
			case len(idx) > 1 || claimed(touched, idx[0]):
				out.Rows = appendRow(out, item)
				stats.Appended++
				stats.Ambiguous++
			default:
				update(out.Rows[idx[0]], item, true)
				touched[idx[0]] = struct{}{}
				stats.Updated++
			}
		}
	}
	stats.Untouched = len(existing.Rows) - len(touched)
	return out, stats
}

func dedupeByID(fresh []incoming, stats *Stats) []incoming {
	seen := make(map[string]struct{}, len(fresh))
	out := make([]incoming, 0, len(fresh))
	for _, item := range fresh {
		if item.id != "" {
			if _, ok := seen[item.id]; ok {
				stats.Duplicates++
				continue
			}
			seen[item.id] = struct{}{}
		}
		out = append(out, item)
	}
	return out
}

func intersects(byID map[string][]int, fresh []incoming) bool {
	for _, item := range fresh {
		if _, ok := byID[item.id]; ok && item.id != "" {
			return true
		}
	}
	return false
}

func claimed(touched map[int]struct{}, idx int) bool {
	_, ok := touched[idx]
	return ok
}

// update refreshes content cells of row. The identifier is rewritten only on
// URL matches, where the scheme that produced the stored id changed.
func update(row tour.Row, item incoming, adoptID bool) {
	for col, f := range item.cells {
		if col == tour.KeyColumn {
			if adoptID && item.id != "" {
				row[col] = item.id
			}
			continue
		}
		if !tour.IsContent(col) || !f.IsKnown() {
			continue
		}
		row[col] = f.String()
	}
}

func appendRow(t tour.Table, item incoming) []tour.Row {
	row := make(tour.Row, len(t.Columns))
	for _, col := range t.Columns {
		row[col] = ""
	}
	row[tour.KeyColumn] = item.id
	for col, f := range item.cells {
		if tour.IsContent(col) && f.IsKnown() {
			row[col] = f.String()
		}
	}
	for col, v := range item.passthrough {
		if tour.IsExternal(col) {
			row[col] = v
		}
	}
	return append(t.Rows, row)
}

func rowLink(row tour.Row) string {
	if link := strings.TrimSpace(row[tour.ColSourceURL]); link != "" {
		return link
	}
	return strings.TrimSpace(row[legacyLinkColumn])
}
