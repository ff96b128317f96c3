package reconcile

import (
	"strings"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

// DedupeStats summarizes a cleanup pass.
type DedupeStats struct {
	Kept        int
	NotAllowed  int
	Duplicates  int
	UnlinkedRow int
}

// Score rates how complete a row is: one point per non-empty cell, five more
// for a description and two more for an adult price.
func Score(row tour.Row) int {
	score := 0
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			score++
		}
	}
	if strings.TrimSpace(row[tour.ColDescription]) != "" {
		score += 5
	}
	if strings.TrimSpace(row[tour.ColPriceAdult]) != "" {
		score += 2
	}
	return score
}

// Dedupe keeps the highest scoring row per canonical link; ties keep the
// earlier row. A non-empty allow list first drops every row whose canonical
// link is not listed. Rows without a link are kept unless an allow list is
// given. The surviving rows keep the position of their group's first row.
func Dedupe(t tour.Table, allow []string) (tour.Table, DedupeStats) {
	t = t.Normalize()
	var stats DedupeStats

	allowSet := make(map[string]struct{}, len(allow))
	for _, link := range allow {
		if strings.TrimSpace(link) == "" {
			continue
		}
		allowSet[tour.MustCanonicalURL(link)] = struct{}{}
	}

	type group struct {
		best  tour.Row
		score int
	}
	var (
		order  []string
		groups = make(map[string]*group)
		out    = tour.Table{Columns: t.Columns}
		slots  []tour.Row
	)
	for _, row := range t.Rows {
		link := rowLink(row)
		if link == "" {
			if len(allowSet) > 0 {
				stats.NotAllowed++
				continue
			}
			stats.UnlinkedRow++
			order = append(order, "")
			slots = append(slots, row)
			continue
		}
		key := tour.MustCanonicalURL(link)
		if len(allowSet) > 0 {
			if _, ok := allowSet[key]; !ok {
				stats.NotAllowed++
				continue
			}
		}
		score := Score(row)
		if g, ok := groups[key]; ok {
			stats.Duplicates++
			if score > g.score {
				g.best, g.score = row, score
			}
			continue
		}
		groups[key] = &group{best: row, score: score}
		order = append(order, key)
		slots = append(slots, nil)
	}

	for i, key := range order {
		if key == "" {
			out.Rows = append(out.Rows, slots[i])
			continue
		}
		out.Rows = append(out.Rows, groups[key].best)
	}
	stats.Kept = len(out.Rows)
	return out, stats
}
