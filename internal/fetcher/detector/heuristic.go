// Package detector decides when a statically fetched page must be promoted
// to the headless renderer.
package detector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/tour-ingest/internal/pricehint"
	"github.com/JakeFAU/tour-ingest/internal/tour"
)

// Heuristic implements rule-based promotion.
type Heuristic struct {
	// ScriptShare is the percentage of the document covered by <script>
	// elements at or above which a page counts as mostly script.
	ScriptShare int
}

// NewHeuristic creates a detector. A zero share defaults to 25%.
func NewHeuristic(scriptShare int) *Heuristic {
	if scriptShare <= 0 {
		scriptShare = 25
	}
	return &Heuristic{ScriptShare: scriptShare}
}

var spaMarkers = []string{
	`id="__next"`,
	`id="__nuxt"`,
	`id="root"`,
	`id="app"`,
	"data-reactroot",
	"ng-version",
}

// ShouldPromote reports whether page needs rendering: it is empty, carries
// no price indicator, looks like a single-page app shell, or is mostly script.
func (h *Heuristic) ShouldPromote(page tour.RawPage) bool {
	doc := page.Document
	if strings.TrimSpace(doc) == "" {
		return true
	}
	if pricehint.FirstPrice(visibleText(doc)) == "" {
		return true
	}
	lower := strings.ToLower(doc)
	for _, marker := range spaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return scriptShare(lower) >= h.ScriptShare
}

// visibleText drops script, style and template bodies so that code such as
// regexp replacements ("$1") is not mistaken for a price.
func visibleText(document string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return document
	}
	doc.Find("script, style, noscript, template").Remove()
	return doc.Text()
}

// scriptShare returns the percentage of lower covered by script elements.
func scriptShare(lower string) int {
	total := len(lower)
	if total == 0 {
		return 0
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			covered += total - start
			break
		}
		contentStart := start + tagClose + 1

		relEnd := strings.Index(lower[contentStart:], closeTag)
		next := total
		if relEnd != -1 {
			next = contentStart + relEnd + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered * 100 / total
}
