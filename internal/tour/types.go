package tour

import "time"

// RawPage is one fetched document. It is consumed by the reducer right away.
type RawPage struct {
	SourceURL string
	FinalURL  string
	Document  string
	Rendered  bool
	FetchedAt time.Time
	Duration  time.Duration
}

// RawChunk is a span of text believed to describe one product.
type RawChunk struct {
	TitleHint string
	Text      string
}

// PageState tracks a page through the pipeline.
type PageState string

// Page lifecycle states.
const (
	StateFetched    PageState = "fetched"
	StateRendered   PageState = "rendered"
	StateReduced    PageState = "reduced"
	StateSegmented  PageState = "segmented"
	StateStructured PageState = "structured"
	StateRejected   PageState = "rejected"
	StateMerged     PageState = "merged"
	StateFailed     PageState = "failed"
)

// Terminal reports whether no further transition is expected.
func (s PageState) Terminal() bool {
	switch s {
	case StateMerged, StateRejected, StateFailed:
		return true
	}
	return false
}

// PriceHints carries pre-known or scraped pricing for a page.
type PriceHints struct {
	Adult string
	Child string
	Tiers string
	// Lines are raw price-bearing lines seen on the page.
	Lines []string
}

// Empty reports whether no hint is present.
func (h PriceHints) Empty() bool {
	return h.Adult == "" && h.Child == "" && h.Tiers == "" && len(h.Lines) == 0
}
