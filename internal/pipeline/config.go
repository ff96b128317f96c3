package pipeline

import (
	"fmt"
	"time"

	"github.com/JakeFAU/tour-ingest/internal/structure"
	"github.com/JakeFAU/tour-ingest/internal/tour"
)

// Mode selects how pages are fetched.
type Mode string

// Fetch modes.
const (
	// ModeAuto probes statically and promotes to the renderer when the
	// detector asks for it.
	ModeAuto Mode = "auto"
	// ModeStatic never renders.
	ModeStatic Mode = "static"
	// ModeRender renders every page.
	ModeRender Mode = "render"
)

// Config controls one run.
type Config struct {
	Scope string
	Mode  Mode

	// PageDelayMin and PageDelayMax bound the courtesy pause between pages.
	PageDelayMin time.Duration
	PageDelayMax time.Duration
	// LLMDelayMin and LLMDelayMax bound the pause between model calls.
	LLMDelayMin time.Duration
	LLMDelayMax time.Duration

	// Topic receives a merge notification per page. Empty disables publishing.
	Topic string
	// SnapshotContentType is stored alongside archived documents.
	SnapshotContentType string

	Rules structure.Rules
	// PriceHints are operator-supplied hints keyed by canonical page URL.
	PriceHints map[string]tour.PriceHints
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeAuto
	}
	if c.SnapshotContentType == "" {
		c.SnapshotContentType = "text/html; charset=utf-8"
	}
	if c.PageDelayMax < c.PageDelayMin {
		c.PageDelayMax = c.PageDelayMin
	}
	if c.LLMDelayMax < c.LLMDelayMin {
		c.LLMDelayMax = c.LLMDelayMin
	}
	return c
}

// Validate reports configuration the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Scope == "" {
		return fmt.Errorf("scope is required")
	}
	switch c.Mode {
	case ModeAuto, ModeStatic, ModeRender, "":
	default:
		return fmt.Errorf("unknown fetch mode %q", c.Mode)
	}
	if c.PageDelayMin < 0 || c.LLMDelayMin < 0 {
		return fmt.Errorf("delays must be >= 0")
	}
	return nil
}

func (c Config) hintsFor(pageURL string) tour.PriceHints {
	if len(c.PriceHints) == 0 {
		return tour.PriceHints{}
	}
	if h, ok := c.PriceHints[pageURL]; ok {
		return h
	}
	if canon, err := tour.CanonicalURL(pageURL); err == nil {
		return c.PriceHints[canon]
	}
	return tour.PriceHints{}
}
