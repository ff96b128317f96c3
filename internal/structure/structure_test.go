package structure

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tour-ingest/internal/backoff"
	"github.com/JakeFAU/tour-ingest/internal/llm"
	"github.com/JakeFAU/tour-ingest/internal/tour"
)

type fakeCompleter struct {
	responses []string
	errs      []error
	prompts   []string
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	i := len(f.prompts)
	f.prompts = append(f.prompts, req.Prompt)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

type noPause struct{}

func (noPause) Pause(context.Context, time.Duration) error { return nil }

const reefResponse = `Here you go:
{"is_it_a_real_offering": true, "name": "Reef Explorer",
 "description": "Snorkel the outer reef with the family.",
 "price_adult": "$149", "price_child": "$79", "duration": "Half Day",
 "times": "8:00am - 12:30pm", "departure_location": "Airlie Beach",
 "includes": ["Snorkel gear", "Lunch"], "highlights": null, "itinerary": null,
 "menu": null, "age_requirements": null, "ideal_for": null, "price_tiers": null}`

func newTestStructurer(t *testing.T, c llm.Completer, cfg Config) *Structurer {
	t.Helper()
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = backoff.Fixed("structure", 3, 0)
	}
	s, err := New(c, noPause{}, cfg, nil)
	require.NoError(t, err)
	return s
}

func TestStructureBuildsClassifiedRecord(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{responses: []string{reefResponse}}
	s := newTestStructurer(t, c, Config{})

	res, err := s.Structure(context.Background(), Input{
		Scope:     "reefco",
		SourceURL: "https://reefco.example/tours/reef",
		Chunk:     tour.RawChunk{TitleHint: "Reef Explorer", Text: "Departs Airlie Beach. Visit Whitehaven and the reef."},
		Hints:     tour.PriceHints{Adult: "$149"},
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeIncluded, res.Outcome)

	rec := res.Record
	assert.Equal(t, tour.RecordID("reefco", "https://reefco.example/tours/reef", "Reef Explorer"), rec.ID)
	assert.Equal(t, "https://reefco.example/tours/reef", rec.SourceURL)
	assert.Equal(t, "Reef Explorer", rec.Name.String())
	assert.Equal(t, "8:00am - 12:30pm", rec.DepartureTimes.String())
	assert.Equal(t, "Snorkel gear\nLunch", rec.Includes.String())
	assert.False(t, rec.Highlights.IsKnown())
	assert.Equal(t, tour.DurationHalfDay, rec.DurationCategory)
	assert.Equal(t, "3.5", rec.DurationHours)
	assert.Equal(t, tour.TypeWater, rec.TourType)
	assert.Equal(t, []string{"Airlie Beach", "Whitehaven"}, rec.Locations)
	assert.Equal(t, tour.AudienceFamily, rec.Audience)

	require.Len(t, c.prompts, 1)
	assert.Contains(t, c.prompts[0], "PAGE TITLE HINT: Reef Explorer")
	assert.Contains(t, c.prompts[0], "- Adult: $149")
	assert.Contains(t, c.prompts[0], KeyOffering)
}

func TestStructureGate(t *testing.T) {
	t.Parallel()

	resp := `{"is_it_a_real_offering": false, "name": "Our blog"}`
	in := Input{Scope: "s", SourceURL: "https://x.example/blog", Chunk: tour.RawChunk{Text: "blog"}}

	res, err := newTestStructurer(t, &fakeCompleter{responses: []string{resp}}, Config{}).Structure(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, OutcomeNotOffering, res.Outcome)

	in.Rules.ForceInclude = true
	res, err = newTestStructurer(t, &fakeCompleter{responses: []string{resp}}, Config{}).Structure(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, OutcomeIncluded, res.Outcome)
}

func TestStructureRejectsUnparsableResponse(t *testing.T) {
	t.Parallel()

	s := newTestStructurer(t, &fakeCompleter{responses: []string{"Sorry, I can't do that."}}, Config{})
	_, err := s.Structure(context.Background(), Input{SourceURL: "https://x.example/a", Chunk: tour.RawChunk{Text: "t"}})
	require.Error(t, err)
	require.True(t, tour.IsStructureError(err))
	require.ErrorIs(t, err, tour.ErrNoPayload)
}

func TestStructureRetriesServiceFailures(t *testing.T) {
	t.Parallel()

	transient := errors.New("503")
	c := &fakeCompleter{errs: []error{transient, transient}, responses: []string{"", "", reefResponse}}
	res, err := newTestStructurer(t, c, Config{}).Structure(context.Background(), Input{
		SourceURL: "https://x.example/a",
		Chunk:     tour.RawChunk{Text: "reef"},
	})
	require.NoError(t, err)
	require.Len(t, c.prompts, 3)
	require.Equal(t, "Reef Explorer", res.Record.Name.String())
}

func TestStructureGivesUpAfterPolicy(t *testing.T) {
	t.Parallel()

	transient := errors.New("timeout")
	c := &fakeCompleter{errs: []error{transient, transient, transient}, responses: []string{""}}
	_, err := newTestStructurer(t, c, Config{}).Structure(context.Background(), Input{
		SourceURL: "https://x.example/a",
		Chunk:     tour.RawChunk{Text: "reef"},
	})
	require.ErrorIs(t, err, transient)
	require.True(t, tour.IsStructureError(err))
	require.Len(t, c.prompts, 3)
}

func TestStructureBoundsChunkAndFallsBackToTitle(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{responses: []string{`{"is_it_a_real_offering": true, "name": null}`}}
	s := newTestStructurer(t, c, Config{MaxChunkChars: 10})
	res, err := s.Structure(context.Background(), Input{
		SourceURL: "https://x.example/a",
		PageTitle: "Sunset Sail",
		Chunk:     tour.RawChunk{Text: "0123456789ABCDEFGHIJ"},
	})
	require.NoError(t, err)
	require.True(t, res.Truncated)
	require.Equal(t, "Sunset Sail", res.Record.Name.String())
	require.True(t, strings.Contains(c.prompts[0], "0123456789\n>>>"))
	require.NotContains(t, c.prompts[0], "ABCDEFGHIJ")
}
