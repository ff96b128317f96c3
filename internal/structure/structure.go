// Package structure converts raw text chunks into validated tour records via
// a language model extraction contract, then classifies them by rule.
package structure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tour-ingest/internal/backoff"
	"github.com/JakeFAU/tour-ingest/internal/classify"
	"github.com/JakeFAU/tour-ingest/internal/llm"
	"github.com/JakeFAU/tour-ingest/internal/tour"
)

const (
	defaultMaxChunkChars = 8000
	defaultMaxTokens     = 2000
	defaultTimeout       = 30 * time.Second
)

// Config tunes the Structurer.
type Config struct {
	MaxChunkChars int
	MaxTokens     int
	Temperature   float32
	// Timeout bounds each model round trip.
	Timeout time.Duration
	Policy  backoff.Policy
}

// Rules are the per-scope overrides applied to a chunk.
type Rules struct {
	// ForceInclude keeps every parsed chunk regardless of the offering flag.
	ForceInclude bool
	// Locations extends the landmark gazetteer.
	Locations []string
}

// Input is one chunk to structure.
type Input struct {
	Scope     string
	SourceURL string
	PageTitle string
	Chunk     tour.RawChunk
	Hints     tour.PriceHints
	Rules     Rules
}

// Outcome says what happened to a chunk that parsed.
type Outcome string

// Outcomes of a successfully parsed chunk.
const (
	OutcomeIncluded    Outcome = "included"
	OutcomeNotOffering Outcome = "not_offering"
)

// Result is the structured chunk.
type Result struct {
	Record  tour.Record
	Outcome Outcome
	// Ambiguous is set when the response held more than one object.
	Ambiguous bool
	// Truncated is set when the chunk exceeded MaxChunkChars.
	Truncated bool
}

// Structurer turns chunks into records.
type Structurer struct {
	completer llm.Completer
	pauser    backoff.Pauser
	cfg       Config
	logger    *zap.Logger
}

// New builds a Structurer. A nil pauser uses real timers.
func New(completer llm.Completer, pauser backoff.Pauser, cfg Config, logger *zap.Logger) (*Structurer, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = defaultMaxChunkChars
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = backoff.Fixed("structure", 3, 2*time.Second)
	}
	if pauser == nil {
		pauser = backoff.TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Structurer{completer: completer, pauser: pauser, cfg: cfg, logger: logger}, nil
}

// Structure sends one chunk through the extraction contract. Any service,
// parse or contract failure is returned as a *tour.StructureError and the
// chunk must be treated as rejected.
func (s *Structurer) Structure(ctx context.Context, in Input) (Result, error) {
	titleHint := in.Chunk.TitleHint
	if titleHint == "" {
		titleHint = in.PageTitle
	}
	text, truncated := boundText(in.Chunk.Text, s.cfg.MaxChunkChars)
	prompt := BuildPrompt(PromptInput{
		SourceURL: in.SourceURL,
		TitleHint: titleHint,
		Hints:     in.Hints,
		Text:      text,
	})

	reject := func(err error) (Result, error) {
		return Result{}, &tour.StructureError{SourceURL: in.SourceURL, TitleHint: titleHint, Err: err}
	}

	var resp string
	err := s.cfg.Policy.Do(ctx, s.pauser, func(ctx context.Context, attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		out, err := s.completer.Complete(callCtx, llm.Request{
			System:      systemPrompt,
			Prompt:      prompt,
			MaxTokens:   s.cfg.MaxTokens,
			Temperature: s.cfg.Temperature,
		})
		if err != nil {
			s.logger.Debug("completion attempt failed",
				zap.String("url", in.SourceURL),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		resp = out
		return nil
	})
	if err != nil {
		return reject(err)
	}

	payload, err := ExtractPayload(resp)
	if err != nil {
		return reject(err)
	}
	if payload.Ambiguous() {
		s.logger.Warn("response carried several structured objects; using the first",
			zap.String("url", in.SourceURL),
			zap.String("title_hint", titleHint),
			zap.Int("candidates", payload.Candidates),
		)
	}
	decoded, err := Decode(payload.Raw)
	if err != nil {
		return reject(err)
	}

	res := Result{
		Record:    s.buildRecord(in, titleHint, text, decoded),
		Outcome:   OutcomeIncluded,
		Ambiguous: payload.Ambiguous(),
		Truncated: truncated,
	}
	if !decoded.Offering && !in.Rules.ForceInclude {
		res.Outcome = OutcomeNotOffering
	}
	return res, nil
}

func (s *Structurer) buildRecord(in Input, titleHint, text string, d Decoded) tour.Record {
	f := d.Fields
	rec := tour.Record{
		ID:                tour.RecordID(in.Scope, in.SourceURL, titleHint),
		Scope:             in.Scope,
		SourceURL:         in.SourceURL,
		Name:              f[KeyName],
		Description:       f[KeyDescription],
		PriceAdult:        f[KeyPriceAdult],
		PriceChild:        f[KeyPriceChild],
		PriceTiers:        f[KeyPriceTiers],
		Duration:          f[KeyDuration],
		DepartureTimes:    f[KeyTimes],
		DepartureLocation: f[KeyDepartureLocation],
		Includes:          f[KeyIncludes],
		Highlights:        f[KeyHighlights],
		Itinerary:         f[KeyItinerary],
		Menu:              f[KeyMenu],
		AgeRequirements:   f[KeyAgeRequirements],
		IdealFor:          f[KeyIdealFor],
	}
	if (!rec.Name.IsKnown() || rec.Name.Empty()) && titleHint != "" {
		rec.Name = tour.Known(titleHint)
	}

	combined := strings.Join([]string{
		rec.Name.String(),
		rec.Description.String(),
		rec.Includes.String(),
		rec.Highlights.String(),
		text,
	}, "\n")
	rec.Classification = classify.New(in.Rules.Locations...).Classify(
		rec.Duration.String(),
		combined,
		rec.PriceChild.String(),
	)
	return rec
}
