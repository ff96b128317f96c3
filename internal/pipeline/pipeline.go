// Package pipeline runs the sequential fetch, reduce, structure and merge
// loop over a list of tour pages.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/tour-ingest/internal/backoff"
	"github.com/JakeFAU/tour-ingest/internal/pricehint"
	"github.com/JakeFAU/tour-ingest/internal/progress"
	"github.com/JakeFAU/tour-ingest/internal/reconcile"
	"github.com/JakeFAU/tour-ingest/internal/reduce"
	"github.com/JakeFAU/tour-ingest/internal/segment"
	"github.com/JakeFAU/tour-ingest/internal/store"
	"github.com/JakeFAU/tour-ingest/internal/structure"
	"github.com/JakeFAU/tour-ingest/internal/tour"
)

var tracer = otel.Tracer("github.com/JakeFAU/tour-ingest/internal/pipeline")

// Structurer turns one chunk into a record.
type Structurer interface {
	Structure(ctx context.Context, in structure.Input) (structure.Result, error)
}

// Reducer turns a document into prompt-sized text.
type Reducer interface {
	Reduce(document string) (reduce.Result, error)
}

// Deps are the collaborators of a Pipeline. Probe, Renderer, Detector,
// Blobs, Snapshots, Publisher and Progress are optional.
type Deps struct {
	Probe      tour.Fetcher
	Renderer   tour.Renderer
	Detector   tour.PromotionDetector
	Reducer    Reducer
	Structurer Structurer
	Store      tour.TableStore
	Blobs      tour.BlobStore
	Snapshots  store.SnapshotRecorder
	Publisher  tour.Publisher
	Hasher     tour.Hasher
	Clock      tour.Clock
	IDs        tour.IDGenerator
	Pauser     backoff.Pauser
	Progress   progress.Emitter
}

// Summary holds the end-of-run counters.
type Summary struct {
	RunID             string
	Pages             int
	Failed            int
	Chunks            int
	Structured        int
	Rejected          int
	AmbiguousPayloads int
	Appended          int
	Updated           int
	MergeAmbiguities  int
	Canceled          bool
	Elapsed           time.Duration
}

// Pipeline processes pages one at a time.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and cfg.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if deps.Structurer == nil || deps.Store == nil || deps.Reducer == nil {
		return nil, errors.New("structurer, reducer and store are required")
	}
	switch cfg.Mode {
	case ModeStatic:
		if deps.Probe == nil {
			return nil, errors.New("static mode requires a probe fetcher")
		}
	case ModeRender:
		if deps.Renderer == nil {
			return nil, errors.New("render mode requires a renderer")
		}
	default:
		if deps.Probe == nil && deps.Renderer == nil {
			return nil, errors.New("a probe fetcher or renderer is required")
		}
	}
	if deps.Pauser == nil {
		deps.Pauser = backoff.TimerPauser{}
	}
	if deps.Progress == nil {
		deps.Progress = progress.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logger.Named("pipeline")}, nil
}

// Run processes urls in order. It always returns a summary. The error is
// non-nil only when the table store cannot be read or written; per-page
// failures are counted and logged. Cancellation stops the run between pages.
func (p *Pipeline) Run(ctx context.Context, urls []string) (Summary, error) {
	start := p.now()
	runID, err := p.newRunID()
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{RunID: runID.String()}
	rid := progress.UUIDToBytes(runID)
	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run_id", sum.RunID),
		attribute.String("scope", p.cfg.Scope),
		attribute.Int("urls", len(urls)),
	))
	defer span.End()
	log := p.logger.With(zap.String("run_id", sum.RunID), zap.String("scope", p.cfg.Scope))

	p.emit(progress.Event{RunID: rid, Stage: progress.StageRunStart})
	log.Info("run started", zap.Int("urls", len(urls)), zap.String("mode", string(p.cfg.Mode)))

	var runErr error
	for i, pageURL := range urls {
		if ctx.Err() != nil {
			sum.Canceled = true
			break
		}
		if i > 0 {
			delay := backoff.Between(p.cfg.PageDelayMin, p.cfg.PageDelayMax)
			if err := p.deps.Pauser.Pause(ctx, delay); err != nil {
				sum.Canceled = true
				break
			}
		}
		if err := p.processPage(ctx, rid, pageURL, &sum, log); err != nil {
			if errors.Is(err, errCanceled) {
				sum.Canceled = true
				break
			}
			runErr = err
			break
		}
	}

	sum.Elapsed = p.now().Sub(start)
	done := progress.Event{
		RunID:      rid,
		Stage:      progress.StageRunDone,
		Structured: int64(sum.Structured),
		Rejected:   int64(sum.Rejected),
		Appended:   int64(sum.Appended),
		Updated:    int64(sum.Updated),
		Dur:        sum.Elapsed,
	}
	if runErr != nil {
		done.Note = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "table store failure")
	}
	p.emit(done)

	log.Info("run finished",
		zap.Int("pages", sum.Pages),
		zap.Int("failed", sum.Failed),
		zap.Int("chunks", sum.Chunks),
		zap.Int("structured", sum.Structured),
		zap.Int("rejected", sum.Rejected),
		zap.Int("ambiguous_payloads", sum.AmbiguousPayloads),
		zap.Int("appended", sum.Appended),
		zap.Int("updated", sum.Updated),
		zap.Int("merge_ambiguities", sum.MergeAmbiguities),
		zap.Bool("canceled", sum.Canceled),
		zap.Duration("elapsed", sum.Elapsed),
	)
	return sum, runErr
}

var errCanceled = errors.New("run canceled")

func (p *Pipeline) processPage(ctx context.Context, rid [16]byte, pageURL string, sum *Summary, log *zap.Logger) error {
	log = log.With(zap.String("url", pageURL))
	sum.Pages++
	ctx, span := tracer.Start(ctx, "pipeline.page", trace.WithAttributes(attribute.String("url", pageURL)))
	defer span.End()

	page, err := p.fetch(ctx, rid, pageURL, log)
	if err != nil {
		if ctx.Err() != nil {
			sum.Pages--
			return errCanceled
		}
		sum.Failed++
		span.SetStatus(codes.Error, "fetch failed")
		log.Warn("page skipped", zap.Error(err))
		p.emit(progress.Event{RunID: rid, Stage: progress.StagePageFailed, URL: pageURL, Note: err.Error()})
		return nil
	}
	p.archive(ctx, runUUID(rid), page, log)

	hints, err := pricehint.Extract(page.Document)
	if err != nil {
		log.Debug("price hints unavailable", zap.Error(err))
	}
	prices := pricehint.Merge(p.cfg.hintsFor(pageURL), hints.Prices)

	reduced, err := p.deps.Reducer.Reduce(page.Document)
	if err != nil {
		sum.Failed++
		log.Warn("page could not be reduced", zap.Error(err))
		p.emit(progress.Event{RunID: rid, Stage: progress.StagePageFailed, URL: pageURL, Note: err.Error()})
		return nil
	}
	if reduced.Fallback {
		log.Debug("reduction fell back to whole-document text")
	}
	p.emit(progress.Event{
		RunID: rid, Stage: progress.StagePageReduced, URL: pageURL,
		Bytes: int64(len(reduced.Text)),
	})

	chunks := segment.Split(segment.Wrap(hints.Title, reduced.Text))
	sum.Chunks += len(chunks)
	p.emit(progress.Event{RunID: rid, Stage: progress.StagePageSegmented, URL: pageURL, Chunks: int64(len(chunks))})

	records, structured, rejected := p.structureChunks(ctx, rid, page, hints.Title, prices, chunks, sum, log)
	if ctx.Err() != nil {
		return errCanceled
	}

	stats, err := p.merge(ctx, records)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(
		attribute.Int("records", len(records)),
		attribute.Int("appended", stats.Appended),
		attribute.Int("updated", stats.Updated),
	)
	sum.Appended += stats.Appended
	sum.Updated += stats.Updated
	sum.MergeAmbiguities += stats.Ambiguous
	if stats.Ambiguous > 0 {
		log.Warn("ambiguous merge matches were appended", zap.Int("count", stats.Ambiguous))
	}

	p.emit(progress.Event{
		RunID:      rid,
		Stage:      progress.StagePageMerged,
		URL:        pageURL,
		Chunks:     int64(len(chunks)),
		Structured: int64(structured),
		Rejected:   int64(rejected),
		Appended:   int64(stats.Appended),
		Updated:    int64(stats.Updated),
	})
	if len(records) > 0 {
		p.publish(ctx, rid, pageURL, records, stats, log)
	}
	return nil
}

func (p *Pipeline) structureChunks(
	ctx context.Context,
	rid [16]byte,
	page tour.RawPage,
	title string,
	prices tour.PriceHints,
	chunks []tour.RawChunk,
	sum *Summary,
	log *zap.Logger,
) ([]tour.Record, int, int) {
	var (
		records              []tour.Record
		structured, rejected int
	)
	for i, chunk := range chunks {
		if i > 0 {
			delay := backoff.Between(p.cfg.LLMDelayMin, p.cfg.LLMDelayMax)
			if err := p.deps.Pauser.Pause(ctx, delay); err != nil {
				return nil, structured, rejected
			}
		}
		started := p.now()
		res, err := p.deps.Structurer.Structure(ctx, structure.Input{
			Scope:     p.cfg.Scope,
			SourceURL: page.SourceURL,
			PageTitle: title,
			Chunk:     chunk,
			Hints:     prices,
			Rules:     p.cfg.Rules,
		})
		if ctx.Err() != nil {
			return nil, structured, rejected
		}
		evt := progress.Event{
			RunID: rid,
			URL:   page.SourceURL,
			Chunk: chunk.TitleHint,
			Dur:   p.now().Sub(started),
		}
		switch {
		case err != nil:
			rejected++
			sum.Rejected++
			log.Warn("chunk rejected", zap.String("chunk", chunk.TitleHint), zap.Error(err))
			evt.Stage = progress.StageChunkRejected
			evt.Note = err.Error()
		case res.Outcome == structure.OutcomeNotOffering:
			rejected++
			sum.Rejected++
			log.Info("chunk is not a bookable offering", zap.String("chunk", chunk.TitleHint))
			evt.Stage = progress.StageChunkRejected
			evt.Note = string(res.Outcome)
		default:
			structured++
			sum.Structured++
			records = append(records, res.Record)
			evt.Stage = progress.StageChunkStructured
		}
		if err == nil && res.Ambiguous {
			sum.AmbiguousPayloads++
		}
		if err == nil && res.Truncated {
			log.Debug("chunk truncated before prompting", zap.String("chunk", chunk.TitleHint))
		}
		p.emit(evt)
	}
	return records, structured, rejected
}

func (p *Pipeline) fetch(ctx context.Context, rid [16]byte, pageURL string, log *zap.Logger) (tour.RawPage, error) {
	switch p.cfg.Mode {
	case ModeRender:
		return p.render(ctx, rid, pageURL)
	case ModeStatic:
		return p.probe(ctx, rid, pageURL)
	}

	if p.deps.Probe == nil {
		return p.render(ctx, rid, pageURL)
	}
	page, err := p.probe(ctx, rid, pageURL)
	if err != nil {
		if p.deps.Renderer == nil || ctx.Err() != nil {
			return tour.RawPage{}, err
		}
		log.Info("probe failed, rendering instead", zap.Error(err))
		return p.render(ctx, rid, pageURL)
	}
	if p.deps.Renderer == nil || p.deps.Detector == nil || !p.deps.Detector.ShouldPromote(page) {
		return page, nil
	}
	rendered, err := p.render(ctx, rid, pageURL)
	if err != nil {
		log.Warn("render promotion failed, keeping static document", zap.Error(err))
		return page, nil
	}
	return rendered, nil
}

func (p *Pipeline) probe(ctx context.Context, rid [16]byte, pageURL string) (tour.RawPage, error) {
	page, err := p.deps.Probe.Fetch(ctx, pageURL)
	if err != nil {
		return tour.RawPage{}, err
	}
	p.emit(progress.Event{
		RunID: rid, Stage: progress.StagePageFetched, URL: pageURL,
		Bytes: int64(len(page.Document)), Dur: page.Duration,
	})
	return page, nil
}

func (p *Pipeline) render(ctx context.Context, rid [16]byte, pageURL string) (tour.RawPage, error) {
	page, err := p.deps.Renderer.Render(ctx, pageURL)
	if err != nil {
		return tour.RawPage{}, err
	}
	page.Rendered = true
	p.emit(progress.Event{
		RunID: rid, Stage: progress.StagePageRendered, URL: pageURL,
		Bytes: int64(len(page.Document)), Dur: page.Duration,
	})
	return page, nil
}

// archive stores the document under scope/hash.html. Failures are logged;
// the snapshot archive is not needed to finish the page.
func (p *Pipeline) archive(ctx context.Context, runID uuid.UUID, page tour.RawPage, log *zap.Logger) {
	if p.deps.Blobs == nil || p.deps.Hasher == nil {
		return
	}
	body := []byte(page.Document)
	hash, err := p.deps.Hasher.Hash(body)
	if err != nil {
		log.Warn("hash document", zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s.html", p.cfg.Scope, hash)
	uri, err := p.deps.Blobs.PutObject(ctx, path, p.cfg.SnapshotContentType, bytes.NewReader(body))
	if err != nil {
		log.Warn("archive snapshot", zap.Error(err))
		return
	}
	if p.deps.Snapshots == nil {
		return
	}
	fetchedAt := page.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = p.now()
	}
	if err := p.deps.Snapshots.RecordSnapshot(ctx, store.Snapshot{
		RunID:     runID,
		URL:       page.SourceURL,
		FinalURL:  page.FinalURL,
		Hash:      hash,
		BlobURI:   uri,
		Rendered:  page.Rendered,
		Bytes:     int64(len(body)),
		FetchedAt: fetchedAt,
	}); err != nil {
		log.Warn("record snapshot", zap.String("blob_uri", uri), zap.Error(err))
	}
}

// merge folds records into the scope store and saves it.
func (p *Pipeline) merge(ctx context.Context, records []tour.Record) (reconcile.Stats, error) {
	if len(records) == 0 {
		return reconcile.Stats{}, nil
	}
	existing, err := p.deps.Store.Load(ctx)
	if err != nil {
		return reconcile.Stats{}, fmt.Errorf("load store: %w", err)
	}
	merged, stats := reconcile.Merge(existing, records)
	if err := p.deps.Store.Save(context.WithoutCancel(ctx), merged); err != nil {
		return reconcile.Stats{}, fmt.Errorf("save store: %w", err)
	}
	return stats, nil
}

func (p *Pipeline) publish(
	ctx context.Context,
	rid [16]byte,
	pageURL string,
	records []tour.Record,
	stats reconcile.Stats,
	log *zap.Logger,
) {
	if p.cfg.Topic == "" || p.deps.Publisher == nil {
		return
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	payload := map[string]any{
		"run_id":    runUUID(rid).String(),
		"scope":     p.cfg.Scope,
		"url":       pageURL,
		"ids":       ids,
		"mode":      string(stats.Mode),
		"appended":  stats.Appended,
		"updated":   stats.Updated,
		"timestamp": p.now().Format(time.RFC3339),
	}
	if _, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, payload); err != nil {
		log.Warn("publish merge notification", zap.Error(err))
		return
	}
	log.Debug("merge notification published", zap.String("topic", p.cfg.Topic))
}

func (p *Pipeline) emit(evt progress.Event) {
	evt.Scope = p.cfg.Scope
	if evt.TS.IsZero() {
		evt.TS = p.now()
	}
	p.deps.Progress.Emit(evt)
}

func (p *Pipeline) now() time.Time {
	if p.deps.Clock == nil {
		return time.Now().UTC()
	}
	return p.deps.Clock.Now()
}

func (p *Pipeline) newRunID() (uuid.UUID, error) {
	if p.deps.IDs == nil {
		return uuid.NewV7()
	}
	raw, err := p.deps.IDs.NewID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse run id %q: %w", raw, err)
	}
	return id, nil
}

func runUUID(rid [16]byte) uuid.UUID {
	return uuid.UUID(rid)
}
