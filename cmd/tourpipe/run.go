package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/tour-ingest/internal/api"
	"github.com/JakeFAU/tour-ingest/internal/backoff"
	"github.com/JakeFAU/tour-ingest/internal/clock/system"
	"github.com/JakeFAU/tour-ingest/internal/config"
	collyfetcher "github.com/JakeFAU/tour-ingest/internal/fetcher/colly"
	"github.com/JakeFAU/tour-ingest/internal/fetcher/detector"
	"github.com/JakeFAU/tour-ingest/internal/fetcher/headless"
	"github.com/JakeFAU/tour-ingest/internal/hash/sha256"
	"github.com/JakeFAU/tour-ingest/internal/id/uuid"
	"github.com/JakeFAU/tour-ingest/internal/llm"
	"github.com/JakeFAU/tour-ingest/internal/metrics"
	"github.com/JakeFAU/tour-ingest/internal/pipeline"
	"github.com/JakeFAU/tour-ingest/internal/progress"
	"github.com/JakeFAU/tour-ingest/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/tour-ingest/internal/publisher/pubsub"
	"github.com/JakeFAU/tour-ingest/internal/reduce"
	"github.com/JakeFAU/tour-ingest/internal/storage/postgres"
	"github.com/JakeFAU/tour-ingest/internal/store"
	"github.com/JakeFAU/tour-ingest/internal/structure"
	"github.com/JakeFAU/tour-ingest/internal/telemetry"
	"github.com/JakeFAU/tour-ingest/internal/tour"
)

type runOptions struct {
	input        string
	output       string
	scope        string
	mode         string
	forceInclude bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extracts tours from a list of pages and merges them into the store",
		Long: `Processes every URL in order: fetch, reduce, segment, structure and
merge. Each page's records are saved before the next page starts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			return runPipeline(cmd.Context(), e, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.input, "input", "", "file with one URL per line (default pipeline.input or pipeline.urls)")
	cmd.Flags().StringVar(&opts.output, "output", "", "table to merge into (.csv or .db)")
	cmd.Flags().StringVar(&opts.scope, "scope", "", "scope identifier (default derived from the first URL)")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "fetch mode: auto, static or render")
	cmd.Flags().BoolVar(&opts.forceInclude, "force-include", false, "keep every parsed chunk regardless of the offering flag")
	return cmd
}

// resolveURLs reads the URL list from the flag, then pipeline.input, then
// pipeline.urls.
func resolveURLs(input string, cfg config.PipelineConfig) ([]string, error) {
	if input == "" {
		input = cfg.Input
	}
	if input != "" {
		return pipeline.LoadURLs(input)
	}
	urls := pipeline.CleanURLs(cfg.URLs)
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: no --input and no pipeline.urls configured", tour.ErrInputNotFound)
	}
	return urls, nil
}

func resolveScope(flag string, cfg config.PipelineConfig, urls []string) string {
	switch {
	case flag != "":
		return flag
	case cfg.Scope != "":
		return cfg.Scope
	case len(urls) > 0:
		return tour.CompanyFromHost(urls[0])
	default:
		return ""
	}
}

func runPipeline(ctx context.Context, e *env, opts runOptions, out io.Writer) error {
	cfg := e.cfg
	logger := e.logger

	urls, err := resolveURLs(opts.input, cfg.Pipeline)
	if err != nil {
		return err
	}

	if cfg.Telemetry.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("tracer init failed: %w", err)
		}
		defer func() {
			if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
	}
	scope := resolveScope(opts.scope, cfg.Pipeline, urls)
	scopeCfg := cfg.Scope(scope)
	mode := pipeline.Mode(cfg.Pipeline.Mode)
	if opts.mode != "" {
		mode = pipeline.Mode(opts.mode)
	}

	output := opts.output
	if output == "" {
		output = cfg.Pipeline.Output
	}
	if output == "" {
		output = defaultOutput(scope, cfg.Pipeline.TableBackend)
	}
	table, closeTable, err := openTableStore(cfg.Pipeline.TableBackend, output)
	if err != nil {
		return err
	}
	defer closeTable()

	deps := pipeline.Deps{
		Store:   table,
		Reducer: reduce.New(reduce.Config{
			MaxChars:         cfg.Reduce.MaxChars,
			MinChars:         cfg.Reduce.MinChars,
			ContentSelectors: cfg.Reduce.ContentSelectors,
		}),
		Hasher:  sha256.New(),
		Clock:   system.New(),
		IDs:     uuid.New(),
		Pauser:  backoff.TimerPauser{},
	}

	if mode != pipeline.ModeRender {
		deps.Probe = collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Fetch.UserAgent,
			RespectRobots: cfg.Fetch.RespectRobots,
			Timeout:       cfg.Fetch.Timeout,
			RatePerSecond: cfg.Fetch.RatePerSecond,
			Burst:         cfg.Fetch.Burst,
		})
		deps.Detector = detector.NewHeuristic(cfg.Fetch.PromotionScriptShare)
	}
	if cfg.Render.Enabled && mode != pipeline.ModeStatic {
		renderer, err := headless.New(headlessConfig(cfg), deps.Pauser)
		if err != nil {
			if mode == pipeline.ModeRender {
				return fmt.Errorf("init renderer: %w", err)
			}
			logger.Warn("renderer init failed; continuing with static fetches", zap.Error(err))
		} else {
			defer renderer.Close()
			deps.Renderer = renderer
		}
	}

	completer, err := llm.New(ctx, llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLMKey(),
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return fmt.Errorf("init llm: %w", err)
	}
	structurer, err := structure.New(completer, deps.Pauser, structure.Config{
		MaxChunkChars: cfg.LLM.MaxChunkChars,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		Timeout:       cfg.LLM.Timeout,
		Policy:        backoff.Exponential("llm", cfg.LLM.Attempts, time.Second, 10*time.Second),
	}, logger)
	if err != nil {
		return fmt.Errorf("init structurer: %w", err)
	}
	deps.Structurer = structurer

	blobs, closeBlobs, err := openBlobStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeBlobs()
	if blobs != nil {
		deps.Blobs = blobs
	}

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return fmt.Errorf("init progress metrics: %w", err)
	}
	progressSinks := []progress.Sink{sinks.NewLogSink(logger), promSink}

	var runs store.RunRepository
	if cfg.DB.DSN != "" {
		runStore, snapshots, err := openLedger(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer runStore.Close()
		runs = runStore
		deps.Snapshots = snapshots
		progressSinks = append(progressSinks, sinks.NewStoreSink(runStore, logger))
	}

	if cfg.PubSub.Topic != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		defer func() { _ = client.Close() }()
		publisher := pubsubpublisher.New(client)
		defer publisher.Stop()
		deps.Publisher = publisher
	}

	hub := progress.NewHub(progress.Config{
		BaseContext: context.WithoutCancel(ctx),
		Logger:      logger,
	}, progressSinks...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()
	deps.Progress = hub

	p, err := pipeline.New(deps, pipeline.Config{
		Scope:               scope,
		Mode:                mode,
		PageDelayMin:        cfg.Pipeline.PageDelayMin,
		PageDelayMax:        cfg.Pipeline.PageDelayMax,
		LLMDelayMin:         cfg.Pipeline.LLMDelayMin,
		LLMDelayMax:         cfg.Pipeline.LLMDelayMax,
		Topic:               cfg.PubSub.Topic,
		SnapshotContentType: cfg.Storage.ContentType,
		Rules: structure.Rules{
			ForceInclude: opts.forceInclude || cfg.Pipeline.ForceInclude || scopeCfg.ForceInclude,
			Locations:    scopeCfg.Locations,
		},
		PriceHints: scopeCfg.Hints(),
	}, logger)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	var srv *http.Server
	if cfg.Server.Port > 0 {
		httpMetrics, err := metrics.NewHTTP(registry)
		if err != nil {
			return fmt.Errorf("init http metrics: %w", err)
		}
		apiServer := api.NewServer(runs, registry, httpMetrics, api.Config{
			APIKey:         cfg.Server.APIKey,
			RequestTimeout: 30 * time.Second,
		}, logger)
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	logger.Info("starting run",
		zap.String("scope", scope),
		zap.String("mode", string(mode)),
		zap.String("output", output),
		zap.Int("urls", len(urls)),
	)

	var summary pipeline.Summary
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		var runErr error
		summary, runErr = p.Run(gctx, urls)
		return runErr
	})
	if srv != nil {
		g.Go(func() error {
			logger.Info("http server started", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-done:
			case <-gctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	runErr := g.Wait()

	printSummary(out, output, summary)
	if runErr != nil {
		return fmt.Errorf("run %s: %w", summary.RunID, runErr)
	}
	if summary.Canceled {
		logger.Warn("run interrupted; pages merged so far are kept", zap.String("run_id", summary.RunID))
	}
	return nil
}

func headlessConfig(cfg config.Config) headless.Config {
	hc := headless.DefaultConfig()
	if cfg.Fetch.UserAgent != "" {
		hc.UserAgent = cfg.Fetch.UserAgent
	}
	if cfg.Render.NavigationTimeout > 0 {
		hc.NavigationTimeout = cfg.Render.NavigationTimeout
	}
	if cfg.Render.Wait > 0 {
		hc.RenderWait = cfg.Render.Wait
	}
	if cfg.Render.WindowWidth > 0 {
		hc.WindowWidth = int64(cfg.Render.WindowWidth)
	}
	if cfg.Render.WindowHeight > 0 {
		hc.WindowHeight = int64(cfg.Render.WindowHeight)
	}
	hc.MaxExpansions = cfg.Render.MaxExpansions
	if cfg.Render.Attempts > 0 {
		hc.Policy = backoff.Exponential("render", cfg.Render.Attempts, 2*time.Second, 10*time.Second)
	}
	return hc
}

func openLedger(ctx context.Context, cfg config.DBConfig) (*postgres.RunStore, *postgres.SnapshotStore, error) {
	pool, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
	if err != nil {
		return nil, nil, err
	}
	runStore, err := postgres.NewRunStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	snapshots, err := postgres.NewSnapshotStore(pool, cfg.SnapshotTable)
	if err != nil {
		runStore.Close()
		return nil, nil, err
	}
	if err := runStore.EnsureSchema(ctx); err != nil {
		runStore.Close()
		return nil, nil, fmt.Errorf("ensure run ledger schema: %w", err)
	}
	if err := snapshots.EnsureSchema(ctx); err != nil {
		runStore.Close()
		return nil, nil, fmt.Errorf("ensure snapshot schema: %w", err)
	}
	return runStore, snapshots, nil
}

func printSummary(w io.Writer, output string, s pipeline.Summary) {
	fmt.Fprintf(w, "run %s finished in %s\n", s.RunID, s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  pages:      %d (%d failed)\n", s.Pages, s.Failed)
	fmt.Fprintf(w, "  chunks:     %d (%d structured, %d rejected, %d ambiguous payloads)\n",
		s.Chunks, s.Structured, s.Rejected, s.AmbiguousPayloads)
	fmt.Fprintf(w, "  merge:      %d appended, %d updated, %d ambiguous\n",
		s.Appended, s.Updated, s.MergeAmbiguities)
	fmt.Fprintf(w, "  table:      %s\n", output)
	if s.Canceled {
		fmt.Fprintln(w, "  interrupted before the last page")
	}
}
