// Package headless renders JavaScript-heavy pages with a warm Chrome
// instance driven over the DevTools protocol.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/tour-ingest/internal/backoff"
	"github.com/JakeFAU/tour-ingest/internal/tour"
)

// Config tunes the renderer.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// RenderWait is the pause after the body is ready, before expansion.
	RenderWait time.Duration
	// MaxExpansions bounds widget clicks per page.
	MaxExpansions int
	WindowWidth   int64
	WindowHeight  int64
	Policy        backoff.Policy
}

// Renderer implements tour.Renderer with chromedp.
type Renderer struct {
	cfg    Config
	pauser backoff.Pauser

	allocator   context.Context
	allocCancel context.CancelFunc
	browser     context.Context
	browserStop context.CancelFunc

	startOnce sync.Once
	startErr  error
}

// DefaultConfig returns the settings used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		NavigationTimeout: 60 * time.Second,
		RenderWait:        3 * time.Second,
		MaxExpansions:     40,
		WindowWidth:       1920,
		WindowHeight:      1080,
		Policy:            backoff.Exponential("render", 3, 2*time.Second, 10*time.Second),
	}
}

// New prepares an allocator. The browser itself starts on the first Render
// and is reused for every page until Close.
func New(cfg Config, pauser backoff.Pauser) (*Renderer, error) {
	cfg = withDefaults(cfg)
	if cfg.MaxExpansions < 0 {
		return nil, fmt.Errorf("max expansions must be >= 0")
	}
	if pauser == nil {
		pauser = backoff.TimerPauser{}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(int(cfg.WindowWidth), int(cfg.WindowHeight)),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	return &Renderer{
		cfg:         cfg,
		pauser:      pauser,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		browser:     browserCtx,
		browserStop: browserStop,
	}, nil
}

// Close shuts the browser down.
func (r *Renderer) Close() {
	r.browserStop()
	r.allocCancel()
}

// Render loads url, expands disclosure widgets and returns the document.
// Failures are reported as *tour.FetchError.
func (r *Renderer) Render(ctx context.Context, url string) (tour.RawPage, error) {
	if err := r.start(); err != nil {
		return tour.RawPage{}, &tour.FetchError{URL: url, Err: err}
	}

	var page tour.RawPage
	err := r.cfg.Policy.Do(ctx, r.pauser, func(ctx context.Context, _ int) error {
		p, err := r.renderOnce(ctx, url)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return tour.RawPage{}, &tour.FetchError{URL: url, Err: err}
	}
	return page, nil
}

func (r *Renderer) start() error {
	r.startOnce.Do(func() {
		if err := chromedp.Run(r.browser); err != nil {
			r.startErr = fmt.Errorf("start browser: %w", err)
		}
	})
	return r.startErr
}

func (r *Renderer) renderOnce(ctx context.Context, url string) (tour.RawPage, error) {
	tabCtx, closeTab := chromedp.NewContext(r.browser)
	defer closeTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, r.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	var (
		html     string
		finalURL string
		clicked  int
		start    = time.Now()
	)
	actions := []chromedp.Action{
		r.setupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.cfg.RenderWait),
		chromedp.Evaluate(expansionScript(r.cfg.MaxExpansions), &clicked, awaitPromise),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight);`, nil),
		chromedp.Sleep(time.Second),
		chromedp.Evaluate(`window.scrollTo(0, 0);`, nil),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return tour.RawPage{}, fmt.Errorf("render canceled: %w", ctx.Err())
		}
		return tour.RawPage{}, fmt.Errorf("chromedp run: %w", err)
	}
	if err := statusError(meta.status()); err != nil {
		return tour.RawPage{}, err
	}
	if finalURL == "" {
		finalURL = url
	}
	return tour.RawPage{
		SourceURL: url,
		FinalURL:  finalURL,
		Document:  html,
		Rendered:  true,
		FetchedAt: start.UTC(),
		Duration:  time.Since(start),
	}, nil
}

func (r *Renderer) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if err := emulation.SetDeviceMetricsOverride(r.cfg.WindowWidth, r.cfg.WindowHeight, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set device metrics: %w", err)
		}
		return nil
	})
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// errHTTPStatus marks a document that loaded with an error status.
var errHTTPStatus = errors.New("document status")

// statusError treats 4xx as permanent except 408 and 429; 5xx is retried.
func statusError(status int) error {
	switch {
	case status == 0 || status < http.StatusBadRequest:
		return nil
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return fmt.Errorf("%w %d", errHTTPStatus, status)
	default:
		return backoff.Permanent(fmt.Errorf("%w %d", errHTTPStatus, status))
	}
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = def.NavigationTimeout
	}
	if cfg.RenderWait <= 0 {
		cfg.RenderWait = def.RenderWait
	}
	if cfg.MaxExpansions == 0 {
		cfg.MaxExpansions = def.MaxExpansions
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = def.WindowWidth
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = def.WindowHeight
	}
	if cfg.Policy.Name == "" {
		cfg.Policy = def.Policy
	}
	return cfg
}

// responseMeta records the main document's status code.
type responseMeta struct {
	mu   sync.RWMutex
	code int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	if m.code == 0 {
		m.code = int(resp.Response.Status)
	}
	m.mu.Unlock()
}

func (m *responseMeta) status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.code
}
