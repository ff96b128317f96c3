// Package collyfetcher implements the static probe fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// RatePerSecond caps requests per host. Zero disables the limit.
	RatePerSecond float64
	Burst         int
}

// Fetcher implements tour.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	limiter       *hostLimiter
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		limiter:       newHostLimiter(cfg.RatePerSecond, cfg.Burst),
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Transport failures and error statuses
// are reported as *tour.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (tour.RawPage, error) {
	if err := f.limiter.Wait(ctx, pageURL); err != nil {
		return tour.RawPage{}, &tour.FetchError{URL: pageURL, Err: err}
	}

	var (
		page     tour.RawPage
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, pageURL, start, &page, &fetchErr)

	if err := f.runCollector(ctx, collector, pageURL, &fetchErr); err != nil {
		return tour.RawPage{}, &tour.FetchError{URL: pageURL, Err: err}
	}
	return page, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.cfg.Timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	pageURL string,
	start time.Time,
	result *tour.RawPage,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		final := pageURL
		if r.Request != nil && r.Request.URL != nil {
			final = r.Request.URL.String()
		}
		*result = tour.RawPage{
			SourceURL: pageURL,
			FinalURL:  final,
			Document:  string(r.Body),
			Rendered:  false,
			FetchedAt: start.UTC(),
			Duration:  time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusBadRequest {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
