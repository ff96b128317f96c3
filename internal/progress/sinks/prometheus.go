package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/tour-ingest/internal/progress"
)

// PrometheusSink exports pipeline progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   prometheus.Histogram

	pages        *prometheus.CounterVec
	chunks       *prometheus.CounterVec
	rows         *prometheus.CounterVec
	pageDuration *prometheus.HistogramVec
	reducedBytes *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tourpipe_runs_started_total",
			Help: "Pipeline runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourpipe_runs_completed_total",
			Help: "Pipeline runs completed partitioned by result.",
		}, []string{"result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tourpipe_runs_active",
			Help: "Pipeline runs in progress.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tourpipe_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
		}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourpipe_pages_total",
			Help: "Pages reaching a state, partitioned by scope and state.",
		}, []string{"scope", "state"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourpipe_chunks_total",
			Help: "Chunks by structuring outcome.",
		}, []string{"scope", "outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourpipe_rows_total",
			Help: "Store rows written by merges, partitioned by action.",
		}, []string{"scope", "action"}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tourpipe_fetch_duration_seconds",
			Help:    "Fetch or render duration per page.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"scope", "rendered"}),
		reducedBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tourpipe_reduced_chars",
			Help:    "Reduced text size per page.",
			Buckets: prometheus.ExponentialBuckets(250, 2, 8),
		}, []string{"scope"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted, s.runsCompleted, s.runsActive, s.runDuration,
		s.pages, s.chunks, s.rows, s.pageDuration, s.reducedBytes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	scope := evt.Scope
	if scope == "" {
		scope = "default"
	}
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsActive.Inc()
		}
	case progress.StageRunDone:
		result := "success"
		if evt.Note != "" {
			result = "error"
		}
		s.runsCompleted.WithLabelValues(result).Inc()
		if evt.Dur > 0 {
			s.runDuration.Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.RunID) {
			s.runsActive.Dec()
		}
	case progress.StagePageFetched, progress.StagePageRendered:
		s.pages.WithLabelValues(scope, stateLabel(evt.Stage)).Inc()
		if evt.Dur > 0 {
			rendered := "false"
			if evt.Stage == progress.StagePageRendered {
				rendered = "true"
			}
			s.pageDuration.WithLabelValues(scope, rendered).Observe(evt.Dur.Seconds())
		}
	case progress.StagePageReduced:
		s.pages.WithLabelValues(scope, stateLabel(evt.Stage)).Inc()
		s.reducedBytes.WithLabelValues(scope).Observe(float64(evt.Bytes))
	case progress.StagePageSegmented, progress.StagePageFailed:
		s.pages.WithLabelValues(scope, stateLabel(evt.Stage)).Inc()
	case progress.StagePageMerged:
		s.pages.WithLabelValues(scope, stateLabel(evt.Stage)).Inc()
		s.rows.WithLabelValues(scope, "appended").Add(float64(evt.Appended))
		s.rows.WithLabelValues(scope, "updated").Add(float64(evt.Updated))
	case progress.StageChunkStructured:
		s.chunks.WithLabelValues(scope, "structured").Inc()
	case progress.StageChunkRejected:
		s.chunks.WithLabelValues(scope, "rejected").Inc()
	}
}

func stateLabel(stage progress.Stage) string {
	switch stage {
	case progress.StagePageFetched:
		return "fetched"
	case progress.StagePageRendered:
		return "rendered"
	case progress.StagePageReduced:
		return "reduced"
	case progress.StagePageSegmented:
		return "segmented"
	case progress.StagePageMerged:
		return "merged"
	case progress.StagePageFailed:
		return "failed"
	}
	return "other"
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
