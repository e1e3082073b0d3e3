package observe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the sync counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	records  *prometheus.CounterVec
	passes   *prometheus.CounterVec
	retries  *prometheus.CounterVec
	cursor   prometheus.Gauge
	duration prometheus.Histogram

	feed *Feed
}

// NewMetrics registers the sync metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notionsync_records_total",
			Help: "Records processed by outcome",
		}, []string{"outcome"}),
		passes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notionsync_passes_total",
			Help: "Sync passes by result",
		}, []string{"result"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notionsync_retries_total",
			Help: "Retried remote calls by operation",
		}, []string{"op"}),
		cursor: factory.NewGauge(prometheus.GaugeOpts{
			Name: "notionsync_cursor_timestamp_seconds",
			Help: "Persisted cursor as a unix timestamp",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "notionsync_pass_duration_seconds",
			Help:    "Wall time of one sync pass",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
	}
}

// WithFeed forwards record and pass observations to f and serves it on
// /events.
func (m *Metrics) WithFeed(f *Feed) *Metrics {
	m.feed = f
	return m
}

func (m *Metrics) ObserveRecord(outcome string) {
	m.records.WithLabelValues(outcome).Inc()
	if m.feed != nil {
		m.feed.ObserveRecord(outcome)
	}
}

func (m *Metrics) ObservePass(result string, d time.Duration, cursor time.Time) {
	m.passes.WithLabelValues(result).Inc()
	m.duration.Observe(d.Seconds())
	if !cursor.IsZero() {
		m.cursor.Set(float64(cursor.Unix()))
	}
	if m.feed != nil {
		m.feed.ObservePass(result, d, cursor)
	}
}

// ObserveRetry counts one retry of op.
func (m *Metrics) ObserveRetry(op string) {
	m.retries.WithLabelValues(op).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled, plus /events
// when a feed is attached. It returns once the server and the feed have
// stopped.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return m.serve(ctx, ln, logger)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if m.feed != nil {
		mux.Handle("/events", m.feed.Handler())
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.feed.Run(ctx)
		}()
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}
