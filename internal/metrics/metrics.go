// ABOUTME: Prometheus metrics for poll cycles, extracted entries and Slack deliveries
// ABOUTME: Metrics register on a caller-supplied registry and are served over HTTP by Serve

package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsNamespace prefixes every metric name.
const MetricsNamespace = "herald"

// Cycle results.
const (
	ResultDelivered   = "delivered"
	ResultNotModified = "not_modified"
	ResultFetchError  = "fetch_error"
	ResultParseError  = "parse_error"
	ResultLedgerError = "ledger_error"
)

// Delivery results.
const (
	DeliveryOK     = "ok"
	DeliveryFailed = "failed"
)

// Metrics holds all herald collectors.
type Metrics struct {
	CyclesTotal      *prometheus.CounterVec
	EntriesExtracted prometheus.Counter
	EntriesNew       prometheus.Counter
	DeliveriesTotal  *prometheus.CounterVec
	CycleDuration    prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New creates and registers the collectors on reg. A nil reg uses a fresh
// private registry so tests and multiple forwarders never collide.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "cycles_total",
			Help:      "Poll cycles by outcome",
		}, []string{"result"}),
		EntriesExtracted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "entries_extracted_total",
			Help:      "Entries extracted from fetched documents",
		}),
		EntriesNew: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "entries_new_total",
			Help:      "Entries the dedup policy accepted as new",
		}),
		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "deliveries_total",
			Help:      "Slack posts by outcome",
		}, []string{"result"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one poll cycle including paced delivery",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		gatherer: reg,
	}
}

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(result string, d time.Duration) {
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
