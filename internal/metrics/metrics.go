// Package metrics owns the Prometheus collectors for the sync engine.
// All methods are safe on a nil *Registry so components can run without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all PriceSync metrics.
type Registry struct {
	reg *prometheus.Registry

	FetchAttempts *prometheus.CounterVec
	SyncResults   *prometheus.CounterVec
	RowsInserted  prometheus.Counter
	AliasLookups  *prometheus.CounterVec
	BulkRun       prometheus.Histogram
	BreakerState  prometheus.Gauge
}

// New creates a registry with every PriceSync collector registered.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		FetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricesync_fetch_attempts_total",
				Help: "Upstream requests by classified outcome",
			},
			[]string{"outcome"},
		),

		SyncResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricesync_sync_results_total",
				Help: "Per-symbol sync cycles by final state and skip reason",
			},
			[]string{"state", "reason"},
		),

		RowsInserted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pricesync_rows_inserted_total",
				Help: "Price bars inserted into storage",
			},
		),

		AliasLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricesync_alias_lookups_total",
				Help: "Alias cache lookups by result",
			},
			[]string{"result"},
		),

		BulkRun: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pricesync_bulk_run_seconds",
				Help:    "Duration of bulk sync runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),

		BreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricesync_breaker_state",
				Help: "Upstream circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
		),
	}

	r.reg.MustRegister(
		r.FetchAttempts,
		r.SyncResults,
		r.RowsInserted,
		r.AliasLookups,
		r.BulkRun,
		r.BreakerState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) FetchAttempt(outcome string) {
	if r == nil {
		return
	}
	r.FetchAttempts.WithLabelValues(outcome).Inc()
}

func (r *Registry) SyncResult(state, reason string) {
	if r == nil {
		return
	}
	r.SyncResults.WithLabelValues(state, reason).Inc()
}

func (r *Registry) Inserted(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.RowsInserted.Add(float64(n))
}

func (r *Registry) AliasLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.AliasLookups.WithLabelValues(result).Inc()
}

func (r *Registry) ObserveRun(d time.Duration) {
	if r == nil {
		return
	}
	r.BulkRun.Observe(d.Seconds())
}

func (r *Registry) SetBreaker(state int) {
	if r == nil {
		return
	}
	r.BreakerState.Set(float64(state))
}
