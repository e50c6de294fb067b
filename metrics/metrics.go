// Package metrics exposes the Prometheus metrics of the weekly run and the
// HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors on their own registry. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runDuration      prometheus.Histogram
	runs             *prometheus.CounterVec
	subScores        *prometheus.CounterVec
	poolConflicts    *prometheus.CounterVec
	activeSymbols    *prometheus.GaugeVec
	unreliableParams *prometheus.GaugeVec
	httpRequests     *prometheus.CounterVec
}

// New creates the collectors and registers them with the Go and process
// collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "longentry_weekly_run_duration_seconds",
			Help:    "Wall time of a weekly evaluation run",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "longentry_weekly_runs_total",
			Help: "Weekly runs by result (ok, partial, failed)",
		}, []string{"result"}),
		subScores: f.NewCounterVec(prometheus.CounterOpts{
			Name: "longentry_sub_scores_total",
			Help: "Sub-scores produced by component and status",
		}, []string{"component", "status"}),
		poolConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "longentry_pool_write_conflicts_total",
			Help: "Pool writes rejected by a concurrent update",
		}, []string{"pool"}),
		activeSymbols: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "longentry_active_symbols",
			Help: "Active symbols per pool after the last write",
		}, []string{"pool"}),
		unreliableParams: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "longentry_unreliable_params",
			Help: "Symbols whose winning parameters are unstable, per pool",
		}, []string{"pool"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "longentry_http_requests_total",
			Help: "HTTP requests by method and status code",
		}, []string{"method", "code"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRun records a finished weekly run.
func (m *Metrics) ObserveRun(d time.Duration, result string) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
	m.runs.WithLabelValues(result).Inc()
}

// SubScore counts one sub-score outcome.
func (m *Metrics) SubScore(component, status string) {
	if m == nil {
		return
	}
	m.subScores.WithLabelValues(component, status).Inc()
}

// PoolConflict counts a rejected pool write.
func (m *Metrics) PoolConflict(pool string) {
	if m == nil {
		return
	}
	m.poolConflicts.WithLabelValues(pool).Inc()
}

// SetPoolState records the active and unreliable counts of a written pool.
func (m *Metrics) SetPoolState(pool string, active, unreliable int) {
	if m == nil {
		return
	}
	m.activeSymbols.WithLabelValues(pool).Set(float64(active))
	m.unreliableParams.WithLabelValues(pool).Set(float64(unreliable))
}

// HTTPRequest counts one served request.
func (m *Metrics) HTTPRequest(method, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, code).Inc()
}
