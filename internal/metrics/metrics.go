// Package metrics holds the Prometheus collectors of the sync server. All
// methods are safe on a nil *Metrics so callers never need to guard.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"chainnotes-sync-server/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chainnotes"

type Metrics struct {
	registry *prometheus.Registry

	indexerRunning     prometheus.Gauge
	latestIndexedBlock prometheus.Gauge
	currentBlock       prometheus.Gauge
	indexedTotal       *prometheus.CounterVec
	scanErrors         prometheus.Counter
	syncOutcomes       *prometheus.CounterVec
	sweepDuration      *prometheus.HistogramVec
	httpRequests       *prometheus.CounterVec
}

// New registers every collector on a private registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := newWithRegisterer(reg)
	m.registry = reg
	return m
}

func newWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		indexerRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexer_running",
			Help:      "whether the ledger indexer is running (0 or 1)",
		}),
		latestIndexedBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexer_latest_indexed_block",
			Help:      "block height the indexer cursor has reached",
		}),
		currentBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_current_block",
			Help:      "latest block height reported by the ledger",
		}),
		indexedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexer_transactions_total",
			Help:      "ledger transactions examined by the indexer, by outcome",
		}, []string{"outcome"}),
		scanErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexer_scan_errors_total",
			Help:      "scans or per-address fetches that failed",
		}),
		syncOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_transactions_total",
			Help:      "tracked transactions resolved by the sync worker, by outcome",
		}, []string{"outcome"}),
		sweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "duration of background sweeps",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"task"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route template and status code",
		}, []string{"route", "code"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetIndexerRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.indexerRunning.Set(1)
		return
	}
	m.indexerRunning.Set(0)
}

func (m *Metrics) SetBlocks(current, latestIndexed int64) {
	if m == nil {
		return
	}
	m.currentBlock.Set(float64(current))
	m.latestIndexedBlock.Set(float64(latestIndexed))
}

func (m *Metrics) TransactionIndexed(outcome domain.IndexOutcome) {
	if m == nil {
		return
	}
	m.indexedTotal.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) ScanError() {
	if m == nil {
		return
	}
	m.scanErrors.Inc()
}

func (m *Metrics) SweepCompleted(result domain.SweepResult) {
	if m == nil {
		return
	}
	m.syncOutcomes.WithLabelValues("confirmed").Add(float64(result.Confirmed))
	m.syncOutcomes.WithLabelValues("failed").Add(float64(result.Failed))
	m.syncOutcomes.WithLabelValues("expired").Add(float64(result.Expired))
	m.syncOutcomes.WithLabelValues("errors").Add(float64(result.Errors))
}

func (m *Metrics) ObserveSweep(task string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(task).Observe(elapsed.Seconds())
}

func (m *Metrics) HTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
