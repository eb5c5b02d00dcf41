// Package instrumentation exposes Prometheus metrics for scan runs.
package instrumentation

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// Funnel stage label values.
const (
	StagePolymarket = "polymarket"
	StageKalshi     = "kalshi"
	StageCloseTime  = "close_time"
	StageStrike     = "strike"
	StageSimilarity = "similarity"
	StageAdjudicate = "adjudicate"
)

// Metrics contains all Prometheus metrics for the scanner.
type Metrics struct {
	registry *prometheus.Registry

	ScanDuration   prometheus.Histogram
	ScansTotal     *prometheus.CounterVec
	FunnelStage    *prometheus.GaugeVec
	ArbitrageCount prometheus.Gauge
	BestEdge       prometheus.Gauge
	LastScan       prometheus.Gauge
	OracleFailures *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
}

// NewMetrics creates the metrics on a private registry, alongside the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbscan_scan_duration_seconds",
			Help:    "Wall time of one full scan run",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		ScansTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscan_scans_total",
			Help: "Scan runs by outcome",
		}, []string{"outcome"}),

		FunnelStage: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arbscan_funnel_candidates",
			Help: "Candidates remaining after each matching stage in the last scan",
		}, []string{"stage"}),

		ArbitrageCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "arbscan_arbitrage_pairs",
			Help: "Pairs with a positive edge in the last scan",
		}),

		BestEdge: f.NewGauge(prometheus.GaugeOpts{
			Name: "arbscan_best_edge",
			Help: "Largest edge found in the last scan",
		}),

		LastScan: f.NewGauge(prometheus.GaugeOpts{
			Name: "arbscan_last_scan_timestamp_seconds",
			Help: "Unix time the last successful scan finished",
		}),

		OracleFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscan_oracle_failures_total",
			Help: "Oracle calls that failed, by operation",
		}, []string{"operation"}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscan_errors_total",
			Help: "Total number of errors by component",
		}, []string{"component"}),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordScan records a completed scan run.
func (m *Metrics) RecordScan(s domain.ScanSummary) {
	m.ScanDuration.Observe(s.FinishedAt.Sub(s.StartedAt).Seconds())
	m.ScansTotal.WithLabelValues("ok").Inc()

	m.FunnelStage.WithLabelValues(StagePolymarket).Set(float64(s.PolymarketCount))
	m.FunnelStage.WithLabelValues(StageKalshi).Set(float64(s.KalshiCount))
	m.FunnelStage.WithLabelValues(StageCloseTime).Set(float64(s.AfterCloseTime))
	m.FunnelStage.WithLabelValues(StageStrike).Set(float64(s.AfterStrike))
	m.FunnelStage.WithLabelValues(StageSimilarity).Set(float64(s.AfterSimilarity))
	m.FunnelStage.WithLabelValues(StageAdjudicate).Set(float64(s.AfterAdjudicate))

	m.ArbitrageCount.Set(float64(s.ArbitrageCount))
	m.BestEdge.Set(s.BestEdge)
	m.LastScan.Set(float64(s.FinishedAt.Unix()))
}

// RecordScanFailure counts a failed run and its duration.
func (m *Metrics) RecordScanFailure(took time.Duration) {
	m.ScanDuration.Observe(took.Seconds())
	m.ScansTotal.WithLabelValues("failed").Inc()
}

// RecordOracleFailures adds oracle failures for operation.
func (m *Metrics) RecordOracleFailures(operation string, n int) {
	if n > 0 {
		m.OracleFailures.WithLabelValues(operation).Add(float64(n))
	}
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component string) {
	m.ErrorsTotal.WithLabelValues(component).Inc()
}
