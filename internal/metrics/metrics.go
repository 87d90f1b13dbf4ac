// Package metrics registers the service's Prometheus collectors:
//
//	kconsensus_provider_calls_total{provider,status}
//	kconsensus_provider_latency_seconds{provider}
//	kconsensus_consensus_total{recommendation}
//	kconsensus_edge_percentage
//	kconsensus_scans_total{outcome}
//	kconsensus_scan_duration_seconds
//	kconsensus_picks
//	go_* and process_* runtime metrics
package metrics

import (
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/kalshiconsensus/internal/analysis"
	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

const namespace = "kconsensus"

// Metrics owns a private registry so tests and multiple app instances do not
// collide on the global one.
type Metrics struct {
	registry       *prometheus.Registry
	providerCalls  *prometheus.CounterVec
	providerTiming *prometheus.HistogramVec
	consensus      *prometheus.CounterVec
	edge           prometheus.Histogram
	scans          *prometheus.CounterVec
	scanDuration   prometheus.Histogram
	picks          prometheus.Gauge
}

var _ analysis.Observer = (*Metrics)(nil)

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Provider calls by outcome status.",
		}, []string{"provider", "status"}),
		providerTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Provider call latency, including parsing.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"provider"}),
		consensus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consensus_total",
			Help:      "Consensus results by recommendation.",
		}, []string{"recommendation"}),
		edge: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "edge_percentage",
			Help:      "Absolute edge of each consensus result in percentage points.",
			Buckets:   []float64{1, 3, 5, 10, 15, 25, 50},
		}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Batch scans by outcome.",
		}, []string{"outcome"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of completed scans.",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 8),
		}),
		picks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "picks",
			Help:      "Entries currently held in the top picks collection.",
		}),
	}

	m.registry.MustRegister(
		m.providerCalls, m.providerTiming, m.consensus, m.edge,
		m.scans, m.scanDuration, m.picks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveProvider records one provider call.
func (m *Metrics) ObserveProvider(provider domain.Provider, status domain.EstimateStatus, elapsed time.Duration) {
	m.providerCalls.WithLabelValues(string(provider), string(status)).Inc()
	m.providerTiming.WithLabelValues(string(provider)).Observe(elapsed.Seconds())
}

// ObserveConsensus records one consensus result.
func (m *Metrics) ObserveConsensus(r domain.ConsensusResult) {
	m.consensus.WithLabelValues(string(r.Recommendation)).Inc()
	m.edge.Observe(math.Abs(r.EdgePercentage))
}

// ObserveScan records a finished scan; outcome is "ok", "cancelled" or "error".
func (m *Metrics) ObserveScan(outcome string, elapsed time.Duration) {
	m.scans.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.scanDuration.Observe(elapsed.Seconds())
	}
}

// SetPicks reports the current size of the top picks collection.
func (m *Metrics) SetPicks(n int) {
	m.picks.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
