// Package metrics exposes scan and build counters over Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cargoscan"

// Scan and build outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeStale     = "stale"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the collectors of one process. A nil *Metrics records
// nothing.
type Metrics struct {
	registry     *prometheus.Registry
	scans        *prometheus.CounterVec
	coalesced    prometheus.Counter
	diagnostics  *prometheus.CounterVec
	scanDuration prometheus.Histogram
	builds       *prometheus.CounterVec
	watchEvents  *prometheus.CounterVec
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Completed project scans by outcome.",
		}, []string{"outcome"}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_coalesced_total",
			Help:      "Scan requests folded into a pending rerun because a scan was in flight.",
		}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Diagnostics parsed from build output by severity.",
		}, []string{"severity"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of metadata fetch plus tree walk.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Finished build and clean runs by step and outcome.",
		}, []string{"step", "outcome"}),
		watchEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_triggers_total",
			Help:      "Filesystem and manifest triggers by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(
		m.scans,
		m.coalesced,
		m.diagnostics,
		m.scanDuration,
		m.builds,
		m.watchEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveScan records one finished scan.
func (m *Metrics) ObserveScan(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(outcome).Inc()
	m.scanDuration.Observe(d.Seconds())
}

// ScanCoalesced records a request absorbed by the in-flight scan.
func (m *Metrics) ScanCoalesced() {
	if m == nil {
		return
	}
	m.coalesced.Inc()
}

// Diagnostic records one parsed diagnostic.
func (m *Metrics) Diagnostic(severity string) {
	if m == nil {
		return
	}
	m.diagnostics.WithLabelValues(severity).Inc()
}

// Build records a finished build or clean step.
func (m *Metrics) Build(step, outcome string) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(step, outcome).Inc()
}

// Trigger records a rescan trigger.
func (m *Metrics) Trigger(reason string) {
	if m == nil {
		return
	}
	m.watchEvents.WithLabelValues(reason).Inc()
}
