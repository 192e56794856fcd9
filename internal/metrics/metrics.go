// Package metrics exposes Prometheus collectors for the polling engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockwatch"

// Metrics holds the engine's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sweeps        prometheus.Counter
	sweepDuration prometheus.Histogram
	watchedItems  prometheus.Gauge
	fetches       *prometheus.CounterVec
	transitions   prometheus.Counter
	deliveries    *prometheus.CounterVec
	panics        prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Number of completed poll sweeps.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of poll sweeps in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		watchedItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watched_items",
			Help:      "Number of distinct items polled in the last sweep.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Upstream fetches by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Number of unavailable to available transitions.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Notification dispatches by result.",
		}, []string{"result"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_panics_total",
			Help:      "Recovered panics while processing an item.",
		}),
	}
	m.registry.MustRegister(
		m.sweeps, m.sweepDuration, m.watchedItems, m.fetches,
		m.transitions, m.deliveries, m.panics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveSweep records a finished sweep over items.
func (m *Metrics) ObserveSweep(items int, d time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.watchedItems.Set(float64(items))
	m.sweepDuration.Observe(d.Seconds())
}

// ObserveFetch counts one fetch under result ("ok", "unreachable", ...).
func (m *Metrics) ObserveFetch(result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
}

// ObserveTransition counts one rising edge.
func (m *Metrics) ObserveTransition() {
	if m == nil {
		return
	}
	m.transitions.Inc()
}

// ObserveDeliveries counts dispatch outcomes of one event.
func (m *Metrics) ObserveDeliveries(delivered, failed int) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues("delivered").Add(float64(delivered))
	m.deliveries.WithLabelValues("failed").Add(float64(failed))
}

// ObservePanic counts one recovered panic.
func (m *Metrics) ObservePanic() {
	if m == nil {
		return
	}
	m.panics.Inc()
}
