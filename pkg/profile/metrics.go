package profile

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the fixed set of Prometheus series 's
// Profiling component reports: worker queue depth, container launch
// latency, and cache hit ratio, namespaced "brane" — grounded on the
// teacher pack's dshills-langgraph-go PrometheusMetrics (one struct of
// promauto-registered gauges/histograms/counters built from a single
// registry at construction time).
type Metrics struct {
	registry prometheus.Registerer

	queueDepth   *prometheus.GaugeVec
	scopeLatency *prometheus.HistogramVec
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics registers every series with registry (prometheus.DefaultRegisterer
// if nil) and returns a ready-to-use Metrics.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		enabled:  true,
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "brane",
			Name:      "worker_queue_depth",
			Help:      "Number of tasks queued for execution on this worker domain",
		}, []string{"domain"}),
		scopeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "brane",
			Name:      "scope_latency_ms",
			Help:      "Duration of a profiled scope in milliseconds, labeled by scope name and outcome",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000, 120000},
		}, []string{"scope", "status"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brane",
			Name:      "cache_hits_total",
			Help:      "Cache lookups served from the in-process cache without a refresh",
		}, []string{"cache"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brane",
			Name:      "cache_misses_total",
			Help:      "Cache lookups that required a refresh",
		}, []string{"cache"}),
	}
}

// RecordScope records one Scope.End call's elapsed duration.
func (m *Metrics) RecordScope(scope string, elapsed time.Duration, status string) {
	if m == nil || !m.isEnabled() {
		return
	}
	m.scopeLatency.WithLabelValues(scope, status).Observe(float64(elapsed.Milliseconds()))
}

// SetQueueDepth reports the current number of queued tasks for domain.
func (m *Metrics) SetQueueDepth(domain string, depth int) {
	if m == nil || !m.isEnabled() {
		return
	}
	m.queueDepth.WithLabelValues(domain).Set(float64(depth))
}

// RecordCacheLookup increments the hit or miss counter for the named
// cache (e.g. "domain_registry", "package_index", "data_index").
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil || !m.isEnabled() {
		return
	}
	if hit {
		m.cacheHits.WithLabelValues(cache).Inc()
	} else {
		m.cacheMisses.WithLabelValues(cache).Inc()
	}
}

// Disable stops further recording; existing series remain registered.
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable resumes recording after Disable.
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

func (m *Metrics) isEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Handler returns the HTTP handler a node binary mounts at /metrics,
// pointed at the same registry the series were registered with.
func (m *Metrics) Handler() http.Handler {
	if reg, ok := m.registry.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}
