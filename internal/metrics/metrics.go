// Package metrics exposes crawl statistics as Prometheus metrics.
//
// Metrics uses its own registry instead of the global one so that several
// sessions (or tests) never collide. It implements stats.Observer, so every
// counter update made by the crawl engine is mirrored here as it happens.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "webspider"

// Metrics holds every collector of a crawl process.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	latency        prometheus.Histogram
	robotsChecks   prometheus.Counter
	robotsBlocks   prometheus.Counter
	retriesDropped prometheus.Counter
	pagesStored    prometheus.Counter

	queued prometheus.Gauge
	active prometheus.Gauge
	hosts  prometheus.Gauge
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Fetch attempts by status class.",
		}, []string{"class"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of fetch attempts.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		robotsChecks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "robots_checks_total",
			Help:      "robots.txt downloads.",
		}),
		robotsBlocks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "robots_blocks_total",
			Help:      "URLs refused by robots.txt.",
		}),
		retriesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_dropped_total",
			Help:      "URLs dropped after exhausting their retries.",
		}),
		pagesStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_stored_total",
			Help:      "Pages handed to the persistence sink.",
		}),
		queued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frontier_queued",
			Help:      "URLs waiting in the frontier.",
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Requests in flight.",
		}),
		hosts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_hosts",
			Help:      "Hosts with politeness state.",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAttempt implements stats.Observer.
func (m *Metrics) ObserveAttempt(_ string, status int, responseTime time.Duration) {
	m.requests.WithLabelValues(statusClass(status)).Inc()
	m.latency.Observe(responseTime.Seconds())
}

// ObserveRobotsCheck implements stats.Observer.
func (m *Metrics) ObserveRobotsCheck(string) {
	m.robotsChecks.Inc()
}

// ObserveRobotsBlock implements stats.Observer.
func (m *Metrics) ObserveRobotsBlock(string) {
	m.robotsBlocks.Inc()
}

// ObserveRetryDropped implements stats.Observer.
func (m *Metrics) ObserveRetryDropped(string) {
	m.retriesDropped.Inc()
}

// ObservePageStored implements stats.Observer.
func (m *Metrics) ObservePageStored(string) {
	m.pagesStored.Inc()
}

// ObserveQueue implements stats.Observer.
func (m *Metrics) ObserveQueue(queued, active, hosts int) {
	m.queued.Set(float64(queued))
	m.active.Set(float64(active))
	m.hosts.Set(float64(hosts))
}

// statusClass maps a status code to "2xx".."5xx", or "error" when no
// response arrived.
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
