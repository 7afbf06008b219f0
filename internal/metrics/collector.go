package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "webswarm"

// Collector owns a private registry so tests and embedded runs never clash
// with the global default registry.
type Collector struct {
	registry *prometheus.Registry

	runsTotal          *prometheus.CounterVec
	outcomesTotal      *prometheus.CounterVec
	slotDuration       *prometheus.HistogramVec
	featuresDiscovered prometheus.Gauge
	featuresDuplicate  prometheus.Counter
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration prometheus.Histogram
	httpRequestsTotal  *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Test runs started, by mode.",
	}, []string{"mode"})
	c.outcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outcomes_total",
		Help:      "Outcome records appended to reports.",
	}, []string{"mode", "status"})
	c.slotDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "slot_duration_seconds",
		Help:      "Wall time of one agent slot from session open to close.",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"mode"})
	c.featuresDiscovered = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "features_discovered",
		Help:      "Feature points found by the most recent discovery phase.",
	})
	c.featuresDuplicate = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "features_duplicate_total",
		Help:      "Feature points dropped as duplicates.",
	})
	c.llmRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_requests_total",
		Help:      "LLM requests, by result.",
	}, []string{"status"})
	c.llmRequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_request_duration_seconds",
		Help:      "LLM request latency including streaming.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	c.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Requests served by the history API, by route and status code.",
	}, []string{"route", "code"})

	c.registry.MustRegister(
		c.runsTotal,
		c.outcomesTotal,
		c.slotDuration,
		c.featuresDiscovered,
		c.featuresDuplicate,
		c.llmRequestsTotal,
		c.llmRequestDuration,
		c.httpRequestsTotal,
		collectors.NewGoCollector(),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RunStarted(mode string) {
	c.runsTotal.WithLabelValues(mode).Inc()
}

func (c *Collector) OutcomeRecorded(mode, status string) {
	c.outcomesTotal.WithLabelValues(mode, status).Inc()
}

func (c *Collector) SlotFinished(mode string, d time.Duration) {
	c.slotDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (c *Collector) SetFeaturesDiscovered(n int) {
	c.featuresDiscovered.Set(float64(n))
}

func (c *Collector) AddDuplicateFeatures(n int) {
	c.featuresDuplicate.Add(float64(n))
}

func (c *Collector) LLMRequest(status string, d time.Duration) {
	c.llmRequestsTotal.WithLabelValues(status).Inc()
	c.llmRequestDuration.Observe(d.Seconds())
}

func (c *Collector) HTTPRequest(route string, code int) {
	c.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
