// Package metrics records request outcomes and exposes them in the
// Prometheus text format. Recording is best-effort: it never blocks the
// request path and never panics into it.
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"semembed/embedding"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "semembed"

// Event is emitted once per completed request.
type Event struct {
	Model   string
	Outcome embedding.Kind // empty on success
	Latency time.Duration
	Tokens  int
	Inputs  int
}

func (e Event) outcome() string {
	if e.Outcome == "" {
		return "success"
	}
	return string(e.Outcome)
}

// Collector implements registry.Observer and executor.Observer in
// addition to request recording.
type Collector struct {
	registry *prometheus.Registry
	logger   *slog.Logger

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	tokens        *prometheus.CounterVec
	errors        *prometheus.CounterVec
	inputs        *prometheus.HistogramVec
	batchSize     *prometheus.HistogramVec
	batchDuration *prometheus.HistogramVec
	loads         *prometheus.CounterVec
	loadDuration  *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
}

func New(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		logger:   logger,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of embedding requests",
		}, []string{"model", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Embedding request latency",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"model", "outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_processed_total",
			Help:      "Total number of tokens embedded",
		}, []string{"model"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of failed embedding requests",
		}, []string{"model", "kind"}),
		inputs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_inputs",
			Help:      "Number of input strings per request",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"model"}),
		batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of inputs per backend call",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"model"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Backend call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      "Model load attempts",
		}, []string{"model", "outcome"}),
		loadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_load_duration_seconds",
			Help:      "Model load latency",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"model"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Embedding cache lookups per input",
		}, []string{"model", "result"}),
	}
	reg.MustRegister(
		c.requests, c.duration, c.tokens, c.errors, c.inputs,
		c.batchSize, c.batchDuration, c.loads, c.loadDuration, c.cacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Record counts a completed request.
func (c *Collector) Record(ev Event) {
	defer c.guard("record")
	outcome := ev.outcome()
	c.requests.WithLabelValues(ev.Model, outcome).Inc()
	c.duration.WithLabelValues(ev.Model, outcome).Observe(ev.Latency.Seconds())
	if ev.Outcome != "" {
		c.errors.WithLabelValues(ev.Model, outcome).Inc()
		return
	}
	c.tokens.WithLabelValues(ev.Model).Add(float64(ev.Tokens))
	c.inputs.WithLabelValues(ev.Model).Observe(float64(ev.Inputs))
}

// ObserveLoad implements registry.Observer
func (c *Collector) ObserveLoad(model string, err error, elapsed time.Duration) {
	defer c.guard("load")
	outcome := "success"
	if err != nil {
		outcome = string(embedding.KindOf(err))
	}
	c.loads.WithLabelValues(model, outcome).Inc()
	c.loadDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}

// ObserveChunk implements executor.Observer
func (c *Collector) ObserveChunk(model string, size int, elapsed time.Duration) {
	defer c.guard("chunk")
	c.batchSize.WithLabelValues(model).Observe(float64(size))
	c.batchDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}

// ObserveCache counts per-input cache results. A failed lookup counts
// every input as an error.
func (c *Collector) ObserveCache(model string, hits, misses int, err error) {
	defer c.guard("cache")
	if err != nil {
		c.cacheLookups.WithLabelValues(model, "error").Add(float64(hits + misses))
		return
	}
	c.cacheLookups.WithLabelValues(model, "hit").Add(float64(hits))
	c.cacheLookups.WithLabelValues(model, "miss").Add(float64(misses))
}

// WatchLoadedModels registers a gauge that reports len(list()) at scrape
// time.
func (c *Collector) WatchLoadedModels(list func() []string) {
	defer c.guard("gauge")
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "models_loaded",
		Help:      "Number of models currently loaded",
	}, func() float64 { return float64(len(list())) }))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) guard(op string) {
	if p := recover(); p != nil {
		c.logger.Warn("metrics recording failed", "op", op, "panic", p)
	}
}
