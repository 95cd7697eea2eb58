package cimodel

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
// Tags are key-value pairs and become labels.
type PrometheusMetrics struct {
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance.
// A nil registry gets a fresh one.
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	pm := &PrometheusMetrics{
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		registry:   registry,
	}

	pm.registerDefaultMetrics()
	return pm
}

// registerDefaultMetrics registers the metrics records and collections emit
func (p *PrometheusMetrics) registerDefaultMetrics() {
	recordCounters := map[string][2]string{
		MetricLoadHit:       {"load_hits_total", "Loads that found a row"},
		MetricLoadMiss:      {"load_misses_total", "Loads that found no row"},
		MetricLoadError:     {"load_errors_total", "Loads that failed in the gateway"},
		MetricInsertSuccess: {"inserts_total", "Successful inserts"},
		MetricInsertError:   {"insert_errors_total", "Failed inserts"},
		MetricUpdateSuccess: {"updates_total", "Successful updates"},
		MetricUpdateSkipped: {"updates_skipped_total", "Updates skipped because nothing changed"},
		MetricUpdateError:   {"update_errors_total", "Failed updates"},
		MetricDeleteSuccess: {"deletes_total", "Successful deletes"},
		MetricDeleteError:   {"delete_errors_total", "Failed deletes"},
	}
	for metric, desc := range recordCounters {
		p.counters[metric] = promauto.With(p.registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cimodel",
				Subsystem: "record",
				Name:      desc[0],
				Help:      desc[1],
			},
			[]string{"table"},
		)
	}

	p.counters[MetricIndexHits] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cimodel",
			Subsystem: "collection",
			Name:      "index_hits_total",
			Help:      "Collection lookups answered by the composite key index",
		},
		[]string{"index"},
	)

	p.counters[MetricIndexMisses] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cimodel",
			Subsystem: "collection",
			Name:      "index_misses_total",
			Help:      "Collection lookups the index could not answer",
		},
		[]string{"index"},
	)

	p.counters[MetricCollectionScan] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cimodel",
			Subsystem: "collection",
			Name:      "scans_total",
			Help:      "Collection lookups that scanned every element",
		},
		[]string{"index"},
	)

	p.histograms[MetricGatewayLatency] = promauto.With(p.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cimodel",
			Subsystem: "gateway",
			Name:      "operation_duration_seconds",
			Help:      "Gateway call duration in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"table", "operation"},
	)

	p.histograms[MetricFindAllRows] = promauto.With(p.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cimodel",
			Subsystem: "record",
			Name:      "find_all_rows",
			Help:      "Rows materialised per FindAll",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"table"},
	)
}

// Increment increments a Prometheus counter
func (p *PrometheusMetrics) Increment(name string, tags ...string) {
	p.mu.Lock()
	counter, ok := p.counters[name]
	if !ok {
		counter = promauto.With(p.registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cimodel",
				Name:      metricName(name),
				Help:      "Dynamic counter: " + name,
			},
			p.extractLabels(tags),
		)
		p.counters[name] = counter
	}
	p.mu.Unlock()

	counter.With(p.extractLabelValues(tags)).Inc()
}

// Gauge sets a Prometheus gauge value
func (p *PrometheusMetrics) Gauge(name string, value float64, tags ...string) {
	p.mu.Lock()
	gauge, ok := p.gauges[name]
	if !ok {
		gauge = promauto.With(p.registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cimodel",
				Name:      metricName(name),
				Help:      "Dynamic gauge: " + name,
			},
			p.extractLabels(tags),
		)
		p.gauges[name] = gauge
	}
	p.mu.Unlock()

	gauge.With(p.extractLabelValues(tags)).Set(value)
}

// Histogram records a value in a Prometheus histogram
func (p *PrometheusMetrics) Histogram(name string, value float64, tags ...string) {
	p.mu.Lock()
	histogram, ok := p.histograms[name]
	if !ok {
		histogram = promauto.With(p.registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cimodel",
				Name:      metricName(name),
				Help:      "Dynamic histogram: " + name,
				Buckets:   prometheus.DefBuckets,
			},
			p.extractLabels(tags),
		)
		p.histograms[name] = histogram
	}
	p.mu.Unlock()

	histogram.With(p.extractLabelValues(tags)).Observe(value)
}

// Timing records a duration in a Prometheus histogram
func (p *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...string) {
	p.Histogram(name, duration.Seconds(), tags...)
}

// extractLabels extracts label names from tags (every even index)
func (p *PrometheusMetrics) extractLabels(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	labels := make([]string, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		labels = append(labels, tags[i])
	}
	return labels
}

// extractLabelValues creates a label map from tags (key-value pairs)
func (p *PrometheusMetrics) extractLabelValues(tags []string) prometheus.Labels {
	labels := make(prometheus.Labels, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		labels[tags[i]] = tags[i+1]
	}
	return labels
}

// Registry returns the underlying Prometheus registry
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format
func (p *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// metricName turns "cimodel.record.load.hit" into "record_load_hit"
func metricName(name string) string {
	name = strings.TrimPrefix(name, "cimodel.")
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
