package cimodel

import (
	"sync"
	"time"
)

// Metrics provides observability for record and collection operations
type Metrics interface {
	// Increment increases a counter by 1
	Increment(name string, tags ...string)

	// Gauge sets an absolute value
	Gauge(name string, value float64, tags ...string)

	// Histogram records a value distribution (row counts, payload sizes)
	Histogram(name string, value float64, tags ...string)

	// Timing records a duration
	Timing(name string, duration time.Duration, tags ...string)
}

// NoOpMetrics is a metrics collector that does nothing
type NoOpMetrics struct{}

func (m *NoOpMetrics) Increment(name string, tags ...string)                      {}
func (m *NoOpMetrics) Gauge(name string, value float64, tags ...string)           {}
func (m *NoOpMetrics) Histogram(name string, value float64, tags ...string)       {}
func (m *NoOpMetrics) Timing(name string, duration time.Duration, tags ...string) {}

// InMemoryMetrics stores metrics in memory for testing
type InMemoryMetrics struct {
	mu         sync.Mutex
	Counters   map[string]int
	Gauges     map[string]float64
	Histograms map[string][]float64
	Timings    map[string][]time.Duration
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		Counters:   make(map[string]int),
		Gauges:     make(map[string]float64),
		Histograms: make(map[string][]float64),
		Timings:    make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Increment(name string, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counters[name]++
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gauges[name] = value
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Histograms[name] = append(m.Histograms[name], value)
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Timings[name] = append(m.Timings[name], duration)
}

// Count returns the current value of a counter
func (m *InMemoryMetrics) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Counters[name]
}

// Common metric names. Tags are passed as the table name (records) or
// the joined index fields (collections).
const (
	MetricLoadHit        = "cimodel.record.load.hit"
	MetricLoadMiss       = "cimodel.record.load.miss"
	MetricLoadError      = "cimodel.record.load.error"
	MetricInsertSuccess  = "cimodel.record.insert.success"
	MetricInsertError    = "cimodel.record.insert.error"
	MetricUpdateSuccess  = "cimodel.record.update.success"
	MetricUpdateSkipped  = "cimodel.record.update.skipped"
	MetricUpdateError    = "cimodel.record.update.error"
	MetricDeleteSuccess  = "cimodel.record.delete.success"
	MetricDeleteError    = "cimodel.record.delete.error"
	MetricGatewayLatency = "cimodel.gateway.latency"
	MetricFindAllRows    = "cimodel.record.find_all.rows"
	MetricIndexHits      = "cimodel.collection.index.hits"
	MetricIndexMisses    = "cimodel.collection.index.misses"
	MetricCollectionScan = "cimodel.collection.scan"
)
