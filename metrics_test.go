package cimodel

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNoOpMetrics(t *testing.T) {
	metrics := &NoOpMetrics{}

	// Should not panic
	metrics.Increment("test")
	metrics.Gauge("test", 1.0)
	metrics.Histogram("test", 1.0)
	metrics.Timing("test", time.Second)
}

func TestInMemoryMetrics(t *testing.T) {
	metrics := NewInMemoryMetrics()

	metrics.Increment(MetricLoadHit, "table", "user_account")
	metrics.Increment(MetricLoadHit, "table", "orders")
	metrics.Gauge("queue", 5)
	metrics.Gauge("queue", 7)
	metrics.Histogram(MetricFindAllRows, 3)
	metrics.Timing(MetricGatewayLatency, 10*time.Millisecond)

	if metrics.Count(MetricLoadHit) != 2 {
		t.Errorf("expected counter 2, got %d", metrics.Count(MetricLoadHit))
	}
	if metrics.Gauges["queue"] != 7 {
		t.Errorf("expected last gauge value 7, got %v", metrics.Gauges["queue"])
	}
	if len(metrics.Histograms[MetricFindAllRows]) != 1 || len(metrics.Timings[MetricGatewayLatency]) != 1 {
		t.Error("expected one histogram and one timing sample")
	}
}

func TestInMemoryMetricsConcurrent(t *testing.T) {
	metrics := NewInMemoryMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.Increment(MetricInsertSuccess)
			metrics.Timing(MetricGatewayLatency, time.Millisecond)
		}()
	}
	wg.Wait()

	if metrics.Count(MetricInsertSuccess) != 50 {
		t.Errorf("expected 50, got %d", metrics.Count(MetricInsertSuccess))
	}
}

func TestMetricConstants(t *testing.T) {
	names := []string{
		MetricLoadHit, MetricLoadMiss, MetricLoadError,
		MetricInsertSuccess, MetricInsertError,
		MetricUpdateSuccess, MetricUpdateSkipped, MetricUpdateError,
		MetricDeleteSuccess, MetricDeleteError,
		MetricGatewayLatency, MetricFindAllRows,
		MetricIndexHits, MetricIndexMisses, MetricCollectionScan,
	}
	seen := make(map[string]bool)
	for _, name := range names {
		if !strings.HasPrefix(name, "cimodel.") {
			t.Errorf("metric %q should be namespaced", name)
		}
		if seen[name] {
			t.Errorf("duplicate metric name %q", name)
		}
		seen[name] = true
	}
}
