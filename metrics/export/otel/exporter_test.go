package otel

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	goSession "github.com/MrEthical07/goSession"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot  goSession.MetricsSnapshot
	delivered uint64
	dropped   uint64
}

func (f *fakeSource) MetricsSnapshot() goSession.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goSession.MetricsSnapshot{
		Counters:   make(map[goSession.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goSession.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDelivered() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.delivered
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func (f *fakeSource) BroadcastDropped() uint64 { return 0 }

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func hasAttrs(set attribute.Set, kv ...attribute.KeyValue) bool {
	for _, want := range kv {
		got, ok := set.Value(want.Key)
		if !ok || got.Emit() != want.Value.Emit() {
			return false
		}
	}
	return true
}

// findSum returns the value of the first sum data point carrying every attribute in kv.
func findSum(rm metricdata.ResourceMetrics, name string, kv ...attribute.KeyValue) (int64, bool) {
	m, ok := findMetric(rm, name)
	if !ok {
		return 0, false
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		return 0, false
	}
	for _, dp := range sum.DataPoints {
		if hasAttrs(dp.Attributes, kv...) {
			return dp.Value, true
		}
	}
	return 0, false
}

func findGauge(rm metricdata.ResourceMetrics, name string, kv ...attribute.KeyValue) (int64, bool) {
	m, ok := findMetric(rm, name)
	if !ok {
		return 0, false
	}
	gauge, ok := m.Data.(metricdata.Gauge[int64])
	if !ok {
		return 0, false
	}
	for _, dp := range gauge.DataPoints {
		if hasAttrs(dp.Attributes, kv...) {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gosession-test")

	src := &fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricRefreshSuccess: 3,
			},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricRefreshLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		delivered: 6,
		dropped:   1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if got, ok := findSum(rm, "gosession_refresh_success_total"); !ok || got != 3 {
		t.Fatalf("expected refresh success 3, got %d (found=%v)", got, ok)
	}
	audit := attribute.String("queue", "audit")
	if got, ok := findSum(rm, "gosession_queue_events_total", audit, attribute.String("outcome", "dropped")); !ok || got != 1 {
		t.Fatalf("expected audit dropped 1, got %d (found=%v)", got, ok)
	}
	if got, ok := findSum(rm, "gosession_queue_events_total", audit, attribute.String("outcome", "delivered")); !ok || got != 6 {
		t.Fatalf("expected audit delivered 6, got %d (found=%v)", got, ok)
	}
	if got, ok := findGauge(rm, "gosession_refresh_latency_seconds_bucket", attribute.String("le", "0.005")); !ok || got != 1 {
		t.Fatalf("expected first bucket 1, got %d (found=%v)", got, ok)
	}
	if got, ok := findGauge(rm, "gosession_refresh_latency_seconds_bucket", attribute.String("le", "+Inf")); !ok || got != 8 {
		t.Fatalf("expected +Inf bucket 8, got %d (found=%v)", got, ok)
	}
	if got, ok := findGauge(rm, "gosession_refresh_latency_seconds_count"); !ok || got != 8 {
		t.Fatalf("expected count 8, got %d (found=%v)", got, ok)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gosession-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gosession-test")

	src := &fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricLoginSuccess: 1,
			},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricRefreshLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goSession.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
