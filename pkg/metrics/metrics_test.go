package metrics_test

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/memes/prime/pkg/metrics"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const (
	TEST_TOLERANCE = 1e-9
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		aggregation metrics.Aggregation
		values      []float64
		expected    float64
	}{
		{metrics.HarmonicMean, []float64{}, 0},
		{metrics.HarmonicMean, []float64{0, 0}, 0},
		{metrics.HarmonicMean, []float64{4}, 4},
		{metrics.HarmonicMean, []float64{1, 4, 4}, 2},
		{metrics.HarmonicMean, []float64{1, 4, 4, 0}, 2},
		{metrics.GeometricMean, []float64{}, 0},
		{metrics.GeometricMean, []float64{2, 8}, 4},
		{metrics.GeometricMean, []float64{2, 8, 0}, 4},
		{metrics.ArithmeticMean, []float64{}, 0},
		{metrics.ArithmeticMean, []float64{1, 2, 3, 6}, 3},
		{metrics.Total, []float64{}, 0},
		{metrics.Total, []float64{1, 2, 3, 6}, 12},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("%d/%s", i, test.aggregation), func(t *testing.T) {
			if actual := test.aggregation.Aggregate(test.values); math.Abs(actual-test.expected) > TEST_TOLERANCE {
				t.Errorf("Expected %f got %f", test.expected, actual)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	registry := metrics.NewRegistry()
	if _, ok := registry.Value("primes per second"); ok {
		t.Error("Expected no value before publication")
	}
	var wg sync.WaitGroup
	for i, rate := range []float64{1, 4, 4} {
		wg.Add(1)
		go func(worker string, rate float64) {
			defer wg.Done()
			registry.Publish(worker, "primes per second", rate, metrics.HarmonicMean)
		}(fmt.Sprintf("prime-%d", i), rate)
	}
	wg.Wait()
	actual, ok := registry.Value("primes per second")
	if !ok {
		t.Fatal("Expected a value after publication")
	}
	if math.Abs(actual-2) > TEST_TOLERANCE {
		t.Errorf("Expected harmonic mean 2 got %f", actual)
	}
	if aggregation, _ := registry.Aggregation("primes per second"); aggregation != metrics.HarmonicMean {
		t.Errorf("Expected harmonic mean aggregation, got %s", aggregation)
	}
	if names := registry.Names(); len(names) != 1 || names[0] != "primes per second" {
		t.Errorf("Unexpected names %v", names)
	}
}

// A worker that publishes twice replaces its earlier value.
func TestRegistry_Republish(t *testing.T) {
	registry := metrics.NewRegistry()
	registry.Publish("prime-0", "ops", 5, metrics.Total)
	registry.Publish("prime-0", "ops", 7, metrics.Total)
	registry.Publish("prime-1", "ops", 3, metrics.Total)
	if actual, _ := registry.Value("ops"); actual != 10 {
		t.Errorf("Expected total 10 got %f", actual)
	}
}

func TestRegistry_OpenTelemetry(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() {
		_ = provider.Shutdown(ctx)
	}()
	registry := metrics.NewRegistry(
		metrics.WithMeter(provider.Meter("test")),
		metrics.WithPrefix("test"),
	)
	registry.Publish("prime-0", "primes per second", 10, metrics.HarmonicMean)
	registry.Publish("prime-1", "primes per second", 30, metrics.HarmonicMean)
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect returned an error: %v", err)
	}
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "test.primes_per_second" {
				continue
			}
			found = true
			histogram, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("Expected a float64 histogram, got %T", m.Data)
			}
			var count uint64
			var sum float64
			for _, dp := range histogram.DataPoints {
				count += dp.Count
				sum += dp.Sum
			}
			if count != 2 || sum != 40 {
				t.Errorf("Expected 2 measurements summing to 40, got %d and %f", count, sum)
			}
		}
	}
	if !found {
		t.Error("Histogram test.primes_per_second was not exported")
	}
}
