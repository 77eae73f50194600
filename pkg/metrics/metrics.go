// Package metrics collects named per-worker measurements published by
// stressors and aggregates them into a single value per name, mirroring every
// measurement to an OpenTelemetry histogram.
package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// The default name to use when using OpenTelemetry components.
	OpenTelemetryPackageIdentifier = "pkg.metrics"
)

// Aggregation defines how the per-worker values of a metric are combined.
type Aggregation int

const (
	// The harmonic mean of all positive values; appropriate for rates of a
	// shared workload.
	HarmonicMean Aggregation = iota
	// The geometric mean of all positive values.
	GeometricMean
	// The arithmetic mean of all values.
	ArithmeticMean
	// The sum of all values.
	Total
)

func (a Aggregation) String() string {
	switch a {
	case HarmonicMean:
		return "harmonic mean"
	case GeometricMean:
		return "geometric mean"
	case ArithmeticMean:
		return "arithmetic mean"
	case Total:
		return "total"
	default:
		return fmt.Sprintf("Aggregation(%d)", int(a))
	}
}

// Aggregate combines the values according to the aggregation; an empty set of
// values, or a set with no positive values for the means that ignore them,
// aggregates to zero.
func (a Aggregation) Aggregate(values []float64) float64 {
	switch a {
	case HarmonicMean:
		var n, sum float64
		for _, v := range values {
			if v > 0 {
				n++
				sum += 1 / v
			}
		}
		if sum == 0 {
			return 0
		}
		return n / sum
	case GeometricMean:
		var n, sum float64
		for _, v := range values {
			if v > 0 {
				n++
				sum += math.Log(v)
			}
		}
		if n == 0 {
			return 0
		}
		return math.Exp(sum / n)
	case ArithmeticMean:
		if len(values) == 0 {
			return 0
		}
		return Total.Aggregate(values) / float64(len(values))
	default:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	}
}

type series struct {
	aggregation Aggregation
	values      map[string]float64
	histogram   metric.Float64Histogram
}

// Registry stores the most recent value published by each worker for each
// metric name. It is safe for concurrent use.
type Registry struct {
	logger logr.Logger
	meter  metric.Meter
	prefix string
	mu     sync.Mutex
	series map[string]*series
}

// Defines the function signature for Registry options.
type RegistryOption func(*Registry)

// Create a new Registry and apply any options.
func NewRegistry(options ...RegistryOption) *Registry {
	registry := &Registry{
		logger: logr.Discard(),
		meter:  otel.Meter(OpenTelemetryPackageIdentifier),
		prefix: OpenTelemetryPackageIdentifier,
		series: map[string]*series{},
	}
	for _, option := range options {
		option(registry)
	}
	return registry
}

// Use the supplied logger for the registry.
func WithLogger(logger logr.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// Record published values with the supplied OpenTelemetry meter.
func WithMeter(meter metric.Meter) RegistryOption {
	return func(r *Registry) {
		if meter != nil {
			r.meter = meter
		}
	}
}

// Set the prefix to use for OpenTelemetry instrument names.
func WithPrefix(prefix string) RegistryOption {
	return func(r *Registry) {
		r.prefix = prefix
	}
}

// Generates an OpenTelemetry instrument name from a human readable metric name.
func (r *Registry) telemetryName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	if r.prefix == "" {
		return name
	}
	return r.prefix + "." + name
}

// Publish records value as the worker's latest measurement for the named
// metric. The aggregation of the first publication of a name is retained.
func (r *Registry) Publish(worker, name string, value float64, aggregation Aggregation) {
	logger := r.logger.V(1).WithValues("worker", worker, "name", name, "value", value, "aggregation", aggregation.String())
	logger.Info("Publish: enter")
	r.mu.Lock()
	s, ok := r.series[name]
	if !ok {
		s = &series{
			aggregation: aggregation,
			values:      map[string]float64{},
		}
		histogram, err := r.meter.Float64Histogram(
			r.telemetryName(name),
			metric.WithDescription(fmt.Sprintf("Per-worker %s", name)),
		)
		if err != nil {
			logger.Error(err, "Failed to create histogram; measurement will not be exported")
		}
		s.histogram = histogram
		r.series[name] = s
	}
	s.values[worker] = value
	histogram := s.histogram
	r.mu.Unlock()
	if histogram != nil {
		histogram.Record(context.Background(), value,
			metric.WithAttributes(attribute.String(r.telemetryName("worker"), worker)),
		)
	}
	logger.Info("Publish: exit")
}

// Returns the aggregated value of the named metric, and false if no worker has
// published it.
func (r *Registry) Value(name string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.series[name]
	if !ok {
		return 0, false
	}
	values := make([]float64, 0, len(s.values))
	for _, v := range s.values {
		values = append(values, v)
	}
	return s.aggregation.Aggregate(values), true
}

// Returns the aggregation used for the named metric.
func (r *Registry) Aggregation(name string) (Aggregation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.series[name]
	if !ok {
		return 0, false
	}
	return s.aggregation, true
}

// Returns the sorted names of all published metrics.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.series))
	for name := range r.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
