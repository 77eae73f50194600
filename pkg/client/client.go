// Package client implements a gRPC client that queries a status server for the
// serving status of stressors, with optional OpenTelemetry metrics and traces.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// The default maximum timeout that will be applied to requests.
	DefaultMaxTimeout = 10 * time.Second
	// The default name to use when registering OpenTelemetry components.
	DefaultOpenTelemetryClientName = "pkg.client"
)

// StatusClient checks the health status of stressors published by a status
// server.
type StatusClient struct {
	// The logr.Logger instance to use.
	logger logr.Logger
	// The client maximum timeout/deadline to use when making requests.
	maxTimeout time.Duration
	// The OpenTelemetry tracer to use for spans.
	tracer trace.Tracer
	// The OpenTelemetry meter to use for metrics.
	meter metric.Meter
	// The prefix to use for metrics.
	prefix string
	// A counter for the number of response errors.
	responseErrors metric.Int64Counter
	// A histogram of request durations.
	durationMs metric.Int64Histogram
	// A set of gRPC DialOptions to use.
	dialOptions []grpc.DialOption
}

// Defines a function signature for StatusClient options.
type StatusClientOption func(*StatusClient)

// Create a new StatusClient with optional settings.
func NewStatusClient(options ...StatusClientOption) (*StatusClient, error) {
	client := &StatusClient{
		logger:     logr.Discard(),
		maxTimeout: DefaultMaxTimeout,
		tracer:     tracenoop.NewTracerProvider().Tracer(DefaultOpenTelemetryClientName),
		meter:      metricnoop.NewMeterProvider().Meter(DefaultOpenTelemetryClientName),
		prefix:     DefaultOpenTelemetryClientName,
		dialOptions: []grpc.DialOption{
			grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		},
	}
	for _, option := range options {
		option(client)
	}
	var err error
	client.responseErrors, err = client.meter.Int64Counter(
		client.telemetryName("response_errors"),
		metric.WithDescription("The count of error responses received by client"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating responseErrors Counter: %w", err)
	}
	client.durationMs, err = client.meter.Int64Histogram(
		client.telemetryName("request_duration_ms"),
		metric.WithUnit("ms"),
		metric.WithDescription("The duration (ms) of requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating durationMs Histogram: %w", err)
	}
	return client, nil
}

// Use the supplied logr.logger.
func WithLogger(logger logr.Logger) StatusClientOption {
	return func(c *StatusClient) {
		c.logger = logger
	}
}

// Set the maximum timeout for client requests.
func WithMaxTimeout(maxTimeout time.Duration) StatusClientOption {
	return func(c *StatusClient) {
		c.maxTimeout = maxTimeout
	}
}

// Add an OpenTelemetry tracer implementation to the client.
func WithTracer(tracer trace.Tracer) StatusClientOption {
	return func(c *StatusClient) {
		c.tracer = tracer
	}
}

// Add an OpenTelemetry metric meter implementation to the client.
func WithMeter(meter metric.Meter) StatusClientOption {
	return func(c *StatusClient) {
		c.meter = meter
	}
}

// Set the prefix to use for OpenTelemetry metrics.
func WithPrefix(prefix string) StatusClientOption {
	return func(c *StatusClient) {
		c.prefix = prefix
	}
}

// Set the TransportCredentials to use for connections; nil credentials will
// use an insecure transport.
func WithTransportCredentials(creds credentials.TransportCredentials) StatusClientOption {
	return func(c *StatusClient) {
		if creds == nil {
			creds = insecure.NewCredentials()
		}
		c.dialOptions = append(c.dialOptions, grpc.WithTransportCredentials(creds))
	}
}

// Set the authority to use for TLS verification, overriding the target name.
func WithAuthority(authority string) StatusClientOption {
	return func(c *StatusClient) {
		if authority != "" {
			c.dialOptions = append(c.dialOptions, grpc.WithAuthority(authority))
		}
	}
}

// Add arbitrary gRPC DialOptions to the client.
func WithDialOptions(options ...grpc.DialOption) StatusClientOption {
	return func(c *StatusClient) {
		c.dialOptions = append(c.dialOptions, options...)
	}
}

// Generates a name for the metric or span.
func (c *StatusClient) telemetryName(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + "." + name
}

// Create a new gRPC client connection to the target using the client's dial
// options.
func (c *StatusClient) Connect(target string) (*grpc.ClientConn, error) {
	c.logger.V(1).Info("Creating gRPC client connection", "target", target)
	conn, err := grpc.NewClient(target, c.dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", target, err)
	}
	return conn, nil
}

// Retrieve the serving status of the named service; an empty service name
// returns the overall status of the server.
func (c *StatusClient) Check(ctx context.Context, conn *grpc.ClientConn, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	logger := c.logger.V(1).WithValues("service", service)
	logger.Info("Check: enter")
	attributes := []attribute.KeyValue{
		attribute.String(c.telemetryName("service"), service),
	}
	ctx, span := c.tracer.Start(ctx, DefaultOpenTelemetryClientName+"/Check")
	defer span.End()
	span.SetAttributes(attributes...)
	ctx, cancel := context.WithTimeout(ctx, c.maxTimeout)
	defer cancel()
	startTimestamp := time.Now()
	response, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{
		Service: service,
	})
	duration := time.Since(startTimestamp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		attributes = append(attributes, attribute.Bool(c.telemetryName("success"), false))
		c.responseErrors.Add(ctx, 1, metric.WithAttributes(attributes...))
		c.durationMs.Record(ctx, duration.Milliseconds(), metric.WithAttributes(attributes...))
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, fmt.Errorf("failure calling Check: %w", err)
	}
	attributes = append(attributes, attribute.Bool(c.telemetryName("success"), true))
	c.durationMs.Record(ctx, duration.Milliseconds(), metric.WithAttributes(attributes...))
	logger.Info("Check: exit", "status", response.GetStatus().String())
	return response.GetStatus(), nil
}
