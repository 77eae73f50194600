package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	gcpdetectors "go.opentelemetry.io/contrib/detectors/gcp"
	hostinstrumentation "go.opentelemetry.io/contrib/instrumentation/host"
	runtimeinstrumentation "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	grpcinsecure "google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"
)

const (
	metricReportingPeriod = 30 * time.Second
)

type shutdownFunction func(context.Context) error

func noopShutdownFunction(_ context.Context) error {
	return nil
}

// Create a new OpenTelemetry resource to describe the source of metrics and traces.
func newTelemetryResource(ctx context.Context, name string) (*resource.Resource, error) {
	logger := logger.V(1).WithValues("name", name)
	logger.Info("Creating new OpenTelemetry resource descriptor")
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for telemetry resource: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNamespace(PackageName),
			semconv.ServiceName(name),
			semconv.ServiceVersion(version),
			semconv.ServiceInstanceID(id.String()),
		),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithOS(),
		resource.WithProcessPID(),
		resource.WithProcessExecutableName(),
		resource.WithProcessRuntimeName(),
		resource.WithProcessRuntimeVersion(),
		// GCP detection is last so that platform attributes override the base
		// service attributes.
		resource.WithDetectors(gcpdetectors.NewDetector()),
	)
	switch {
	case errors.Is(err, resource.ErrPartialResource):
		logger.V(0).Info("OpenTelemetry resource is incomplete", "err", err)
	case err != nil:
		return nil, fmt.Errorf("failed to create new telemetry resource: %w", err)
	}
	logger.V(1).Info("OpenTelemetry resource created", "resource", res)
	return res, nil
}

// Initializes a meter provider that will periodically send OpenTelemetry
// metrics to the target provided, returning shutdown functions.
func initMetrics(ctx context.Context, target string, options []otlpmetricgrpc.Option, res *resource.Resource) ([]shutdownFunction, error) {
	logger := logger.V(1).WithValues("target", target)
	logger.V(1).Info("Creating OpenTelemetry metric handlers")
	if target == "" {
		logger.V(0).Info("OpenTelemetry endpoint is not set; no metrics will be sent to collector")
		return []shutdownFunction{
			noopShutdownFunction,
		}, nil
	}
	exporter, err := otlpmetricgrpc.New(ctx, append(options,
		otlpmetricgrpc.WithEndpoint(target),
		otlpmetricgrpc.WithCompressor(gzip.Name),
	)...)
	if err != nil {
		return []shutdownFunction{
			noopShutdownFunction,
		}, fmt.Errorf("failed to create new metric exporter: %w", err)
	}
	// NOTE: provider.Shutdown will shutdown the reader and exporter.
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(metricReportingPeriod))),
		sdkmetric.WithResource(res),
	)
	shutdownFuncs := []shutdownFunction{
		func(ctx context.Context) error {
			if err := provider.Shutdown(ctx); err != nil {
				return fmt.Errorf("error during OpenTelemetry meter provider shutdown: %w", err)
			}
			return nil
		},
	}
	if err = runtimeinstrumentation.Start(runtimeinstrumentation.WithMeterProvider(provider)); err != nil {
		return shutdownFuncs, fmt.Errorf("failed to start runtime metrics: %w", err)
	}
	if err = hostinstrumentation.Start(hostinstrumentation.WithMeterProvider(provider)); err != nil {
		return shutdownFuncs, fmt.Errorf("failed to start host metrics: %w", err)
	}
	otel.SetMeterProvider(provider)
	logger.V(1).Info("OpenTelemetry metric handlers created and started")
	return shutdownFuncs, nil
}

// Initializes a tracer provider that will send OpenTelemetry spans to the
// target provided, returning shutdown functions.
func initTrace(ctx context.Context, target string, options []otlptracegrpc.Option, res *resource.Resource, sampler sdktrace.Sampler) ([]shutdownFunction, error) {
	logger := logger.V(1).WithValues("target", target, "sampler", sampler.Description())
	logger.V(1).Info("Creating new OpenTelemetry trace exporter")
	if target == "" {
		logger.V(0).Info("OpenTelemetry endpoint is not set; no traces will be sent to collector")
		return []shutdownFunction{
			noopShutdownFunction,
		}, nil
	}
	exporter, err := otlptracegrpc.New(ctx, append(options,
		otlptracegrpc.WithEndpoint(target),
		otlptracegrpc.WithCompressor(gzip.Name),
	)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create new trace exporter: %w", err)
	}
	// NOTE: provider.Shutdown will shutdown every registered span processor
	// so don't add an explicit shutdown function.
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	shutdownFuncs := []shutdownFunction{
		func(ctx context.Context) error {
			if err := provider.Shutdown(ctx); err != nil {
				return fmt.Errorf("error during OpenTelemetry trace provider shutdown: %w", err)
			}
			return nil
		},
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetTracerProvider(provider)
	logger.V(1).Info("OpenTelemetry trace handlers created and started")
	return shutdownFuncs, nil
}

// Returns the transport credentials to use with the OpenTelemetry collector.
func newTelemetryTransportCredentials() (credentials.TransportCredentials, error) {
	if viper.GetBool(OpenTelemetryInsecureFlagName) {
		return grpcinsecure.NewCredentials(), nil
	}
	certPool, err := newCACertPool(viper.GetStringSlice(CACertFlagName))
	if err != nil {
		return nil, err
	}
	tlsConfig, err := newTLSConfig(viper.GetString(TLSCertFlagName), viper.GetString(TLSKeyFlagName), nil, certPool)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(tlsConfig), nil
}

// Initializes OpenTelemetry metric and trace processing and deliver to a collector
// target, returning a list of function that can be called to shutdown the background
// pipeline processes.
func initTelemetry(ctx context.Context, name string) ([]shutdownFunction, error) {
	otel.SetLogger(logger)
	target := viper.GetString(OpenTelemetryTargetFlagName)
	authority := viper.GetString(OpenTelemetryAuthorityFlagName)
	ratio := viper.GetFloat64(OpenTelemetrySamplingRatioFlagName)
	logger := logger.V(1).WithValues(
		"name", name,
		"target", target,
		"authority", authority,
		"ratio", ratio,
	)
	logger.Info("Initializing OpenTelemetry")
	if target == "" {
		logger.V(0).Info("OpenTelemetry endpoint is not set; telemetry will not be exported")
		return []shutdownFunction{noopShutdownFunction}, nil
	}
	res, err := newTelemetryResource(ctx, name)
	if err != nil {
		return nil, err
	}
	creds, err := newTelemetryTransportCredentials()
	if err != nil {
		return nil, err
	}
	metricOptions := []otlpmetricgrpc.Option{otlpmetricgrpc.WithTLSCredentials(creds)}
	traceOptions := []otlptracegrpc.Option{otlptracegrpc.WithTLSCredentials(creds)}
	if authority != "" {
		metricOptions = append(metricOptions, otlpmetricgrpc.WithDialOption(grpc.WithAuthority(authority)))
		traceOptions = append(traceOptions, otlptracegrpc.WithDialOption(grpc.WithAuthority(authority)))
	}
	shutdownFunctions, err := initMetrics(ctx, target, metricOptions, res)
	if err != nil {
		return shutdownFunctions, err
	}
	shutdownTraces, err := initTrace(ctx, target, traceOptions, res, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio)))
	shutdownFunctions = append(shutdownTraces, shutdownFunctions...)
	if err != nil {
		return shutdownFunctions, err
	}
	logger.Info("OpenTelemetry initialization complete, returning shutdown functions")
	return shutdownFunctions, nil
}

// Calls every shutdown function in turn, logging any errors.
func shutdownTelemetry(ctx context.Context, shutdownFunctions []shutdownFunction) {
	for _, fn := range shutdownFunctions {
		if err := fn(ctx); err != nil {
			logger.Error(err, "Failure during OpenTelemetry shutdown")
		}
	}
}
