// Package server implements a gRPC status server that exposes the lifecycle of
// running stressors through the standard gRPC health checking service, with
// optional OpenTelemetry metrics and traces.
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	prime "github.com/memes/prime"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	// The default name to use when using OpenTelemetry components.
	OpenTelemetryPackageIdentifier = "pkg.server"
)

// StatusServer implements prime.StateReporter; every stressor is published as
// a health service named after the stressor, and the overall ("") service is
// SERVING while at least one stressor is running.
type StatusServer struct {
	// The logr.Logger implementation to use
	logger logr.Logger
	// The health service implementation shared by every gRPC server created
	health *health.Server
	// A counter of stressor state transitions
	transitions metric.Int64Counter
	// A set of gRPC ServerOptions to use
	serverOptions []grpc.ServerOption
	mu            sync.Mutex
	running       map[string]bool
}

// Defines the function signature for StatusServer options.
type StatusServerOption func(*StatusServer)

// Create a new StatusServer and apply any options.
func NewStatusServer(options ...StatusServerOption) (*StatusServer, error) {
	server := &StatusServer{
		logger: logr.Discard(),
		health: health.NewServer(),
		serverOptions: []grpc.ServerOption{
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
		},
		running: map[string]bool{},
	}
	for _, option := range options {
		option(server)
	}
	server.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	var err error
	server.transitions, err = otel.Meter(OpenTelemetryPackageIdentifier).Int64Counter(
		OpenTelemetryPackageIdentifier+".state_transitions",
		metric.WithDescription("The count of stressor state transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating transitions Counter: %w", err)
	}
	return server, nil
}

// Use the supplied logger for the server.
func WithLogger(logger logr.Logger) StatusServerOption {
	return func(s *StatusServer) {
		s.logger = logger
	}
}

// Set the TransportCredentials to use for the gRPC listener.
func WithGRPCServerTransportCredentials(serverCredentials credentials.TransportCredentials) StatusServerOption {
	return func(s *StatusServer) {
		if serverCredentials != nil {
			s.serverOptions = append(s.serverOptions, grpc.Creds(serverCredentials))
		}
	}
}

// Maps stressor state changes to health serving status.
func (s *StatusServer) SetState(name string, state prime.State) {
	logger := s.logger.V(1).WithValues("name", name, "state", state.String())
	logger.Info("SetState: enter")
	s.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String(OpenTelemetryPackageIdentifier+".name", name),
		attribute.String(OpenTelemetryPackageIdentifier+".state", state.String()),
	))
	s.mu.Lock()
	defer s.mu.Unlock()
	switch state {
	case prime.StateRun:
		s.running[name] = true
		s.health.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_SERVING)
	case prime.StateInit:
		s.health.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_UNKNOWN)
	default:
		delete(s.running, name)
		s.health.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	overall := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if len(s.running) > 0 {
		overall = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", overall)
	logger.Info("SetState: exit", "running", len(s.running))
}

// Shutdown marks every service as NOT_SERVING and ignores later updates.
func (s *StatusServer) Shutdown() {
	s.logger.V(1).Info("Shutting down health service")
	s.health.Shutdown()
}

// Create a new grpc.Server that is ready to be attached to a net.Listener.
func (s *StatusServer) NewGrpcServer() *grpc.Server {
	s.logger.V(1).Info("Building a standard gRPC server")
	grpcServer := grpc.NewServer(s.serverOptions...)
	grpc_health_v1.RegisterHealthServer(grpcServer, s.health)
	reflection.Register(grpcServer)
	return grpcServer
}
