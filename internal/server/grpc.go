package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewGRPCServer returns a gRPC server exposing grpc.health.v1.Health backed by
// health, instrumented with the global OpenTelemetry providers.
func NewGRPCServer(health healthpb.HealthServer) *grpc.Server {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	RegisterServices(s, health)
	return s
}

// RegisterServices registers the custody gRPC services with s.
func RegisterServices(s grpc.ServiceRegistrar, health healthpb.HealthServer) {
	healthpb.RegisterHealthServer(s, health)
}

// EnableReflection registers server reflection, for grpcurl in development.
func EnableReflection(s *grpc.Server) {
	reflection.Register(s)
}
