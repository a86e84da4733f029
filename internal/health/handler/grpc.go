// Package handler implements readiness for the custody service: the standard
// grpc.health.v1 Health service and the HTTP /healthz probe share one check.
package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"cheque-custody/backend/internal/server/respond"
)

// checkTimeout bounds each readiness probe.
const checkTimeout = 2 * time.Second

// Pinger checks database connectivity. *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the override policy engine is ready. *policy.OPAEvaluator implements it.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server implements grpc.health.v1.Health. Every service name reports the
// same readiness.
type Server struct {
	healthpb.UnimplementedHealthServer
	pinger Pinger
	policy PolicyChecker
}

// NewServer returns a health Server. Either dependency may be nil to skip its check.
func NewServer(pinger Pinger, policy PolicyChecker) *Server {
	return &Server{pinger: pinger, policy: policy}
}

// Ready returns nil when every configured dependency answers.
func (s *Server) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("override policy: %w", err)
		}
	}
	return nil
}

// Check reports SERVING or NOT_SERVING. A failed dependency is never a gRPC error.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if err := s.Ready(ctx); err != nil {
		log.Printf("health: not ready: %v", err)
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

type healthzResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ServeHTTP answers GET /healthz with 200 when ready and 503 otherwise.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := s.Ready(r.Context()); err != nil {
		log.Printf("health: not ready: %v", err)
		respond.JSON(w, http.StatusServiceUnavailable, healthzResponse{Status: "NOT_SERVING", Error: err.Error()})
		return
	}
	respond.JSON(w, http.StatusOK, healthzResponse{Status: "SERVING"})
}
