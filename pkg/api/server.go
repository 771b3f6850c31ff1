package api

import (
	"fmt"
	"net"

	"github.com/cuemby/elbscaler/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service reported through the gRPC health protocol
const ServiceName = "elbscaler"

// Server exposes the standard gRPC health service. Both the overall status
// and ServiceName report SERVING only while the framework is subscribed.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// NewServer creates a server reporting NOT_SERVING
func NewServer() *Server {
	hs := health.NewServer()
	s := &Server{
		grpc:   grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor())),
		health: hs,
	}
	s.SetServing(false)
	healthpb.RegisterHealthServer(s.grpc, hs)
	return s
}

// SetServing updates the reported status. It matches the signature of
// mesos.Config.OnSubscription.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Start starts the gRPC server
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Stop is called
func (s *Server) Serve(lis net.Listener) error {
	log.Logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health service listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server
func (s *Server) Stop() {
	if s.grpc != nil {
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}
}
