package grpcx

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer wires s with tracing, interceptors and the health service.
// Call health.Shutdown before GracefulStop so probes see NOT_SERVING.
func NewGRPCServer(s *Server, callTimeout time.Duration) (*grpc.Server, *health.Server) {
	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(callTimeout)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	)
	Register(gs, s)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return gs, hs
}

// Stop takes gs out of service: health goes NOT_SERVING, WatchRoom streams
// are ended and in-flight calls get until ctx is done. After that the server
// is stopped hard.
func Stop(ctx context.Context, gs *grpc.Server, hs *health.Server, s *Server) {
	hs.Shutdown()
	s.Shutdown()

	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		gs.Stop()
		<-stopped
	}
}
