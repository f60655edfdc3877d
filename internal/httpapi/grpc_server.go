package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"staffdesk.org/internal/obs"
)

// HealthServer implements grpc.health.v1.Health on top of the readiness
// probe used by /readyz. The empty service name and serviceName are known.
type HealthServer struct {
	healthpb.UnimplementedHealthServer

	readiness readinessChecker
	timeout   time.Duration
}

func NewHealthServer(r readinessChecker, timeout time.Duration) *HealthServer {
	if r == nil {
		r = ReadyProbe{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthServer{readiness: r, timeout: timeout}
}

func (s *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != serviceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.readiness.Check(ctx); err != nil {
		obs.From(ctx).Warn("grpc health check failed", zap.Error(err))
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// NewGRPCServer returns a server with the health service registered.
func NewGRPCServer(r readinessChecker, timeout time.Duration) *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(logUnary))
	healthpb.RegisterHealthServer(srv, NewHealthServer(r, timeout))
	return srv
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	obs.From(ctx).Debug("grpc_complete",
		zap.String("method", info.FullMethod),
		zap.String("code", status.Code(err).String()),
		obs.DurationMs(time.Since(start)))
	return resp, err
}
