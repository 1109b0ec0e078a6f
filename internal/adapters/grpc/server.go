package grpc

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/quentinrf/tank-monitor/internal/domain"
	"github.com/quentinrf/tank-monitor/internal/ports"
)

// NewServer creates a gRPC server exposing TankService, the standard health
// service and reflection. tlsCfg may be nil for plaintext.
func NewServer(handler TankServiceServer, hs *health.Server, tlsCfg *tls.Config) *grpc.Server {
	opts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(loggingInterceptor)}
	if tlsCfg != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}

	srv := grpc.NewServer(opts...)
	RegisterTankServiceServer(srv, handler)
	healthpb.RegisterHealthServer(srv, hs)

	// Enable gRPC reflection for grpcurl testing
	reflection.Register(srv)
	return srv
}

func loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	log.Debug().
		Str("method", info.FullMethod).
		Str("code", status.Code(err).String()).
		Dur("duration", time.Since(start)).
		Msg("grpc request")
	return resp, err
}

// HealthObserver maps cycle outcomes onto the gRPC health service
type HealthObserver struct {
	hs *health.Server
}

// NewHealthObserver creates an observer. The service starts NOT_SERVING
// until the first cycle completes.
func NewHealthObserver(hs *health.Server) *HealthObserver {
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthObserver{hs: hs}
}

// ObserveCycle implements ports.Observer
func (o *HealthObserver) ObserveCycle(_ ports.Cycle, err error) {
	st := healthpb.HealthCheckResponse_SERVING
	if errors.Is(err, domain.ErrSourceUnavailable) || errors.Is(err, domain.ErrSerialization) {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	o.hs.SetServingStatus(ServiceName, st)
}
