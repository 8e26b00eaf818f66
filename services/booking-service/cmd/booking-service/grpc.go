package main

import (
	"errors"
	"log/slog"
	"net"

	"github.com/servicebay/servicebay/libs/grpcx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type grpcServer struct {
	srv    *grpc.Server
	health *health.Server
	lis    net.Listener
	logger *slog.Logger
}

func newGRPCServer(logger *slog.Logger, port string) (*grpcServer, error) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, err
	}
	srv, hs := grpcx.NewServer(logger)
	hs.SetServingStatus("booking.v1.BookingService", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(srv)
	return &grpcServer{srv: srv, health: hs, lis: lis, logger: logger}, nil
}

func (g *grpcServer) serve() {
	g.logger.Info("grpc server starting", "addr", g.lis.Addr().String())
	if err := g.srv.Serve(g.lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		g.logger.Error("grpc server error", "err", err)
	}
}

// stop reports NOT_SERVING first so load balancers drain before in-flight calls finish.
func (g *grpcServer) stop() {
	g.health.Shutdown()
	g.srv.GracefulStop()
	g.logger.Info("grpc server stopped")
}
