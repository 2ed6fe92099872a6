package api

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/waypoints/internal/follower"
)

// FollowerService is the health service name reported SERVING while the
// state machine runs.
const FollowerService = "waypoints.Follower"

// StateService returns the health service name for one machine state. It is
// SERVING only while the machine is in that state, so a probe can wait for
// e.g. PATH_COMPLETE.
func StateService(s follower.State) string {
	return FollowerService + "/" + string(s)
}

// Health mirrors the follower's state into a gRPC health server.
type Health struct {
	srv *health.Server
}

// NewHealth returns a health mirror with every service NOT_SERVING.
func NewHealth() *Health {
	h := &Health{srv: health.NewServer()}
	h.srv.SetServingStatus(FollowerService, healthpb.HealthCheckResponse_NOT_SERVING)
	for _, s := range follower.States {
		h.srv.SetServingStatus(StateService(s), healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return h
}

// Observe marks the follower SERVING and s as the only serving state. It has
// the signature expected by follower.Machine.OnStateChange.
func (h *Health) Observe(s follower.State) {
	h.srv.SetServingStatus(FollowerService, healthpb.HealthCheckResponse_SERVING)
	for _, st := range follower.States {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if st == s {
			status = healthpb.HealthCheckResponse_SERVING
		}
		h.srv.SetServingStatus(StateService(st), status)
	}
}

// Register adds the health service to gs.
func (h *Health) Register(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, h.srv)
}

// Serve listens on addr and serves the health service until ctx ends. Every
// service is set NOT_SERVING before the server stops.
func (h *Health) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return h.ServeListener(ctx, lis)
}

// ServeListener is Serve on an existing listener.
func (h *Health) ServeListener(ctx context.Context, lis net.Listener) error {
	gs := grpc.NewServer()
	h.Register(gs)

	errCh := make(chan error, 1)
	go func() {
		logf("gRPC health server listening on %s", lis.Addr())
		errCh <- gs.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		h.srv.Shutdown()
		gs.GracefulStop()
		return nil
	}
}
