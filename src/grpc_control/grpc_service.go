package grpc_control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"quote-streamer/src/interfaces"
	"quote-streamer/src/logger"
	"quote-streamer/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name reported by the health endpoint
const HealthService = "quotes.QuoteStream"

// -----------------------------------------------------------------------------
// GRPCService exposes the standard gRPC health protocol. The quote stream is
// SERVING while its upstream connection is open.
// -----------------------------------------------------------------------------

type GRPCService struct {
	server   *grpc.Server
	listener net.Listener
	health   *health.Server
	stream   interfaces.IQuoteStream
	logger   *logger.Logger
	interval time.Duration

	mu      sync.Mutex
	running bool
	status  grpc_health_v1.HealthCheckResponse_ServingStatus
	stop    chan struct{}
	done    chan struct{}
}

// -----------------------------------------------------------------------------

// NewGRPCService creates a new GRPCService instance
func NewGRPCService(config *models.MConfig, logger *logger.Logger, stream interfaces.IQuoteStream) (*GRPCService, error) {
	address := fmt.Sprintf("%s:%d", config.GRPC_Host, config.GRPC_Port)

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	serverOptions := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(1024 * 1024),
		grpc.MaxSendMsgSize(1024 * 1024),
	}

	server := grpc.NewServer(serverOptions...)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)

	g := &GRPCService{
		server:   server,
		listener: listener,
		health:   healthServer,
		stream:   stream,
		logger:   logger,
		interval: time.Second,
		status:   grpc_health_v1.HealthCheckResponse_UNKNOWN,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	g.Refresh()
	return g, nil
}

// -----------------------------------------------------------------------------

// Start serves gRPC in the background and keeps the health status in step
// with the stream.
func (g *GRPCService) Start() {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return
	}
	g.running = true
	g.mu.Unlock()

	g.logger.Info("Starting gRPC service on %s", g.listener.Addr().String())

	go func() {
		if err := g.server.Serve(g.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			g.logger.Error("gRPC server failed: %v", err)
		}
	}()

	go g.watch()
}

// -----------------------------------------------------------------------------

// Stop gracefully stops the gRPC server
func (g *GRPCService) Stop(ctx context.Context) error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		g.listener.Close()
		return nil
	}
	g.running = false
	g.mu.Unlock()

	g.logger.Info("Stopping gRPC service...")
	close(g.stop)
	<-g.done

	g.health.Shutdown()

	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()

	select {
	case <-ctx.Done():
		g.logger.Warning("gRPC graceful shutdown timeout, forcing stop...")
		g.server.Stop()
	case <-done:
	}

	g.logger.Info("gRPC service stopped")
	return nil
}

// -----------------------------------------------------------------------------

// Refresh publishes the current stream state to the health server
func (g *GRPCService) Refresh() {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if g.stream.Status().State == models.StateOpen {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}

	g.mu.Lock()
	changed := status != g.status
	g.status = status
	g.mu.Unlock()

	if !changed {
		return
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(HealthService, status)
	g.logger.Debug("gRPC health : %s is %s", HealthService, status)
}

// -----------------------------------------------------------------------------

// Addr returns the listening address
func (g *GRPCService) Addr() string {
	return g.listener.Addr().String()
}

// -----------------------------------------------------------------------------

// IsRunning returns whether the gRPC server is running
func (g *GRPCService) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// -----------------------------------------------------------------------------

func (g *GRPCService) watch() {
	defer close(g.done)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Refresh()
		case <-g.stop:
			return
		}
	}
}
