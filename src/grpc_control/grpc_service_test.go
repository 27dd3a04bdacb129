package grpc_control

import (
	"context"
	"sync"
	"testing"
	"time"

	"quote-streamer/src/logger"
	"quote-streamer/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type stubStream struct {
	mu    sync.Mutex
	state models.MConnectionState
}

func (s *stubStream) setState(state models.MConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *stubStream) Snapshot() models.MSnapshot                                  { return models.MSnapshot{} }
func (s *stubStream) Symbols() []string                                           { return nil }
func (s *stubStream) SetSymbols(symbols []string)                                 {}
func (s *stubStream) OnSnapshot(fn func(models.MSnapshot, []models.MQuoteRecord)) {}
func (s *stubStream) Status() *models.MStreamStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &models.MStreamStatus{State: s.state}
}

// -----------------------------------------------------------------------------

func TestGRPCService_HealthFollowsStream(t *testing.T) {
	stream := &stubStream{state: models.StateConnecting}
	cfg := &models.MConfig{GRPC_Host: "127.0.0.1", GRPC_Port: 0}

	service, err := NewGRPCService(cfg, logger.NewNopLogger("test"), stream)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	service.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		service.Stop(ctx)
	}()

	conn, err := grpc.NewClient(service.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()
	client := grpc_health_v1.NewHealthClient(conn)

	check := func() grpc_health_v1.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: HealthService})
		if err != nil {
			t.Fatalf("health check failed: %v", err)
		}
		return resp.Status
	}

	if got := check(); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING while connecting, got %s", got)
	}

	stream.setState(models.StateOpen)
	service.Refresh()
	if got := check(); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING while open, got %s", got)
	}

	stream.setState(models.StateIdle)
	service.Refresh()
	if got := check(); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING after a drop, got %s", got)
	}
}

func TestGRPCService_StopWithoutStart(t *testing.T) {
	cfg := &models.MConfig{GRPC_Host: "127.0.0.1", GRPC_Port: 0}
	service, err := NewGRPCService(cfg, logger.NewNopLogger("test"), &stubStream{})
	if err != nil {
		t.Fatal(err)
	}
	if service.IsRunning() {
		t.Error("service must not run before Start")
	}
	if err := service.Stop(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
