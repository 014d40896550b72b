package grpc

import (
	"context"
	"errors"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type stubChecker struct{ err error }

func (s *stubChecker) CheckHealth(context.Context) error { return s.err }

func TestHealthReporterFollowsChecker(t *testing.T) {
	t.Parallel()
	checker := &stubChecker{}
	h := NewHealthReporter(checker, 0, nil)
	ctx := context.Background()

	h.refresh(ctx)
	resp, err := h.server.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected serving, got %v %v", resp.GetStatus(), err)
	}

	checker.err = errors.New("database down")
	h.refresh(ctx)
	resp, _ = h.server.Check(ctx, &healthpb.HealthCheckRequest{})
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected not serving, got %v", resp.GetStatus())
	}
}
