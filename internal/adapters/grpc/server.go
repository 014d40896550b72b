package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name clients pass to the health service.
const ServiceName = "dc_license_bot.LicenseEngine"

type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthReporter keeps the gRPC health status in step with the engine's own
// health check.
type HealthReporter struct {
	server   *health.Server
	checker  HealthChecker
	interval time.Duration
	logger   *slog.Logger
}

func NewHealthReporter(checker HealthChecker, interval time.Duration, logger *slog.Logger) *HealthReporter {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthReporter{server: health.NewServer(), checker: checker, interval: interval, logger: logger}
}

func Register(server grpc.ServiceRegistrar, reporter *HealthReporter) {
	healthpb.RegisterHealthServer(server, reporter.server)
}

func (h *HealthReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		h.refresh(ctx)
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *HealthReporter) refresh(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	status := healthpb.HealthCheckResponse_SERVING
	if err := h.checker.CheckHealth(checkCtx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.WarnContext(ctx, "health check failed",
			"module", "grpc", "layer", "adapter", "operation", "health", "outcome", "failure", "error", err,
		)
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}
