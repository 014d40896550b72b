package events

import (
	"context"
	"log/slog"

	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
)

// LoggingPublisher stands in for the bus when Kafka is disabled.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	p.logger.InfoContext(ctx, "event published",
		"module", "events.publisher",
		"layer", "adapter",
		"operation", "publish",
		"outcome", "success",
		"event_type", eventType,
		"partition_key", partitionKey,
		"payload_bytes", len(payload),
	)
	return nil
}

var _ ports.EventPublisher = (*LoggingPublisher)(nil)
