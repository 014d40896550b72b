package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
)

const schemaVersion = "1.0"

type postEventData struct {
	ThreadID            string `json:"thread_id"`
	Version             int    `json:"version"`
	MessageID           string `json:"message_id"`
	SupersededMessageID string `json:"superseded_message_id,omitempty"`
	UserID              string `json:"user_id"`
	BackupAllowed       bool   `json:"backup_allowed"`
	LicenseName         string `json:"license_name"`
	Digest              string `json:"digest"`
}

type envelope struct {
	EventID          string        `json:"event_id"`
	EventType        string        `json:"event_type"`
	OccurredAt       string        `json:"occurred_at"`
	SourceService    string        `json:"source_service"`
	SchemaVersion    string        `json:"schema_version"`
	PartitionKeyPath string        `json:"partition_key_path"`
	PartitionKey     string        `json:"partition_key"`
	Data             postEventData `json:"data"`
}

func EventType(kind domain.PublicationKind) string {
	return "license.post." + string(kind)
}

// OutboxWorker relays recorded publication events to the bus. An event stays
// in the outbox until publishing succeeds, so delivery is at least once.
type OutboxWorker struct {
	logger        *slog.Logger
	outbox        ports.OutboxRepository
	publisher     ports.EventPublisher
	sourceService string
	interval      time.Duration
	batchSize     int
	nowFn         func() time.Time
}

func NewOutboxWorker(logger *slog.Logger, outbox ports.OutboxRepository, publisher ports.EventPublisher, sourceService string, interval time.Duration, batchSize int) *OutboxWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxWorker{
		logger:        logger,
		outbox:        outbox,
		publisher:     publisher,
		sourceService: sourceService,
		interval:      interval,
		batchSize:     batchSize,
		nowFn:         func() time.Time { return time.Now().UTC() },
	}
}

func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.processOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "outbox iteration failed",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *OutboxWorker) processOnce(ctx context.Context) (int, error) {
	records, err := w.outbox.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, rec := range records {
		eventType := EventType(rec.Kind)
		payload, err := json.Marshal(envelope{
			EventID:          rec.ID.String(),
			EventType:        eventType,
			OccurredAt:       rec.RecordedAt.UTC().Format(time.RFC3339),
			SourceService:    w.sourceService,
			SchemaVersion:    schemaVersion,
			PartitionKeyPath: "data.thread_id",
			PartitionKey:     rec.ThreadID,
			Data: postEventData{
				ThreadID:            rec.ThreadID,
				Version:             rec.Version,
				MessageID:           rec.MessageID,
				SupersededMessageID: rec.SupersededMessageID,
				UserID:              rec.UserID,
				BackupAllowed:       rec.BackupAllowed,
				LicenseName:         rec.LicenseName,
				Digest:              rec.Digest,
			},
		})
		if err != nil {
			return published, err
		}
		if err := w.publisher.Publish(ctx, eventType, payload, rec.ThreadID); err != nil {
			w.logger.WarnContext(ctx, "outbox publish failed",
				"module", "events.outbox_worker", "layer", "adapter", "operation", "publish", "outcome", "failure",
				"event_id", rec.ID.String(), "event_type", eventType, "error", err,
			)
			continue
		}
		if err := w.outbox.MarkPublished(ctx, rec.ID, w.nowFn()); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}
