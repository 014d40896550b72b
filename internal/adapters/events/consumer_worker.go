package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
)

type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Payload   []byte
}

type Consumer interface {
	Poll(ctx context.Context, max int) ([]Message, error)
	Commit(ctx context.Context, msgs ...Message) error
}

type PlatformEventHandler interface {
	HandlePlatformEvent(ctx context.Context, ev ports.PlatformEvent) error
}

// ConsumerWorker feeds thread lifecycle events from the bus to the engine.
// typeByTopic fills in the event type for payloads that omit it.
//
// Stopping the worker does not cut off an event already being handled: each
// handler call runs detached from the worker context, bounded by
// handleTimeout. Events left in the batch stay uncommitted.
type ConsumerWorker struct {
	logger        *slog.Logger
	consumer      Consumer
	handler       PlatformEventHandler
	typeByTopic   map[string]ports.PlatformEventType
	interval      time.Duration
	handleTimeout time.Duration
}

func NewConsumerWorker(logger *slog.Logger, consumer Consumer, handler PlatformEventHandler, typeByTopic map[string]ports.PlatformEventType, interval, handleTimeout time.Duration) *ConsumerWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if handleTimeout <= 0 {
		handleTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerWorker{
		logger:        logger,
		consumer:      consumer,
		handler:       handler,
		typeByTopic:   typeByTopic,
		interval:      interval,
		handleTimeout: handleTimeout,
	}
}

func (w *ConsumerWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.processOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "consumer iteration failed",
				"module", "events.consumer_worker",
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

func (w *ConsumerWorker) processOnce(ctx context.Context) error {
	msgs, err := w.consumer.Poll(ctx, 50)
	if err != nil {
		return err
	}
	handled := 0
	for _, msg := range msgs {
		if ctx.Err() != nil {
			break
		}
		w.handle(ctx, msg)
		handled++
	}
	if handled > 0 {
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := w.consumer.Commit(commitCtx, msgs[:handled]...); err != nil {
			return fmt.Errorf("commit %d platform events: %w", handled, err)
		}
	}
	return ctx.Err()
}

// handle never fails the batch: undecodable or rejected events are logged and
// committed like the rest.
func (w *ConsumerWorker) handle(ctx context.Context, msg Message) {
	ev, err := w.decode(msg)
	if err != nil {
		w.logger.WarnContext(ctx, "platform event discarded",
			"module", "events.consumer_worker", "layer", "adapter", "operation", "decode", "outcome", "failure",
			"topic", msg.Topic, "error", err,
		)
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.handleTimeout)
	defer cancel()
	if err := w.handler.HandlePlatformEvent(hctx, ev); err != nil {
		w.logger.WarnContext(ctx, "platform event handling failed",
			"module", "events.consumer_worker", "layer", "adapter", "operation", "handle", "outcome", "failure",
			"topic", msg.Topic, "event_type", string(ev.Type), "thread_id", ev.ThreadID, "error", err,
		)
	}
}

func (w *ConsumerWorker) decode(msg Message) (ports.PlatformEvent, error) {
	var ev ports.PlatformEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ports.PlatformEvent{}, err
	}
	if ev.Type == "" {
		ev.Type = w.typeByTopic[msg.Topic]
	}
	if ev.ThreadID == "" && len(msg.Key) > 0 {
		ev.ThreadID = string(msg.Key)
	}
	if ev.ThreadID == "" {
		return ports.PlatformEvent{}, errors.New("event has no thread id")
	}
	return ev, nil
}
