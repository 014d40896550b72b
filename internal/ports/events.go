package ports

import (
	"context"
	"time"
)

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

type PlatformEventType string

const (
	EventThreadCreated PlatformEventType = "thread_created"
	EventThreadDeleted PlatformEventType = "thread_deleted"
)

// PlatformEvent is an inbound thread lifecycle event, whichever transport
// delivered it.
type PlatformEvent struct {
	EventID    string            `json:"event_id"`
	Type       PlatformEventType `json:"type"`
	ThreadID   string            `json:"thread_id"`
	ChannelID  string            `json:"channel_id"`
	GuildID    string            `json:"guild_id"`
	AuthorID   string            `json:"author_id"`
	Title      string            `json:"title"`
	OccurredAt time.Time         `json:"occurred_at"`
}
