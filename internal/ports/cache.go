package ports

import (
	"context"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
)

type DedupStore interface {
	// FirstSeen records key for ttl and reports whether it was absent.
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type PendingStore interface {
	Put(ctx context.Context, pending domain.PendingAutoPublish) error
	Get(ctx context.Context, threadID string) (domain.PendingAutoPublish, error)
	// Take removes and returns the pending entry for a thread.
	Take(ctx context.Context, threadID string) (domain.PendingAutoPublish, error)
	// TakeExpired removes and returns up to limit entries that expired at or
	// before now.
	TakeExpired(ctx context.Context, now time.Time, limit int) ([]domain.PendingAutoPublish, error)
}
