package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
)

func TestDedupStoreForgetsAfterTTL(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewDedupStore()
	s.nowFn = func() time.Time { return now }
	ctx := context.Background()

	if first, _ := s.FirstSeen(ctx, "thread_created:1", 5*time.Minute); !first {
		t.Fatalf("expected first sighting")
	}
	if first, _ := s.FirstSeen(ctx, "thread_created:1", 5*time.Minute); first {
		t.Fatalf("expected duplicate inside ttl")
	}
	now = now.Add(5*time.Minute + time.Second)
	if first, _ := s.FirstSeen(ctx, "thread_created:1", 5*time.Minute); !first {
		t.Fatalf("expected key to be forgotten after ttl")
	}
}

func TestPendingStoreTakeExpiredOrdersAndLimits(t *testing.T) {
	t.Parallel()
	s := NewPendingStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b", "live"} {
		expires := base.Add(time.Duration(i) * time.Second)
		if id == "live" {
			expires = base.Add(time.Hour)
		}
		if err := s.Put(ctx, domain.PendingAutoPublish{ThreadID: id, ExpiresAt: expires}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	got, err := s.TakeExpired(ctx, base.Add(10*time.Second), 2)
	if err != nil {
		t.Fatalf("take expired: %v", err)
	}
	if len(got) != 2 || got[0].ThreadID != "c" || got[1].ThreadID != "a" {
		t.Fatalf("unexpected expired batch %+v", got)
	}
	if _, err := s.Get(ctx, "c"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected taken entry to be gone, got %v", err)
	}
	if _, err := s.Take(ctx, "live"); err != nil {
		t.Fatalf("live entry should remain: %v", err)
	}
}
