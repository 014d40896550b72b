package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"github.com/redis/go-redis/v9"
)

// pendingRetention keeps a pending entry readable past its expiry so the
// sweeper can still find the prompt message to remove.
const pendingRetention = time.Hour

type DedupStore struct {
	client *redis.Client
	prefix string
}

func NewDedupStore(client *redis.Client, prefix string) *DedupStore {
	return &DedupStore{client: client, prefix: prefix + "dedup:"}
}

func (s *DedupStore) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// PendingStore keeps each confirmation as a JSON value plus a sorted set
// scored by expiry. Removing the set member is the claim: whoever removes it
// owns the entry, so several instances can sweep at once.
type PendingStore struct {
	client   *redis.Client
	prefix   string
	indexKey string
	nowFn    func() time.Time
}

func NewPendingStore(client *redis.Client, prefix string) *PendingStore {
	return &PendingStore{
		client:   client,
		prefix:   prefix + "pending:",
		indexKey: prefix + "pending-expiry",
		nowFn:    time.Now,
	}
}

func (s *PendingStore) key(threadID string) string {
	return s.prefix + threadID
}

func (s *PendingStore) Put(ctx context.Context, pending domain.PendingAutoPublish) error {
	raw, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encode pending confirmation: %w", err)
	}
	ttl := pending.ExpiresAt.Sub(s.nowFn()) + pendingRetention
	if ttl <= 0 {
		ttl = pendingRetention
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(pending.ThreadID), raw, ttl)
		pipe.ZAdd(ctx, s.indexKey, redis.Z{Score: float64(pending.ExpiresAt.UnixMilli()), Member: pending.ThreadID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store pending confirmation: %w", err)
	}
	return nil
}

func (s *PendingStore) Get(ctx context.Context, threadID string) (domain.PendingAutoPublish, error) {
	raw, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	return decodePending(threadID, raw, err)
}

func (s *PendingStore) Take(ctx context.Context, threadID string) (domain.PendingAutoPublish, error) {
	if err := s.client.ZRem(ctx, s.indexKey, threadID).Err(); err != nil {
		return domain.PendingAutoPublish{}, fmt.Errorf("redis zrem: %w", err)
	}
	raw, err := s.client.GetDel(ctx, s.key(threadID)).Bytes()
	return decodePending(threadID, raw, err)
}

func (s *PendingStore) TakeExpired(ctx context.Context, now time.Time, limit int) ([]domain.PendingAutoPublish, error) {
	members, err := s.client.ZRangeByScore(ctx, s.indexKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore: %w", err)
	}
	out := make([]domain.PendingAutoPublish, 0, len(members))
	for _, threadID := range members {
		removed, err := s.client.ZRem(ctx, s.indexKey, threadID).Result()
		if err != nil {
			return out, fmt.Errorf("redis zrem: %w", err)
		}
		if removed == 0 {
			continue
		}
		raw, err := s.client.GetDel(ctx, s.key(threadID)).Bytes()
		pending, err := decodePending(threadID, raw, err)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, pending)
	}
	return out, nil
}

func decodePending(threadID string, raw []byte, err error) (domain.PendingAutoPublish, error) {
	if errors.Is(err, redis.Nil) {
		return domain.PendingAutoPublish{}, fmt.Errorf("%w: no pending confirmation for thread %s", domain.ErrNotFound, threadID)
	}
	if err != nil {
		return domain.PendingAutoPublish{}, fmt.Errorf("redis get: %w", err)
	}
	var pending domain.PendingAutoPublish
	if err := json.Unmarshal(raw, &pending); err != nil {
		return domain.PendingAutoPublish{}, fmt.Errorf("decode pending confirmation: %w", err)
	}
	return pending, nil
}

var (
	_ ports.DedupStore   = (*DedupStore)(nil)
	_ ports.PendingStore = (*PendingStore)(nil)
)
