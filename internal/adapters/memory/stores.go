package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
)

// DedupStore remembers keys until their ttl passes.
type DedupStore struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	nowFn func() time.Time
}

func NewDedupStore() *DedupStore {
	return &DedupStore{seen: map[string]time.Time{}, nowFn: time.Now}
}

func (s *DedupStore) FirstSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	if exp, ok := s.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.seen[key] = now.Add(ttl)
	if len(s.seen) > 4096 {
		for k, exp := range s.seen {
			if !now.Before(exp) {
				delete(s.seen, k)
			}
		}
	}
	return true, nil
}

type PendingStore struct {
	mu   sync.Mutex
	rows map[string]domain.PendingAutoPublish
}

func NewPendingStore() *PendingStore {
	return &PendingStore{rows: map[string]domain.PendingAutoPublish{}}
}

func (s *PendingStore) Put(_ context.Context, p domain.PendingAutoPublish) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.ThreadID] = p
	return nil
}

func (s *PendingStore) Get(_ context.Context, threadID string) (domain.PendingAutoPublish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[threadID]
	if !ok {
		return domain.PendingAutoPublish{}, fmt.Errorf("%w: no pending confirmation for thread %s", domain.ErrNotFound, threadID)
	}
	return p, nil
}

func (s *PendingStore) Take(_ context.Context, threadID string) (domain.PendingAutoPublish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[threadID]
	if !ok {
		return domain.PendingAutoPublish{}, fmt.Errorf("%w: no pending confirmation for thread %s", domain.ErrNotFound, threadID)
	}
	delete(s.rows, threadID)
	return p, nil
}

func (s *PendingStore) TakeExpired(_ context.Context, now time.Time, limit int) ([]domain.PendingAutoPublish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PendingAutoPublish
	for _, p := range s.rows {
		if !now.Before(p.ExpiresAt) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for _, p := range out {
		delete(s.rows, p.ThreadID)
	}
	return out, nil
}

var (
	_ ports.DedupStore   = (*DedupStore)(nil)
	_ ports.PendingStore = (*PendingStore)(nil)
)
