// Package allowlist holds the forum channels auto-publish is limited to. An
// empty list enables every forum. Readers see one complete set; a change is
// persisted before it is swapped in, so a failed write leaves the served set
// untouched.
package allowlist

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
)

// Store persists the full channel set after every change.
type Store interface {
	Save(ctx context.Context, channelIDs []string) error
}

type set map[string]struct{}

func newSet(ids []string) set {
	s := make(set, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type List struct {
	mu      sync.Mutex
	current atomic.Pointer[set]
	store   Store
}

// New seeds the list. store may be nil, in which case changes live only in
// memory.
func New(initial []string, store Store) *List {
	l := &List{store: store}
	s := newSet(initial)
	l.current.Store(&s)
	return l
}

// Allows reports whether auto-publish applies to channelID.
func (l *List) Allows(channelID string) bool {
	s := *l.current.Load()
	if len(s) == 0 {
		return true
	}
	_, ok := s[channelID]
	return ok
}

// IDs returns the enrolled channels in lexical order.
func (l *List) IDs() []string {
	return l.current.Load().sorted()
}

// Add enrolls channelID and reports whether it was new.
func (l *List) Add(ctx context.Context, channelID string) (bool, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return false, fmt.Errorf("%w: channel_id is required", domain.ErrValidation)
	}
	return l.update(ctx, func(s set) bool {
		if _, ok := s[channelID]; ok {
			return false
		}
		s[channelID] = struct{}{}
		return true
	})
}

// Remove drops channelID and reports whether it was enrolled.
func (l *List) Remove(ctx context.Context, channelID string) (bool, error) {
	return l.update(ctx, func(s set) bool {
		if _, ok := s[channelID]; !ok {
			return false
		}
		delete(s, channelID)
		return true
	})
}

// Clear empties the list and returns how many channels it held.
func (l *List) Clear(ctx context.Context) (int, error) {
	n := 0
	_, err := l.update(ctx, func(s set) bool {
		n = len(s)
		for id := range s {
			delete(s, id)
		}
		return n > 0
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// update applies mutate to a copy; unchanged sets are neither saved nor
// swapped.
func (l *List) update(ctx context.Context, mutate func(set) bool) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := newSet(l.current.Load().sorted())
	if !mutate(next) {
		return false, nil
	}
	if l.store != nil {
		if err := l.store.Save(ctx, next.sorted()); err != nil {
			return false, fmt.Errorf("%w: save forum allowlist: %w", domain.ErrPersistence, err)
		}
	}
	l.current.Store(&next)
	return true, nil
}
