// Package threadlock serializes work per thread id without a global lock.
package threadlock

import (
	"context"
	"sync"
)

type entry struct {
	slot chan struct{}
	refs int
}

// Map hands out one exclusive guard per key. Entries are created on first use
// and removed once no goroutine holds or waits for them.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Map {
	return &Map{entries: make(map[string]*entry)}
}

// Lock blocks until the guard for key is held or ctx is done. The returned
// release func is safe to call more than once.
func (m *Map) Lock(ctx context.Context, key string) (func(), error) {
	e := m.ref(key)
	select {
	case e.slot <- struct{}{}:
		return m.releaser(key, e), nil
	case <-ctx.Done():
		m.drop(key, e)
		return nil, ctx.Err()
	}
}

// TryLock acquires the guard only if it is free.
func (m *Map) TryLock(key string) (func(), bool) {
	e := m.ref(key)
	select {
	case e.slot <- struct{}{}:
		return m.releaser(key, e), true
	default:
		m.drop(key, e)
		return nil, false
	}
}

// Len reports how many keys are currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Map) ref(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{slot: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *Map) releaser(key string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.slot
			m.drop(key, e)
		})
	}
}

func (m *Map) drop(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 && m.entries[key] == e {
		delete(m.entries, key)
	}
}
