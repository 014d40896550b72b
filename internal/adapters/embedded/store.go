// Package embedded stores repositories in a local pebble database for single
// node deployments. Writes are serialized by the store so quota and version
// checks read a stable view.
package embedded

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
)

const (
	prefixTemplate   = "tpl/"
	prefixOwnerIndex = "tplowner/"
	prefixSettings   = "settings/"
	prefixPost       = "post/"
	prefixEvent      = "event/"
	prefixOutbox     = "outbox/"
)

type Store struct {
	db *pebble.DB
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create pebble dir: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type Repositories struct {
	Templates    *TemplateRepository
	Settings     *SettingsRepository
	Publications *PublicationRepository
}

func (s *Store) Repositories() Repositories {
	return Repositories{
		Templates:    &TemplateRepository{s: s},
		Settings:     &SettingsRepository{s: s},
		Publications: &PublicationRepository{s: s},
	}
}

// getJSON decodes the value at key into dst and reports whether it existed.
func (s *Store) getJSON(key string, dst any) (bool, error) {
	v, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func setJSON(b *pebble.Batch, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Set([]byte(key), raw, nil)
}

// scan calls fn with a copy of every value under prefix in key order.
func (s *Store) scan(prefix string, fn func(key, value []byte) error) error {
	p := []byte(prefix)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: p, UpperBound: prefixEnd(p)})
	if err != nil {
		return err
	}
	defer it.Close()
	for ok := it.First(); ok; ok = it.Next() {
		k := append([]byte(nil), it.Key()...)
		v := append([]byte(nil), it.Value()...)
		if !bytes.HasPrefix(k, p) {
			continue
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return it.Error()
}

func (s *Store) commit(fn func(b *pebble.Batch) error) error {
	b := s.db.NewBatch()
	defer b.Close()
	if err := fn(b); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
