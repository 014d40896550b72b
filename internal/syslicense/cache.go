// Package syslicense holds the hot-reloadable registry of system licenses.
// Readers always see one complete generation; a reload either installs a new
// generation or leaves the current one in place.
package syslicense

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
)

type Snapshot struct {
	Generation uint64
	LoadedAt   time.Time
	Source     string

	entries map[string]domain.SystemLicense
	order   []string
}

func newSnapshot(generation uint64, source string, loadedAt time.Time, licenses []domain.SystemLicense) *Snapshot {
	s := &Snapshot{
		Generation: generation,
		LoadedAt:   loadedAt,
		Source:     source,
		entries:    make(map[string]domain.SystemLicense, len(licenses)),
		order:      make([]string, 0, len(licenses)),
	}
	for _, lic := range licenses {
		s.entries[lic.Name] = lic
		s.order = append(s.order, lic.Name)
	}
	return s
}

func (s *Snapshot) Lookup(name string) (domain.SystemLicense, bool) {
	lic, ok := s.entries[name]
	return lic, ok
}

// List returns the entries in document order.
func (s *Snapshot) List() []domain.SystemLicense {
	out := make([]domain.SystemLicense, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name])
	}
	return out
}

func (s *Snapshot) Len() int {
	return len(s.order)
}

type Source interface {
	Name() string
	Read(ctx context.Context) ([]byte, error)
}

type FileSource struct {
	Path string
}

func (f FileSource) Name() string { return f.Path }

func (f FileSource) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(f.Path)
}

type BytesSource struct {
	Label string
	Data  []byte
}

func (b BytesSource) Name() string { return b.Label }

func (b BytesSource) Read(context.Context) ([]byte, error) {
	return b.Data, nil
}

type Cache struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
	source  Source
	nowFn   func() time.Time
}

// New returns a cache holding an empty generation-zero snapshot. Call Reload
// to load the configured source.
func New(source Source) *Cache {
	c := &Cache{source: source, nowFn: func() time.Time { return time.Now().UTC() }}
	c.current.Store(newSnapshot(0, "", time.Time{}, nil))
	return c
}

func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

func (c *Cache) Lookup(name string) (domain.SystemLicense, error) {
	lic, ok := c.Current().Lookup(name)
	if !ok {
		return domain.SystemLicense{}, fmt.Errorf("%w: system license %q", domain.ErrNotFound, name)
	}
	return lic, nil
}

func (c *Cache) Reload(ctx context.Context) (*Snapshot, error) {
	if c.source == nil {
		return nil, fmt.Errorf("%w: no license source configured", domain.ErrReloadParse)
	}
	return c.ReloadFrom(ctx, c.source)
}

// ReloadFrom builds a candidate snapshot from src and installs it only if the
// whole document is valid.
func (c *Cache) ReloadFrom(ctx context.Context, src Source) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := src.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrReloadParse, src.Name(), err)
	}
	licenses, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.Name(), err)
	}
	next := newSnapshot(c.Current().Generation+1, src.Name(), c.nowFn(), licenses)
	c.current.Store(next)
	return next, nil
}
