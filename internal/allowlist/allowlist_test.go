package allowlist

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
)

type failingStore struct{ err error }

func (s failingStore) Save(context.Context, []string) error { return s.err }

func TestEmptyListAllowsEveryChannel(t *testing.T) {
	t.Parallel()
	l := New(nil, nil)
	if !l.Allows("anything") {
		t.Fatalf("empty list must allow every channel")
	}
	if _, err := l.Add(context.Background(), "showcase"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if l.Allows("anything") || !l.Allows("showcase") {
		t.Fatalf("non-empty list must only allow enrolled channels")
	}
}

func TestAddRemoveClearReportChanges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := New([]string{" b ", "a", ""}, nil)
	if got := l.IDs(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("unexpected seed %v", got)
	}
	if added, _ := l.Add(ctx, "a"); added {
		t.Fatalf("duplicate add must report no change")
	}
	if _, err := l.Add(ctx, "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if removed, _ := l.Remove(ctx, "missing"); removed {
		t.Fatalf("removing an unknown channel must report no change")
	}
	if removed, _ := l.Remove(ctx, "a"); !removed {
		t.Fatalf("expected a to be removed")
	}
	n, err := l.Clear(ctx)
	if err != nil || n != 1 {
		t.Fatalf("clear: %d %v", n, err)
	}
	if n, _ := l.Clear(ctx); n != 0 {
		t.Fatalf("clearing an empty list must report zero, got %d", n)
	}
}

func TestFailedSaveKeepsServedSet(t *testing.T) {
	t.Parallel()
	l := New([]string{"a"}, failingStore{err: errors.New("disk full")})
	if _, err := l.Add(context.Background(), "b"); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if l.Allows("b") {
		t.Fatalf("unsaved channel must not be served")
	}
}

func TestFileStoreRoundTripsThroughList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := FileStore{Path: filepath.Join(t.TempDir(), "forums.yaml")}
	if _, found, err := store.Load(); err != nil || found {
		t.Fatalf("missing file must load as not found: %v %v", found, err)
	}
	l := New(nil, store)
	for _, id := range []string{"z", "m"} {
		if _, err := l.Add(ctx, id); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	ids, found, err := store.Load()
	if err != nil || !found || !reflect.DeepEqual(ids, []string{"m", "z"}) {
		t.Fatalf("unexpected stored list %v %v %v", ids, found, err)
	}
}

func TestConcurrentAddsAreAllKept(t *testing.T) {
	t.Parallel()
	l := New(nil, nil)
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = l.Add(context.Background(), id)
		}(id)
	}
	wg.Wait()
	if got := len(l.IDs()); got != 6 {
		t.Fatalf("expected 6 channels, got %d", got)
	}
}
