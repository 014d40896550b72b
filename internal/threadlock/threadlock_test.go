package threadlock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	t.Parallel()
	m := New()
	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Lock(context.Background(), "thread-1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			defer release()
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxInside)
	}
	if m.Len() != 0 {
		t.Fatalf("expected idle entries to be removed, have %d", m.Len())
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	t.Parallel()
	m := New()
	releaseA, err := m.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := m.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("lock b blocked behind a: %v", err)
	}
	releaseB()
}

func TestLockHonorsContext(t *testing.T) {
	t.Parallel()
	m := New()
	release, _ := m.Lock(context.Background(), "x")
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Lock(ctx, "x"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if _, ok := m.TryLock("x"); ok {
		t.Fatalf("try lock should fail while held")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()
	m := New()
	release, _ := m.Lock(context.Background(), "x")
	release()
	release()
	again, ok := m.TryLock("x")
	if !ok {
		t.Fatalf("expected lock to be free")
	}
	again()
	if m.Len() != 0 {
		t.Fatalf("expected empty map, got %d", m.Len())
	}
}
