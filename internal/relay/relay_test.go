package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type scriptedSender struct {
	mu    sync.Mutex
	calls []Notification
	fn    func(call int, n Notification) error
}

func (s *scriptedSender) Send(ctx context.Context, n Notification) error {
	s.mu.Lock()
	s.calls = append(s.calls, n)
	call := len(s.calls)
	s.mu.Unlock()
	return s.fn(call, n)
}

func (s *scriptedSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func fastConfig() Config {
	return Config{QueueSize: 8, Workers: 2, MaxAttempts: 5, BaseBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond, AttemptTimeout: time.Second}
}

func settledChannel() (chan Delivery, Option) {
	ch := make(chan Delivery, 64)
	return ch, WithObserver(func(d Delivery) { ch <- d })
}

func waitSettled(t *testing.T, ch <-chan Delivery) Delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for delivery to settle")
		return Delivery{}
	}
}

func TestSucceedsOnFifthAttempt(t *testing.T) {
	t.Parallel()
	sender := &scriptedSender{fn: func(call int, _ Notification) error {
		if call < 5 {
			return errors.New("notifier returned status 503")
		}
		return nil
	}}
	settled, observe := settledChannel()
	r := New(fastConfig(), sender, observe)
	r.Start()
	defer r.Shutdown(context.Background())

	r.Notify(Notification{ThreadID: "X", UserID: "U", BackupAllowed: false})
	d := waitSettled(t, settled)
	if d.State != StateSucceeded || d.Attempts != 5 {
		t.Fatalf("expected success after 5 attempts, got %s after %d", d.State, d.Attempts)
	}
	time.Sleep(20 * time.Millisecond)
	if got := sender.callCount(); got != 5 {
		t.Fatalf("expected exactly 5 sends, got %d", got)
	}
	if sender.calls[4].BackupAllowed || sender.calls[4].ThreadID != "X" || sender.calls[4].UserID != "U" {
		t.Fatalf("unexpected payload: %+v", sender.calls[4])
	}
	stats := r.Stats()
	if stats.Succeeded != 1 || stats.Retries != 4 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	sender := &scriptedSender{fn: func(int, Notification) error {
		return Permanent(errors.New("notifier returned status 400"))
	}}
	settled, observe := settledChannel()
	r := New(fastConfig(), sender, observe)
	r.Start()
	defer r.Shutdown(context.Background())

	r.Notify(Notification{ThreadID: "X"})
	d := waitSettled(t, settled)
	if d.State != StateRejected || d.Attempts != 1 {
		t.Fatalf("expected rejection after one attempt, got %s after %d", d.State, d.Attempts)
	}
	if sender.callCount() != 1 {
		t.Fatalf("expected single send, got %d", sender.callCount())
	}
}

func TestRetriesAreBounded(t *testing.T) {
	t.Parallel()
	sender := &scriptedSender{fn: func(int, Notification) error { return context.DeadlineExceeded }}
	settled, observe := settledChannel()
	r := New(fastConfig(), sender, observe)
	r.Start()
	defer r.Shutdown(context.Background())

	r.Notify(Notification{ThreadID: "X"})
	d := waitSettled(t, settled)
	if d.State != StateExhausted || d.Attempts != 5 {
		t.Fatalf("expected exhaustion after 5 attempts, got %s after %d", d.State, d.Attempts)
	}
	if d.LastError == "" {
		t.Fatalf("expected last error to be recorded")
	}
}

func TestFullQueueDropsOldest(t *testing.T) {
	t.Parallel()
	sender := &scriptedSender{fn: func(int, Notification) error { return nil }}
	settled, observe := settledChannel()
	cfg := fastConfig()
	cfg.QueueSize = 2
	r := New(cfg, sender, observe)

	r.Notify(Notification{ThreadID: "1"})
	r.Notify(Notification{ThreadID: "2"})
	r.Notify(Notification{ThreadID: "3"})

	dropped := waitSettled(t, settled)
	if dropped.State != StateDropped || dropped.Notification.ThreadID != "1" {
		t.Fatalf("expected oldest to be dropped, got %+v", dropped)
	}
	if r.QueueDepth() != 2 {
		t.Fatalf("expected queue depth 2, got %d", r.QueueDepth())
	}

	r.Start()
	defer r.Shutdown(context.Background())
	seen := map[string]State{}
	for i := 0; i < 2; i++ {
		d := waitSettled(t, settled)
		seen[d.Notification.ThreadID] = d.State
	}
	if seen["2"] != StateSucceeded || seen["3"] != StateSucceeded {
		t.Fatalf("expected remaining deliveries to succeed, got %v", seen)
	}
}

func TestNotifyNeverBlocksOnSlowSender(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	sender := &scriptedSender{fn: func(int, Notification) error {
		<-release
		return nil
	}}
	cfg := fastConfig()
	cfg.QueueSize = 1
	cfg.Workers = 1
	r := New(cfg, sender)
	r.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			r.Notify(Notification{ThreadID: "X"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("notify blocked behind a slow sender")
	}
	close(release)
	_ = r.Shutdown(context.Background())
	if r.Stats().Dropped == 0 {
		t.Fatalf("expected some deliveries to be dropped")
	}
}

func TestShutdownAbandonsAfterGrace(t *testing.T) {
	t.Parallel()
	var attempted atomic.Int32
	sender := &scriptedSender{fn: func(int, Notification) error {
		attempted.Add(1)
		return errors.New("connection refused")
	}}
	settled, observe := settledChannel()
	cfg := fastConfig()
	cfg.BaseBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	r := New(cfg, sender, observe)
	r.Start()
	r.Notify(Notification{ThreadID: "X"})

	deadline := time.Now().Add(2 * time.Second)
	for attempted.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected grace deadline to be reported, got %v", err)
	}
	d := waitSettled(t, settled)
	if d.State != StateAbandoned || d.Attempts != 1 {
		t.Fatalf("expected abandoned after 1 attempt, got %s after %d", d.State, d.Attempts)
	}
	if r.Notify(Notification{ThreadID: "Y"}) {
		t.Fatalf("notify accepted after shutdown")
	}
}

func TestShutdownFlushesQueuedDeliveries(t *testing.T) {
	t.Parallel()
	sender := &scriptedSender{fn: func(int, Notification) error { return nil }}
	r := New(fastConfig(), sender)
	r.Start()
	for i := 0; i < 5; i++ {
		r.Notify(Notification{ThreadID: "X"})
	}
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := r.Stats().Succeeded; got != 5 {
		t.Fatalf("expected all 5 flushed, got %d", got)
	}
}

func TestSettleTransitions(t *testing.T) {
	t.Parallel()
	d := &Delivery{State: StatePending}
	d.begin()
	d.settle(errors.New("boom"), 2)
	if d.State != StatePending || d.Attempts != 1 {
		t.Fatalf("expected retry pending, got %s/%d", d.State, d.Attempts)
	}
	d.begin()
	d.settle(errors.New("boom"), 2)
	if d.State != StateExhausted || !d.State.Terminal() {
		t.Fatalf("expected exhausted terminal state, got %s", d.State)
	}
	d.settle(nil, 2)
	if d.State != StateExhausted {
		t.Fatalf("settled delivery must not change state")
	}
}

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := exponentialBackoff(time.Second, 30*time.Second, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %s want %s", tc.attempt, got, tc.want)
		}
	}
}
