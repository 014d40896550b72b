// Package relay tells the backup service about permission changes without
// holding up the publish path. Deliveries are queued in a bounded buffer and
// retried by a fixed worker pool.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

type Metrics interface {
	ObserveDelivery(state string)
	ObserveRetry()
	SetQueueDepth(n int)
}

type Config struct {
	QueueSize      int
	Workers        int
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

type Stats struct {
	Enqueued  uint64 `json:"enqueued"`
	Succeeded uint64 `json:"succeeded"`
	Exhausted uint64 `json:"exhausted"`
	Rejected  uint64 `json:"rejected"`
	Dropped   uint64 `json:"dropped"`
	Abandoned uint64 `json:"abandoned"`
	Retries   uint64 `json:"retries"`
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(r *Relay) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithObserver registers fn to receive every delivery once it settles.
func WithObserver(fn func(Delivery)) Option {
	return func(r *Relay) {
		r.observer = fn
	}
}

type Relay struct {
	cfg      Config
	sender   Sender
	logger   *slog.Logger
	metrics  Metrics
	observer func(Delivery)
	nowFn    func() time.Time

	queue   chan *Delivery
	mu      sync.RWMutex
	closed  bool
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	enqueued  atomic.Uint64
	succeeded atomic.Uint64
	exhausted atomic.Uint64
	rejected  atomic.Uint64
	dropped   atomic.Uint64
	abandoned atomic.Uint64
	retries   atomic.Uint64
}

func New(cfg Config, sender Sender, opts ...Option) *Relay {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = 30 * cfg.BaseBackoff
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	runCtx, cancel := context.WithCancel(context.Background())
	r := &Relay{
		cfg:     cfg,
		sender:  sender,
		logger:  slog.Default(),
		metrics: noopMetrics{},
		nowFn:   func() time.Time { return time.Now().UTC() },
		queue:   make(chan *Delivery, cfg.QueueSize),
		runCtx:  runCtx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.work(i)
	}
	r.logger.Info("notification relay started",
		"module", "relay", "layer", "worker", "operation", "start",
		"workers", r.cfg.Workers, "queue_size", r.cfg.QueueSize,
	)
}

// Notify queues n and returns immediately. When the queue is full the oldest
// queued delivery is dropped to make room. It reports false once the relay
// has been shut down.
func (r *Relay) Notify(n Notification) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	if n.EventID == "" {
		n.EventID = uuid.NewString()
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = r.nowFn()
	}
	d := &Delivery{Notification: n, State: StatePending, EnqueuedAt: r.nowFn()}
	for {
		select {
		case r.queue <- d:
			r.enqueued.Add(1)
			r.metrics.SetQueueDepth(len(r.queue))
			return true
		default:
		}
		select {
		case oldest := <-r.queue:
			oldest.State = StateDropped
			oldest.LastError = "queue full"
			r.finish(oldest)
		default:
		}
	}
}

func (r *Relay) QueueDepth() int {
	return len(r.queue)
}

func (r *Relay) Stats() Stats {
	return Stats{
		Enqueued:  r.enqueued.Load(),
		Succeeded: r.succeeded.Load(),
		Exhausted: r.exhausted.Load(),
		Rejected:  r.rejected.Load(),
		Dropped:   r.dropped.Load(),
		Abandoned: r.abandoned.Load(),
		Retries:   r.retries.Load(),
	}
}

// Shutdown stops intake and lets workers flush until ctx is done. Whatever is
// still queued or waiting to retry after that is abandoned.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	started := r.started
	r.mu.Unlock()

	if !started {
		r.cancel()
		for d := range r.queue {
			d.State = StateAbandoned
			r.finish(d)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return fmt.Errorf("notification relay shutdown: %w", ctx.Err())
	}
}

func (r *Relay) work(id int) {
	defer r.wg.Done()
	for d := range r.queue {
		r.metrics.SetQueueDepth(len(r.queue))
		r.deliver(id, d)
	}
}

func (r *Relay) deliver(worker int, d *Delivery) {
	for {
		if r.runCtx.Err() != nil {
			d.State = StateAbandoned
			r.finish(d)
			return
		}

		d.begin()
		attemptCtx, cancel := context.WithTimeout(r.runCtx, r.cfg.AttemptTimeout)
		err := r.sender.Send(attemptCtx, d.Notification)
		cancel()
		d.settle(err, r.cfg.MaxAttempts)
		if d.State != StatePending {
			r.finish(d)
			return
		}

		r.retries.Add(1)
		r.metrics.ObserveRetry()
		wait := exponentialBackoff(r.cfg.BaseBackoff, r.cfg.MaxBackoff, d.Attempts)
		r.logger.Debug("notification attempt failed, retrying",
			"module", "relay", "layer", "worker", "operation", "deliver",
			"worker", worker, "thread_id", d.Notification.ThreadID,
			"attempt", d.Attempts, "retry_in", wait, "error", d.LastError,
		)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-r.runCtx.Done():
			timer.Stop()
		}
	}
}

func (r *Relay) finish(d *Delivery) {
	d.SettledAt = r.nowFn()
	attrs := []any{
		"module", "relay", "layer", "worker", "operation", "deliver",
		"outcome", string(d.State),
		"event_id", d.Notification.EventID,
		"thread_id", d.Notification.ThreadID,
		"backup_allowed", d.Notification.BackupAllowed,
		"attempts", d.Attempts,
	}
	if d.LastError != "" {
		attrs = append(attrs, "error", d.LastError)
	}
	switch d.State {
	case StateSucceeded:
		r.succeeded.Add(1)
		r.logger.Info("notification delivered", attrs...)
	case StateRejected:
		r.rejected.Add(1)
		r.logger.Warn("notification rejected by notifier", attrs...)
	case StateExhausted:
		r.exhausted.Add(1)
		r.logger.Error("notification retries exhausted", attrs...)
	case StateDropped:
		r.dropped.Add(1)
		r.logger.Warn("notification dropped from full queue", attrs...)
	case StateAbandoned:
		r.abandoned.Add(1)
		r.logger.Warn("notification abandoned on shutdown", attrs...)
	}
	r.metrics.ObserveDelivery(string(d.State))
	if r.observer != nil {
		r.observer(*d)
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveDelivery(string) {}
func (noopMetrics) ObserveRetry()          {}
func (noopMetrics) SetQueueDepth(int)      {}
