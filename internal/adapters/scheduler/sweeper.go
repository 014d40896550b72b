// Package scheduler runs the periodic jobs of the engine: expiring stale
// auto-publish prompts and refreshing the status message.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type ConfirmationExpirer interface {
	ExpirePendingConfirmations(ctx context.Context, limit int) (int, error)
}

type ConfirmationSweeper struct {
	logger    *slog.Logger
	expirer   ConfirmationExpirer
	interval  time.Duration
	batchSize int
}

func NewConfirmationSweeper(logger *slog.Logger, expirer ConfirmationExpirer, interval time.Duration, batchSize int) *ConfirmationSweeper {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfirmationSweeper{logger: logger, expirer: expirer, interval: interval, batchSize: batchSize}
}

func (w *ConfirmationSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if _, err := w.processOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "confirmation sweep failed",
				"module", "scheduler.confirmation_sweeper",
				"layer", "adapter",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}
	}
}

// processOnce drains every expired prompt, one batch at a time.
func (w *ConfirmationSweeper) processOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := w.expirer.ExpirePendingConfirmations(ctx, w.batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < w.batchSize {
			break
		}
	}
	if total > 0 {
		w.logger.InfoContext(ctx, "expired pending confirmations",
			"module", "scheduler.confirmation_sweeper", "layer", "adapter", "operation", "process_once", "outcome", "success",
			"expired", total,
		)
	}
	return total, nil
}
