package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/application"
	"github.com/adhocore/gronx"
)

const DefaultStatusCron = "*/5 * * * *"

type HealthSource interface {
	Health(ctx context.Context) (application.HealthReport, error)
}

type MessageEditor interface {
	EditMessage(ctx context.Context, channelID, messageID, content string) error
}

type StatusReporterConfig struct {
	Cron      string
	ChannelID string
	MessageID string
	Timeout   time.Duration
}

// StatusReporter edits a fixed message with the current health report on a
// cron schedule.
type StatusReporter struct {
	logger *slog.Logger
	health HealthSource
	editor MessageEditor
	cfg    StatusReporterConfig
	nowFn  func() time.Time
}

func NewStatusReporter(logger *slog.Logger, health HealthSource, editor MessageEditor, cfg StatusReporterConfig) (*StatusReporter, error) {
	if cfg.Cron == "" {
		cfg.Cron = DefaultStatusCron
	}
	if !gronx.IsValid(cfg.Cron) {
		return nil, fmt.Errorf("invalid status cron expression: %s", cfg.Cron)
	}
	if cfg.ChannelID == "" || cfg.MessageID == "" {
		return nil, fmt.Errorf("status reporter requires channel_id and message_id")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusReporter{
		logger: logger,
		health: health,
		editor: editor,
		cfg:    cfg,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *StatusReporter) Run(ctx context.Context) error {
	for {
		next, err := gronx.NextTickAfter(r.cfg.Cron, r.nowFn(), false)
		if err != nil {
			return fmt.Errorf("compute next status tick: %w", err)
		}
		timer := time.NewTimer(next.Sub(r.nowFn()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if err := r.reportOnce(ctx); err != nil {
			r.logger.WarnContext(ctx, "status report failed",
				"module", "scheduler.status_reporter",
				"layer", "adapter",
				"operation", "report",
				"outcome", "failure",
				"error", err,
			)
		}
	}
}

func (r *StatusReporter) reportOnce(ctx context.Context) error {
	report, err := r.health.Health(ctx)
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return r.editor.EditMessage(callCtx, r.cfg.ChannelID, r.cfg.MessageID, application.RenderStatus(report, r.nowFn()))
}
