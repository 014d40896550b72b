package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
)

// HandlePlatformEvent routes an inbound thread lifecycle event. Auto-publish
// problems are reported in the outcome and logged, never returned.
func (s *Service) HandlePlatformEvent(ctx context.Context, ev ports.PlatformEvent) error {
	switch ev.Type {
	case ports.EventThreadCreated:
		s.HandleThreadCreated(ctx, ev)
		return nil
	case ports.EventThreadDeleted:
		return s.HandleThreadDeleted(ctx, ev)
	default:
		return fmt.Errorf("%w: unsupported event type %q", domain.ErrValidation, ev.Type)
	}
}

func (s *Service) HandleThreadCreated(ctx context.Context, ev ports.PlatformEvent) AutoPublishOutcome {
	outcome := s.autoPublish(ctx, ev)
	s.telemetry.ObserveAutoPublish(string(outcome.Status))
	level := s.logger.InfoContext
	if outcome.Status == AutoPublishFailed {
		level = s.logger.WarnContext
	}
	level(ctx, "thread created handled",
		"module", "application", "layer", "service", "operation", "auto_publish",
		"outcome", string(outcome.Status), "thread_id", ev.ThreadID, "author_id", ev.AuthorID,
		"detail", outcome.Message,
	)
	return outcome
}

func (s *Service) autoPublish(ctx context.Context, ev ports.PlatformEvent) AutoPublishOutcome {
	if ev.ThreadID == "" {
		return AutoPublishOutcome{Status: AutoPublishFailed, Message: "event has no thread id"}
	}
	if s.dedup != nil {
		first, err := s.dedup.FirstSeen(ctx, "thread_created:"+ev.ThreadID, s.cfg.ThreadEventDedupTTL)
		if err != nil {
			s.logger.WarnContext(ctx, "thread event dedup unavailable",
				"module", "application", "layer", "service", "operation", "auto_publish", "outcome", "degraded",
				"thread_id", ev.ThreadID, "error", err,
			)
		} else if !first {
			return AutoPublishOutcome{Status: AutoPublishDuplicate, Message: "thread already handled"}
		}
	}
	if !s.channelAllowed(ev.ChannelID) {
		return AutoPublishOutcome{Status: AutoPublishIgnored, Message: "channel is not enrolled in auto-publish"}
	}

	authorID := ev.AuthorID
	if authorID == "" {
		thread, err := s.lookupThread(ctx, ev.ThreadID)
		if err != nil {
			return AutoPublishOutcome{Status: AutoPublishFailed, Message: "could not identify the thread author"}
		}
		authorID = thread.AuthorID
	}
	settings, err := s.GetSettings(ctx, authorID)
	if err != nil {
		return AutoPublishOutcome{Status: AutoPublishFailed, Message: "settings are unavailable right now"}
	}
	if !settings.AutoPublishEnabled {
		return AutoPublishOutcome{Status: AutoPublishDisabled}
	}
	if settings.DefaultLicense == nil {
		return AutoPublishOutcome{Status: AutoPublishNoDefault, Message: "no default license is configured"}
	}
	choice := *settings.DefaultLicense
	lic, err := s.resolveChoice(ctx, authorID, choice)
	if errors.Is(err, domain.ErrNotFound) {
		return AutoPublishOutcome{Status: AutoPublishNoDefault, Message: "your default license no longer exists; choose a new one"}
	}
	if err != nil {
		return AutoPublishOutcome{Status: AutoPublishFailed, Message: "your default license could not be resolved"}
	}

	if settings.SkipAutoPublishConfirmation {
		return s.autoPublishNow(ctx, ev.ThreadID, authorID, choice)
	}

	now := s.nowFn()
	pending := domain.PendingAutoPublish{
		ThreadID:  ev.ThreadID,
		AuthorID:  authorID,
		Choice:    choice,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.ConfirmationTimeout),
	}
	promptID, err := s.postMessage(ctx, ev.ThreadID, RenderConfirmationPrompt(lic, authorID, now, pending.ExpiresAt))
	if err != nil {
		return AutoPublishOutcome{Status: AutoPublishFailed, Message: "could not ask for confirmation"}
	}
	pending.PromptMessageID = promptID
	if s.pending == nil {
		s.discardMessage(ctx, ev.ThreadID, promptID)
		return AutoPublishOutcome{Status: AutoPublishFailed, Message: "confirmations are not configured"}
	}
	if err := s.pending.Put(ctx, pending); err != nil {
		s.discardMessage(ctx, ev.ThreadID, promptID)
		return AutoPublishOutcome{Status: AutoPublishFailed, Message: "could not store the confirmation request"}
	}
	return AutoPublishOutcome{Status: AutoPublishAwaiting, Message: fmt.Sprintf("confirm %q to publish", lic.Name)}
}

func (s *Service) autoPublishNow(ctx context.Context, threadID, authorID string, choice domain.LicenseChoice) AutoPublishOutcome {
	res, err := s.Publish(ctx, PublishRequest{ThreadID: threadID, RequesterID: authorID, Choice: choice})
	if err != nil {
		return AutoPublishOutcome{Status: AutoPublishFailed, Message: userMessage(err)}
	}
	post := res.Post
	return AutoPublishOutcome{Status: AutoPublishPublished, Message: fmt.Sprintf("published %q", post.LicenseName), Post: &post}
}

// ConfirmAutoPublish settles a pending auto-publish. Only the thread author
// or an admin may answer; accept publishes the stored default license.
func (s *Service) ConfirmAutoPublish(ctx context.Context, requesterID, threadID string, accept bool) (AutoPublishOutcome, error) {
	if s.pending == nil {
		return AutoPublishOutcome{}, fmt.Errorf("%w: no pending confirmation for thread %s", domain.ErrNotFound, threadID)
	}
	pending, err := s.pending.Get(ctx, threadID)
	if err != nil {
		return AutoPublishOutcome{}, err
	}
	if requesterID != pending.AuthorID && !s.permissions.IsAdmin(requesterID) {
		return AutoPublishOutcome{}, fmt.Errorf("%w: only the thread author or an admin may answer this confirmation", domain.ErrPermissionDenied)
	}
	pending, err = s.pending.Take(ctx, threadID)
	if err != nil {
		return AutoPublishOutcome{}, err
	}
	if pending.PromptMessageID != "" {
		s.discardMessage(ctx, threadID, pending.PromptMessageID)
	}
	if !s.nowFn().Before(pending.ExpiresAt) {
		return AutoPublishOutcome{}, fmt.Errorf("%w: confirmation for thread %s expired", domain.ErrNotFound, threadID)
	}
	if !accept {
		s.telemetry.ObserveAutoPublish(string(AutoPublishCancelled))
		return AutoPublishOutcome{Status: AutoPublishCancelled, Message: "auto-publish cancelled"}, nil
	}
	res, err := s.Publish(ctx, PublishRequest{ThreadID: threadID, RequesterID: pending.AuthorID, Choice: pending.Choice})
	if err != nil {
		s.telemetry.ObserveAutoPublish(string(AutoPublishFailed))
		return AutoPublishOutcome{}, err
	}
	s.telemetry.ObserveAutoPublish(string(AutoPublishPublished))
	post := res.Post
	return AutoPublishOutcome{Status: AutoPublishPublished, Message: fmt.Sprintf("published %q", post.LicenseName), Post: &post}, nil
}

// ExpirePendingConfirmations removes prompts nobody answered in time.
func (s *Service) ExpirePendingConfirmations(ctx context.Context, limit int) (int, error) {
	if s.pending == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 100
	}
	expired, err := s.pending.TakeExpired(ctx, s.nowFn(), limit)
	if err != nil {
		return 0, err
	}
	for _, p := range expired {
		if p.PromptMessageID != "" {
			s.discardMessage(ctx, p.ThreadID, p.PromptMessageID)
		}
		s.telemetry.ObserveAutoPublish("expired")
	}
	return len(expired), nil
}

func (s *Service) HandleThreadDeleted(ctx context.Context, ev ports.PlatformEvent) error {
	if s.pending != nil {
		if _, err := s.pending.Take(ctx, ev.ThreadID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "drop pending confirmation failed",
				"module", "application", "layer", "service", "operation", "thread_deleted", "outcome", "failure",
				"thread_id", ev.ThreadID, "error", err,
			)
		}
	}
	_, err := s.Retire(ctx, ev.ThreadID)
	return err
}

func (s *Service) channelAllowed(channelID string) bool {
	return s.channels.Allows(channelID)
}

// userMessage turns an engine error into something safe to show an author.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return "you are not allowed to change this thread's license"
	case errors.Is(err, domain.ErrNotFound):
		return "the thread or license could not be found"
	case domain.IsRetryable(err), errors.Is(err, domain.ErrConflict):
		return "publishing failed temporarily; try again"
	default:
		return "publishing failed"
	}
}
