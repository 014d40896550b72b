package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/relay"
	"github.com/google/uuid"
)

// Publish puts a license on a thread. An identical license already live on the
// thread is left alone; a different one is replaced.
func (s *Service) Publish(ctx context.Context, req PublishRequest) (PublishResult, error) {
	return s.transition(ctx, req, false)
}

// Replace always supersedes the live declaration with a new message, even if
// the license is unchanged. The thread must already be published.
func (s *Service) Replace(ctx context.Context, req PublishRequest) (PublishResult, error) {
	return s.transition(ctx, req, true)
}

// Retire forgets the published post of a deleted thread. No platform calls are
// made. It reports whether a post existed.
func (s *Service) Retire(ctx context.Context, threadID string) (bool, error) {
	if threadID == "" {
		return false, fmt.Errorf("%w: thread_id is required", domain.ErrValidation)
	}
	release, err := s.lockThread(ctx, threadID)
	if err != nil {
		return false, err
	}
	defer release()

	current, err := s.publications.GetByThread(ctx, threadID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, persistenceErr(err)
	}
	now := s.nowFn()
	event := domain.PublicationEvent{
		ID:            uuid.New(),
		ThreadID:      threadID,
		Version:       current.Version + 1,
		Kind:          domain.PublicationRetired,
		MessageID:     current.MessageID,
		UserID:        current.UserID,
		BackupAllowed: current.BackupAllowed,
		LicenseName:   current.LicenseName,
		Digest:        current.Digest,
		RecordedAt:    now,
	}
	if err := s.publications.Retire(ctx, threadID, event); err != nil {
		s.telemetry.ObserveTransition(string(TransitionRetired), "failure")
		return false, persistenceErr(err)
	}
	s.telemetry.ObserveTransition(string(TransitionRetired), "success")
	s.logger.InfoContext(ctx, "license post retired",
		"module", "application", "layer", "service", "operation", "retire", "outcome", "success",
		"thread_id", threadID, "message_id", current.MessageID,
	)
	return true, nil
}

func (s *Service) GetPublishedPost(ctx context.Context, threadID string) (domain.PublishedPost, error) {
	post, err := s.publications.GetByThread(ctx, threadID)
	if err != nil {
		return domain.PublishedPost{}, persistenceErr(err)
	}
	return post, nil
}

func (s *Service) PublicationHistory(ctx context.Context, threadID string) ([]domain.PublicationEvent, error) {
	history, err := s.publications.History(ctx, threadID)
	if err != nil {
		return nil, persistenceErr(err)
	}
	return history, nil
}

func (s *Service) transition(ctx context.Context, req PublishRequest, replaceOnly bool) (PublishResult, error) {
	if req.ThreadID == "" {
		return PublishResult{}, fmt.Errorf("%w: thread_id is required", domain.ErrValidation)
	}
	if req.RequesterID == "" {
		return PublishResult{}, domain.ErrUnauthorized
	}
	thread, err := s.lookupThread(ctx, req.ThreadID)
	if err != nil {
		return PublishResult{}, err
	}
	if !s.permissions.CanMutate(req.RequesterID, thread) {
		return PublishResult{}, fmt.Errorf("%w: only the thread author or an admin may change its license", domain.ErrPermissionDenied)
	}
	lic, err := s.resolveChoice(ctx, req.RequesterID, req.Choice)
	if err != nil {
		return PublishResult{}, err
	}

	release, err := s.lockThread(ctx, thread.ThreadID)
	if err != nil {
		return PublishResult{}, err
	}
	defer release()

	current, err := s.publications.GetByThread(ctx, thread.ThreadID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if replaceOnly {
			return PublishResult{}, fmt.Errorf("%w: thread %s has no published license", domain.ErrNotFound, thread.ThreadID)
		}
		if err := s.ensureNotRetired(ctx, thread.ThreadID); err != nil {
			return PublishResult{}, err
		}
		return s.publishFirst(ctx, thread, req.RequesterID, lic)
	case err != nil:
		return PublishResult{}, persistenceErr(err)
	}
	if !replaceOnly && current.Digest == lic.Digest() {
		s.telemetry.ObserveTransition(string(TransitionUnchanged), "success")
		return PublishResult{Post: current, Transition: TransitionUnchanged}, nil
	}
	return s.replaceLive(ctx, thread, req.RequesterID, lic, current)
}

func (s *Service) publishFirst(ctx context.Context, thread domain.ThreadInfo, requesterID string, lic domain.EffectiveLicense) (PublishResult, error) {
	now := s.nowFn()
	content := RenderDeclaration(lic, requesterID, now)
	messageID, err := s.postMessage(ctx, thread.ThreadID, content)
	if err != nil {
		s.telemetry.ObserveTransition(string(TransitionPublished), "failure")
		return PublishResult{}, err
	}

	post := domain.PublishedPost{
		ThreadID:         thread.ThreadID,
		MessageID:        messageID,
		UserID:           requesterID,
		BackupAllowed:    lic.BackupAllowed(),
		LicenseName:      lic.Name,
		Source:           lic.Source,
		SourceTemplateID: lic.TemplateID,
		SourceSystemName: lic.SystemName,
		Digest:           lic.Digest(),
		Content:          content,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.publications.Create(ctx, post, newPublicationEvent(post, domain.PublicationPublished, "")); err != nil {
		s.discardMessage(ctx, thread.ThreadID, messageID)
		s.telemetry.ObserveTransition(string(TransitionPublished), "failure")
		return PublishResult{}, persistenceErr(err)
	}

	s.pinMessage(ctx, thread.ThreadID, messageID)
	s.incrementUsage(ctx, lic)
	notified := s.notifyIfChanged(thread, post, false)
	s.telemetry.ObserveTransition(string(TransitionPublished), "success")
	s.logger.InfoContext(ctx, "license post published",
		"module", "application", "layer", "service", "operation", "publish", "outcome", "success",
		"thread_id", thread.ThreadID, "message_id", messageID, "license", lic.Name,
		"backup_allowed", post.BackupAllowed, "notified", notified,
	)
	return PublishResult{Post: post, Transition: TransitionPublished, Notified: notified}, nil
}

func (s *Service) replaceLive(ctx context.Context, thread domain.ThreadInfo, requesterID string, lic domain.EffectiveLicense, current domain.PublishedPost) (PublishResult, error) {
	now := s.nowFn()
	content := RenderDeclaration(lic, requesterID, now)
	messageID, err := s.postMessage(ctx, thread.ThreadID, content)
	if err != nil {
		s.telemetry.ObserveTransition(string(TransitionReplaced), "failure")
		return PublishResult{}, err
	}

	next := current
	next.MessageID = messageID
	next.UserID = requesterID
	next.BackupAllowed = lic.BackupAllowed()
	next.LicenseName = lic.Name
	next.Source = lic.Source
	next.SourceTemplateID = lic.TemplateID
	next.SourceSystemName = lic.SystemName
	next.Digest = lic.Digest()
	next.Content = content
	next.Version = current.Version + 1
	next.UpdatedAt = now
	event := newPublicationEvent(next, domain.PublicationReplaced, current.MessageID)
	if err := s.publications.Replace(ctx, next, event, current.Version); err != nil {
		s.discardMessage(ctx, thread.ThreadID, messageID)
		s.telemetry.ObserveTransition(string(TransitionReplaced), "failure")
		return PublishResult{}, persistenceErr(err)
	}

	s.supersede(ctx, thread.ThreadID, current, now)
	s.pinMessage(ctx, thread.ThreadID, messageID)
	s.incrementUsage(ctx, lic)
	notified := s.notifyIfChanged(thread, next, current.BackupAllowed)
	s.telemetry.ObserveTransition(string(TransitionReplaced), "success")
	s.logger.InfoContext(ctx, "license post replaced",
		"module", "application", "layer", "service", "operation", "replace", "outcome", "success",
		"thread_id", thread.ThreadID, "message_id", messageID, "superseded_message_id", current.MessageID,
		"version", next.Version, "backup_allowed", next.BackupAllowed, "notified", notified,
	)
	return PublishResult{Post: next, Transition: TransitionReplaced, Notified: notified}, nil
}

// supersede turns the previous declaration into a marked, quoted copy. When
// the edit fails the message is removed so the thread never shows two live
// declarations; its content stays in the publication history.
func (s *Service) supersede(ctx context.Context, threadID string, previous domain.PublishedPost, at time.Time) {
	editCtx, cancelEdit := s.platformCtx(ctx)
	err := s.platform.EditMessage(editCtx, threadID, previous.MessageID, RenderSuperseded(previous.Content, at))
	cancelEdit()
	if errors.Is(err, domain.ErrNotFound) {
		return
	}
	if err == nil {
		unpinCtx, cancelUnpin := s.platformCtx(ctx)
		defer cancelUnpin()
		if uerr := s.platform.UnpinMessage(unpinCtx, threadID, previous.MessageID); uerr != nil && !errors.Is(uerr, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "unpin superseded declaration failed",
				"module", "application", "layer", "service", "operation", "supersede", "outcome", "failure",
				"thread_id", threadID, "message_id", previous.MessageID, "error", uerr,
			)
		}
		return
	}

	s.logger.WarnContext(ctx, "mark declaration superseded failed, deleting it",
		"module", "application", "layer", "service", "operation", "supersede", "outcome", "failure",
		"thread_id", threadID, "message_id", previous.MessageID, "error", err,
	)
	deleteCtx, cancelDelete := s.platformCtx(ctx)
	defer cancelDelete()
	if derr := s.platform.DeleteMessage(deleteCtx, threadID, previous.MessageID); derr != nil && !errors.Is(derr, domain.ErrNotFound) {
		s.logger.ErrorContext(ctx, "delete superseded declaration failed",
			"module", "application", "layer", "service", "operation", "supersede", "outcome", "failure",
			"thread_id", threadID, "message_id", previous.MessageID, "error", derr,
		)
	}
}

func (s *Service) ensureNotRetired(ctx context.Context, threadID string) error {
	history, err := s.publications.History(ctx, threadID)
	if err != nil {
		return persistenceErr(err)
	}
	if n := len(history); n > 0 && history[n-1].Kind == domain.PublicationRetired {
		return fmt.Errorf("%w: thread %s was deleted", domain.ErrNotFound, threadID)
	}
	return nil
}

func (s *Service) lockThread(ctx context.Context, threadID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	defer cancel()
	release, err := s.locks.Lock(lockCtx, threadID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: thread %s is busy, try again", domain.ErrConflict, threadID)
	}
	return release, nil
}

func (s *Service) lookupThread(ctx context.Context, threadID string) (domain.ThreadInfo, error) {
	pctx, cancel := s.platformCtx(ctx)
	defer cancel()
	thread, err := s.platform.GetThread(pctx, threadID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ThreadInfo{}, fmt.Errorf("%w: thread %s", domain.ErrNotFound, threadID)
		}
		return domain.ThreadInfo{}, platformErr("get thread", err)
	}
	if thread.ThreadID == "" {
		thread.ThreadID = threadID
	}
	return thread, nil
}

func (s *Service) postMessage(ctx context.Context, threadID, content string) (string, error) {
	pctx, cancel := s.platformCtx(ctx)
	defer cancel()
	messageID, err := s.platform.PostMessage(pctx, threadID, content)
	if err != nil {
		return "", platformErr("post declaration", err)
	}
	return messageID, nil
}

func (s *Service) pinMessage(ctx context.Context, threadID, messageID string) {
	pctx, cancel := s.platformCtx(ctx)
	defer cancel()
	if err := s.platform.PinMessage(pctx, threadID, messageID); err != nil {
		s.logger.WarnContext(ctx, "pin declaration failed",
			"module", "application", "layer", "service", "operation", "pin", "outcome", "failure",
			"thread_id", threadID, "message_id", messageID, "error", err,
		)
	}
}

// discardMessage undoes a post whose row could not be committed.
func (s *Service) discardMessage(ctx context.Context, threadID, messageID string) {
	pctx, cancel := s.platformCtx(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.platform.DeleteMessage(pctx, threadID, messageID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.ErrorContext(ctx, "discard uncommitted declaration failed",
			"module", "application", "layer", "service", "operation", "compensate", "outcome", "failure",
			"thread_id", threadID, "message_id", messageID, "error", err,
		)
	}
}

func (s *Service) incrementUsage(ctx context.Context, lic domain.EffectiveLicense) {
	if lic.Source != domain.SourceTemplate {
		return
	}
	if err := s.templates.IncrementUsage(ctx, lic.TemplateID); err != nil {
		s.logger.WarnContext(ctx, "increment template usage failed",
			"module", "application", "layer", "service", "operation", "increment_usage", "outcome", "failure",
			"template_id", lic.TemplateID.String(), "error", err,
		)
	}
}

// notifyIfChanged hands a permission change to the relay. A thread without a
// previous post counts as not allowing backup.
func (s *Service) notifyIfChanged(thread domain.ThreadInfo, post domain.PublishedPost, previous bool) bool {
	if post.BackupAllowed == previous || !s.cfg.NotifyBackupChanges || s.relay == nil {
		return false
	}
	userID := thread.AuthorID
	if userID == "" {
		userID = post.UserID
	}
	return s.relay.Notify(relay.Notification{
		ThreadID:      post.ThreadID,
		UserID:        userID,
		MessageID:     post.MessageID,
		BackupAllowed: post.BackupAllowed,
		LicenseName:   post.LicenseName,
		ThreadTitle:   thread.Title,
		OccurredAt:    post.UpdatedAt,
	})
}

// resolveChoice turns a choice into the license that would be posted. Templates
// must be manageable by requesterID.
func (s *Service) resolveChoice(ctx context.Context, requesterID string, choice domain.LicenseChoice) (domain.EffectiveLicense, error) {
	if err := domain.ValidateChoice(choice); err != nil {
		return domain.EffectiveLicense{}, err
	}
	switch choice.Source {
	case domain.SourceTemplate:
		tpl, err := s.GetTemplate(ctx, requesterID, choice.TemplateID)
		if err != nil {
			return domain.EffectiveLicense{}, err
		}
		return domain.EffectiveLicense{
			Source:          domain.SourceTemplate,
			TemplateID:      tpl.ID,
			Name:            tpl.Name,
			RestrictionNote: tpl.RestrictionNote,
			Flags:           tpl.Flags,
		}, nil
	default:
		sys, err := s.licenses.Lookup(choice.SystemName)
		if err != nil {
			return domain.EffectiveLicense{}, err
		}
		flags := sys.Flags
		if choice.BackupOverride != nil {
			flags.AllowBackup = *choice.BackupOverride
		}
		return domain.EffectiveLicense{
			Source:          domain.SourceSystem,
			SystemName:      sys.Name,
			Name:            sys.Name,
			Text:            sys.Text,
			RestrictionNote: sys.RestrictionNote,
			Flags:           flags,
		}, nil
	}
}

func newPublicationEvent(post domain.PublishedPost, kind domain.PublicationKind, supersededMessageID string) domain.PublicationEvent {
	return domain.PublicationEvent{
		ID:                  uuid.New(),
		ThreadID:            post.ThreadID,
		Version:             post.Version,
		Kind:                kind,
		MessageID:           post.MessageID,
		SupersededMessageID: supersededMessageID,
		UserID:              post.UserID,
		BackupAllowed:       post.BackupAllowed,
		LicenseName:         post.LicenseName,
		Digest:              post.Digest,
		Content:             post.Content,
		RecordedAt:          post.UpdatedAt,
	}
}

func platformErr(op string, err error) error {
	if errors.Is(err, domain.ErrPlatform) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrPlatform, op, err)
}

// persistenceErr passes domain outcomes a repository reports on purpose and
// tags everything else as a storage failure.
func persistenceErr(err error) error {
	switch {
	case errors.Is(err, domain.ErrPersistence),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrTemplateInUse),
		errors.Is(err, domain.ErrQuotaExceeded):
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
}
