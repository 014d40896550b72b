package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
)

func threadCreated(thread, author string) ports.PlatformEvent {
	return ports.PlatformEvent{
		Type:      ports.EventThreadCreated,
		ThreadID:  thread,
		ChannelID: "forum",
		AuthorID:  author,
	}
}

func (h *harness) enableAutoPublish(t *testing.T, user string, choice domain.LicenseChoice, skipConfirm bool) {
	t.Helper()
	enabled := true
	_, err := h.svc.UpdateSettings(context.Background(), user, UpdateSettingsRequest{
		AutoPublishEnabled:          &enabled,
		SkipAutoPublishConfirmation: &skipConfirm,
		DefaultLicense:              &choice,
	})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
}

func TestAutoPublishWithoutConfirmation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.platform.addThread("X", "U")
	h.enableAutoPublish(t, "U", systemChoice("CC BY 4.0"), true)

	out := h.svc.HandleThreadCreated(ctx, threadCreated("X", "U"))
	if out.Status != AutoPublishPublished || out.Post == nil {
		t.Fatalf("expected published outcome, got %+v", out)
	}
	if out.Post.LicenseName != "CC BY 4.0" || out.Post.UserID != "U" {
		t.Fatalf("unexpected post: %+v", out.Post)
	}

	again := h.svc.HandleThreadCreated(ctx, threadCreated("X", "U"))
	if again.Status != AutoPublishDuplicate {
		t.Fatalf("redelivered event should be a duplicate, got %s", again.Status)
	}
	if live := h.platform.liveDeclarations("X"); len(live) != 1 {
		t.Fatalf("expected one declaration, got %v", live)
	}
}

func TestAutoPublishAwaitsConfirmation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.platform.addThread("X", "U")
	tpl := h.template(t, "U", domain.LicenseFlags{AllowBackup: true})
	h.enableAutoPublish(t, "U", templateChoice(tpl), false)

	out := h.svc.HandleThreadCreated(ctx, threadCreated("X", "U"))
	if out.Status != AutoPublishAwaiting {
		t.Fatalf("expected awaiting confirmation, got %+v", out)
	}
	pending, err := h.pending.Get(ctx, "X")
	if err != nil {
		t.Fatalf("pending confirmation not stored: %v", err)
	}
	if !pending.ExpiresAt.Equal(h.clock.Now().Add(180 * time.Second)) {
		t.Fatalf("unexpected expiry %s", pending.ExpiresAt)
	}
	prompt := h.platform.message(pending.PromptMessageID)
	if !strings.Contains(prompt.Content, "<@U>") || !strings.Contains(prompt.Content, tpl.Name) {
		t.Fatalf("unexpected prompt: %q", prompt.Content)
	}
	if _, err := h.svc.GetPublishedPost(ctx, "X"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("nothing may be published before confirmation")
	}

	if _, err := h.svc.ConfirmAutoPublish(ctx, "stranger", "X", true); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied for another user, got %v", err)
	}
	res, err := h.svc.ConfirmAutoPublish(ctx, "U", "X", true)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Status != AutoPublishPublished || res.Post.SourceTemplateID != tpl.ID {
		t.Fatalf("unexpected confirm outcome: %+v", res)
	}
	if !h.platform.message(pending.PromptMessageID).Deleted {
		t.Fatalf("prompt should be removed once answered")
	}
	if _, err := h.svc.ConfirmAutoPublish(ctx, "U", "X", true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("a confirmation can only be answered once, got %v", err)
	}
}

func TestAutoPublishCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.platform.addThread("X", "U")
	h.enableAutoPublish(t, "U", systemChoice("CC BY 4.0"), false)
	h.svc.HandleThreadCreated(ctx, threadCreated("X", "U"))

	res, err := h.svc.ConfirmAutoPublish(ctx, "U", "X", false)
	if err != nil || res.Status != AutoPublishCancelled {
		t.Fatalf("cancel: %+v %v", res, err)
	}
	if _, err := h.svc.GetPublishedPost(ctx, "X"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cancelled auto-publish must not publish")
	}
}

func TestAdminMayAnswerConfirmation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.platform.addThread("X", "U")
	h.enableAutoPublish(t, "U", systemChoice("CC BY 4.0"), false)
	h.svc.HandleThreadCreated(ctx, threadCreated("X", "U"))

	res, err := h.svc.ConfirmAutoPublish(ctx, adminID, "X", false)
	if err != nil || res.Status != AutoPublishCancelled {
		t.Fatalf("admin cancel: %+v %v", res, err)
	}
	if _, err := h.pending.Get(ctx, "X"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("answered confirmation must be removed, got %v", err)
	}
}

func TestAutoPublishConfirmationExpires(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.platform.addThread("X", "U")
	h.platform.addThread("Y", "U")
	h.enableAutoPublish(t, "U", systemChoice("CC BY 4.0"), false)
	h.svc.HandleThreadCreated(ctx, threadCreated("X", "U"))
	h.svc.HandleThreadCreated(ctx, threadCreated("Y", "U"))
	promptX, _ := h.pending.Get(ctx, "X")

	h.clock.Advance(181 * time.Second)
	if _, err := h.svc.ConfirmAutoPublish(ctx, "U", "Y", true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("late confirmation should be treated as expired, got %v", err)
	}
	n, err := h.svc.ExpirePendingConfirmations(ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("expected one expired confirmation, got %d %v", n, err)
	}
	if !h.platform.message(promptX.PromptMessageID).Deleted {
		t.Fatalf("expired prompt should be removed")
	}
	if _, err := h.svc.GetPublishedPost(ctx, "Y"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expired confirmation must not publish")
	}
}

func TestAutoPublishSkips(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		h := newHarness(t)
		h.platform.addThread("X", "U")
		if out := h.svc.HandleThreadCreated(ctx, threadCreated("X", "U")); out.Status != AutoPublishDisabled {
			t.Fatalf("expected disabled, got %s", out.Status)
		}
	})

	t.Run("deleted default template", func(t *testing.T) {
		h := newHarness(t)
		h.platform.addThread("X", "U")
		tpl := h.template(t, "U", domain.LicenseFlags{})
		h.enableAutoPublish(t, "U", templateChoice(tpl), true)
		if err := h.svc.DeleteTemplate(ctx, "U", tpl.ID); err != nil {
			t.Fatalf("delete template: %v", err)
		}
		out := h.svc.HandleThreadCreated(ctx, threadCreated("X", "U"))
		if out.Status != AutoPublishNoDefault || out.Message == "" {
			t.Fatalf("expected no_default with a message, got %+v", out)
		}
		if h.platform.callCount() != 0 {
			t.Fatalf("nothing should be posted for a dangling default")
		}
	})

	t.Run("channel not enrolled", func(t *testing.T) {
		h := newHarness(t)
		if _, err := h.svc.AllowForum(ctx, adminID, "showcase"); err != nil {
			t.Fatalf("allow forum: %v", err)
		}
		h.platform.addThread("X", "U")
		h.enableAutoPublish(t, "U", systemChoice("CC BY 4.0"), true)
		if out := h.svc.HandleThreadCreated(ctx, threadCreated("X", "U")); out.Status != AutoPublishIgnored {
			t.Fatalf("expected ignored channel, got %s", out.Status)
		}
	})

	t.Run("platform failure", func(t *testing.T) {
		h := newHarness(t)
		h.platform.addThread("X", "U")
		h.enableAutoPublish(t, "U", systemChoice("CC BY 4.0"), true)
		h.platform.postErr = errors.New("unavailable")
		out := h.svc.HandleThreadCreated(ctx, threadCreated("X", "U"))
		if out.Status != AutoPublishFailed || out.Message != "publishing failed temporarily; try again" {
			t.Fatalf("unexpected outcome: %+v", out)
		}
	})
}

func TestThreadDeletedEventRetires(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.platform.addThread("X", "U")
	h.platform.addThread("Y", "U")
	if _, err := h.svc.Publish(ctx, PublishRequest{ThreadID: "X", RequesterID: "U", Choice: systemChoice("CC BY 4.0")}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	h.enableAutoPublish(t, "U", systemChoice("CC BY 4.0"), false)
	h.svc.HandleThreadCreated(ctx, threadCreated("Y", "U"))

	for _, thread := range []string{"X", "Y"} {
		err := h.svc.HandlePlatformEvent(ctx, ports.PlatformEvent{Type: ports.EventThreadDeleted, ThreadID: thread})
		if err != nil {
			t.Fatalf("thread deleted %s: %v", thread, err)
		}
	}
	if _, err := h.svc.GetPublishedPost(ctx, "X"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted thread should be retired")
	}
	if _, err := h.pending.Get(ctx, "Y"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("pending confirmation should be dropped with its thread")
	}
	if err := h.svc.HandlePlatformEvent(ctx, ports.PlatformEvent{Type: "reaction_added"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unsupported event to be rejected, got %v", err)
	}
}

func TestSettingsDefaultsAndValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	settings, err := h.svc.GetSettings(ctx, "U")
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.AutoPublishEnabled || settings.DefaultLicense != nil {
		t.Fatalf("unexpected defaults: %+v", settings)
	}
	if n, _ := h.repos.Settings.CountAutoPublishEnabled(ctx); n != 0 {
		t.Fatalf("reading settings must not create them")
	}

	foreign := h.template(t, "other", domain.LicenseFlags{})
	choice := templateChoice(foreign)
	if _, err := h.svc.UpdateSettings(ctx, "U", UpdateSettingsRequest{DefaultLicense: &choice}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("another user's template cannot be a default, got %v", err)
	}
	sys := systemChoice("CC BY 4.0")
	if _, err := h.svc.UpdateSettings(ctx, "U", UpdateSettingsRequest{DefaultLicense: &sys, ClearDefaultLicense: true}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected exclusive fields to be rejected, got %v", err)
	}

	h.enableAutoPublish(t, "U", sys, false)
	created, _ := h.svc.GetSettings(ctx, "U")
	h.clock.Advance(time.Hour)
	cleared, err := h.svc.UpdateSettings(ctx, "U", UpdateSettingsRequest{ClearDefaultLicense: true})
	if err != nil {
		t.Fatalf("clear default: %v", err)
	}
	if cleared.DefaultLicense != nil || !cleared.AutoPublishEnabled {
		t.Fatalf("clear should only drop the default: %+v", cleared)
	}
	if !cleared.CreatedAt.Equal(created.CreatedAt) || !cleared.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("timestamps not maintained: %+v", cleared)
	}
	if n, _ := h.repos.Settings.CountAutoPublishEnabled(ctx); n != 1 {
		t.Fatalf("expected one auto-publish user, got %d", n)
	}
}
