package embedded

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/google/uuid"
)

func openTestStore(t *testing.T) Repositories {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store.Repositories()
}

func TestTemplateQuotaAndOwnership(t *testing.T) {
	t.Parallel()
	repos := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var first domain.LicenseTemplate
	for i := 0; i < 2; i++ {
		tpl := domain.LicenseTemplate{ID: uuid.New(), OwnerID: "U", Name: "t", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repos.Templates.CreateWithQuota(ctx, tpl, 2); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if i == 0 {
			first = tpl
		}
	}
	err := repos.Templates.CreateWithQuota(ctx, domain.LicenseTemplate{ID: uuid.New(), OwnerID: "U"}, 2)
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
	if err := repos.Templates.CreateWithQuota(ctx, domain.LicenseTemplate{ID: uuid.New(), OwnerID: "V"}, 2); err != nil {
		t.Fatalf("other owner should have its own quota: %v", err)
	}

	if err := repos.Templates.IncrementUsage(ctx, first.ID); err != nil {
		t.Fatalf("increment: %v", err)
	}
	first.Name = "renamed"
	first.UsageCount = 0
	if err := repos.Templates.Update(ctx, first); err != nil {
		t.Fatalf("update: %v", err)
	}
	listed, err := repos.Templates.ListByOwner(ctx, "U")
	if err != nil || len(listed) != 2 {
		t.Fatalf("list: %v %d", err, len(listed))
	}
	if listed[0].ID != first.ID || listed[0].Name != "renamed" || listed[0].UsageCount != 1 {
		t.Fatalf("unexpected first template: %+v", listed[0])
	}

	if err := repos.Templates.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repos.Templates.Get(ctx, first.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := repos.Templates.CreateWithQuota(ctx, domain.LicenseTemplate{ID: uuid.New(), OwnerID: "U"}, 2); err != nil {
		t.Fatalf("delete should free quota: %v", err)
	}
}

func TestPublicationVersioningAndOutbox(t *testing.T) {
	t.Parallel()
	repos := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	post := domain.PublishedPost{ThreadID: "X", MessageID: "m1", Version: 1, BackupAllowed: true, UpdatedAt: now}
	ev1 := domain.PublicationEvent{ID: uuid.New(), ThreadID: "X", Version: 1, Kind: domain.PublicationPublished, MessageID: "m1", RecordedAt: now}
	if err := repos.Publications.Create(ctx, post, ev1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repos.Publications.Create(ctx, post, ev1); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on second create, got %v", err)
	}

	next := post
	next.MessageID, next.Version, next.BackupAllowed = "m2", 2, false
	ev2 := domain.PublicationEvent{ID: uuid.New(), ThreadID: "X", Version: 2, Kind: domain.PublicationReplaced, MessageID: "m2", SupersededMessageID: "m1", RecordedAt: now.Add(time.Second)}
	if err := repos.Publications.Replace(ctx, next, ev2, 5); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected stale version conflict, got %v", err)
	}
	if err := repos.Publications.Replace(ctx, next, ev2, 1); err != nil {
		t.Fatalf("replace: %v", err)
	}

	stats, _ := repos.Publications.Stats(ctx)
	if stats.Total != 1 || stats.BackupAllowed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	history, err := repos.Publications.History(ctx, "X")
	if err != nil || len(history) != 2 || history[1].SupersededMessageID != "m1" {
		t.Fatalf("unexpected history: %+v %v", history, err)
	}

	pending, err := repos.Publications.FetchUnpublished(ctx, 10)
	if err != nil || len(pending) != 2 || pending[0].ID != ev1.ID {
		t.Fatalf("unexpected outbox: %+v %v", pending, err)
	}
	if err := repos.Publications.MarkPublished(ctx, ev1.ID, now); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	pending, _ = repos.Publications.FetchUnpublished(ctx, 10)
	if len(pending) != 1 || pending[0].ID != ev2.ID {
		t.Fatalf("expected only the replace event pending, got %+v", pending)
	}

	retire := domain.PublicationEvent{ID: uuid.New(), ThreadID: "X", Version: 3, Kind: domain.PublicationRetired, RecordedAt: now.Add(2 * time.Second)}
	if err := repos.Publications.Retire(ctx, "X", retire); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if _, err := repos.Publications.GetByThread(ctx, "X"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected retired post to be gone, got %v", err)
	}
}

func TestSettingsKeepCreatedAt(t *testing.T) {
	t.Parallel()
	repos := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	choice := domain.LicenseChoice{Source: domain.SourceSystem, SystemName: "CC BY 4.0"}
	if err := repos.Settings.Upsert(ctx, domain.UserSettings{UserID: "U", AutoPublishEnabled: true, DefaultLicense: &choice, CreatedAt: created, UpdatedAt: created}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	later := created.Add(time.Hour)
	if err := repos.Settings.Upsert(ctx, domain.UserSettings{UserID: "U", AutoPublishEnabled: true, DefaultLicense: &choice, CreatedAt: later, UpdatedAt: later}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err := repos.Settings.Get(ctx, "U")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.CreatedAt.Equal(created) || got.DefaultLicense == nil || got.DefaultLicense.SystemName != "CC BY 4.0" {
		t.Fatalf("unexpected settings: %+v", got)
	}
	if n, _ := repos.Settings.CountAutoPublishEnabled(ctx); n != 1 {
		t.Fatalf("expected one enabled user, got %d", n)
	}
	if _, err := repos.Settings.Get(ctx, "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTemplateDeleteAndPublishAgreeOnReferences(t *testing.T) {
	t.Parallel()
	repos := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tpl := domain.LicenseTemplate{ID: uuid.New(), OwnerID: "U", Name: "t", CreatedAt: now}
	if err := repos.Templates.CreateWithQuota(ctx, tpl, 5); err != nil {
		t.Fatalf("create template: %v", err)
	}
	post := domain.PublishedPost{ThreadID: "X", MessageID: "m1", Version: 1, Source: domain.SourceTemplate, SourceTemplateID: tpl.ID, UpdatedAt: now}
	ev1 := domain.PublicationEvent{ID: uuid.New(), ThreadID: "X", Version: 1, Kind: domain.PublicationPublished, RecordedAt: now}
	if err := repos.Publications.Create(ctx, post, ev1); err != nil {
		t.Fatalf("create post: %v", err)
	}
	if err := repos.Templates.Delete(ctx, tpl.ID); !errors.Is(err, domain.ErrTemplateInUse) {
		t.Fatalf("expected template in use, got %v", err)
	}

	next := post
	next.MessageID, next.Version, next.Source, next.SourceTemplateID, next.SourceSystemName = "m2", 2, domain.SourceSystem, uuid.Nil, "CC BY 4.0"
	ev2 := domain.PublicationEvent{ID: uuid.New(), ThreadID: "X", Version: 2, Kind: domain.PublicationReplaced, RecordedAt: now}
	if err := repos.Publications.Replace(ctx, next, ev2, 1); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := repos.Templates.Delete(ctx, tpl.ID); err != nil {
		t.Fatalf("delete unreferenced template: %v", err)
	}

	orphan := domain.PublishedPost{ThreadID: "Y", MessageID: "m3", Version: 1, Source: domain.SourceTemplate, SourceTemplateID: tpl.ID, UpdatedAt: now}
	ev3 := domain.PublicationEvent{ID: uuid.New(), ThreadID: "Y", Version: 1, Kind: domain.PublicationPublished, RecordedAt: now}
	if err := repos.Publications.Create(ctx, orphan, ev3); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleted template to block the commit, got %v", err)
	}
	if _, err := repos.Publications.GetByThread(ctx, "Y"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("orphan post must not be stored, got %v", err)
	}
}
