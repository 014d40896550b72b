package embedded

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
)

type TemplateRepository struct {
	s *Store
}

func templateKey(id uuid.UUID) string { return prefixTemplate + id.String() }

func ownerIndexKey(owner string, id uuid.UUID) string {
	return prefixOwnerIndex + owner + "/" + id.String()
}

func (r *TemplateRepository) CreateWithQuota(_ context.Context, tpl domain.LicenseTemplate, limit int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var existing domain.LicenseTemplate
	found, err := r.s.getJSON(templateKey(tpl.ID), &existing)
	if err != nil {
		return err
	}
	if found {
		return domain.ErrConflict
	}
	owned := 0
	if err := r.s.scan(prefixOwnerIndex+tpl.OwnerID+"/", func(_, _ []byte) error {
		owned++
		return nil
	}); err != nil {
		return err
	}
	if owned >= limit {
		return fmt.Errorf("%w: at most %d templates per owner", domain.ErrQuotaExceeded, limit)
	}
	return r.s.commit(func(b *pebble.Batch) error {
		if err := setJSON(b, templateKey(tpl.ID), tpl); err != nil {
			return err
		}
		return b.Set([]byte(ownerIndexKey(tpl.OwnerID, tpl.ID)), nil, nil)
	})
}

func (r *TemplateRepository) Get(_ context.Context, id uuid.UUID) (domain.LicenseTemplate, error) {
	return r.get(id)
}

func (r *TemplateRepository) get(id uuid.UUID) (domain.LicenseTemplate, error) {
	var tpl domain.LicenseTemplate
	found, err := r.s.getJSON(templateKey(id), &tpl)
	if err != nil {
		return domain.LicenseTemplate{}, err
	}
	if !found {
		return domain.LicenseTemplate{}, fmt.Errorf("%w: template %s", domain.ErrNotFound, id)
	}
	return tpl, nil
}

func (r *TemplateRepository) ListByOwner(_ context.Context, ownerID string) ([]domain.LicenseTemplate, error) {
	var ids []uuid.UUID
	err := r.s.scan(prefixOwnerIndex+ownerID+"/", func(key, _ []byte) error {
		raw := string(key[len(prefixOwnerIndex)+len(ownerID)+1:])
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("owner index %q: %w", key, err)
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.LicenseTemplate, 0, len(ids))
	for _, id := range ids {
		tpl, err := r.get(id)
		if err != nil {
			continue
		}
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *TemplateRepository) Update(_ context.Context, tpl domain.LicenseTemplate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, err := r.get(tpl.ID)
	if err != nil {
		return err
	}
	tpl.OwnerID = current.OwnerID
	tpl.UsageCount = current.UsageCount
	tpl.CreatedAt = current.CreatedAt
	return r.s.commit(func(b *pebble.Batch) error {
		return setJSON(b, templateKey(tpl.ID), tpl)
	})
}

func (r *TemplateRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, err := r.get(id)
	if err != nil {
		return err
	}
	inUse, err := (&PublicationRepository{s: r.s}).countByTemplate(id)
	if err != nil {
		return err
	}
	if inUse > 0 {
		return fmt.Errorf("%w: template %s is the live license on %d thread(s)", domain.ErrTemplateInUse, id, inUse)
	}
	return r.s.commit(func(b *pebble.Batch) error {
		if err := b.Delete([]byte(templateKey(id)), nil); err != nil {
			return err
		}
		return b.Delete([]byte(ownerIndexKey(current.OwnerID, id)), nil)
	})
}

func (r *TemplateRepository) IncrementUsage(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tpl, err := r.get(id)
	if err != nil {
		return err
	}
	tpl.UsageCount++
	return r.s.commit(func(b *pebble.Batch) error {
		return setJSON(b, templateKey(id), tpl)
	})
}

type SettingsRepository struct {
	s *Store
}

func (r *SettingsRepository) Get(_ context.Context, userID string) (domain.UserSettings, error) {
	var settings domain.UserSettings
	found, err := r.s.getJSON(prefixSettings+userID, &settings)
	if err != nil {
		return domain.UserSettings{}, err
	}
	if !found {
		return domain.UserSettings{}, domain.ErrNotFound
	}
	return settings, nil
}

func (r *SettingsRepository) Upsert(_ context.Context, settings domain.UserSettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var current domain.UserSettings
	found, err := r.s.getJSON(prefixSettings+settings.UserID, &current)
	if err != nil {
		return err
	}
	if found && !current.CreatedAt.IsZero() {
		settings.CreatedAt = current.CreatedAt
	}
	return r.s.commit(func(b *pebble.Batch) error {
		return setJSON(b, prefixSettings+settings.UserID, settings)
	})
}

func (r *SettingsRepository) CountAutoPublishEnabled(context.Context) (int64, error) {
	var n int64
	err := r.s.scan(prefixSettings, func(_, value []byte) error {
		var settings domain.UserSettings
		if err := json.Unmarshal(value, &settings); err != nil {
			return err
		}
		if settings.AutoPublishEnabled {
			n++
		}
		return nil
	})
	return n, err
}

// PublicationRepository also serves as the outbox: every recorded event gets
// an outbox entry that MarkPublished removes.
type PublicationRepository struct {
	s *Store
}

func postKey(threadID string) string { return prefixPost + threadID }

func eventKey(threadID string, version int) string {
	return fmt.Sprintf("%s%s/%010d", prefixEvent, threadID, version)
}

func outboxKey(id uuid.UUID) string { return prefixOutbox + id.String() }

func (r *PublicationRepository) GetByThread(_ context.Context, threadID string) (domain.PublishedPost, error) {
	return r.get(threadID)
}

func (r *PublicationRepository) get(threadID string) (domain.PublishedPost, error) {
	var post domain.PublishedPost
	found, err := r.s.getJSON(postKey(threadID), &post)
	if err != nil {
		return domain.PublishedPost{}, err
	}
	if !found {
		return domain.PublishedPost{}, fmt.Errorf("%w: published post for thread %s", domain.ErrNotFound, threadID)
	}
	return post, nil
}

func writeEvent(b *pebble.Batch, event domain.PublicationEvent) error {
	if err := setJSON(b, eventKey(event.ThreadID, event.Version), event); err != nil {
		return err
	}
	return setJSON(b, outboxKey(event.ID), event)
}

// checkTemplate must run under the store mutex.
func (r *PublicationRepository) checkTemplate(post domain.PublishedPost) error {
	if post.Source != domain.SourceTemplate {
		return nil
	}
	var tpl domain.LicenseTemplate
	found, err := r.s.getJSON(templateKey(post.SourceTemplateID), &tpl)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: template %s was deleted", domain.ErrNotFound, post.SourceTemplateID)
	}
	return nil
}

func (r *PublicationRepository) Create(_ context.Context, post domain.PublishedPost, event domain.PublicationEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.get(post.ThreadID); err == nil {
		return fmt.Errorf("%w: thread %s already published", domain.ErrConflict, post.ThreadID)
	}
	if err := r.checkTemplate(post); err != nil {
		return err
	}
	return r.s.commit(func(b *pebble.Batch) error {
		if err := setJSON(b, postKey(post.ThreadID), post); err != nil {
			return err
		}
		return writeEvent(b, event)
	})
}

func (r *PublicationRepository) Replace(_ context.Context, post domain.PublishedPost, event domain.PublicationEvent, expectedVersion int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, err := r.get(post.ThreadID)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: thread %s is at version %d, expected %d", domain.ErrConflict, post.ThreadID, current.Version, expectedVersion)
	}
	if err := r.checkTemplate(post); err != nil {
		return err
	}
	return r.s.commit(func(b *pebble.Batch) error {
		if err := setJSON(b, postKey(post.ThreadID), post); err != nil {
			return err
		}
		return writeEvent(b, event)
	})
}

func (r *PublicationRepository) Retire(_ context.Context, threadID string, event domain.PublicationEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.get(threadID); err != nil {
		return err
	}
	return r.s.commit(func(b *pebble.Batch) error {
		if err := b.Delete([]byte(postKey(threadID)), nil); err != nil {
			return err
		}
		return writeEvent(b, event)
	})
}

func (r *PublicationRepository) History(_ context.Context, threadID string) ([]domain.PublicationEvent, error) {
	out := make([]domain.PublicationEvent, 0)
	err := r.s.scan(prefixEvent+threadID+"/", func(_, value []byte) error {
		var ev domain.PublicationEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return err
		}
		out = append(out, ev)
		return nil
	})
	return out, err
}

func (r *PublicationRepository) posts(fn func(domain.PublishedPost)) error {
	return r.s.scan(prefixPost, func(_, value []byte) error {
		var post domain.PublishedPost
		if err := json.Unmarshal(value, &post); err != nil {
			return err
		}
		fn(post)
		return nil
	})
}

func (r *PublicationRepository) countByTemplate(templateID uuid.UUID) (int64, error) {
	var n int64
	err := r.posts(func(post domain.PublishedPost) {
		if post.Source == domain.SourceTemplate && post.SourceTemplateID == templateID {
			n++
		}
	})
	return n, err
}

func (r *PublicationRepository) Stats(context.Context) (ports.PublicationStats, error) {
	var stats ports.PublicationStats
	err := r.posts(func(post domain.PublishedPost) {
		stats.Total++
		if post.BackupAllowed {
			stats.BackupAllowed++
		}
	})
	return stats, err
}

func (r *PublicationRepository) FetchUnpublished(_ context.Context, limit int) ([]domain.PublicationEvent, error) {
	var out []domain.PublicationEvent
	err := r.s.scan(prefixOutbox, func(_, value []byte) error {
		var ev domain.PublicationEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return err
		}
		out = append(out, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *PublicationRepository) MarkPublished(_ context.Context, eventID uuid.UUID, _ time.Time) error {
	return r.s.db.Delete([]byte(outboxKey(eventID)), pebble.Sync)
}

var (
	_ ports.TemplateRepository    = (*TemplateRepository)(nil)
	_ ports.SettingsRepository    = (*SettingsRepository)(nil)
	_ ports.PublicationRepository = (*PublicationRepository)(nil)
	_ ports.OutboxRepository      = (*PublicationRepository)(nil)
)
