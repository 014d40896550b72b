package ports

import (
	"context"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/google/uuid"
)

type TemplateRepository interface {
	// CreateWithQuota inserts tpl unless its owner already holds limit
	// templates, in which case it returns domain.ErrQuotaExceeded.
	CreateWithQuota(ctx context.Context, tpl domain.LicenseTemplate, limit int) error
	Get(ctx context.Context, id uuid.UUID) (domain.LicenseTemplate, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.LicenseTemplate, error)
	Update(ctx context.Context, tpl domain.LicenseTemplate) error
	// Delete removes a template no live post references. The reference check
	// and the delete are atomic; a referenced template yields
	// domain.ErrTemplateInUse.
	Delete(ctx context.Context, id uuid.UUID) error
	IncrementUsage(ctx context.Context, id uuid.UUID) error
}

type SettingsRepository interface {
	Get(ctx context.Context, userID string) (domain.UserSettings, error)
	Upsert(ctx context.Context, settings domain.UserSettings) error
	CountAutoPublishEnabled(ctx context.Context) (int64, error)
}

type PublicationStats struct {
	Total         int64
	BackupAllowed int64
}

type PublicationRepository interface {
	GetByThread(ctx context.Context, threadID string) (domain.PublishedPost, error)
	// Create stores the first post of a thread together with its audit event.
	// It returns domain.ErrConflict when the thread already has a post. Create
	// and Replace return domain.ErrNotFound when the post's source template no
	// longer exists.
	Create(ctx context.Context, post domain.PublishedPost, event domain.PublicationEvent) error
	// Replace swaps the post only while the stored version equals
	// expectedVersion, otherwise domain.ErrConflict.
	Replace(ctx context.Context, post domain.PublishedPost, event domain.PublicationEvent, expectedVersion int) error
	Retire(ctx context.Context, threadID string, event domain.PublicationEvent) error
	History(ctx context.Context, threadID string) ([]domain.PublicationEvent, error)
	Stats(ctx context.Context) (PublicationStats, error)
}

// OutboxRepository exposes publication events that have not yet been handed
// to the event bus.
type OutboxRepository interface {
	FetchUnpublished(ctx context.Context, limit int) ([]domain.PublicationEvent, error)
	MarkPublished(ctx context.Context, eventID uuid.UUID, at time.Time) error
}
