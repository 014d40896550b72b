package postgres

import (
	"context"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// outboxRepository reads publication_events as an outbox: rows without
// published_at have not reached the event bus yet.
type outboxRepository struct {
	db *gorm.DB
}

func (r *outboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]domain.PublicationEvent, error) {
	var rows []publicationEventModel
	if err := r.db.WithContext(ctx).Where("published_at IS NULL").Order("recorded_at asc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.PublicationEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainEvent(row))
	}
	return out, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, eventID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&publicationEventModel{}).Where("event_id = ?", eventID).Update("published_at", at).Error
}

var _ ports.OutboxRepository = (*outboxRepository)(nil)
