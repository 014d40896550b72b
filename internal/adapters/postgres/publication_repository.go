package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type publicationRepository struct {
	db *gorm.DB
}

func (r *publicationRepository) GetByThread(ctx context.Context, threadID string) (domain.PublishedPost, error) {
	var rec publishedPostModel
	if err := r.db.WithContext(ctx).Where("thread_id = ?", threadID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.PublishedPost{}, fmt.Errorf("%w: published post for thread %s", domain.ErrNotFound, threadID)
		}
		return domain.PublishedPost{}, err
	}
	return toDomainPost(rec), nil
}

// lockSourceTemplate holds a share lock on the post's template until the
// transaction ends, or reports the template as gone.
func lockSourceTemplate(tx *gorm.DB, post domain.PublishedPost) error {
	if post.Source != domain.SourceTemplate {
		return nil
	}
	var rec templateModel
	err := tx.Clauses(clause.Locking{Strength: "SHARE"}).Select("template_id").
		Where("template_id = ?", post.SourceTemplateID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: template %s was deleted", domain.ErrNotFound, post.SourceTemplateID)
	}
	return err
}

func (r *publicationRepository) Create(ctx context.Context, post domain.PublishedPost, event domain.PublicationEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockSourceTemplate(tx, post); err != nil {
			return err
		}
		rec := toPostModel(post)
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: thread %s already published", domain.ErrConflict, post.ThreadID)
			}
			return err
		}
		return insertEvent(tx, event)
	})
}

func (r *publicationRepository) Replace(ctx context.Context, post domain.PublishedPost, event domain.PublicationEvent, expectedVersion int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockSourceTemplate(tx, post); err != nil {
			return err
		}
		rec := toPostModel(post)
		res := tx.Model(&publishedPostModel{}).
			Where("thread_id = ? AND version = ?", post.ThreadID, expectedVersion).
			Updates(map[string]any{
				"message_id":         rec.MessageID,
				"user_id":            rec.UserID,
				"backup_allowed":     rec.BackupAllowed,
				"license_name":       rec.LicenseName,
				"source":             rec.Source,
				"source_template_id": rec.SourceTemplateID,
				"source_system_name": rec.SourceSystemName,
				"digest":             rec.Digest,
				"content":            rec.Content,
				"version":            rec.Version,
				"updated_at":         rec.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&publishedPostModel{}).Where("thread_id = ?", post.ThreadID).Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return fmt.Errorf("%w: published post for thread %s", domain.ErrNotFound, post.ThreadID)
			}
			return fmt.Errorf("%w: thread %s moved past version %d", domain.ErrConflict, post.ThreadID, expectedVersion)
		}
		return insertEvent(tx, event)
	})
}

func (r *publicationRepository) Retire(ctx context.Context, threadID string, event domain.PublicationEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("thread_id = ?", threadID).Delete(&publishedPostModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: published post for thread %s", domain.ErrNotFound, threadID)
		}
		return insertEvent(tx, event)
	})
}

func (r *publicationRepository) History(ctx context.Context, threadID string) ([]domain.PublicationEvent, error) {
	var rows []publicationEventModel
	if err := r.db.WithContext(ctx).Where("thread_id = ?", threadID).Order("version asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.PublicationEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainEvent(row))
	}
	return out, nil
}

func (r *publicationRepository) Stats(ctx context.Context) (ports.PublicationStats, error) {
	var row struct {
		Total         int64
		BackupAllowed int64
	}
	err := r.db.WithContext(ctx).Model(&publishedPostModel{}).
		Select("COUNT(*) AS total, COUNT(*) FILTER (WHERE backup_allowed) AS backup_allowed").
		Scan(&row).Error
	if err != nil {
		return ports.PublicationStats{}, err
	}
	return ports.PublicationStats{Total: row.Total, BackupAllowed: row.BackupAllowed}, nil
}

func insertEvent(tx *gorm.DB, event domain.PublicationEvent) error {
	rec := toEventModel(event)
	if err := tx.Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: thread %s already has version %d", domain.ErrConflict, event.ThreadID, event.Version)
		}
		return err
	}
	return nil
}

var _ ports.PublicationRepository = (*publicationRepository)(nil)
