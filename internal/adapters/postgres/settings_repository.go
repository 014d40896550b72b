package postgres

import (
	"context"
	"errors"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type settingsRepository struct {
	db *gorm.DB
}

func (r *settingsRepository) Get(ctx context.Context, userID string) (domain.UserSettings, error) {
	var rec settingsModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.UserSettings{}, domain.ErrNotFound
		}
		return domain.UserSettings{}, err
	}
	return toDomainSettings(rec)
}

// Upsert writes every column except created_at, which keeps the value of
// the first insert.
func (r *settingsRepository) Upsert(ctx context.Context, settings domain.UserSettings) error {
	rec, err := toSettingsModel(settings)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"auto_publish_enabled", "skip_auto_publish_confirmation", "default_license", "updated_at",
		}),
	}).Create(&rec).Error
}

func (r *settingsRepository) CountAutoPublishEnabled(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&settingsModel{}).Where("auto_publish_enabled = ?", true).Count(&n).Error
	return n, err
}

var _ ports.SettingsRepository = (*settingsRepository)(nil)
