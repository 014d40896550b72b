package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
)

// GetSettings returns stored settings or the defaults for a user who never
// saved any. Nothing is written.
func (s *Service) GetSettings(ctx context.Context, userID string) (domain.UserSettings, error) {
	if userID == "" {
		return domain.UserSettings{}, domain.ErrUnauthorized
	}
	settings, err := s.settings.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DefaultUserSettings(userID), nil
	}
	return settings, err
}

func (s *Service) UpdateSettings(ctx context.Context, userID string, req UpdateSettingsRequest) (domain.UserSettings, error) {
	settings, err := s.GetSettings(ctx, userID)
	if err != nil {
		return domain.UserSettings{}, err
	}
	if req.ClearDefaultLicense && req.DefaultLicense != nil {
		return domain.UserSettings{}, fmt.Errorf("%w: default_license and clear_default_license are exclusive", domain.ErrValidation)
	}
	if req.DefaultLicense != nil {
		choice := *req.DefaultLicense
		if _, err := s.resolveChoice(ctx, userID, choice); err != nil {
			return domain.UserSettings{}, err
		}
		settings.DefaultLicense = &choice
	}
	if req.ClearDefaultLicense {
		settings.DefaultLicense = nil
	}
	if req.AutoPublishEnabled != nil {
		settings.AutoPublishEnabled = *req.AutoPublishEnabled
	}
	if req.SkipAutoPublishConfirmation != nil {
		settings.SkipAutoPublishConfirmation = *req.SkipAutoPublishConfirmation
	}

	now := s.nowFn()
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = now
	}
	settings.UpdatedAt = now
	if err := s.settings.Upsert(ctx, settings); err != nil {
		return domain.UserSettings{}, err
	}
	return settings, nil
}
