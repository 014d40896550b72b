package postgres

import (
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Templates    ports.TemplateRepository
	Settings     ports.SettingsRepository
	Publications ports.PublicationRepository
	Outbox       ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Templates:    &templateRepository{db: db},
		Settings:     &settingsRepository{db: db},
		Publications: &publicationRepository{db: db},
		Outbox:       &outboxRepository{db: db},
	}
}
