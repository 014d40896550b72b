package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/google/uuid"
)

func toTemplateModel(t domain.LicenseTemplate) templateModel {
	return templateModel{
		TemplateID:          t.ID,
		OwnerID:             t.OwnerID,
		Name:                t.Name,
		AllowRedistribution: t.Flags.AllowRedistribution,
		AllowModification:   t.Flags.AllowModification,
		AllowBackup:         t.Flags.AllowBackup,
		RestrictionNote:     t.RestrictionNote,
		UsageCount:          t.UsageCount,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

func toDomainTemplate(m templateModel) domain.LicenseTemplate {
	return domain.LicenseTemplate{
		ID:      m.TemplateID,
		OwnerID: m.OwnerID,
		Name:    m.Name,
		Flags: domain.LicenseFlags{
			AllowRedistribution: m.AllowRedistribution,
			AllowModification:   m.AllowModification,
			AllowBackup:         m.AllowBackup,
		},
		RestrictionNote: m.RestrictionNote,
		UsageCount:      m.UsageCount,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}

func toSettingsModel(s domain.UserSettings) (settingsModel, error) {
	m := settingsModel{
		UserID:                      s.UserID,
		AutoPublishEnabled:          s.AutoPublishEnabled,
		SkipAutoPublishConfirmation: s.SkipAutoPublishConfirmation,
		CreatedAt:                   s.CreatedAt,
		UpdatedAt:                   s.UpdatedAt,
	}
	if s.DefaultLicense != nil {
		raw, err := json.Marshal(s.DefaultLicense)
		if err != nil {
			return settingsModel{}, fmt.Errorf("encode default license: %w", err)
		}
		encoded := string(raw)
		m.DefaultLicense = &encoded
	}
	return m, nil
}

func toDomainSettings(m settingsModel) (domain.UserSettings, error) {
	s := domain.UserSettings{
		UserID:                      m.UserID,
		AutoPublishEnabled:          m.AutoPublishEnabled,
		SkipAutoPublishConfirmation: m.SkipAutoPublishConfirmation,
		CreatedAt:                   m.CreatedAt.UTC(),
		UpdatedAt:                   m.UpdatedAt.UTC(),
	}
	if m.DefaultLicense != nil && *m.DefaultLicense != "" {
		var choice domain.LicenseChoice
		if err := json.Unmarshal([]byte(*m.DefaultLicense), &choice); err != nil {
			return domain.UserSettings{}, fmt.Errorf("decode default license for %s: %w", m.UserID, err)
		}
		s.DefaultLicense = &choice
	}
	return s, nil
}

func toPostModel(p domain.PublishedPost) publishedPostModel {
	m := publishedPostModel{
		ThreadID:         p.ThreadID,
		MessageID:        p.MessageID,
		UserID:           p.UserID,
		BackupAllowed:    p.BackupAllowed,
		LicenseName:      p.LicenseName,
		Source:           string(p.Source),
		SourceSystemName: p.SourceSystemName,
		Digest:           p.Digest,
		Content:          p.Content,
		Version:          p.Version,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if p.SourceTemplateID != uuid.Nil {
		id := p.SourceTemplateID
		m.SourceTemplateID = &id
	}
	return m
}

func toDomainPost(m publishedPostModel) domain.PublishedPost {
	p := domain.PublishedPost{
		ThreadID:         m.ThreadID,
		MessageID:        m.MessageID,
		UserID:           m.UserID,
		BackupAllowed:    m.BackupAllowed,
		LicenseName:      m.LicenseName,
		Source:           domain.LicenseSource(m.Source),
		SourceSystemName: m.SourceSystemName,
		Digest:           m.Digest,
		Content:          m.Content,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
	if m.SourceTemplateID != nil {
		p.SourceTemplateID = *m.SourceTemplateID
	}
	return p
}

func toEventModel(e domain.PublicationEvent) publicationEventModel {
	return publicationEventModel{
		EventID:             e.ID,
		ThreadID:            e.ThreadID,
		Version:             e.Version,
		Kind:                string(e.Kind),
		MessageID:           e.MessageID,
		SupersededMessageID: e.SupersededMessageID,
		UserID:              e.UserID,
		BackupAllowed:       e.BackupAllowed,
		LicenseName:         e.LicenseName,
		Digest:              e.Digest,
		Content:             e.Content,
		RecordedAt:          e.RecordedAt,
	}
}

func toDomainEvent(m publicationEventModel) domain.PublicationEvent {
	return domain.PublicationEvent{
		ID:                  m.EventID,
		ThreadID:            m.ThreadID,
		Version:             m.Version,
		Kind:                domain.PublicationKind(m.Kind),
		MessageID:           m.MessageID,
		SupersededMessageID: m.SupersededMessageID,
		UserID:              m.UserID,
		BackupAllowed:       m.BackupAllowed,
		LicenseName:         m.LicenseName,
		Digest:              m.Digest,
		Content:             m.Content,
		RecordedAt:          m.RecordedAt.UTC(),
	}
}
