package postgres

import (
	"time"

	"github.com/google/uuid"
)

type templateModel struct {
	TemplateID          uuid.UUID `gorm:"column:template_id;type:uuid;primaryKey"`
	OwnerID             string    `gorm:"column:owner_id"`
	Name                string    `gorm:"column:name"`
	AllowRedistribution bool      `gorm:"column:allow_redistribution"`
	AllowModification   bool      `gorm:"column:allow_modification"`
	AllowBackup         bool      `gorm:"column:allow_backup"`
	RestrictionNote     string    `gorm:"column:restriction_note"`
	UsageCount          int64     `gorm:"column:usage_count"`
	CreatedAt           time.Time `gorm:"column:created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at"`
}

func (templateModel) TableName() string { return "license_templates" }

type settingsModel struct {
	UserID                      string    `gorm:"column:user_id;primaryKey"`
	AutoPublishEnabled          bool      `gorm:"column:auto_publish_enabled"`
	SkipAutoPublishConfirmation bool      `gorm:"column:skip_auto_publish_confirmation"`
	DefaultLicense              *string   `gorm:"column:default_license;type:jsonb"`
	CreatedAt                   time.Time `gorm:"column:created_at"`
	UpdatedAt                   time.Time `gorm:"column:updated_at"`
}

func (settingsModel) TableName() string { return "user_settings" }

type publishedPostModel struct {
	ThreadID         string     `gorm:"column:thread_id;primaryKey"`
	MessageID        string     `gorm:"column:message_id"`
	UserID           string     `gorm:"column:user_id"`
	BackupAllowed    bool       `gorm:"column:backup_allowed"`
	LicenseName      string     `gorm:"column:license_name"`
	Source           string     `gorm:"column:source"`
	SourceTemplateID *uuid.UUID `gorm:"column:source_template_id;type:uuid"`
	SourceSystemName string     `gorm:"column:source_system_name"`
	Digest           string     `gorm:"column:digest"`
	Content          string     `gorm:"column:content"`
	Version          int        `gorm:"column:version"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at"`
}

func (publishedPostModel) TableName() string { return "published_posts" }

type publicationEventModel struct {
	EventID             uuid.UUID  `gorm:"column:event_id;type:uuid;primaryKey"`
	ThreadID            string     `gorm:"column:thread_id"`
	Version             int        `gorm:"column:version"`
	Kind                string     `gorm:"column:kind"`
	MessageID           string     `gorm:"column:message_id"`
	SupersededMessageID string     `gorm:"column:superseded_message_id"`
	UserID              string     `gorm:"column:user_id"`
	BackupAllowed       bool       `gorm:"column:backup_allowed"`
	LicenseName         string     `gorm:"column:license_name"`
	Digest              string     `gorm:"column:digest"`
	Content             string     `gorm:"column:content"`
	RecordedAt          time.Time  `gorm:"column:recorded_at"`
	PublishedAt         *time.Time `gorm:"column:published_at"`
}

func (publicationEventModel) TableName() string { return "publication_events" }
