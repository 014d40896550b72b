package application

import (
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/relay"
)

type Config struct {
	ServiceName          string
	AdminIDs             []string
	MaxTemplatesPerOwner int
	PlatformTimeout      time.Duration
	LockTimeout          time.Duration
	ThreadEventDedupTTL  time.Duration
	ConfirmationTimeout  time.Duration
	AllowedChannelIDs    []string
	NotifyBackupChanges  bool
}

type CreateTemplateRequest struct {
	Name            string              `json:"name"`
	RestrictionNote string              `json:"restriction_note"`
	Flags           domain.LicenseFlags `json:"flags"`
}

type UpdateTemplateRequest struct {
	Name            *string              `json:"name,omitempty"`
	RestrictionNote *string              `json:"restriction_note,omitempty"`
	Flags           *domain.LicenseFlags `json:"flags,omitempty"`
}

type UpdateSettingsRequest struct {
	AutoPublishEnabled          *bool                 `json:"auto_publish_enabled,omitempty"`
	SkipAutoPublishConfirmation *bool                 `json:"skip_auto_publish_confirmation,omitempty"`
	DefaultLicense              *domain.LicenseChoice `json:"default_license,omitempty"`
	ClearDefaultLicense         bool                  `json:"clear_default_license,omitempty"`
}

type PublishRequest struct {
	ThreadID    string               `json:"thread_id"`
	RequesterID string               `json:"-"`
	Choice      domain.LicenseChoice `json:"license"`
}

type Transition string

const (
	TransitionPublished Transition = "published"
	TransitionReplaced  Transition = "replaced"
	TransitionUnchanged Transition = "unchanged"
	TransitionRetired   Transition = "retired"
)

type PublishResult struct {
	Post       domain.PublishedPost
	Transition Transition
	Notified   bool
}

type AutoPublishStatus string

const (
	AutoPublishPublished AutoPublishStatus = "published"
	AutoPublishAwaiting  AutoPublishStatus = "awaiting_confirmation"
	AutoPublishCancelled AutoPublishStatus = "cancelled"
	AutoPublishDuplicate AutoPublishStatus = "duplicate"
	AutoPublishIgnored   AutoPublishStatus = "ignored_channel"
	AutoPublishDisabled  AutoPublishStatus = "disabled"
	AutoPublishNoDefault AutoPublishStatus = "no_default"
	AutoPublishFailed    AutoPublishStatus = "failed"
)

// AutoPublishOutcome is what the coordinator reports back to the event
// source. Message is suitable for showing to the author.
type AutoPublishOutcome struct {
	Status  AutoPublishStatus
	Message string
	Post    *domain.PublishedPost
}

type ReloadResult struct {
	Generation uint64    `json:"generation"`
	Licenses   int       `json:"licenses"`
	Source     string    `json:"source"`
	LoadedAt   time.Time `json:"loaded_at"`
}

type HealthReport struct {
	PublishedPosts       int64       `json:"published_posts"`
	BackupAllowedPosts   int64       `json:"backup_allowed_posts"`
	AutoPublishUsers     int64       `json:"auto_publish_users"`
	CacheGeneration      uint64      `json:"cache_generation"`
	SystemLicenses       int         `json:"system_licenses"`
	CacheLoadedAt        time.Time   `json:"cache_loaded_at"`
	PendingNotifications int         `json:"pending_notifications"`
	Relay                relay.Stats `json:"relay"`
	ActiveThreadLocks    int         `json:"active_thread_locks"`
	StartedAt            time.Time   `json:"started_at"`
	Uptime               string      `json:"uptime"`
}
