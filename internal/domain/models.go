package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxTemplatesPerOwner = 5

type LicenseFlags struct {
	AllowRedistribution bool `json:"allow_redistribution"`
	AllowModification   bool `json:"allow_modification"`
	AllowBackup         bool `json:"allow_backup"`
}

type LicenseTemplate struct {
	ID              uuid.UUID    `json:"id"`
	OwnerID         string       `json:"owner_id"`
	Name            string       `json:"name"`
	Flags           LicenseFlags `json:"flags"`
	RestrictionNote string       `json:"restriction_note"`
	UsageCount      int64        `json:"usage_count"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type SystemLicense struct {
	Name            string       `json:"name"`
	Text            string       `json:"text"`
	RestrictionNote string       `json:"restriction_note"`
	Flags           LicenseFlags `json:"flags"`
}

type LicenseSource string

const (
	SourceTemplate LicenseSource = "template"
	SourceSystem   LicenseSource = "system"
)

func (s LicenseSource) Valid() bool {
	return s == SourceTemplate || s == SourceSystem
}

// LicenseChoice names the license a caller wants on a thread. BackupOverride is
// only meaningful for system licenses.
type LicenseChoice struct {
	Source         LicenseSource `json:"source"`
	TemplateID     uuid.UUID     `json:"template_id,omitempty"`
	SystemName     string        `json:"system_name,omitempty"`
	BackupOverride *bool         `json:"backup_override,omitempty"`
}

// EffectiveLicense is a resolved choice, frozen at publish time.
type EffectiveLicense struct {
	Source          LicenseSource `json:"source"`
	TemplateID      uuid.UUID     `json:"template_id,omitempty"`
	SystemName      string        `json:"system_name,omitempty"`
	Name            string        `json:"name"`
	Text            string        `json:"text"`
	RestrictionNote string        `json:"restriction_note"`
	Flags           LicenseFlags  `json:"flags"`
}

func (e EffectiveLicense) BackupAllowed() bool {
	return e.Flags.AllowBackup
}

// Digest identifies a resolved license, including where it came from,
// independent of when it was posted.
func (e EffectiveLicense) Digest() string {
	parts := []string{
		string(e.Source),
		e.TemplateID.String(),
		e.SystemName,
		e.Name,
		e.Text,
		e.RestrictionNote,
		strconv.FormatBool(e.Flags.AllowRedistribution),
		strconv.FormatBool(e.Flags.AllowModification),
		strconv.FormatBool(e.Flags.AllowBackup),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

type UserSettings struct {
	UserID                      string         `json:"user_id"`
	AutoPublishEnabled          bool           `json:"auto_publish_enabled"`
	SkipAutoPublishConfirmation bool           `json:"skip_auto_publish_confirmation"`
	DefaultLicense              *LicenseChoice `json:"default_license,omitempty"`
	CreatedAt                   time.Time      `json:"created_at"`
	UpdatedAt                   time.Time      `json:"updated_at"`
}

func DefaultUserSettings(userID string) UserSettings {
	return UserSettings{UserID: userID}
}

// PublishedPost is the point-in-time record of the live declaration on a
// thread. It copies license facts instead of referencing them.
type PublishedPost struct {
	ThreadID         string        `json:"thread_id"`
	MessageID        string        `json:"message_id"`
	UserID           string        `json:"user_id"`
	BackupAllowed    bool          `json:"backup_allowed"`
	LicenseName      string        `json:"license_name"`
	Source           LicenseSource `json:"source"`
	SourceTemplateID uuid.UUID     `json:"source_template_id"`
	SourceSystemName string        `json:"source_system_name,omitempty"`
	Digest           string        `json:"digest"`
	Content          string        `json:"content"`
	Version          int           `json:"version"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type PublicationKind string

const (
	PublicationPublished PublicationKind = "published"
	PublicationReplaced  PublicationKind = "replaced"
	PublicationRetired   PublicationKind = "retired"
)

type PublicationEvent struct {
	ID                  uuid.UUID       `json:"id"`
	ThreadID            string          `json:"thread_id"`
	Version             int             `json:"version"`
	Kind                PublicationKind `json:"kind"`
	MessageID           string          `json:"message_id"`
	SupersededMessageID string          `json:"superseded_message_id,omitempty"`
	UserID              string          `json:"user_id"`
	BackupAllowed       bool            `json:"backup_allowed"`
	LicenseName         string          `json:"license_name"`
	Digest              string          `json:"digest"`
	Content             string          `json:"content"`
	RecordedAt          time.Time       `json:"recorded_at"`
}

type ThreadInfo struct {
	ThreadID  string `json:"thread_id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	AuthorID  string `json:"author_id"`
	Title     string `json:"title"`
}

type PendingAutoPublish struct {
	ThreadID        string        `json:"thread_id"`
	AuthorID        string        `json:"author_id"`
	Choice          LicenseChoice `json:"choice"`
	PromptMessageID string        `json:"prompt_message_id"`
	CreatedAt       time.Time     `json:"created_at"`
	ExpiresAt       time.Time     `json:"expires_at"`
}
