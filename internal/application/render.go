package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/dustin/go-humanize"
)

const (
	supersededHeader = "~~[SUPERSEDED]~~"
	renderTimeLayout = "2006-01-02 15:04 UTC"
)

func allowed(v bool) string {
	if v {
		return "allowed"
	}
	return "not allowed"
}

func sourceLabel(src domain.LicenseSource) string {
	if src == domain.SourceSystem {
		return "system license"
	}
	return "creator license"
}

// RenderDeclaration produces the message body of a live license declaration.
func RenderDeclaration(lic domain.EffectiveLicense, publisherID string, at time.Time) string {
	lines := []string{
		fmt.Sprintf("**License: %s**", lic.Name),
		"Source: " + sourceLabel(lic.Source),
		"",
		"Redistribution: " + allowed(lic.Flags.AllowRedistribution),
		"Modification: " + allowed(lic.Flags.AllowModification),
		"Backup: " + allowed(lic.Flags.AllowBackup),
	}
	if lic.Text != "" {
		lines = append(lines, "", lic.Text)
	}
	if lic.RestrictionNote != "" {
		lines = append(lines, "", "Restrictions: "+lic.RestrictionNote)
	}
	lines = append(lines, "", fmt.Sprintf("Published by <@%s> at %s", publisherID, at.UTC().Format(renderTimeLayout)))
	return strings.Join(lines, "\n")
}

// RenderSuperseded keeps the original declaration readable under a marker so
// the thread still shows what used to apply.
func RenderSuperseded(original string, at time.Time) string {
	quoted := strings.Split(original, "\n")
	for i, line := range quoted {
		quoted[i] = "> " + line
	}
	return fmt.Sprintf("%s This declaration was replaced at %s and no longer applies.\n\n%s",
		supersededHeader, at.UTC().Format(renderTimeLayout), strings.Join(quoted, "\n"))
}

func IsSuperseded(content string) bool {
	return strings.HasPrefix(content, supersededHeader)
}

func RenderConfirmationPrompt(lic domain.EffectiveLicense, authorID string, now, expiresAt time.Time) string {
	return fmt.Sprintf("<@%s> your default license **%s** (backup %s) is ready for this thread. Confirm to publish it; the offer expires %s.",
		authorID, lic.Name, allowed(lic.Flags.AllowBackup), humanize.RelTime(expiresAt, now, "ago", "from now"))
}

// RenderStatus formats a health report for the status message.
func RenderStatus(h HealthReport, now time.Time) string {
	loaded := "never"
	if !h.CacheLoadedAt.IsZero() {
		loaded = humanize.RelTime(h.CacheLoadedAt, now, "ago", "from now")
	}
	lines := []string{
		"**License bot status**",
		fmt.Sprintf("Published posts: %s (%s allow backup)", humanize.Comma(h.PublishedPosts), humanize.Comma(h.BackupAllowedPosts)),
		fmt.Sprintf("Auto-publish users: %s", humanize.Comma(h.AutoPublishUsers)),
		fmt.Sprintf("System licenses: %d (generation %d, loaded %s)", h.SystemLicenses, h.CacheGeneration, loaded),
		fmt.Sprintf("Pending notifications: %d (delivered %d, failed %d, dropped %d)",
			h.PendingNotifications, h.Relay.Succeeded, h.Relay.Exhausted+h.Relay.Rejected, h.Relay.Dropped),
		fmt.Sprintf("Uptime: %s", h.Uptime),
		fmt.Sprintf("Updated at %s", now.UTC().Format(renderTimeLayout)),
	}
	return strings.Join(lines, "\n")
}
