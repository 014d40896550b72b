package application

import (
	"context"
	"fmt"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/syslicense"
)

// ReloadSystemLicenses swaps in a fresh snapshot from the configured source.
// On failure the current snapshot keeps serving.
func (s *Service) ReloadSystemLicenses(ctx context.Context, requesterID string) (ReloadResult, error) {
	if !s.permissions.IsAdmin(requesterID) {
		return ReloadResult{}, domain.ErrPermissionDenied
	}
	snap, err := s.licenses.Reload(ctx)
	if err != nil {
		s.telemetry.ObserveReload("failure")
		current := s.licenses.Current()
		s.logger.WarnContext(ctx, "system license reload rejected",
			"module", "application", "layer", "service", "operation", "reload", "outcome", "failure",
			"requester_id", requesterID, "generation", current.Generation, "error", err,
		)
		return ReloadResult{}, err
	}
	s.telemetry.ObserveReload("success")
	s.logger.InfoContext(ctx, "system licenses reloaded",
		"module", "application", "layer", "service", "operation", "reload", "outcome", "success",
		"requester_id", requesterID, "generation", snap.Generation, "licenses", snap.Len(),
	)
	return reloadResult(snap), nil
}

// AllowedForums lists the forum channels auto-publish is limited to. Empty
// means every forum.
func (s *Service) AllowedForums(requesterID string) ([]string, error) {
	if !s.permissions.IsAdmin(requesterID) {
		return nil, domain.ErrPermissionDenied
	}
	return s.channels.IDs(), nil
}

func (s *Service) AllowForum(ctx context.Context, requesterID, channelID string) (bool, error) {
	if !s.permissions.IsAdmin(requesterID) {
		return false, domain.ErrPermissionDenied
	}
	added, err := s.channels.Add(ctx, channelID)
	if err != nil {
		return false, err
	}
	s.logForumChange(ctx, "allow_forum", requesterID, channelID, added)
	return added, nil
}

func (s *Service) DisallowForum(ctx context.Context, requesterID, channelID string) (bool, error) {
	if !s.permissions.IsAdmin(requesterID) {
		return false, domain.ErrPermissionDenied
	}
	removed, err := s.channels.Remove(ctx, channelID)
	if err != nil {
		return false, err
	}
	s.logForumChange(ctx, "disallow_forum", requesterID, channelID, removed)
	return removed, nil
}

// ClearAllowedForums reverts to auto-publishing in every forum and returns how
// many channels were enrolled.
func (s *Service) ClearAllowedForums(ctx context.Context, requesterID string) (int, error) {
	if !s.permissions.IsAdmin(requesterID) {
		return 0, domain.ErrPermissionDenied
	}
	n, err := s.channels.Clear(ctx)
	if err != nil {
		return 0, err
	}
	s.logForumChange(ctx, "clear_forums", requesterID, "", n > 0)
	return n, nil
}

func (s *Service) logForumChange(ctx context.Context, op, requesterID, channelID string, changed bool) {
	s.logger.InfoContext(ctx, "forum allowlist updated",
		"module", "application", "layer", "service", "operation", op, "outcome", "success",
		"requester_id", requesterID, "channel_id", channelID, "changed", changed,
		"allowed_forums", len(s.channels.IDs()),
	)
}

func (s *Service) SystemLicenses() []domain.SystemLicense {
	return s.licenses.Current().List()
}

func (s *Service) SystemLicenseSnapshot() ReloadResult {
	return reloadResult(s.licenses.Current())
}

// Health is read-only: counts from storage plus in-process queue and cache
// state.
func (s *Service) Health(ctx context.Context) (HealthReport, error) {
	stats, err := s.publications.Stats(ctx)
	if err != nil {
		return HealthReport{}, err
	}
	autoUsers, err := s.settings.CountAutoPublishEnabled(ctx)
	if err != nil {
		return HealthReport{}, err
	}
	snap := s.licenses.Current()
	report := HealthReport{
		PublishedPosts:     stats.Total,
		BackupAllowedPosts: stats.BackupAllowed,
		AutoPublishUsers:   autoUsers,
		CacheGeneration:    snap.Generation,
		SystemLicenses:     snap.Len(),
		CacheLoadedAt:      snap.LoadedAt,
		ActiveThreadLocks:  s.locks.Len(),
		StartedAt:          s.startedAt,
		Uptime:             s.nowFn().Sub(s.startedAt).Round(time.Second).String(),
	}
	if s.relay != nil {
		report.PendingNotifications = s.relay.QueueDepth()
		report.Relay = s.relay.Stats()
	}
	return report, nil
}

// CheckHealth reports whether the engine can serve publishes: storage must
// answer and a system license snapshot must have loaded at least once.
func (s *Service) CheckHealth(ctx context.Context) error {
	if _, err := s.publications.Stats(ctx); err != nil {
		return err
	}
	if s.licenses.Current().Generation == 0 {
		return fmt.Errorf("%w: system licenses not loaded", domain.ErrUnavailable)
	}
	return nil
}

func reloadResult(snap *syslicense.Snapshot) ReloadResult {
	return ReloadResult{
		Generation: snap.Generation,
		Licenses:   snap.Len(),
		Source:     snap.Source,
		LoadedAt:   snap.LoadedAt,
	}
}
