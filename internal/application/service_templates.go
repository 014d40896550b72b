package application

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/google/uuid"
)

func (s *Service) CreateTemplate(ctx context.Context, requesterID string, req CreateTemplateRequest) (domain.LicenseTemplate, error) {
	if requesterID == "" {
		return domain.LicenseTemplate{}, domain.ErrUnauthorized
	}
	fields := domain.TemplateFields{Name: req.Name, RestrictionNote: req.RestrictionNote, Flags: req.Flags}.Normalize()
	if err := domain.ValidateTemplateFields(fields); err != nil {
		return domain.LicenseTemplate{}, err
	}
	now := s.nowFn()
	tpl := domain.LicenseTemplate{
		ID:              uuid.New(),
		OwnerID:         requesterID,
		Name:            fields.Name,
		Flags:           fields.Flags,
		RestrictionNote: fields.RestrictionNote,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.templates.CreateWithQuota(ctx, tpl, s.cfg.MaxTemplatesPerOwner); err != nil {
		return domain.LicenseTemplate{}, err
	}
	return tpl, nil
}

// ListTemplates returns ownerID's templates in creation order.
func (s *Service) ListTemplates(ctx context.Context, requesterID, ownerID string) ([]domain.LicenseTemplate, error) {
	if ownerID == "" {
		ownerID = requesterID
	}
	if requesterID != ownerID && !s.permissions.IsAdmin(requesterID) {
		return nil, domain.ErrPermissionDenied
	}
	return s.templates.ListByOwner(ctx, ownerID)
}

// ListTemplatesByUsage orders ownerID's templates most used first, ties by
// creation order.
func (s *Service) ListTemplatesByUsage(ctx context.Context, requesterID, ownerID string) ([]domain.LicenseTemplate, error) {
	items, err := s.ListTemplates(ctx, requesterID, ownerID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UsageCount > items[j].UsageCount
	})
	return items, nil
}

func (s *Service) GetTemplate(ctx context.Context, requesterID string, id uuid.UUID) (domain.LicenseTemplate, error) {
	tpl, err := s.templates.Get(ctx, id)
	if err != nil {
		return domain.LicenseTemplate{}, persistenceErr(err)
	}
	if !s.permissions.CanManageTemplate(requesterID, tpl) {
		return domain.LicenseTemplate{}, fmt.Errorf("%w: template %s", domain.ErrNotFound, id)
	}
	return tpl, nil
}

// UpdateTemplate edits a template in place. Posts already published from it
// keep the facts they were published with.
func (s *Service) UpdateTemplate(ctx context.Context, requesterID string, id uuid.UUID, req UpdateTemplateRequest) (domain.LicenseTemplate, error) {
	tpl, err := s.GetTemplate(ctx, requesterID, id)
	if err != nil {
		return domain.LicenseTemplate{}, err
	}
	fields := domain.TemplateFields{Name: tpl.Name, RestrictionNote: tpl.RestrictionNote, Flags: tpl.Flags}
	if req.Name != nil {
		fields.Name = *req.Name
	}
	if req.RestrictionNote != nil {
		fields.RestrictionNote = *req.RestrictionNote
	}
	if req.Flags != nil {
		fields.Flags = *req.Flags
	}
	fields = fields.Normalize()
	if err := domain.ValidateTemplateFields(fields); err != nil {
		return domain.LicenseTemplate{}, err
	}
	tpl.Name = fields.Name
	tpl.RestrictionNote = fields.RestrictionNote
	tpl.Flags = fields.Flags
	tpl.UpdatedAt = s.nowFn()
	if err := s.templates.Update(ctx, tpl); err != nil {
		return domain.LicenseTemplate{}, err
	}
	return tpl, nil
}

// DeleteTemplate refuses to remove a template that a live published post was
// produced from; those threads must be republished with another license first.
func (s *Service) DeleteTemplate(ctx context.Context, requesterID string, id uuid.UUID) error {
	tpl, err := s.GetTemplate(ctx, requesterID, id)
	if err != nil {
		return err
	}
	if err := s.templates.Delete(ctx, tpl.ID); err != nil {
		if errors.Is(err, domain.ErrTemplateInUse) || errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("delete template %q: %w", tpl.Name, err)
		}
		return persistenceErr(err)
	}
	return nil
}
