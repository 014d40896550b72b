package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type templateRepository struct {
	db *gorm.DB
}

// CreateWithQuota counts and inserts under a transaction-scoped advisory lock
// keyed by owner, so two concurrent creates cannot both pass the count.
func (r *templateRepository) CreateWithQuota(ctx context.Context, tpl domain.LicenseTemplate, limit int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "license_templates:"+tpl.OwnerID).Error; err != nil {
			return err
		}
		var owned int64
		if err := tx.Model(&templateModel{}).Where("owner_id = ?", tpl.OwnerID).Count(&owned).Error; err != nil {
			return err
		}
		if owned >= int64(limit) {
			return fmt.Errorf("%w: at most %d templates per owner", domain.ErrQuotaExceeded, limit)
		}
		rec := toTemplateModel(tpl)
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		return nil
	})
}

func (r *templateRepository) Get(ctx context.Context, id uuid.UUID) (domain.LicenseTemplate, error) {
	var rec templateModel
	if err := r.db.WithContext(ctx).Where("template_id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.LicenseTemplate{}, fmt.Errorf("%w: template %s", domain.ErrNotFound, id)
		}
		return domain.LicenseTemplate{}, err
	}
	return toDomainTemplate(rec), nil
}

func (r *templateRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.LicenseTemplate, error) {
	var rows []templateModel
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at asc, template_id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.LicenseTemplate, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainTemplate(row))
	}
	return out, nil
}

func (r *templateRepository) Update(ctx context.Context, tpl domain.LicenseTemplate) error {
	res := r.db.WithContext(ctx).Model(&templateModel{}).Where("template_id = ?", tpl.ID).Updates(map[string]any{
		"name":                 tpl.Name,
		"allow_redistribution": tpl.Flags.AllowRedistribution,
		"allow_modification":   tpl.Flags.AllowModification,
		"allow_backup":         tpl.Flags.AllowBackup,
		"restriction_note":     tpl.RestrictionNote,
		"updated_at":           tpl.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: template %s", domain.ErrNotFound, tpl.ID)
	}
	return nil
}

// Delete locks the template row before counting live posts. Publication
// commits take a share lock on the same row, so the two cannot interleave.
func (r *templateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec templateModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("template_id = ?", id).Take(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: template %s", domain.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		var inUse int64
		if err := tx.Model(&publishedPostModel{}).
			Where("source = ? AND source_template_id = ?", string(domain.SourceTemplate), id).
			Count(&inUse).Error; err != nil {
			return err
		}
		if inUse > 0 {
			return fmt.Errorf("%w: template %s is the live license on %d thread(s)", domain.ErrTemplateInUse, id, inUse)
		}
		return tx.Where("template_id = ?", id).Delete(&templateModel{}).Error
	})
}

func (r *templateRepository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&templateModel{}).Where("template_id = ?", id).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: template %s", domain.ErrNotFound, id)
	}
	return nil
}

var _ ports.TemplateRepository = (*templateRepository)(nil)
