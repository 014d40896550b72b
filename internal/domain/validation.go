package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// TemplateFields is the user-editable part of a template.
type TemplateFields struct {
	Name            string       `json:"name" validate:"required,max=64"`
	RestrictionNote string       `json:"restriction_note" validate:"max=1000"`
	Flags           LicenseFlags `json:"flags"`
}

func (f TemplateFields) Normalize() TemplateFields {
	f.Name = strings.TrimSpace(f.Name)
	f.RestrictionNote = strings.TrimSpace(f.RestrictionNote)
	return f
}

func ValidateTemplateFields(f TemplateFields) error {
	if err := validateStruct(f); err != nil {
		return err
	}
	return ValidateFlags(f.Flags)
}

// ValidateFlags rejects flag combinations that cannot be honored together.
// A modified work can only be shared by redistributing it.
func ValidateFlags(flags LicenseFlags) error {
	if flags.AllowModification && !flags.AllowRedistribution {
		return fmt.Errorf("%w: allow_modification requires allow_redistribution", ErrValidation)
	}
	return nil
}

func ValidateSystemLicense(l SystemLicense) error {
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("%w: license_name is required", ErrValidation)
	}
	if len([]rune(l.Name)) > 64 {
		return fmt.Errorf("%w: license_name %q exceeds 64 characters", ErrValidation, l.Name)
	}
	if err := ValidateFlags(l.Flags); err != nil {
		return fmt.Errorf("license %q: %w", l.Name, err)
	}
	return nil
}

func ValidateChoice(c LicenseChoice) error {
	switch c.Source {
	case SourceTemplate:
		if c.TemplateID == uuid.Nil {
			return fmt.Errorf("%w: template_id is required for template licenses", ErrValidation)
		}
		if c.BackupOverride != nil {
			return fmt.Errorf("%w: backup_override applies to system licenses only", ErrValidation)
		}
	case SourceSystem:
		if strings.TrimSpace(c.SystemName) == "" {
			return fmt.Errorf("%w: system_name is required for system licenses", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: source must be %q or %q", ErrValidation, SourceTemplate, SourceSystem)
	}
	return nil
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}
