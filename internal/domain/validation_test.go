package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestValidateTemplateFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		fields  TemplateFields
		wantErr bool
	}{
		{name: "valid", fields: TemplateFields{Name: "Non-commercial", Flags: LicenseFlags{AllowBackup: true}}},
		{name: "empty name", fields: TemplateFields{Name: ""}, wantErr: true},
		{name: "long name", fields: TemplateFields{Name: strings.Repeat("n", 65)}, wantErr: true},
		{name: "long note", fields: TemplateFields{Name: "x", RestrictionNote: strings.Repeat("r", 1001)}, wantErr: true},
		{name: "modification without redistribution", fields: TemplateFields{Name: "x", Flags: LicenseFlags{AllowModification: true}}, wantErr: true},
		{name: "modification with redistribution", fields: TemplateFields{Name: "x", Flags: LicenseFlags{AllowModification: true, AllowRedistribution: true}}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateTemplateFields(tc.fields.Normalize())
			if tc.wantErr && !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateTemplateFieldsReportsJSONNames(t *testing.T) {
	t.Parallel()
	err := ValidateTemplateFields(TemplateFields{})
	if err == nil || !strings.Contains(err.Error(), "name failed on required") {
		t.Fatalf("expected json field name in error, got %v", err)
	}
}

func TestValidateChoice(t *testing.T) {
	t.Parallel()
	override := false
	if err := ValidateChoice(LicenseChoice{Source: SourceTemplate, TemplateID: uuid.New()}); err != nil {
		t.Fatalf("template choice: %v", err)
	}
	if err := ValidateChoice(LicenseChoice{Source: SourceSystem, SystemName: "CC BY 4.0", BackupOverride: &override}); err != nil {
		t.Fatalf("system choice: %v", err)
	}
	if err := ValidateChoice(LicenseChoice{Source: SourceTemplate, TemplateID: uuid.New(), BackupOverride: &override}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected override rejection, got %v", err)
	}
	if err := ValidateChoice(LicenseChoice{Source: "other"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected source rejection, got %v", err)
	}
}

func TestDigestTracksSourceAndFlags(t *testing.T) {
	t.Parallel()
	a := EffectiveLicense{Source: SourceTemplate, TemplateID: uuid.New(), Name: "A", Flags: LicenseFlags{AllowBackup: true}}
	b := a
	if a.Digest() != b.Digest() {
		t.Fatalf("digest should be stable")
	}
	b.TemplateID = uuid.New()
	if a.Digest() == b.Digest() {
		t.Fatalf("digest should change with template id")
	}
	b = a
	b.Flags.AllowBackup = false
	if a.Digest() == b.Digest() {
		t.Fatalf("digest should change with flags")
	}
}
