package syslicense

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/tidwall/jsonc"
)

type documentEntry struct {
	LicenseName         string `json:"license_name"`
	LicenseText         string `json:"license_text"`
	RestrictionsNote    string `json:"restrictions_note"`
	AllowRedistribution *bool  `json:"allow_redistribution"`
	AllowModification   *bool  `json:"allow_modification"`
	AllowBackup         *bool  `json:"allow_backup"`
}

type document struct {
	Licenses []documentEntry `json:"licenses"`
}

// Parse reads a license document: JSON with comments and trailing commas,
// either a bare array of entries or an object with a "licenses" array. Every
// entry must be complete and names must be unique.
func Parse(data []byte) ([]domain.SystemLicense, error) {
	stripped := bytes.TrimSpace(jsonc.ToJSON(data))
	if len(stripped) == 0 {
		return nil, fmt.Errorf("%w: document is empty", domain.ErrReloadParse)
	}

	var entries []documentEntry
	if stripped[0] == '[' {
		if err := decodeStrict(stripped, &entries); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReloadParse, err)
		}
	} else {
		var doc document
		if err := decodeStrict(stripped, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReloadParse, err)
		}
		entries = doc.Licenses
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: document contains no licenses", domain.ErrReloadParse)
	}

	out := make([]domain.SystemLicense, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		lic, err := entry.toDomain()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", domain.ErrReloadParse, i, err)
		}
		if _, dup := seen[lic.Name]; dup {
			return nil, fmt.Errorf("%w: entry %d: duplicate license_name %q", domain.ErrReloadParse, i, lic.Name)
		}
		seen[lic.Name] = struct{}{}
		out = append(out, lic)
	}
	return out, nil
}

func (e documentEntry) toDomain() (domain.SystemLicense, error) {
	var missing []string
	if e.AllowRedistribution == nil {
		missing = append(missing, "allow_redistribution")
	}
	if e.AllowModification == nil {
		missing = append(missing, "allow_modification")
	}
	if e.AllowBackup == nil {
		missing = append(missing, "allow_backup")
	}
	if len(missing) > 0 {
		return domain.SystemLicense{}, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	lic := domain.SystemLicense{
		Name:            strings.TrimSpace(e.LicenseName),
		Text:            strings.TrimSpace(e.LicenseText),
		RestrictionNote: strings.TrimSpace(e.RestrictionsNote),
		Flags: domain.LicenseFlags{
			AllowRedistribution: *e.AllowRedistribution,
			AllowModification:   *e.AllowModification,
			AllowBackup:         *e.AllowBackup,
		},
	}
	if err := domain.ValidateSystemLicense(lic); err != nil {
		return domain.SystemLicense{}, err
	}
	return lic, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after document")
	}
	return nil
}
