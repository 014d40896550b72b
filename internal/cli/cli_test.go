package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Opizontas-Studio/dc-license-bot/internal/adapters/security"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLicensesValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.jsonc")
	if err := os.WriteFile(good, []byte(`{
  // comment
  "licenses": [
    {"license_name": "CC0", "license_text": "No rights reserved.", "allow_redistribution": true, "allow_modification": true, "allow_backup": true},
  ],
}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := execute(t, "licenses", "validate", good)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "1 licenses ok") || !strings.Contains(out, "CC0") {
		t.Fatalf("unexpected output %q", out)
	}

	bad := filepath.Join(dir, "bad.jsonc")
	if err := os.WriteFile(bad, []byte(`[]`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := execute(t, "licenses", "validate", bad); err == nil {
		t.Fatalf("expected empty document to fail")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	secret := strings.Repeat("s", 32)
	t.Setenv("LICENSE_BOT_AUTH_SECRET", secret)
	out, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "token", "--user", "u-42")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	verifier, err := security.NewJWTSigner("dc-license-bot", secret)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	claims, err := verifier.ValidateToken(context.Background(), strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "u-42" {
		t.Fatalf("expected subject u-42, got %q", claims.UserID)
	}
}

func TestMigrateSkipsNonPostgres(t *testing.T) {
	out, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, `"memory" has no migrations`) {
		t.Fatalf("unexpected output %q", out)
	}
}
