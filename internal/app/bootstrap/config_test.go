package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("expected memory driver, got %q", cfg.Storage.Driver)
	}
	if cfg.AutoPublish.ConfirmationTimeout != 180*time.Second || cfg.AutoPublish.DedupTTL != 5*time.Minute {
		t.Fatalf("unexpected auto-publish defaults %+v", cfg.AutoPublish)
	}
	if cfg.Relay.MaxAttempts != 5 || cfg.Relay.MaxBackoff != 30*time.Second {
		t.Fatalf("unexpected relay defaults %+v", cfg.Relay)
	}
}

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
service:
  name: license-bot-test
storage:
  driver: pebble
  pebble:
    path: /var/lib/license-bot
relay:
  shutdown_grace: 3s
admins: ["  a1 ", "", "a2"]
auto_publish:
  allowed_channel_ids: ["forum-1"]
`)
	t.Setenv("LICENSE_BOT_HTTP_PORT", "9999")
	t.Setenv("LICENSE_BOT_ADMINS", "root")
	t.Setenv("LICENSE_BOT_RELAY_SHUTDOWN_GRACE", "7s")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.Name != "license-bot-test" || cfg.Storage.Pebble.Path != "/var/lib/license-bot" {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
	if cfg.HTTP.Port != 9999 {
		t.Fatalf("expected env http port, got %d", cfg.HTTP.Port)
	}
	if len(cfg.Admins) != 1 || cfg.Admins[0] != "root" {
		t.Fatalf("expected env admins, got %v", cfg.Admins)
	}
	if cfg.Relay.ShutdownGrace != 7*time.Second {
		t.Fatalf("expected env shutdown grace, got %s", cfg.Relay.ShutdownGrace)
	}
	if cfg.Relay.Workers != 4 {
		t.Fatalf("defaults should survive partial yaml, got %d workers", cfg.Relay.Workers)
	}
	if len(cfg.AutoPublish.AllowedChannelIDs) != 1 {
		t.Fatalf("unexpected channels %v", cfg.AutoPublish.AllowedChannelIDs)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"driver":   "storage:\n  driver: sqlite\n",
		"postgres": "storage:\n  driver: postgres\n",
		"notifier": "notifier:\n  enabled: true\n",
		"status":   "status:\n  enabled: true\n  cron: \"not a cron\"\n  channel_id: c\n  message_id: m\n",
		"yaml":     "storage: [",
	}
	for name, body := range cases {
		if _, err := LoadConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
