package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load returned error for missing file: %v", err)
	}
	if cfg.Postgres.Port != DefaultPGPort {
		t.Fatalf("default postgres port = %d, want %d", cfg.Postgres.Port, DefaultPGPort)
	}
	if cfg.Relay.MaxAttachmentBytes != DefaultMaxAttachment {
		t.Fatalf("default attachment limit = %d, want %d", cfg.Relay.MaxAttachmentBytes, DefaultMaxAttachment)
	}
	if cfg.Discord.WebhookName != DefaultWebhookName {
		t.Fatalf("default webhook name = %q", cfg.Discord.WebhookName)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	raw := `
[log]
level = "debug"
format = "json"

[discord]
token = "abc123"

[postgres]
host = "db.internal"
port = 6432

[relay]
event_timeout_seconds = 10
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log config not applied: %+v", cfg.Log)
	}
	if cfg.Discord.Token != "abc123" {
		t.Fatalf("discord token not applied")
	}
	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Port != 6432 {
		t.Fatalf("postgres config not applied: %+v", cfg.Postgres)
	}
	if cfg.Postgres.User != DefaultPGUser {
		t.Fatalf("unset field should keep default, got %q", cfg.Postgres.User)
	}
	if cfg.Relay.EventTimeoutSeconds != 10 {
		t.Fatalf("relay timeout not applied")
	}
}
