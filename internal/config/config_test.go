package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
notify:
  smtp:
    host: smtp.example.com
    username: watcher@example.com
    password: secret
  to: ops@example.com
sources:
  imap:
    enabled: true
    host: mail.example.com
    username: watcher@example.com
    password: secret
  gmail:
    enabled: true
    credentials_path: /etc/mailwatch/creds.json
    token_path: /etc/mailwatch/token.json
  outlook:
    enabled: true
    tenant_id: tenant
    client_id: client
    client_secret: secret
    user: shared@example.com
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Notify.SMTP.Port != 587 {
		t.Errorf("smtp port = %d, want 587", cfg.Notify.SMTP.Port)
	}
	if cfg.Notify.From != "watcher@example.com" {
		t.Errorf("from = %q, want fallback to smtp username", cfg.Notify.From)
	}

	if cfg.Sources.IMAP.Port != 993 || !cfg.Sources.IMAP.SSL {
		t.Errorf("imap = port %d ssl %v, want 993/ssl", cfg.Sources.IMAP.Port, cfg.Sources.IMAP.SSL)
	}
	if cfg.Sources.IMAP.Folder != "INBOX" {
		t.Errorf("imap folder = %q", cfg.Sources.IMAP.Folder)
	}
	if cfg.Sources.IMAP.PageSize != 50 || cfg.Sources.IMAP.IdleKeepAlive != 300 {
		t.Errorf("imap page/keepalive = %d/%d", cfg.Sources.IMAP.PageSize, cfg.Sources.IMAP.IdleKeepAlive)
	}

	if cfg.Sources.Gmail.Schedule != "*/2 * * * *" {
		t.Errorf("gmail schedule = %q", cfg.Sources.Gmail.Schedule)
	}
	if cfg.Sources.Gmail.PageCap != 25 || cfg.Sources.Gmail.CacheSize != 200 {
		t.Errorf("gmail cap/cache = %d/%d", cfg.Sources.Gmail.PageCap, cfg.Sources.Gmail.CacheSize)
	}
	if cfg.Sources.Gmail.Query != "is:unread" {
		t.Errorf("gmail query = %q", cfg.Sources.Gmail.Query)
	}

	if cfg.Sources.Outlook.Folder != "inbox" {
		t.Errorf("outlook folder = %q", cfg.Sources.Outlook.Folder)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestLoadExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, `
notify:
  smtp:
    host: smtp.example.com
    port: 2525
  from: alerts@example.com
  to: ops@example.com
sources:
  imap:
    host: mail.example.com
    port: 143
    starttls: true
  gmail:
    schedule: "*/10 * * * *"
    page_cap: 5
    cache_size: 40
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Notify.SMTP.Port != 2525 || cfg.Notify.From != "alerts@example.com" {
		t.Errorf("notify = %+v", cfg.Notify)
	}
	if cfg.Sources.IMAP.Port != 143 || cfg.Sources.IMAP.SSL {
		t.Errorf("imap = %+v", cfg.Sources.IMAP)
	}
	if cfg.Sources.Gmail.Schedule != "*/10 * * * *" ||
		cfg.Sources.Gmail.PageCap != 5 ||
		cfg.Sources.Gmail.CacheSize != 40 {
		t.Errorf("gmail = %+v", cfg.Sources.Gmail)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Source: "outlook", Field: "tenant_id"}
	want := "config: source outlook requires tenant_id"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
