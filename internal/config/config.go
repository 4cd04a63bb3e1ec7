package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Notify  NotifyConfig  `yaml:"notify"`
	Sources SourcesConfig `yaml:"sources"`
	Logging LoggingConfig `yaml:"logging"`
	State   StateConfig   `yaml:"state"`
}

type NotifyConfig struct {
	SMTP SMTPConfig `yaml:"smtp"`
	From string     `yaml:"from"`
	To   string     `yaml:"to"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSL      bool   `yaml:"ssl"`
	StartTLS bool   `yaml:"starttls"`
}

type SourcesConfig struct {
	IMAP    IMAPConfig    `yaml:"imap"`
	Gmail   GmailConfig   `yaml:"gmail"`
	Outlook OutlookConfig `yaml:"outlook"`
}

type IMAPConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	SSL           bool   `yaml:"ssl"`
	StartTLS      bool   `yaml:"starttls"`
	Folder        string `yaml:"folder"`
	PageSize      int    `yaml:"page_size"`
	IdleKeepAlive int    `yaml:"idle_keepalive_seconds"`
	MaxRetries    int    `yaml:"max_retries"`
}

type GmailConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CredentialsPath string   `yaml:"credentials_path"`
	TokenPath       string   `yaml:"token_path"`
	Query           string   `yaml:"query"`
	Labels          []string `yaml:"labels"`
	Schedule        string   `yaml:"schedule"`
	PageCap         int      `yaml:"page_cap"`
	CacheSize       int      `yaml:"cache_size"`
}

type OutlookConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	User         string `yaml:"user"`
	Folder       string `yaml:"folder"`
	Schedule     string `yaml:"schedule"`
	PageCap      int    `yaml:"page_cap"`
	CacheSize    int    `yaml:"cache_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

type StateConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Error reports a missing or invalid per-source setting. It is fatal for the
// source that needs the setting but must not abort sibling sources.
type Error struct {
	Source string
	Field  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: source %s requires %s", e.Source, e.Field)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

func Load(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Notify defaults
	if cfg.Notify.SMTP.Port == 0 {
		if cfg.Notify.SMTP.SSL {
			cfg.Notify.SMTP.Port = 465
		} else {
			cfg.Notify.SMTP.Port = 587
		}
	}
	if cfg.Notify.From == "" {
		cfg.Notify.From = cfg.Notify.SMTP.Username
	}

	// IMAP defaults
	if cfg.Sources.IMAP.Port == 0 {
		cfg.Sources.IMAP.Port = 993
		cfg.Sources.IMAP.SSL = true
	}
	if cfg.Sources.IMAP.Folder == "" {
		cfg.Sources.IMAP.Folder = "INBOX"
	}
	if cfg.Sources.IMAP.PageSize == 0 {
		cfg.Sources.IMAP.PageSize = 50
	}
	if cfg.Sources.IMAP.IdleKeepAlive == 0 {
		cfg.Sources.IMAP.IdleKeepAlive = 300
	}
	if cfg.Sources.IMAP.MaxRetries == 0 {
		cfg.Sources.IMAP.MaxRetries = 5
	}

	// Gmail defaults
	if cfg.Sources.Gmail.Schedule == "" {
		cfg.Sources.Gmail.Schedule = "*/2 * * * *"
	}
	if cfg.Sources.Gmail.PageCap == 0 {
		cfg.Sources.Gmail.PageCap = 25
	}
	if cfg.Sources.Gmail.CacheSize == 0 {
		cfg.Sources.Gmail.CacheSize = 200
	}
	if cfg.Sources.Gmail.Query == "" {
		cfg.Sources.Gmail.Query = "is:unread"
	}

	// Outlook defaults
	if cfg.Sources.Outlook.Schedule == "" {
		cfg.Sources.Outlook.Schedule = "*/2 * * * *"
	}
	if cfg.Sources.Outlook.PageCap == 0 {
		cfg.Sources.Outlook.PageCap = 25
	}
	if cfg.Sources.Outlook.CacheSize == 0 {
		cfg.Sources.Outlook.CacheSize = 200
	}
	if cfg.Sources.Outlook.Folder == "" {
		cfg.Sources.Outlook.Folder = "inbox"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	// State defaults
	if cfg.State.Enabled && cfg.State.Path == "" {
		home, _ := os.UserHomeDir()
		cfg.State.Path = filepath.Join(home, ".mailwatch", "state.db")
	} else if cfg.State.Path != "" {
		cfg.State.Path = expandPath(cfg.State.Path)
	}

	// Expand paths
	if cfg.Logging.Path != "" {
		cfg.Logging.Path = expandPath(cfg.Logging.Path)
	}
	if cfg.Sources.Gmail.CredentialsPath != "" {
		cfg.Sources.Gmail.CredentialsPath = expandPath(cfg.Sources.Gmail.CredentialsPath)
	}
	if cfg.Sources.Gmail.TokenPath != "" {
		cfg.Sources.Gmail.TokenPath = expandPath(cfg.Sources.Gmail.TokenPath)
	}

	return &cfg, nil
}
