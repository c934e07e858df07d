package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func noEnv(string) string { return "" }

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quince.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Runtime.MaxDepth != 64 {
		t.Errorf("MaxDepth = %d", cfg.Runtime.MaxDepth)
	}
	if cfg.Runtime.MaxSteps != 1_000_000 {
		t.Errorf("MaxSteps = %d", cfg.Runtime.MaxSteps)
	}
	if cfg.Cache.Expressions != 1024 {
		t.Errorf("Expressions = %d", cfg.Cache.Expressions)
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Errorf("TTL = %v", cfg.Session.TTL)
	}
	if cfg.Files.Store != "local" {
		t.Errorf("Store = %q", cfg.Files.Store)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
runtime:
  max_depth: 16
session:
  ttl: 1h
mail:
  provider: log
`)
	cfg, err := Load(path, noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Runtime.MaxDepth != 16 {
		t.Errorf("MaxDepth = %d", cfg.Runtime.MaxDepth)
	}
	// Untouched settings keep their defaults.
	if cfg.Runtime.MaxSteps != 1_000_000 {
		t.Errorf("MaxSteps = %d", cfg.Runtime.MaxSteps)
	}
	if cfg.Session.TTL != time.Hour {
		t.Errorf("TTL = %v", cfg.Session.TTL)
	}
	if cfg.Mail.Provider != "log" {
		t.Errorf("Provider = %q", cfg.Mail.Provider)
	}
}

func TestLoadInterpolatesEnv(t *testing.T) {
	getenv := func(key string) string {
		if key == "MG_KEY" {
			return "key-123"
		}
		return ""
	}
	path := writeConfig(t, `
mail:
  provider: mailgun
  mailgun:
    api_key: ${MG_KEY}
    domain: ${MG_DOMAIN:-mail.example.com}
`)
	cfg, err := Load(path, getenv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mail.Mailgun.APIKey != "key-123" {
		t.Errorf("APIKey = %q", cfg.Mail.Mailgun.APIKey)
	}
	if cfg.Mail.Mailgun.Domain != "mail.example.com" {
		t.Errorf("default did not apply: %q", cfg.Mail.Mailgun.Domain)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, `
root: components
files:
  local: uploads
datasources:
  - name: main
    driver: sqlite
    dsn: app.db
`)
	cfg, err := Load(path, noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	base := filepath.Dir(path)
	if cfg.Root != filepath.Join(base, "components") {
		t.Errorf("Root = %q", cfg.Root)
	}
	if cfg.Files.Local != filepath.Join(base, "uploads") {
		t.Errorf("Files.Local = %q", cfg.Files.Local)
	}
	if cfg.Datasources[0].DSN != filepath.Join(base, "app.db") {
		t.Errorf("DSN = %q", cfg.Datasources[0].DSN)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "gone.yaml"), noEnv); err == nil {
		t.Error("Expected an error for a missing explicit config")
	}
}

func TestLoadUsesEnvPath(t *testing.T) {
	path := writeConfig(t, "runtime:\n  max_depth: 9\n")
	getenv := func(key string) string {
		if key == "QUINCE_CONFIG" {
			return path
		}
		return ""
	}
	cfg, resolved, err := LoadWithPath("", getenv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Runtime.MaxDepth != 9 {
		t.Errorf("MaxDepth = %d", cfg.Runtime.MaxDepth)
	}
	if resolved != path {
		t.Errorf("resolved path %q, want %q", resolved, path)
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Runtime.MaxDepth = 0
	cfg.Runtime.MaxSteps = -1
	cfg.Mail.Provider = "pigeon"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation errors")
	}
	for _, want := range []string{"max_depth", "max_steps", "pigeon"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q: %v", want, err)
		}
	}
}

func TestValidateDatasources(t *testing.T) {
	tests := []struct {
		name string
		ds   DatasourceConfig
		want string
	}{
		{"missing name", DatasourceConfig{Driver: "sqlite", DSN: "a.db"}, "name is required"},
		{"bad driver", DatasourceConfig{Name: "x", Driver: "oracle", DSN: "d"}, "unsupported driver"},
		{"missing dsn", DatasourceConfig{Name: "x", Driver: "mysql"}, "dsn is required"},
	}
	for _, tt := range tests {
		cfg := Defaults()
		cfg.Datasources = []DatasourceConfig{tt.ds}
		err := Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: got %v, want mention of %q", tt.name, err, tt.want)
		}
	}
}

func TestValidateDuplicateDatasourceNames(t *testing.T) {
	cfg := Defaults()
	cfg.Datasources = []DatasourceConfig{
		{Name: "main", Driver: "sqlite", DSN: "a.db"},
		{Name: "main", Driver: "sqlite", DSN: "b.db"},
	}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("got %v", err)
	}
}

func TestValidateMailCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mail.Provider = "mailgun"
	if err := Validate(cfg); err == nil {
		t.Error("mailgun without credentials should fail")
	}

	cfg.Mail.Mailgun.APIKey = "k"
	cfg.Mail.Mailgun.Domain = "d"
	if err := Validate(cfg); err != nil {
		t.Errorf("mailgun with credentials should pass: %v", err)
	}

	cfg = Defaults()
	cfg.Mail.Provider = "resend"
	if err := Validate(cfg); err == nil {
		t.Error("resend without api_key should fail")
	}
}

func TestValidateSFTPStore(t *testing.T) {
	cfg := Defaults()
	cfg.Files.Store = "sftp"
	if err := Validate(cfg); err == nil {
		t.Error("sftp without host and user should fail")
	}

	cfg.Files.SFTP.Host = "h"
	cfg.Files.SFTP.User = "u"
	if err := Validate(cfg); err != nil {
		t.Errorf("sftp with host and user should pass: %v", err)
	}
}
