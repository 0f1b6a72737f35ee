package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: tradedash
  env: test
database:
  host: localhost
  port: 5432
  user: dash
  dbname: tradedash
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.SessionTTL != 24*time.Hour {
		t.Errorf("expected default session TTL 24h, got %v", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.LockoutLimit != 5 {
		t.Errorf("expected default lockout limit 5, got %d", cfg.Auth.LockoutLimit)
	}
	if cfg.Auth.LockoutDuration != 15*time.Minute {
		t.Errorf("expected default lockout duration 15m, got %v", cfg.Auth.LockoutDuration)
	}
	if cfg.Auth.HashIterations != 100000 {
		t.Errorf("expected default hash iterations 100000, got %d", cfg.Auth.HashIterations)
	}
	if cfg.Audit.RetentionDays != 90 {
		t.Errorf("expected default retention 90 days, got %d", cfg.Audit.RetentionDays)
	}
}

func TestLoadRateLimitClasses(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  dbname: tradedash
rate_limit:
  enabled: true
  classes:
    login:
      requests: 10
      window: 1m
    data-push:
      requests: 30
      window: 1m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	login, ok := cfg.RateLimit.Classes["login"]
	if !ok {
		t.Fatal("expected login rate limit class")
	}
	if login.Requests != 10 || login.Window != time.Minute {
		t.Errorf("unexpected login limit: %+v", login)
	}
}

func TestLoadRejectsInvalidRateLimit(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  dbname: tradedash
rate_limit:
  classes:
    login:
      requests: 0
      window: 1m
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for zero-request class")
	}
}

func TestEnvOverridesPassword(t *testing.T) {
	t.Setenv("TRADEDASH_DB_PASSWORD", "from-env")

	path := writeConfig(t, `
database:
  host: localhost
  dbname: tradedash
  password: from-file
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Password != "from-env" {
		t.Errorf("expected env override, got %q", cfg.Database.Password)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
