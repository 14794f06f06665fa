package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const secret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessionflow.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithEnvSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SESSIONFLOW_SESSION_SECRET", secret)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Session.Mount != "sessions" || cfg.Session.IdleTTL != time.Hour {
		t.Errorf("session defaults not applied: %+v", cfg.Session)
	}
	if cfg.Users.Driver != "sqlite" {
		t.Errorf("Users.Driver = %q", cfg.Users.Driver)
	}
	if !cfg.Password.UpgradeOnLogin {
		t.Error("password upgrade on login should default to on")
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("level = %v", cfg.SlogLevel())
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
session:
  secret: "`+secret+`"
  idle_ttl: 30m
oauth2:
  public_url: "https://auth.example.com/"
  providers:
    - key: github
      client_id: abc
      client_secret: def
log:
  level: debug
`)
	t.Setenv("SESSIONFLOW_SERVER_ADDR", ":7070")
	t.Setenv("SESSIONFLOW_RATE_LIMIT_ENABLED", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("env override lost: %q", cfg.Server.Addr)
	}
	if cfg.Session.IdleTTL != 30*time.Minute {
		t.Errorf("IdleTTL = %v", cfg.Session.IdleTTL)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.MaxAttempts != 5 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.OAuth2.PublicURL != "https://auth.example.com" {
		t.Errorf("PublicURL = %q", cfg.OAuth2.PublicURL)
	}
	if len(cfg.OAuth2.Providers) != 1 || cfg.OAuth2.Providers[0].TokenURL == "" {
		t.Errorf("providers = %+v", cfg.OAuth2.Providers)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("level = %v", cfg.SlogLevel())
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing secret", "log:\n  level: info\n", "session.secret is required"},
		{"bad driver", "session:\n  secret: " + secret + "\nusers:\n  driver: mysql\n", "driver must be one of"},
		{"bad addr", "session:\n  secret: " + secret + "\nserver:\n  addr: nowhere\n", "must be host:port"},
		{"bad level", "session:\n  secret: " + secret + "\nlog:\n  level: loud\n", "level must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadRawSkipsValidation(t *testing.T) {
	cfg, used, err := LoadRaw(writeConfig(t, "redis:\n  embedded: true\n"))
	if err != nil {
		t.Fatalf("LoadRaw: %v", err)
	}
	if !cfg.Redis.Embedded || used == "" {
		t.Fatalf("embedded=%v used=%q", cfg.Redis.Embedded, used)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	if _, err := Load(writeConfig(t, "server: [unclosed")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFindConfigFileInPaths(t *testing.T) {
	dir := t.TempDir()
	if got := findConfigFileInPaths([]string{dir}); got != "" {
		t.Fatalf("found %q in empty dir", got)
	}
	want := filepath.Join(dir, "sessionflow.yml")
	if err := os.WriteFile(want, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := findConfigFileInPaths([]string{dir}); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
