package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/taboard/internal/storage"
	"github.com/starford/taboard/internal/syncer"
	pkgconfig "github.com/starford/taboard/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestConfig_InvalidSections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }, "storage"},
		{"empty storage path", func(c *Config) { c.Storage.Path = "" }, "storage"},
		{"negative debounce", func(c *Config) { c.Storage.Debounce = -time.Second }, "storage"},
		{"empty file name", func(c *Config) { c.Remote.FileName = "" }, "remote"},
		{"missing endpoint", func(c *Config) { c.Remote.Endpoints.Upload = "" }, "remote"},
		{"short timeout", func(c *Config) { c.Remote.Timeout = time.Millisecond }, "remote"},
		{"zero interval", func(c *Config) { c.Sync.Interval = 0 }, "sync"},
		{"zero freshness", func(c *Config) { c.Sync.Freshness = 0 }, "sync"},
		{"bad port", func(c *Config) { c.App.HTTP.Port = 70000 }, "app"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.HasPrefix(err.Error(), tt.want+":") {
				t.Errorf("error = %v, want %s section", err, tt.want)
			}
		})
	}
}

func TestConfig_LoadYAML(t *testing.T) {
	t.Setenv("TABOARD_TEST_REMOTE_TOKEN", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `app:
  log_level: debug
  http:
    port: 9090
storage:
  driver: sqlite
  path: ./taboard.db
sync:
  interval: 5m
  local_change_delay: 2s
credential:
  token: ${TABOARD_TEST_REMOTE_TOKEN}
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.LogLevel != slog.LevelDebug || cfg.App.HTTP.Port != 9090 {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Storage.Driver != StorageDriverSQLite || cfg.Storage.Debounce != storage.DefaultDebounce {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Sync.Interval != 5*time.Minute || cfg.Sync.LocalChangeDelay != 2*time.Second {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Sync.Freshness != syncer.DefaultFreshness {
		t.Errorf("freshness default lost: %v", cfg.Sync.Freshness)
	}
	if cfg.Credential.Token != "from-env" {
		t.Errorf("credential token = %q", cfg.Credential.Token)
	}
	if cfg.Remote.Endpoints.API == "" {
		t.Error("endpoint defaults lost")
	}
}
