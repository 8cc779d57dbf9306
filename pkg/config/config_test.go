package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type sample struct {
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`
	Port    int           `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func TestParse_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("CONFIG_TEST_NAME", "board")

	cfg := sample{Timeout: time.Minute, Port: 1}
	if err := Parse([]byte("name: ${CONFIG_TEST_NAME}\nport: 8080\n"), &cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Name != "board" || cfg.Port != 8080 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Timeout != time.Minute {
		t.Errorf("timeout default lost: %v", cfg.Timeout)
	}
}

func TestParse_Validation(t *testing.T) {
	cfg := sample{}
	err := Parse([]byte("port: 0\n"), &cfg)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestParse_BadYAML(t *testing.T) {
	cfg := sample{}
	if err := Parse([]byte("port: [unterminated"), &cfg); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: 9000\ntimeout: 5s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := sample{}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9000 || cfg.Timeout != 5*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}

	if err := Load(filepath.Join(t.TempDir(), "missing.yaml"), &cfg); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}
}
