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
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: http://backend.internal:9000
  timeout: 10s
log:
  level: debug
session:
  max_sessions: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Backend.BaseURL != "http://backend.internal:9000" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v", cfg.Backend.Timeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
	if cfg.Session.MaxSessions != 5 {
		t.Errorf("MaxSessions = %d", cfg.Session.MaxSessions)
	}

	// Unset keys fall back to defaults.
	if cfg.Log.Format != "text" {
		t.Errorf("Format default = %q", cfg.Log.Format)
	}
	if cfg.Session.TTL != 30*24*time.Hour {
		t.Errorf("TTL default = %v", cfg.Session.TTL)
	}
	if cfg.Storage.DataDir != "./data" {
		t.Errorf("DataDir default = %q", cfg.Storage.DataDir)
	}

	if Get() != cfg {
		t.Error("Get() should return the loaded config")
	}
}

func TestLoadTokenFromEnv(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	t.Setenv("RETRIEVAI_API_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.APIToken != "env-token" {
		t.Errorf("APIToken = %q, want the environment fallback", cfg.Backend.APIToken)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load on a missing file should fail")
	}
}
