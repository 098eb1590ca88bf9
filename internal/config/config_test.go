package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.URL == "" {
		t.Error("server.url default missing")
	}
	if cfg.Sync.MaxAttempts != 5 {
		t.Errorf("sync.max_attempts = %d, want 5", cfg.Sync.MaxAttempts)
	}
	if cfg.Sync.BackoffBase != time.Second || cfg.Sync.BackoffCap != 60*time.Second {
		t.Errorf("backoff = %s..%s, want 1s..60s", cfg.Sync.BackoffBase, cfg.Sync.BackoffCap)
	}
	if cfg.Sync.SendTimeout != 10*time.Second {
		t.Errorf("send timeout = %s, want 10s", cfg.Sync.SendTimeout)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brainbox.yaml")
	content := `
server:
  url: https://notes.example.com
sync:
  max_attempts: 3
  backoff_base: 500ms
  backoff_cap: 30s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.URL != "https://notes.example.com" {
		t.Errorf("server.url = %q", cfg.Server.URL)
	}
	if cfg.Sync.MaxAttempts != 3 {
		t.Errorf("sync.max_attempts = %d, want 3", cfg.Sync.MaxAttempts)
	}
	if cfg.Sync.BackoffBase != 500*time.Millisecond || cfg.Sync.BackoffCap != 30*time.Second {
		t.Errorf("backoff = %s..%s", cfg.Sync.BackoffBase, cfg.Sync.BackoffCap)
	}
	// Untouched keys keep their defaults.
	if cfg.Sync.SendTimeout != 10*time.Second {
		t.Errorf("send timeout = %s, want default 10s", cfg.Sync.SendTimeout)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() succeeded with a missing explicit config file")
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	bad := *base
	bad.Sync.MaxAttempts = 0
	if err := bad.Validate(); err == nil {
		t.Error("Validate() accepted max_attempts 0")
	}

	bad = *base
	bad.Sync.BackoffCap = bad.Sync.BackoffBase / 2
	if err := bad.Validate(); err == nil {
		t.Error("Validate() accepted cap below base")
	}

	bad = *base
	bad.Server.URL = ""
	if err := bad.Validate(); err == nil {
		t.Error("Validate() accepted empty server url")
	}
}
