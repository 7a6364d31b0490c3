package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.DefaultSessionCapacity != 50 {
		t.Fatalf("expected default capacity 50, got %d", cfg.DefaultSessionCapacity)
	}
	if cfg.LockTTL() != 10*time.Second {
		t.Fatalf("expected 10s lock ttl, got %s", cfg.LockTTL())
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("SESSION_TOKEN_TTL_SECONDS", "60")
	t.Setenv("ARCHIVE_USE_SSL", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("expected :9000, got %q", cfg.Addr)
	}
	if cfg.SessionTokenTTL() != time.Minute {
		t.Fatalf("expected 1m token ttl, got %s", cfg.SessionTokenTTL())
	}
	if !cfg.ArchiveUseSSL {
		t.Fatal("expected archive ssl enabled")
	}
}

func TestLoadRejectsZeroCapacity(t *testing.T) {
	t.Setenv("DEFAULT_SESSION_CAPACITY", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected Load() to fail for zero capacity")
	}
}

func TestLoadRejectsMalformedNumber(t *testing.T) {
	t.Setenv("LOCK_TTL_SECONDS", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected Load() to fail for malformed ttl")
	}
}
