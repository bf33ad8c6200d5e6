package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"YT_CLIENT_ID", "YT_CLIENT_SECRET", "YT_REDIRECT_URI", "YT_SCOPES",
		"POLL_MIN_INTERVAL", "POLL_BASE_INTERVAL", "POLL_BACKOFF_BASE",
		"POLL_BACKOFF_MAX", "POLL_ERROR_RETRY_INTERVAL", "CHANNEL_IDENTITY_TTL",
		"RELAY_AUTO_ENABLE", "DB_DSN", "HTTP_ADDR", "ALLOWED_ORIGIN",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollMinInterval != 2*time.Second {
		t.Errorf("PollMinInterval = %s, want 2s", cfg.PollMinInterval)
	}
	if cfg.PollBaseInterval != 5*time.Second {
		t.Errorf("PollBaseInterval = %s, want 5s", cfg.PollBaseInterval)
	}
	if cfg.BackoffBase != 30*time.Second {
		t.Errorf("BackoffBase = %s, want 30s", cfg.BackoffBase)
	}
	if cfg.BackoffMax != 15*time.Minute {
		t.Errorf("BackoffMax = %s, want 15m", cfg.BackoffMax)
	}
	if cfg.ErrorRetryInterval != 30*time.Second {
		t.Errorf("ErrorRetryInterval = %s, want 30s", cfg.ErrorRetryInterval)
	}
	if cfg.IdentityTTL != 6*time.Hour {
		t.Errorf("IdentityTTL = %s, want 6h", cfg.IdentityTTL)
	}
	if cfg.AutoEnable {
		t.Error("AutoEnable should default to false")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.AllowedOrigin != "*" {
		t.Errorf("AllowedOrigin = %q, want *", cfg.AllowedOrigin)
	}
	if cfg.YTScopes == "" {
		t.Error("YTScopes should default to the readonly scope")
	}
	if cfg.DBDsn == "" {
		t.Error("DBDsn should default to the local postgres DSN")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLL_MIN_INTERVAL", "1s")
	t.Setenv("POLL_BASE_INTERVAL", "10s")
	t.Setenv("POLL_BACKOFF_BASE", "1m")
	t.Setenv("POLL_BACKOFF_MAX", "30m")
	t.Setenv("POLL_ERROR_RETRY_INTERVAL", "45s")
	t.Setenv("CHANNEL_IDENTITY_TTL", "12h")
	t.Setenv("RELAY_AUTO_ENABLE", "1")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("ALLOWED_ORIGIN", "https://overlay.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollMinInterval != time.Second {
		t.Errorf("PollMinInterval = %s, want 1s", cfg.PollMinInterval)
	}
	if cfg.PollBaseInterval != 10*time.Second {
		t.Errorf("PollBaseInterval = %s, want 10s", cfg.PollBaseInterval)
	}
	if cfg.BackoffBase != time.Minute {
		t.Errorf("BackoffBase = %s, want 1m", cfg.BackoffBase)
	}
	if cfg.BackoffMax != 30*time.Minute {
		t.Errorf("BackoffMax = %s, want 30m", cfg.BackoffMax)
	}
	if cfg.ErrorRetryInterval != 45*time.Second {
		t.Errorf("ErrorRetryInterval = %s, want 45s", cfg.ErrorRetryInterval)
	}
	if cfg.IdentityTTL != 12*time.Hour {
		t.Errorf("IdentityTTL = %s, want 12h", cfg.IdentityTTL)
	}
	if !cfg.AutoEnable {
		t.Error("AutoEnable = false, want true")
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
	}
	if cfg.AllowedOrigin != "https://overlay.example.com" {
		t.Errorf("AllowedOrigin = %q", cfg.AllowedOrigin)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLL_BASE_INTERVAL", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}

	clearEnv(t)
	t.Setenv("POLL_BASE_INTERVAL", "-5s")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-positive duration")
	}
}

func TestValidatePollReady(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.ValidatePollReady(); err == nil {
		t.Fatal("expected error without YouTube credentials")
	}

	cfg.YTClientID = "id"
	if err := cfg.ValidatePollReady(); err == nil {
		t.Fatal("expected error with only the client id")
	}

	cfg.YTClientSecret = "secret"
	if err := cfg.ValidatePollReady(); err != nil {
		t.Fatalf("unexpected error with full credentials: %v", err)
	}
}
