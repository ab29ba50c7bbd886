package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("WORKTRACKER_ACCESS_SECRET", "access-secret")
	t.Setenv("WORKTRACKER_REFRESH_SECRET", "refresh-secret")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.AccessTTL != 30*time.Minute {
		t.Fatalf("unexpected access TTL: %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("unexpected refresh TTL: %v", cfg.RefreshTTL)
	}
	if cfg.RateLimits["auth"] != 10 || cfg.RateLimits["default"] != 60 {
		t.Fatalf("unexpected rate limits: %v", cfg.RateLimits)
	}
}

func TestFromEnvRejectsSharedSecret(t *testing.T) {
	t.Setenv("WORKTRACKER_ACCESS_SECRET", "same")
	t.Setenv("WORKTRACKER_REFRESH_SECRET", "same")

	if _, err := FromEnv(); err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected shared-secret error, got %v", err)
	}
}

func TestFromEnvRequiresSecrets(t *testing.T) {
	t.Setenv("WORKTRACKER_ACCESS_SECRET", "")
	t.Setenv("WORKTRACKER_REFRESH_SECRET", "")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected missing-secret error")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("WORKTRACKER_ACCESS_SECRET", "a")
	t.Setenv("WORKTRACKER_REFRESH_SECRET", "b")
	t.Setenv("WORKTRACKER_ACCESS_TTL", "15m")
	t.Setenv("WORKTRACKER_RATE_AUTH", "3")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access TTL: %v", cfg.AccessTTL)
	}
	if cfg.RateLimits["auth"] != 3 {
		t.Fatalf("unexpected auth limit: %d", cfg.RateLimits["auth"])
	}
}
