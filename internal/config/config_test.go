package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.MongoDatabase != "marketplace" {
		t.Errorf("expected default database marketplace, got %s", cfg.MongoDatabase)
	}
	if cfg.SweepSchedule != "@hourly" {
		t.Errorf("expected default sweep schedule @hourly, got %s", cfg.SweepSchedule)
	}
	if cfg.WebhookDedupTTL != 24*time.Hour {
		t.Errorf("expected default dedup TTL 24h, got %s", cfg.WebhookDedupTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("CASCADE_STEP_TIMEOUT", "3s")
	t.Setenv("WEBHOOK_DEDUP_TTL", "not-a-duration")

	cfg := Load()
	if cfg.Port != "9999" {
		t.Errorf("expected port 9999, got %s", cfg.Port)
	}
	if cfg.StepTimeout != 3*time.Second {
		t.Errorf("expected step timeout 3s, got %s", cfg.StepTimeout)
	}
	// Unparseable durations fall back to the default.
	if cfg.WebhookDedupTTL != 24*time.Hour {
		t.Errorf("expected dedup TTL fallback 24h, got %s", cfg.WebhookDedupTTL)
	}
}
