package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PAYMENT_GATEWAY_URL", "https://pay.example.com")
	t.Setenv("PAYMENT_SECRET_KEY", "sk_test_123")
	t.Setenv("WEBHOOK_SECRET", "whsec_test")
	t.Setenv("ORDERS_TABLE", "orders")
	t.Setenv("EVENTS_TABLE", "events")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Port != "8080" || cfg.AWSRegion != "us-east-1" {
		t.Fatalf("unexpected defaults: port=%s region=%s", cfg.Port, cfg.AWSRegion)
	}
	if cfg.PendingTTL != 24*time.Hour || cfg.EventTTL != 48*time.Hour {
		t.Fatalf("unexpected TTL defaults: %v / %v", cfg.PendingTTL, cfg.EventTTL)
	}
	if cfg.AssetMaxBytes != 10*1024*1024 {
		t.Fatalf("unexpected asset ceiling: %d", cfg.AssetMaxBytes)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("WEBHOOK_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing WEBHOOK_SECRET")
	}
}

func TestLoad_MalformedDurationIsAnError(t *testing.T) {
	setRequired(t)
	t.Setenv("PENDING_TTL", "24hours") // typo'd unit must not silently become the default

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for malformed PENDING_TTL")
	}
	if !strings.Contains(err.Error(), "PENDING_TTL") {
		t.Fatalf("error should name the offending variable, got %v", err)
	}
}

func TestLoad_MalformedIntIsAnError(t *testing.T) {
	setRequired(t)
	t.Setenv("ASSET_MAX_BYTES", "10MB")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed ASSET_MAX_BYTES")
	}
}

func TestLoad_ParsesOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("AWS_REGION", "eu-central-1")
	t.Setenv("PENDING_TTL", "12h")
	t.Setenv("ASSET_MAX_BYTES", "1048576")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.AWSRegion != "eu-central-1" || cfg.PendingTTL != 12*time.Hour || cfg.AssetMaxBytes != 1<<20 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}
