package config

import (
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"TRANSCONECTA_AUTH_SECRET": "s"}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != "" || cfg.PGDSN != "" {
		t.Fatalf("unexpected addresses: %+v", cfg)
	}
	if cfg.TokenTTL != 2*time.Hour || cfg.FatigueThreshold != 8 {
		t.Fatalf("unexpected ttl/threshold: %v %v", cfg.TokenTTL, cfg.FatigueThreshold)
	}
	if cfg.SMTP.Enabled() || cfg.Bootstrap.Enabled() {
		t.Fatal("smtp and bootstrap should be disabled by default")
	}
	if cfg.RateLimitBurst != 20 || cfg.RateLimitPerSec != 10 {
		t.Fatalf("unexpected rate limits: %d %d", cfg.RateLimitBurst, cfg.RateLimitPerSec)
	}
}

func TestOverrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"TRANSCONECTA_AUTH_SECRET":  "s",
		"TRANSCONECTA_TOKEN_TTL":    "30m",
		"FATIGUE_THRESHOLD_HOURS":   "9.5",
		"SMTP_HOST":                 "smtp.example.com",
		"SMTP_PORT":                 "465",
		"TRANSCONECTA_CORS_ORIGINS": "https://app.example.com, http://localhost:5173",
		"BOOTSTRAP_ADMIN_EMAIL":     "admin@example.com",
		"BOOTSTRAP_ADMIN_PASSWORD":  "cambiar123",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.TokenTTL != 30*time.Minute || cfg.FatigueThreshold != 9.5 {
		t.Fatalf("unexpected ttl/threshold: %v %v", cfg.TokenTTL, cfg.FatigueThreshold)
	}
	if !cfg.SMTP.Enabled() || cfg.SMTP.Port != 465 {
		t.Fatalf("unexpected smtp: %+v", cfg.SMTP)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://localhost:5173" {
		t.Fatalf("unexpected origins: %v", cfg.CORSOrigins)
	}
	if !cfg.Bootstrap.Enabled() || cfg.Bootstrap.Name != "Administrador" {
		t.Fatalf("unexpected bootstrap: %+v", cfg.Bootstrap)
	}
}

func TestInvalidValuesAreReported(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{
		"TRANSCONECTA_TOKEN_TTL":  "forever",
		"FATIGUE_THRESHOLD_HOURS": "-1",
		"SMTP_PORT":               "abc",
	}))
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"TRANSCONECTA_AUTH_SECRET", "TRANSCONECTA_TOKEN_TTL", "FATIGUE_THRESHOLD_HOURS", "SMTP_PORT"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
