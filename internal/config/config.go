// Package config reads process configuration from the environment. An
// optional .env file in the working directory is loaded first.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string
	PGDSN    string // empty selects the in-memory stores

	AuthSecret string
	TokenTTL   time.Duration

	FatigueThreshold float64

	RedisAddr     string // empty selects the in-memory OTP store
	RedisPassword string

	SMTP SMTPConfig

	RateLimitBurst  int
	RateLimitPerSec int
	CORSOrigins     []string

	Bootstrap BootstrapConfig
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Enabled reports whether mail should go through SMTP.
func (c SMTPConfig) Enabled() bool { return c.Host != "" }

// BootstrapConfig describes the administrator created on first start.
type BootstrapConfig struct {
	Name     string
	Email    string
	Password string
}

func (c BootstrapConfig) Enabled() bool { return c.Email != "" && c.Password != "" }

// Load applies .env (if present) and then reads the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	var errs []error
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	getInt := func(key string, def int) int {
		raw := get(key, "")
		if raw == "" {
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, raw))
			return def
		}
		return n
	}

	cfg := Config{
		HTTPAddr:      get("TRANSCONECTA_HTTP_ADDR", ":8080"),
		GRPCAddr:      get("TRANSCONECTA_GRPC_ADDR", ""),
		PGDSN:         get("TRANSCONECTA_PG_DSN", ""),
		AuthSecret:    get("TRANSCONECTA_AUTH_SECRET", ""),
		TokenTTL:      2 * time.Hour,
		RedisAddr:     get("REDIS_ADDR", ""),
		RedisPassword: get("REDIS_PASSWORD", ""),
		SMTP: SMTPConfig{
			Host:     get("SMTP_HOST", ""),
			Port:     getInt("SMTP_PORT", 587),
			User:     get("SMTP_USER", ""),
			Password: get("SMTP_PASSWORD", ""),
			From:     get("MAIL_FROM", ""),
		},
		RateLimitBurst:  getInt("RATE_LIMIT_BURST", 20),
		RateLimitPerSec: getInt("RATE_LIMIT_PER_SEC", 10),
		CORSOrigins:     splitList(get("TRANSCONECTA_CORS_ORIGINS", "")),
		Bootstrap: BootstrapConfig{
			Name:     get("BOOTSTRAP_ADMIN_NAME", "Administrador"),
			Email:    get("BOOTSTRAP_ADMIN_EMAIL", ""),
			Password: get("BOOTSTRAP_ADMIN_PASSWORD", ""),
		},
	}

	if raw := get("TRANSCONECTA_TOKEN_TTL", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("TRANSCONECTA_TOKEN_TTL: invalid duration %q", raw))
		} else {
			cfg.TokenTTL = d
		}
	}

	cfg.FatigueThreshold = 8
	if raw := get("FATIGUE_THRESHOLD_HOURS", ""); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			errs = append(errs, fmt.Errorf("FATIGUE_THRESHOLD_HOURS: invalid number %q", raw))
		} else {
			cfg.FatigueThreshold = v
		}
	}

	if cfg.AuthSecret == "" {
		errs = append(errs, errors.New("TRANSCONECTA_AUTH_SECRET is required"))
	}
	if cfg.RateLimitBurst == 0 || cfg.RateLimitPerSec == 0 {
		errs = append(errs, errors.New("rate limit burst and rate must be positive"))
	}
	return cfg, errors.Join(errs...)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
