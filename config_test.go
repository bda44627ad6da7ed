package campusAuth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseExpiry(t *testing.T) {
	valid := map[string]time.Duration{
		"30s": 30 * time.Second,
		"15m": 15 * time.Minute,
		"12h": 12 * time.Hour,
		"7d":  7 * 24 * time.Hour,
		"2w":  14 * 24 * time.Hour,
		" 1h": time.Hour,
	}
	for in, want := range valid {
		got, err := ParseExpiry(in)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: expected %s, got %s", in, want, got)
		}
	}

	for _, in := range []string{"", "m", "15", "15y", "0m", "-5m", "1.5h", "abc", "99999999999999w"} {
		if _, err := ParseExpiry(in); !errors.Is(err, ErrConfigInvalid) {
			t.Fatalf("%q: expected ErrConfigInvalid, got %v", in, err)
		}
	}
}

func TestDefaultConfigNeedsOnlyAKey(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected missing key to be rejected, got %v", err)
	}
	cfg.JWT.PrivateKey = make([]byte, 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with key: %v", err)
	}
	if cfg.Refresh.Retention != 0 {
		t.Fatalf("refresh rows must be kept forever by default, got retention %s", cfg.Refresh.Retention)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero access ttl", func(c *Config) { c.JWT.AccessTTL = 0 }},
		{"unknown signing method", func(c *Config) { c.JWT.SigningMethod = "rs256" }},
		{"ed25519 without public key", func(c *Config) { c.JWT.SigningMethod = "ed25519" }},
		{"large leeway", func(c *Config) { c.JWT.Leeway = time.Hour }},
		{"short refresh secret", func(c *Config) { c.Refresh.SecretBytes = 8 }},
		{"bcrypt cost", func(c *Config) { c.Password.BcryptCost = 40 }},
		{"argon2 memory", func(c *Config) { c.Password.Algorithm = "argon2id"; c.Password.Memory = 1024 }},
		{"unknown algorithm", func(c *Config) { c.Password.Algorithm = "md5" }},
		{"min over max", func(c *Config) { c.Password.MinLength = 200 }},
		{"lockout attempts", func(c *Config) { c.Lockout.MaxFailedAttempts = 0 }},
		{"issuer colon", func(c *Config) { c.TwoFactor.Issuer = "a:b" }},
		{"totp period", func(c *Config) { c.TwoFactor.Period = 5 }},
		{"unknown 2fa role", func(c *Config) { c.TwoFactor.RequiredRoles = []string{"janitor"} }},
		{"reset link verbs", func(c *Config) { c.PasswordReset.Link = "https://x/%s/%s" }},
		{"audit buffer", func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }},
		{"empty prefix", func(c *Config) { c.Redis.Prefix = "" }},
		{"database driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
				t.Fatalf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestDecodeConfig(t *testing.T) {
	doc := `
log_level = "debug"

[jwt]
secret = "base64:MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
access_ttl = "10m"
issuer = "school"

[refresh]
ttl = "14d"
retention = "90d"

[lockout]
max_failed_attempts = 3
duration = "1h"

[two_factor]
required_roles = ["admin", "teacher"]

[database]
driver = "postgres"
dsn = "postgres://localhost/campus"
`
	cfg := DefaultConfig()
	if err := DecodeConfig(&cfg, doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(cfg.JWT.PrivateKey) != "0123456789abcdef0123456789abcdef" {
		t.Fatalf("unexpected key %q", cfg.JWT.PrivateKey)
	}
	if cfg.JWT.AccessTTL != 10*time.Minute || cfg.Refresh.TTL != 14*24*time.Hour {
		t.Fatalf("unexpected ttls %s / %s", cfg.JWT.AccessTTL, cfg.Refresh.TTL)
	}
	if cfg.Refresh.Retention != 90*24*time.Hour {
		t.Fatalf("expected opt-in retention, got %s", cfg.Refresh.Retention)
	}
	if cfg.Lockout.MaxFailedAttempts != 3 || cfg.Lockout.Duration != time.Hour {
		t.Fatalf("unexpected lockout %+v", cfg.Lockout)
	}
	if len(cfg.TwoFactor.RequiredRoles) != 2 || cfg.JWT.Issuer != "school" {
		t.Fatalf("unexpected decode result %+v", cfg.TwoFactor)
	}
	// Untouched keys keep their defaults.
	if cfg.Password.Algorithm != "bcrypt" || cfg.PasswordReset.TTL != time.Hour {
		t.Fatalf("defaults were clobbered")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestDecodeConfigRejectsBadExpiry(t *testing.T) {
	cfg := DefaultConfig()
	err := DecodeConfig(&cfg, "[jwt]\naccess_ttl = \"15\"\n")
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid for unit-less expiry, got %v", err)
	}
	if err := DecodeConfig(&cfg, "[jwt\n"); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid for broken TOML, got %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campus.toml")
	doc := "[jwt]\nsecret = \"0123456789abcdef0123456789abcdef\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("CAMPUSAUTH_ACCESS_TTL", "5m")
	t.Setenv("CAMPUSAUTH_REDIS_ADDR", "redis:6379")
	t.Setenv("CAMPUSAUTH_METRICS", "true")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWT.AccessTTL != 5*time.Minute || cfg.Redis.Addr != "redis:6379" || !cfg.Metrics.Enabled {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}

	t.Setenv("CAMPUSAUTH_REFRESH_TTL", "forever")
	if _, err := LoadConfig(path); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected bad env expiry to fail, got %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
