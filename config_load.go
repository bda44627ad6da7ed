package campusAuth

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileExtras holds the settings that have no direct TOML representation on
// Config: expiry strings and key material.
type fileExtras struct {
	JWT struct {
		AccessTTL      string `toml:"access_ttl"`
		Leeway         string `toml:"leeway"`
		Secret         string `toml:"secret"`
		PrivateKeyFile string `toml:"private_key_file"`
		PublicKeyFile  string `toml:"public_key_file"`
	} `toml:"jwt"`
	Refresh struct {
		TTL       string `toml:"ttl"`
		Retention string `toml:"retention"`
	} `toml:"refresh"`
	Lockout struct {
		Duration string `toml:"duration"`
	} `toml:"lockout"`
	TwoFactor struct {
		Cooldown string `toml:"cooldown"`
	} `toml:"two_factor"`
	PasswordReset struct {
		TTL           string `toml:"ttl"`
		RequestWindow string `toml:"request_window"`
	} `toml:"password_reset"`
}

// LoadConfig reads a TOML file over DefaultConfig, applies CAMPUSAUTH_*
// environment overrides and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := DecodeConfig(&cfg, string(data)); err != nil {
		return Config{}, err
	}
	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	slog.Info("config loaded", "path", path, "signing_method", cfg.JWT.SigningMethod, "database", cfg.Database.Driver)
	return cfg, nil
}

// DecodeConfig overlays the TOML document onto cfg. Keys absent from the
// document leave cfg untouched.
func DecodeConfig(cfg *Config, doc string) error {
	if _, err := toml.Decode(doc, cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	var extras fileExtras
	md, err := toml.Decode(doc, &extras)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	durations := []struct {
		key []string
		raw string
		dst *time.Duration
	}{
		{[]string{"jwt", "access_ttl"}, extras.JWT.AccessTTL, &cfg.JWT.AccessTTL},
		{[]string{"jwt", "leeway"}, extras.JWT.Leeway, &cfg.JWT.Leeway},
		{[]string{"refresh", "ttl"}, extras.Refresh.TTL, &cfg.Refresh.TTL},
		{[]string{"refresh", "retention"}, extras.Refresh.Retention, &cfg.Refresh.Retention},
		{[]string{"lockout", "duration"}, extras.Lockout.Duration, &cfg.Lockout.Duration},
		{[]string{"two_factor", "cooldown"}, extras.TwoFactor.Cooldown, &cfg.TwoFactor.Cooldown},
		{[]string{"password_reset", "ttl"}, extras.PasswordReset.TTL, &cfg.PasswordReset.TTL},
		{[]string{"password_reset", "request_window"}, extras.PasswordReset.RequestWindow, &cfg.PasswordReset.RequestWindow},
	}
	for _, d := range durations {
		if !md.IsDefined(d.key...) {
			continue
		}
		v, err := ParseExpiry(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", strings.Join(d.key, "."), err)
		}
		*d.dst = v
	}

	if md.IsDefined("jwt", "secret") {
		key, err := decodeSecret(extras.JWT.Secret)
		if err != nil {
			return err
		}
		cfg.JWT.PrivateKey = key
	}
	if extras.JWT.PrivateKeyFile != "" {
		key, err := os.ReadFile(extras.JWT.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("%w: read private key: %v", ErrConfigInvalid, err)
		}
		cfg.JWT.PrivateKey = key
	}
	if extras.JWT.PublicKeyFile != "" {
		key, err := os.ReadFile(extras.JWT.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("%w: read public key: %v", ErrConfigInvalid, err)
		}
		cfg.JWT.PublicKey = key
	}
	return nil
}

// decodeSecret accepts "base64:<data>" or a raw string.
func decodeSecret(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, "base64:"); ok {
		key, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: jwt secret: %v", ErrConfigInvalid, err)
		}
		return key, nil
	}
	return []byte(s), nil
}

// ApplyEnvOverrides applies environment variables on top of cfg.
//
// Supported environment variables:
//   - CAMPUSAUTH_JWT_SECRET: HS256 key, raw or "base64:<data>"
//   - CAMPUSAUTH_ACCESS_TTL, CAMPUSAUTH_REFRESH_TTL: expiry strings
//   - CAMPUSAUTH_REDIS_ADDR, CAMPUSAUTH_REDIS_PASSWORD, CAMPUSAUTH_REDIS_DB
//   - CAMPUSAUTH_DATABASE_DRIVER, CAMPUSAUTH_DATABASE_DSN
//   - CAMPUSAUTH_LISTEN_ADDR
//   - CAMPUSAUTH_LOG_LEVEL
//   - CAMPUSAUTH_METRICS: "1" or "true" enables counters
func ApplyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("CAMPUSAUTH_JWT_SECRET"); v != "" {
		key, err := decodeSecret(v)
		if err != nil {
			return err
		}
		cfg.JWT.PrivateKey = key
	}
	if v := os.Getenv("CAMPUSAUTH_ACCESS_TTL"); v != "" {
		d, err := ParseExpiry(v)
		if err != nil {
			return fmt.Errorf("CAMPUSAUTH_ACCESS_TTL: %w", err)
		}
		cfg.JWT.AccessTTL = d
	}
	if v := os.Getenv("CAMPUSAUTH_REFRESH_TTL"); v != "" {
		d, err := ParseExpiry(v)
		if err != nil {
			return fmt.Errorf("CAMPUSAUTH_REFRESH_TTL: %w", err)
		}
		cfg.Refresh.TTL = d
	}
	if v := os.Getenv("CAMPUSAUTH_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CAMPUSAUTH_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CAMPUSAUTH_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: CAMPUSAUTH_REDIS_DB: %v", ErrConfigInvalid, err)
		}
		cfg.Redis.DB = db
	}
	if v := os.Getenv("CAMPUSAUTH_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("CAMPUSAUTH_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("CAMPUSAUTH_LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CAMPUSAUTH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CAMPUSAUTH_METRICS"); v != "" {
		cfg.Metrics.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}
