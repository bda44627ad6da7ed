package campusAuth

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/campusAuth/model"
	"github.com/MrEthical07/campusAuth/password"
	"github.com/MrEthical07/campusAuth/refresh"
)

// Config is the complete engine configuration. Durations are plain
// time.Duration values; in TOML files they are written as expiry strings
// ("15m", "7d") and parsed with ParseExpiry.
type Config struct {
	JWT           JWTConfig           `toml:"jwt"`
	Refresh       RefreshConfig       `toml:"refresh"`
	Password      PasswordConfig      `toml:"password"`
	Lockout       LockoutConfig       `toml:"lockout"`
	TwoFactor     TwoFactorConfig     `toml:"two_factor"`
	PasswordReset PasswordResetConfig `toml:"password_reset"`
	Audit         AuditConfig         `toml:"audit"`
	Metrics       MetricsConfig       `toml:"metrics"`
	Redis         RedisConfig         `toml:"redis"`
	Database      DatabaseConfig      `toml:"database"`
	Server        ServerConfig        `toml:"server"`
	LogLevel      string              `toml:"log_level"`
}

/*
====================================
JWT CONFIG
====================================
*/

type JWTConfig struct {
	AccessTTL     time.Duration `toml:"-"`
	SigningMethod string        `toml:"signing_method"` // "hs256" (default) or "ed25519"
	PrivateKey    []byte        `toml:"-"`
	PublicKey     []byte        `toml:"-"`
	Issuer        string        `toml:"issuer"`
	Audience      string        `toml:"audience"`
	Leeway        time.Duration `toml:"-"`
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh-token issuance. Rows are kept forever by
// default. A positive Retention (the "retention" key, an expiry string) lets
// the Redis store drop a row that long after its ExpiresAt.
type RefreshConfig struct {
	TTL         time.Duration `toml:"-"`
	SecretBytes int           `toml:"secret_bytes"`
	Retention   time.Duration `toml:"-"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Algorithm        string `toml:"algorithm"` // "bcrypt" (default) or "argon2id"
	BcryptCost       int    `toml:"bcrypt_cost"`
	Memory           uint32 `toml:"argon2_memory_kb"`
	Time             uint32 `toml:"argon2_time"`
	Parallelism      uint8  `toml:"argon2_parallelism"`
	SaltLength       uint32 `toml:"argon2_salt_length"`
	KeyLength        uint32 `toml:"argon2_key_length"`
	MinLength        int    `toml:"min_length"`
	MaxLength        int    `toml:"max_length"`
	RequireUppercase bool   `toml:"require_uppercase"`
	RequireLowercase bool   `toml:"require_lowercase"`
	RequireDigit     bool   `toml:"require_digit"`
	RequireSpecial   bool   `toml:"require_special"`
}

// Policy returns the password policy described by c.
func (c PasswordConfig) Policy() password.Policy {
	return password.Policy{
		MinLength:        c.MinLength,
		MaxLength:        c.MaxLength,
		RequireUppercase: c.RequireUppercase,
		RequireLowercase: c.RequireLowercase,
		RequireDigit:     c.RequireDigit,
		RequireSpecial:   c.RequireSpecial,
	}
}

type LockoutConfig struct {
	MaxFailedAttempts int           `toml:"max_failed_attempts"`
	Duration          time.Duration `toml:"-"`
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig controls TOTP. RequiredRoles lists the roles whose login
// stops at the second-factor gate once they have 2FA enabled.
type TwoFactorConfig struct {
	Issuer          string        `toml:"issuer"`
	Period          int           `toml:"period"`
	Skew            int           `toml:"skew"`
	QRSize          int           `toml:"qr_size"`
	BackupCodeCount int           `toml:"backup_code_count"`
	RequiredRoles   []string      `toml:"required_roles"`
	MaxAttempts     int           `toml:"max_attempts"`
	Cooldown        time.Duration `toml:"-"`
}

// PasswordResetConfig controls the reset challenge. Link is a format string
// with one %s verb for the token; when empty the bare token is mailed.
type PasswordResetConfig struct {
	TTL           time.Duration `toml:"-"`
	MaxAttempts   int           `toml:"max_attempts"`
	MaxRequests   int           `toml:"max_requests"`
	RequestWindow time.Duration `toml:"-"`
	Subject       string        `toml:"subject"`
	Link          string        `toml:"link"`
}

type AuditConfig struct {
	Enabled    bool `toml:"enabled"`
	BufferSize int  `toml:"buffer_size"`
	DropIfFull bool `toml:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `toml:"enabled"`
	EnableLatencyHistograms bool `toml:"latency_histograms"`
}

// RedisConfig addresses the Redis instance backing refresh tokens, 2FA state
// and the limiters. An empty Addr makes the demo server start miniredis.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// DatabaseConfig selects the SQL backend for users, relations and, when
// Redis is not used, refresh tokens. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration that only lacks a signing key.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
			Issuer:        "campusAuth",
		},
		Refresh: RefreshConfig{
			TTL:         7 * 24 * time.Hour,
			SecretBytes: refresh.MinSecretBytes,
		},
		Password: PasswordConfig{
			Algorithm:        "bcrypt",
			BcryptCost:       12,
			Memory:           64 * 1024,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MinLength:        8,
			MaxLength:        128,
			RequireUppercase: true,
			RequireLowercase: true,
			RequireDigit:     true,
			RequireSpecial:   true,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			Duration:          15 * time.Minute,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:          "campusAuth",
			Period:          30,
			Skew:            1,
			QRSize:          256,
			BackupCodeCount: 10,
			RequiredRoles:   []string{string(model.RoleAdmin)},
			MaxAttempts:     5,
			Cooldown:        time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			TTL:           time.Hour,
			MaxAttempts:   5,
			MaxRequests:   3,
			RequestWindow: time.Hour,
			Subject:       "Password reset",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Redis: RedisConfig{
			Prefix: "campus",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "campus.db",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		LogLevel: "info",
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.TwoFactor.RequiredRoles != nil {
		out.TwoFactor.RequiredRoles = append([]string(nil), cfg.TwoFactor.RequiredRoles...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfigInvalid, fmt.Sprintf(format, args...))
}

// Validate rejects configurations the engine cannot run safely. Every error
// wraps ErrConfigInvalid.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return invalid("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return invalid("hs256 requires a key of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return invalid("ed25519 requires PrivateKey and PublicKey")
		}
	default:
		return invalid("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return invalid("JWT Leeway must be between 0 and 2m")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return invalid("Refresh TTL must be > 0")
	}
	if c.Refresh.SecretBytes < refresh.MinSecretBytes {
		return invalid("Refresh SecretBytes must be >= %d", refresh.MinSecretBytes)
	}
	if c.Refresh.Retention < 0 {
		return invalid("Refresh Retention must be >= 0")
	}

	// Password
	switch c.Password.Algorithm {
	case "bcrypt":
		if c.Password.BcryptCost != 0 && (c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31) {
			return invalid("Password BcryptCost must be between 4 and 31")
		}
	case "argon2id":
		if c.Password.Memory < 8*1024 {
			return invalid("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 || c.Password.Parallelism < 1 {
			return invalid("Password Time and Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
			return invalid("Password SaltLength and KeyLength must be >= 16")
		}
	default:
		return invalid("unsupported password algorithm %q", c.Password.Algorithm)
	}
	if err := c.Password.Policy().Check(); err != nil {
		return invalid("%v", err)
	}

	// Lockout
	if c.Lockout.MaxFailedAttempts <= 0 {
		return invalid("Lockout MaxFailedAttempts must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return invalid("Lockout Duration must be > 0")
	}

	// Two-factor
	if c.TwoFactor.Issuer == "" {
		return invalid("TwoFactor Issuer is required")
	}
	if strings.Contains(c.TwoFactor.Issuer, ":") {
		return invalid("TwoFactor Issuer must not contain ':'")
	}
	if c.TwoFactor.Period < 15 {
		return invalid("TwoFactor Period must be >= 15 seconds")
	}
	if c.TwoFactor.Skew < 0 || c.TwoFactor.Skew > 2 {
		return invalid("TwoFactor Skew must be between 0 and 2")
	}
	if c.TwoFactor.BackupCodeCount <= 0 {
		return invalid("TwoFactor BackupCodeCount must be > 0")
	}
	if c.TwoFactor.MaxAttempts <= 0 || c.TwoFactor.Cooldown <= 0 {
		return invalid("TwoFactor MaxAttempts and Cooldown must be > 0")
	}
	for _, r := range c.TwoFactor.RequiredRoles {
		if !model.Role(r).Valid() {
			return invalid("TwoFactor RequiredRoles contains unknown role %q", r)
		}
	}

	// Password reset
	if c.PasswordReset.TTL <= 0 {
		return invalid("PasswordReset TTL must be > 0")
	}
	if c.PasswordReset.MaxAttempts <= 0 {
		return invalid("PasswordReset MaxAttempts must be > 0")
	}
	if c.PasswordReset.MaxRequests > 0 && c.PasswordReset.RequestWindow <= 0 {
		return invalid("PasswordReset RequestWindow must be > 0 when MaxRequests is set")
	}
	if c.PasswordReset.Link != "" && strings.Count(c.PasswordReset.Link, "%s") != 1 {
		return invalid("PasswordReset Link must contain exactly one %%s")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalid("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Redis.Prefix == "" {
		return invalid("Redis Prefix is required")
	}
	switch c.Database.Driver {
	case "", "sqlite", "postgres":
	default:
		return invalid("unsupported database driver %q", c.Database.Driver)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// ParseExpiry parses "<n><unit>" where unit is s, m, h, d or w. It fails
// closed: an empty string, a missing or unknown unit, and a non-positive
// count are all rejected.
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, invalid("expiry %q must be <n><s|m|h|d|w>", s)
	}

	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, invalid("expiry %q has unknown unit", s)
	}

	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil || n <= 0 {
		return 0, invalid("expiry %q must have a positive count", s)
	}
	if n > int64((1<<63-1)/unit) {
		return 0, invalid("expiry %q overflows", s)
	}
	return time.Duration(n) * unit, nil
}

// ParseLogLevel maps "debug", "info", "warn" and "error" to slog levels.
// Empty means info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, invalid("unknown log level %q", s)
	}
}
