package campusAuth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/campusAuth/internal/audit"
	"github.com/MrEthical07/campusAuth/internal/limiters"
	"github.com/MrEthical07/campusAuth/internal/stores"
	"github.com/MrEthical07/campusAuth/jwt"
	"github.com/MrEthical07/campusAuth/model"
	"github.com/MrEthical07/campusAuth/ownership"
	"github.com/MrEthical07/campusAuth/password"
	"github.com/MrEthical07/campusAuth/permission"
	"github.com/MrEthical07/campusAuth/session"
	"github.com/MrEthical07/campusAuth/twofactor"
	"github.com/redis/go-redis/v9"
)

// Builder collects the engine's collaborators. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     UserRepository
	tokens    RefreshTokenRepository
	twoFactor TwoFactorRepository
	relations ownership.Relations
	mailer    Mailer

	permissions []string
	roles       map[string][]string

	auditSink AuditSink
	logger    *slog.Logger
	clock     Clock
	random    io.Reader

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used for the default refresh-token and
// two-factor repositories, the attempt limiters and password reset.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUsers(users UserRepository) *Builder {
	b.users = users
	return b
}

// WithRefreshTokens overrides the Redis refresh-token store, for example
// with the SQL repository from package store.
func (b *Builder) WithRefreshTokens(tokens RefreshTokenRepository) *Builder {
	b.tokens = tokens
	return b
}

func (b *Builder) WithTwoFactor(repo TwoFactorRepository) *Builder {
	b.twoFactor = repo
	return b
}

// WithRelations enables Authorize.
func (b *Builder) WithRelations(rel ownership.Relations) *Builder {
	b.relations = rel
	return b
}

// WithMailer enables password reset.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithPermissions registers the permission names roles may refer to.
func (b *Builder) WithPermissions(perms []string) *Builder {
	b.permissions = perms
	return b
}

// WithRoles maps non-admin roles to their permissions. Admin is always a
// superuser.
func (b *Builder) WithRoles(r map[string][]string) *Builder {
	b.roles = r
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithRandom replaces crypto/rand.Reader as the source of secrets, backup
// codes and token ids.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, errors.New("user repository required")
	}

	tokens := b.tokens
	twoFactorRepo := b.twoFactor
	if b.redis != nil {
		if tokens == nil {
			tokens = session.NewStore(b.redis, cfg.Redis.Prefix, cfg.Refresh.Retention)
		}
		if twoFactorRepo == nil {
			twoFactorRepo = session.NewTwoFactorStore(b.redis, cfg.Redis.Prefix)
		}
	}
	if tokens == nil {
		return nil, errors.New("refresh token repository or redis client required")
	}
	if twoFactorRepo == nil {
		return nil, errors.New("two-factor repository or redis client required")
	}

	// -------- PERMISSION REGISTRY --------
	registry := permission.NewRegistry()
	for _, p := range b.permissions {
		if _, err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	// -------- ROLE MANAGER --------
	roleManager := permission.NewRoleManager(registry)
	if err := roleManager.RegisterSuperuser(string(model.RoleAdmin)); err != nil {
		return nil, err
	}
	for roleName, perms := range b.roles {
		if roleName == string(model.RoleAdmin) {
			continue
		}
		if !model.Role(roleName).Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrConfigInvalid, roleName)
		}
		if err := roleManager.RegisterRole(roleName, perms); err != nil {
			return nil, err
		}
	}
	roleManager.Freeze()

	hasher, err := newHasher(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}
	random := b.random
	if random == nil {
		random = rand.Reader
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           clock.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		users:       b.users,
		tokens:      tokens,
		twoFactor:   twoFactorRepo,
		mailer:      b.mailer,
		registry:    registry,
		roleManager: roleManager,
		hasher:      hasher,
		policy:      cfg.Password.Policy(),
		jwtManager:  jm,
		clock:       clock,
		random:      random,
		logger:      logger,
		auditSink:   b.auditSink,
		metrics:     NewMetrics(cfg.Metrics),
		totp: twofactor.NewTOTP(twofactor.Config{
			Issuer: cfg.TwoFactor.Issuer,
			Period: uint(cfg.TwoFactor.Period),
			Skew:   uint(cfg.TwoFactor.Skew),
			QRSize: cfg.TwoFactor.QRSize,
		}),
		requiredRoles: make(map[model.Role]struct{}, len(cfg.TwoFactor.RequiredRoles)),
	}
	for _, r := range cfg.TwoFactor.RequiredRoles {
		engine.requiredRoles[model.Role(r)] = struct{}{}
	}
	if b.relations != nil {
		engine.resolver = ownership.NewResolver(b.relations)
		engine.relations = b.relations
	}

	engine.lockout = limiters.NewAccountLockout(limiters.LockoutConfig{
		MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
		Duration:          cfg.Lockout.Duration,
	}, limiters.LockoutHooks{
		Now:  clock.Now,
		Save: b.users.Save,
		Emit: engine.onLockoutEvent,
	})

	if b.redis != nil {
		engine.twoFactorLimiter = limiters.NewTwoFactorLimiter(b.redis, limiters.TwoFactorLimiterConfig{
			Prefix:      cfg.Redis.Prefix,
			MaxAttempts: cfg.TwoFactor.MaxAttempts,
			Cooldown:    cfg.TwoFactor.Cooldown,
		})
		engine.resetLimiter = limiters.NewPasswordResetLimiter(b.redis, limiters.PasswordResetConfig{
			Prefix:      cfg.Redis.Prefix,
			Window:      cfg.PasswordReset.RequestWindow,
			MaxRequests: cfg.PasswordReset.MaxRequests,
		})
		engine.resetStore = stores.NewPasswordResetStore(b.redis, cfg.Redis.Prefix, clock.Now)
	}

	if cfg.Audit.Enabled {
		engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			OnPanic:    engine.onAuditPanic,
		}, b.auditSink)
	}

	dummy, err := dummyHash(hasher, random)
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummy

	b.built = true
	logger.Debug("engine built",
		"signing_method", cfg.JWT.SigningMethod,
		"password_algorithm", cfg.Password.Algorithm,
		"audit_async", cfg.Audit.Enabled,
	)
	return engine, nil
}

// newHasher hashes with the configured algorithm and still verifies rows
// written under the other one.
func newHasher(cfg PasswordConfig) (*password.Chain, error) {
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	a2, err := password.NewArgon2(password.Argon2Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Algorithm == "argon2id" {
		return password.NewChain(a2, bc), nil
	}
	return password.NewChain(bc, a2), nil
}

// dummyHash is verified against when a username is unknown so the response
// time does not reveal whether the account exists.
func dummyHash(h password.Hasher, r io.Reader) (string, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("seed dummy hash: %w", err)
	}
	return h.Hash(fmt.Sprintf("%x", buf))
}
