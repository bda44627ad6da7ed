package campusAuth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/campusAuth/internal/audit"
	"github.com/MrEthical07/campusAuth/internal/flows"
	"github.com/MrEthical07/campusAuth/internal/limiters"
	"github.com/MrEthical07/campusAuth/internal/stores"
	"github.com/MrEthical07/campusAuth/jwt"
	"github.com/MrEthical07/campusAuth/model"
	"github.com/MrEthical07/campusAuth/ownership"
	"github.com/MrEthical07/campusAuth/password"
	"github.com/MrEthical07/campusAuth/permission"
	"github.com/MrEthical07/campusAuth/refresh"
	"github.com/MrEthical07/campusAuth/twofactor"
	"github.com/google/uuid"
)

// Engine is the identity and access core. Build one with New().Build().
//
// Engine instances are immutable after Build and safe for concurrent use.
type Engine struct {
	config      Config
	registry    *permission.Registry
	roleManager *permission.RoleManager

	users     UserRepository
	tokens    RefreshTokenRepository
	twoFactor TwoFactorRepository
	relations ownership.Relations
	resolver  *ownership.Resolver
	mailer    Mailer

	lockout          *limiters.AccountLockout
	twoFactorLimiter *limiters.TwoFactorLimiter
	resetLimiter     *limiters.PasswordResetLimiter
	resetStore       *stores.PasswordResetStore

	hasher     *password.Chain
	policy     password.Policy
	dummyHash  string
	jwtManager *jwt.Manager
	totp       *twofactor.TOTP

	requiredRoles map[model.Role]struct{}

	audit     *internalaudit.Dispatcher
	auditSink AuditSink
	metrics   *Metrics
	logger    *slog.Logger
	clock     Clock
	random    io.Reader
}

// Close flushes the audit dispatcher, if one is running.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped is the number of events discarded because the audit buffer
// was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.users == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}
	return nil
}

// ValidateCredentials checks a username and password and applies lockout.
//
// Unknown users and wrong passwords both return ErrInvalidCredentials. A
// locked account returns *LockoutError without checking the password.
func (e *Engine) ValidateCredentials(ctx context.Context, username, pw, ip string) (*model.User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ip = resolveIP(ctx, ip)

	res := flows.RunValidateCredentials(ctx, username, pw, ip, flows.CredentialDeps{
		FindUser:         e.users.FindByUsername,
		IsLocked:         e.lockout.IsLocked,
		RemainingLockout: e.lockout.RemainingLockout,
		VerifyPassword:   e.hasher.Verify,
		RecordFailure:    e.lockout.RecordFailure,
		RecordSuccess:    e.lockout.RecordSuccess,
		DummyHash:        e.dummyHash,
		NotFound:         model.ErrNotFound,
	})

	switch res.Failure {
	case flows.CredentialFailureNone:
		return res.User, nil
	case flows.CredentialFailureUnknownUser:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ip, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "unknown_user"}
		})
		return nil, ErrInvalidCredentials
	case flows.CredentialFailureMismatch:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.User.ID, res.User.ID, ip, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "password_mismatch"}
		})
		return nil, ErrInvalidCredentials
	case flows.CredentialFailureLocked:
		e.metricInc(MetricLoginLocked)
		lockErr := &LockoutError{Remaining: res.Remaining}
		e.emitAudit(ctx, auditEventLoginFailure, false, res.User.ID, res.User.ID, ip, lockErr, nil)
		return nil, lockErr
	case flows.CredentialFailureVerify:
		// A hash we cannot parse is a broken row, not a wrong password.
		e.metricInc(MetricLoginFailure)
		e.logger.Error("password verify failed", "user_id", res.User.ID, "error", res.Err)
		return nil, ErrInvalidCredentials
	default:
		e.logger.Error("credential check failed", "error", res.Err)
		return nil, storeErr(res.Err)
	}
}

// Login issues a session for a user that has already passed
// ValidateCredentials. Users whose role requires a second factor and who
// have it enabled get Requires2FA instead of tokens.
func (e *Engine) Login(ctx context.Context, user *model.User, ip string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	ip = resolveIP(ctx, ip)

	required, err := e.twoFactorRequired(ctx, user)
	if err != nil {
		return nil, err
	}
	if required {
		e.metricInc(MetricTwoFactorRequired)
		e.emitAudit(ctx, auditEventTwoFactorRequired, true, user.ID, user.ID, ip, nil, nil)
		return &LoginResult{Requires2FA: true, User: user.Summary()}, nil
	}

	return e.issueSession(ctx, user, ip)
}

// LoginWithPassword chains ValidateCredentials and Login.
func (e *Engine) LoginWithPassword(ctx context.Context, username, pw, ip string) (*LoginResult, error) {
	user, err := e.ValidateCredentials(ctx, username, pw, ip)
	if err != nil {
		return nil, err
	}
	return e.Login(ctx, user, ip)
}

// VerifyTwoFactorAndLogin completes a login that returned Requires2FA.
//
// The user must have 2FA enabled: the code stands in for nothing else, so a
// user without an enabled second factor gets ErrInvalidCredentials rather
// than a session. Locked accounts stay locked.
func (e *Engine) VerifyTwoFactorAndLogin(ctx context.Context, userID, code, ip string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ip = resolveIP(ctx, ip)

	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, storeErr(err)
	}

	locked, err := e.lockout.IsLocked(ctx, user)
	if err != nil {
		return nil, storeErr(err)
	}
	if locked {
		e.metricInc(MetricLoginLocked)
		return nil, &LockoutError{Remaining: e.lockout.RemainingLockout(user)}
	}

	rec, err := e.twoFactor.FindByUserID(ctx, userID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, storeErr(err)
	}
	if rec == nil || !rec.Enabled {
		return nil, ErrInvalidCredentials
	}

	if err := e.VerifyTwoFactor(ctx, userID, code); err != nil {
		return nil, err
	}
	return e.issueSession(ctx, user, ip)
}

// ValidateAccess verifies an access token and returns its principal.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (model.Principal, error) {
	if err := e.ready(); err != nil {
		return model.Principal{}, err
	}
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	role := model.Role(claims.Role)
	if claims.UID == "" || !role.Valid() {
		return model.Principal{}, ErrTokenInvalid
	}
	return model.Principal{UserID: claims.UID, Username: claims.Username, Role: role}, nil
}

func (e *Engine) twoFactorRequired(ctx context.Context, user *model.User) (bool, error) {
	if _, ok := e.requiredRoles[user.Role]; !ok {
		return false, nil
	}
	rec, err := e.twoFactor.FindByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, storeErr(err)
	}
	return rec.Enabled, nil
}

// issueSession mints the access token and a fresh refresh token.
func (e *Engine) issueSession(ctx context.Context, user *model.User, ip string) (*LoginResult, error) {
	access, err := e.jwtManager.CreateAccess(user.ID, user.Username, string(user.Role))
	if err != nil {
		e.emitAudit(ctx, auditEventSessionIssued, false, user.ID, user.ID, ip, ErrSessionCreationFailed, nil)
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	token, row, err := e.issueRefresh(ctx, user.ID, ip)
	if err != nil {
		e.emitAudit(ctx, auditEventSessionIssued, false, user.ID, user.ID, ip, ErrSessionCreationFailed, nil)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionIssued, true, user.ID, user.ID, ip, nil, func() map[string]string {
		return map[string]string{"token_id": row.ID}
	})

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: token,
		ExpiresIn:    int64(e.jwtManager.TTL() / time.Second),
		User:         user.Summary(),
	}, nil
}

// issueRefresh stores a new row and returns its bearer string. Only the
// SHA-256 of the secret is persisted.
func (e *Engine) issueRefresh(ctx context.Context, userID, ip string) (string, *model.RefreshToken, error) {
	id, err := uuid.NewRandomFromReader(e.random)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}
	secret, err := refresh.NewSecret(e.random, e.config.Refresh.SecretBytes)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	now := e.clock.Now()
	row := &model.RefreshToken{
		ID:          id.String(),
		UserID:      userID,
		TokenHash:   refresh.Hash(secret),
		ExpiresAt:   now.Add(e.config.Refresh.TTL),
		CreatedAt:   now,
		CreatedByIP: ip,
	}
	if err := e.tokens.Save(ctx, row); err != nil {
		e.logger.Error("refresh token save failed", "user_id", userID, "error", err)
		return "", nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}
	return refresh.Encode(row.ID, secret), row, nil
}
