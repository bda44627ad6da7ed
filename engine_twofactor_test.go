package campusAuth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/MrEthical07/campusAuth/model"
	"github.com/MrEthical07/campusAuth/session"
)

func currentCode(t *testing.T, env *testEnv, secret string) string {
	t.Helper()
	code, err := env.engine.totp.Code(secret, env.clock.Now())
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	return code
}

// wrongCode returns a six digit code that differs from code in every digit.
func wrongCode(code string) string {
	out := []byte(code)
	for i, c := range out {
		out[i] = '0' + (c-'0'+5)%10
	}
	return string(out)
}

func enableTwoFactor(t *testing.T, env *testEnv, userID string) *TwoFactorSetup {
	t.Helper()
	ctx := context.Background()
	setup, err := env.engine.EnrollTwoFactor(ctx, userID)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if err := env.engine.EnableTwoFactor(ctx, userID, currentCode(t, env, setup.Secret)); err != nil {
		t.Fatalf("enable: %v", err)
	}
	return setup
}

func TestEnrollTwoFactor(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u-adm", "root", model.RoleAdmin)
	ctx := context.Background()

	setup, err := env.engine.EnrollTwoFactor(ctx, "u-adm")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if setup.Secret == "" || !strings.HasPrefix(setup.OTPAuthURI, "otpauth://totp/") {
		t.Fatalf("unexpected setup %+v", setup)
	}
	if !strings.HasPrefix(setup.QRCodeDataURI, "data:image/png;base64,") {
		t.Fatalf("expected PNG data URI, got %.40q", setup.QRCodeDataURI)
	}
	if len(setup.BackupCodes) != 10 {
		t.Fatalf("expected 10 backup codes, got %d", len(setup.BackupCodes))
	}
	for _, c := range setup.BackupCodes {
		if len(c) != 8 || strings.ToUpper(c) != c {
			t.Fatalf("backup code %q is not 8 uppercase hex chars", c)
		}
	}

	status, err := env.engine.TwoFactorStatus(ctx, "u-adm")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Enrolled || status.Enabled {
		t.Fatalf("expected enrolled and disabled, got %+v", status)
	}

	_, err = env.engine.EnrollTwoFactor(ctx, "u-adm")
	if !errors.Is(err, ErrTwoFactorAlreadyEnrolled) || KindOf(err) != KindConflict {
		t.Fatalf("expected already enrolled conflict, got %v", err)
	}
}

func TestTwoFactorStateTransitions(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u-adm", "root", model.RoleAdmin)
	ctx := context.Background()

	status, err := env.engine.TwoFactorStatus(ctx, "u-adm")
	if err != nil || status.Enrolled || status.Enabled {
		t.Fatalf("expected empty status, got %+v, %v", status, err)
	}

	err = env.engine.EnableTwoFactor(ctx, "u-adm", "123456")
	if !errors.Is(err, ErrTwoFactorNotEnrolled) || KindOf(err) != KindValidation {
		t.Fatalf("expected not enrolled, got %v", err)
	}

	setup, err := env.engine.EnrollTwoFactor(ctx, "u-adm")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	code := currentCode(t, env, setup.Secret)

	err = env.engine.EnableTwoFactor(ctx, "u-adm", wrongCode(code))
	if !errors.Is(err, ErrTwoFactorCodeInvalid) || KindOf(err) != KindAuthentication {
		t.Fatalf("expected invalid code, got %v", err)
	}
	if err := env.engine.EnableTwoFactor(ctx, "u-adm", code); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := env.engine.EnableTwoFactor(ctx, "u-adm", code); !errors.Is(err, ErrTwoFactorAlreadyEnabled) {
		t.Fatalf("expected already enabled, got %v", err)
	}

	if err := env.engine.DisableTwoFactor(ctx, "u-adm", code); err != nil {
		t.Fatalf("disable: %v", err)
	}
	status, _ = env.engine.TwoFactorStatus(ctx, "u-adm")
	if !status.Enrolled || status.Enabled {
		t.Fatalf("expected enrolled and disabled after disable, got %+v", status)
	}
	if err := env.engine.DisableTwoFactor(ctx, "u-adm", code); !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("expected not enabled, got %v", err)
	}
}

func TestAdminLoginRequiresSecondFactor(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u-adm", "root", model.RoleAdmin)
	setup := enableTwoFactor(t, env, "u-adm")
	ctx := context.Background()

	challenge, err := env.engine.LoginWithPassword(ctx, "root", testPassword, "10.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !challenge.Requires2FA || challenge.AccessToken != "" || challenge.RefreshToken != "" {
		t.Fatalf("expected a 2FA challenge without tokens, got %+v", challenge)
	}
	if challenge.User.ID != "u-adm" {
		t.Fatalf("expected user summary in challenge, got %+v", challenge.User)
	}

	res, err := env.engine.VerifyTwoFactorAndLogin(ctx, "u-adm", currentCode(t, env, setup.Secret), "10.0.0.1")
	if err != nil {
		t.Fatalf("verify and login: %v", err)
	}
	if res.Requires2FA || res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("expected full tokens, got %+v", res)
	}
	if !hasEvent(env.drainEvents(), auditEventTwoFactorRequired) {
		t.Fatalf("expected two_factor_required audit event")
	}
}

func TestAdminWithoutTwoFactorLogsInDirectly(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u-adm", "root", model.RoleAdmin)

	res, err := env.engine.LoginWithPassword(context.Background(), "root", testPassword, "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Requires2FA || res.AccessToken == "" {
		t.Fatalf("expected tokens for admin without 2FA, got %+v", res)
	}
}

func TestVerifyTwoFactorAndLoginRejectsUsersWithoutTwoFactor(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u-stu", "sam", model.RoleStudent)
	ctx := context.Background()

	for _, userID := range []string{"u-stu", "ghost"} {
		_, err := env.engine.VerifyTwoFactorAndLogin(ctx, userID, "123456", "")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", userID, err)
		}
	}
}

func TestVerifyTwoFactorAndLoginWrongCode(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u-adm", "root", model.RoleAdmin)
	setup := enableTwoFactor(t, env, "u-adm")

	_, err := env.engine.VerifyTwoFactorAndLogin(context.Background(), "u-adm", wrongCode(currentCode(t, env, setup.Secret)), "")
	if KindOf(err) != KindAuthentication {
		t.Fatalf("expected authentication failure, got %v", err)
	}
}

func TestBackupCodesAreSingleUse(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u-adm", "root", model.RoleAdmin)
	setup := enableTwoFactor(t, env, "u-adm")
	ctx := context.Background()

	code := setup.BackupCodes[3]
	if err := env.engine.VerifyTwoFactor(ctx, "u-adm", code); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if err := env.engine.VerifyTwoFactor(ctx, "u-adm", code); !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("expected reused backup code to fail, got %v", err)
	}
	if err := env.engine.VerifyTwoFactor(ctx, "u-adm", strings.ToLower(setup.BackupCodes[4])); !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("backup codes compare exactly, got %v", err)
	}
	if err := env.engine.VerifyTwoFactor(ctx, "u-adm", "12345"); !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("expected odd-length code to fail, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricBackupCodeUsed]; got != 1 {
		t.Fatalf("expected one backup code metric, got %d", got)
	}
}

func TestVerifyTwoFactorPassesWhenDisabled(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u-stu", "sam", model.RoleStudent)

	if err := env.engine.VerifyTwoFactor(context.Background(), "u-stu", "anything"); err != nil {
		t.Fatalf("expected trivial success without 2FA, got %v", err)
	}
}

func TestTwoFactorRateLimited(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u-adm", "root", model.RoleAdmin)
	setup := enableTwoFactor(t, env, "u-adm")
	ctx := context.Background()

	good := currentCode(t, env, setup.Secret)
	for i := 0; i < 5; i++ {
		if err := env.engine.VerifyTwoFactor(ctx, "u-adm", wrongCode(good)); !errors.Is(err, ErrTwoFactorCodeInvalid) {
			t.Fatalf("attempt %d: expected invalid code, got %v", i+1, err)
		}
	}
	err := env.engine.VerifyTwoFactor(ctx, "u-adm", good)
	if !errors.Is(err, ErrTwoFactorRateLimited) || KindOf(err) != KindAuthentication {
		t.Fatalf("expected rate limited, got %v", err)
	}
}

func TestRegenerateBackupCodes(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u-adm", "root", model.RoleAdmin)
	setup := enableTwoFactor(t, env, "u-adm")
	ctx := context.Background()

	codes, err := env.engine.RegenerateBackupCodes(ctx, "u-adm", currentCode(t, env, setup.Secret))
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(codes))
	}
	if err := env.engine.VerifyTwoFactor(ctx, "u-adm", setup.BackupCodes[0]); !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("old backup code must be gone, got %v", err)
	}
	if err := env.engine.VerifyTwoFactor(ctx, "u-adm", codes[0]); err != nil {
		t.Fatalf("new backup code: %v", err)
	}
}

// interleavedTwoFactor runs afterFind once, right after the next read, to
// model a request that lands between a caller's read and its write.
type interleavedTwoFactor struct {
	TwoFactorRepository
	mu        sync.Mutex
	afterFind func()
}

func (r *interleavedTwoFactor) FindByUserID(ctx context.Context, userID string) (*model.TwoFactorRecord, error) {
	rec, err := r.TwoFactorRepository.FindByUserID(ctx, userID)
	r.mu.Lock()
	hook := r.afterFind
	r.afterFind = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return rec, err
}

func TestBackupCodeConsumedDuringDisableStaysConsumed(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedUser(t, "u-adm", "root", model.RoleAdmin)
	ctx := context.Background()

	repo := &interleavedTwoFactor{TwoFactorRepository: session.NewTwoFactorStore(env.rdb, testConfig().Redis.Prefix)}
	engine, err := New().
		WithConfig(testConfig()).
		WithUsers(env.users).
		WithRedis(env.rdb).
		WithTwoFactor(repo).
		WithClock(env.clock).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	setup, err := engine.EnrollTwoFactor(ctx, "u-adm")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	code := currentCode(t, env, setup.Secret)
	if err := engine.EnableTwoFactor(ctx, "u-adm", code); err != nil {
		t.Fatalf("enable: %v", err)
	}

	backup := setup.BackupCodes[0]
	repo.mu.Lock()
	repo.afterFind = func() {
		if err := engine.VerifyTwoFactor(ctx, "u-adm", backup); err != nil {
			t.Errorf("backup code use during disable: %v", err)
		}
	}
	repo.mu.Unlock()

	if err := engine.DisableTwoFactor(ctx, "u-adm", code); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := engine.EnableTwoFactor(ctx, "u-adm", code); err != nil {
		t.Fatalf("re-enable: %v", err)
	}

	if err := engine.VerifyTwoFactor(ctx, "u-adm", backup); !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("consumed backup code must stay consumed, got %v", err)
	}
	if err := engine.VerifyTwoFactor(ctx, "u-adm", setup.BackupCodes[1]); err != nil {
		t.Fatalf("untouched backup code: %v", err)
	}
}
