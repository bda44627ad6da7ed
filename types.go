package campusAuth

import (
	"context"
	"io"
	"time"

	"github.com/MrEthical07/campusAuth/model"
)

// UserRepository is the credential store. Missing rows are model.ErrNotFound.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Save(ctx context.Context, u *model.User) error
}

// RefreshTokenRepository persists refresh-token rows.
//
// RevokeIfActive must be a single atomic conditional write: it stamps the
// revocation fields only if the row is not yet revoked and reports whether
// this call did so. It returns model.ErrNotFound for an unknown id.
type RefreshTokenRepository interface {
	FindByID(ctx context.Context, id string) (*model.RefreshToken, error)
	Save(ctx context.Context, t *model.RefreshToken) error
	RevokeIfActive(ctx context.Context, id string, at time.Time, reason, ip string) (bool, error)
}

// TwoFactorRepository persists per-user TOTP state. ConsumeBackupCode removes
// code atomically and reports whether it was present.
//
// Save writes the whole record and is used for enrollment only. SetFlags and
// ReplaceBackupCodes touch their own fields, so a code consumed concurrently
// is never written back. Both return model.ErrNotFound for a user without a
// record.
type TwoFactorRepository interface {
	FindByUserID(ctx context.Context, userID string) (*model.TwoFactorRecord, error)
	Save(ctx context.Context, rec *model.TwoFactorRecord) error
	SetFlags(ctx context.Context, userID string, enrolled, enabled bool, at time.Time) error
	ReplaceBackupCodes(ctx context.Context, userID string, codes []string, at time.Time) error
	ConsumeBackupCode(ctx context.Context, userID, code string) (bool, error)
}

// Mailer delivers plain-text messages. Used by password reset.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// RandomSource is any cryptographically secure byte stream.
type RandomSource = io.Reader

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// LoginResult is returned by every operation that can end in a session.
// When Requires2FA is set the token fields are empty.
type LoginResult struct {
	AccessToken  string            `json:"access_token,omitempty"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	ExpiresIn    int64             `json:"expires_in,omitempty"`
	Requires2FA  bool              `json:"requires_2fa"`
	User         model.UserSummary `json:"user"`
}

// TwoFactorSetup is handed to the user once, at enrollment.
type TwoFactorSetup struct {
	Secret        string   `json:"secret"`
	OTPAuthURI    string   `json:"otpauth_uri"`
	QRCodeDataURI string   `json:"qr_code"`
	BackupCodes   []string `json:"backup_codes"`
}

type TwoFactorStatus struct {
	Enrolled bool `json:"enrolled"`
	Enabled  bool `json:"enabled"`
}

// LockoutStatus is the admin view of a user's failed-login state.
type LockoutStatus struct {
	Locked              bool       `json:"locked"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	RemainingMs         int64      `json:"remaining_ms"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	RemainingAttempts   int        `json:"remaining_attempts"`
}
