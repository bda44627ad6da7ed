package internaldefs

import (
	campusAuth "github.com/MrEthical07/campusAuth"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   campusAuth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   campusAuth.MetricID
	Name string
	Help string
}

// BucketCount is the number of latency buckets, the overflow bucket included.
const BucketCount = 8

var CounterDefs = []CounterDef{
	{ID: campusAuth.MetricLoginSuccess, Name: "campus_login_success_total", Help: "Sessions issued after a successful login."},
	{ID: campusAuth.MetricLoginFailure, Name: "campus_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: campusAuth.MetricLoginLocked, Name: "campus_login_locked_total", Help: "Logins rejected because the account was locked."},
	{ID: campusAuth.MetricAccountLocked, Name: "campus_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: campusAuth.MetricAccountUnlocked, Name: "campus_account_unlocked_total", Help: "Accounts unlocked by an administrator."},
	{ID: campusAuth.MetricSessionCreated, Name: "campus_session_created_total", Help: "Refresh-token sessions created."},
	{ID: campusAuth.MetricRefreshSuccess, Name: "campus_refresh_success_total", Help: "Successful refresh-token rotations."},
	{ID: campusAuth.MetricRefreshFailure, Name: "campus_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: campusAuth.MetricRefreshReplayDetected, Name: "campus_refresh_replay_detected_total", Help: "Presentations of an already revoked refresh token."},
	{ID: campusAuth.MetricLogout, Name: "campus_logout_total", Help: "Refresh tokens revoked by logout."},
	{ID: campusAuth.MetricTwoFactorRequired, Name: "campus_two_factor_required_total", Help: "Logins stopped at the second-factor gate."},
	{ID: campusAuth.MetricTwoFactorSuccess, Name: "campus_two_factor_success_total", Help: "Accepted second-factor codes."},
	{ID: campusAuth.MetricTwoFactorFailure, Name: "campus_two_factor_failure_total", Help: "Rejected second-factor codes."},
	{ID: campusAuth.MetricTwoFactorRateLimited, Name: "campus_two_factor_rate_limited_total", Help: "Second-factor attempts refused by the limiter."},
	{ID: campusAuth.MetricTwoFactorEnrolled, Name: "campus_two_factor_enrolled_total", Help: "Second-factor enrollments."},
	{ID: campusAuth.MetricTwoFactorEnabled, Name: "campus_two_factor_enabled_total", Help: "Second factors switched on."},
	{ID: campusAuth.MetricTwoFactorDisabled, Name: "campus_two_factor_disabled_total", Help: "Second factors switched off."},
	{ID: campusAuth.MetricBackupCodeUsed, Name: "campus_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: campusAuth.MetricBackupCodesRegenerated, Name: "campus_backup_codes_regenerated_total", Help: "Backup-code set regenerations."},
	{ID: campusAuth.MetricPasswordChangeSuccess, Name: "campus_password_change_success_total", Help: "Successful password changes."},
	{ID: campusAuth.MetricPasswordChangeFailure, Name: "campus_password_change_failure_total", Help: "Rejected password changes."},
	{ID: campusAuth.MetricPasswordResetRequest, Name: "campus_password_reset_request_total", Help: "Password reset requests accepted."},
	{ID: campusAuth.MetricPasswordResetConfirmSuccess, Name: "campus_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: campusAuth.MetricPasswordResetConfirmFailure, Name: "campus_password_reset_confirm_failure_total", Help: "Rejected password reset confirmations."},
	{ID: campusAuth.MetricAccessAllowed, Name: "campus_access_allowed_total", Help: "Record-level access checks that passed."},
	{ID: campusAuth.MetricAccessDenied, Name: "campus_access_denied_total", Help: "Record-level access checks that failed."},
	{ID: campusAuth.MetricAuditPanic, Name: "campus_audit_panic_total", Help: "Audit sink panics recovered."},
}

var HistogramDefs = []HistogramDef{
	{ID: campusAuth.MetricValidateLatency, Name: "campus_validate_latency_seconds", Help: "Access-token validation latency."},
	{ID: campusAuth.MetricAuthorizeLatency, Name: "campus_authorize_latency_seconds", Help: "Ownership decision latency."},
}

// UpperBounds are the finite bucket bounds in seconds. The last engine
// bucket is +Inf.
var UpperBounds = [BucketCount - 1]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BoundSuffix names each bucket for exporters that cannot carry labels.
var BoundSuffix = [BucketCount]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals. The last
// element is the total sample count.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
