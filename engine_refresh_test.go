package campusAuth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/campusAuth/model"
)

func loginStudent(t *testing.T, env *testEnv) *LoginResult {
	t.Helper()
	env.seedUser(t, "u-stu", "sam", model.RoleStudent)
	res, err := env.engine.LoginWithPassword(context.Background(), "sam", testPassword, "10.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return res
}

func TestRefreshRotatesAndLinks(t *testing.T) {
	env := newTestEnv(t, testConfig())
	first := loginStudent(t, env)
	ctx := context.Background()

	second, err := env.engine.Refresh(ctx, first.RefreshToken, "10.0.0.2")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken || second.AccessToken == "" {
		t.Fatalf("expected a new token pair, got %+v", second)
	}
	if second.User.ID != "u-stu" {
		t.Fatalf("expected user summary, got %+v", second.User)
	}

	oldID, _, _ := strings.Cut(first.RefreshToken, ".")
	newID, _, _ := strings.Cut(second.RefreshToken, ".")
	row, err := env.engine.tokens.FindByID(ctx, oldID)
	if err != nil {
		t.Fatalf("find old row: %v", err)
	}
	if !row.Revoked() || row.RevokedReason != "rotated" || row.RevokedByIP != "10.0.0.2" {
		t.Fatalf("old row not revoked as rotated: %+v", row)
	}
	if row.ReplacedByTokenID != newID {
		t.Fatalf("expected ReplacedByTokenID %q, got %q", newID, row.ReplacedByTokenID)
	}
}

func TestRefreshReplayIsRejected(t *testing.T) {
	env := newTestEnv(t, testConfig())
	first := loginStudent(t, env)
	ctx := context.Background()

	if _, err := env.engine.Refresh(ctx, first.RefreshToken, ""); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	_, err := env.engine.Refresh(ctx, first.RefreshToken, "")
	if !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("expected ErrRefreshTokenRevoked on replay, got %v", err)
	}
	if KindOf(err) != KindAuthentication {
		t.Fatalf("expected authentication kind, got %s", KindOf(err))
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRefreshReplayDetected]; got != 1 {
		t.Fatalf("expected one replay metric, got %d", got)
	}
	if !hasEvent(env.drainEvents(), auditEventRefreshReplayDetected) {
		t.Fatalf("expected refresh_replay_detected audit event")
	}
}

func TestRefreshRejections(t *testing.T) {
	env := newTestEnv(t, testConfig())
	first := loginStudent(t, env)
	ctx := context.Background()
	id, secret, _ := strings.Cut(first.RefreshToken, ".")

	tests := []struct {
		name  string
		token string
		want  error
		kind  ErrorKind
	}{
		{"empty", "", ErrMalformedRefreshToken, KindValidation},
		{"no separator", "abcdef", ErrMalformedRefreshToken, KindValidation},
		{"empty secret", id + ".", ErrMalformedRefreshToken, KindValidation},
		{"unknown id", "00000000-0000-4000-8000-000000000000." + secret, ErrRefreshTokenInvalid, KindAuthentication},
		{"tampered secret", id + "." + flipLast(secret), ErrRefreshHashMismatch, KindAuthentication},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.Refresh(ctx, tc.token, "")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if KindOf(err) != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, KindOf(err))
			}
		})
	}

	// A tampered attempt must not burn the genuine token.
	if _, err := env.engine.Refresh(ctx, first.RefreshToken, ""); err != nil {
		t.Fatalf("genuine token should still rotate: %v", err)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	first := loginStudent(t, env)

	env.clock.Advance(7*24*time.Hour + time.Second)

	_, err := env.engine.Refresh(context.Background(), first.RefreshToken, "")
	if !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("expected ErrRefreshTokenExpired, got %v", err)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	env := newTestEnv(t, testConfig())
	first := loginStudent(t, env)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := env.engine.Refresh(context.Background(), first.RefreshToken, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success, revoked := 0, 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrRefreshTokenRevoked):
			revoked++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if success != 1 || revoked != n-1 {
		t.Fatalf("expected 1 winner and %d revoked, got %d and %d", n-1, success, revoked)
	}
}

func TestRevokeLogout(t *testing.T) {
	env := newTestEnv(t, testConfig())
	first := loginStudent(t, env)
	ctx := context.Background()

	if err := env.engine.Revoke(ctx, first.RefreshToken, "10.0.0.3"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	id, _, _ := strings.Cut(first.RefreshToken, ".")
	row, err := env.engine.tokens.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if row.RevokedReason != "logout" || row.RevokedByIP != "10.0.0.3" {
		t.Fatalf("unexpected revocation: %+v", row)
	}

	if _, err := env.engine.Refresh(ctx, first.RefreshToken, ""); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("expected revoked after logout, got %v", err)
	}

	// Repeated, unknown and mismatched tokens are silent.
	for _, tok := range []string{
		first.RefreshToken,
		"00000000-0000-4000-8000-000000000000.secret",
		id + ".wrong-secret",
	} {
		if err := env.engine.Revoke(ctx, tok, ""); err != nil {
			t.Fatalf("revoke %q: expected silent success, got %v", tok, err)
		}
	}

	if err := env.engine.Revoke(ctx, "garbage", ""); !errors.Is(err, ErrMalformedRefreshToken) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLogout]; got != 1 {
		t.Fatalf("expected exactly one logout metric, got %d", got)
	}
}

func TestRevokedRowsAreKeptForAudit(t *testing.T) {
	env := newTestEnv(t, testConfig())
	first := loginStudent(t, env)
	ctx := context.Background()

	if err := env.engine.Revoke(ctx, first.RefreshToken, "10.0.0.3"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	env.mr.FastForward(365 * 24 * time.Hour)

	id, _, _ := strings.Cut(first.RefreshToken, ".")
	row, err := env.engine.tokens.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("revoked row must outlive its expiry: %v", err)
	}
	if !row.Revoked() || row.RevokedReason != "logout" {
		t.Fatalf("unexpected row: %+v", row)
	}
}

func flipLast(s string) string {
	c := byte('A')
	if s[len(s)-1] == c {
		c = 'B'
	}
	return s[:len(s)-1] + string(c)
}
