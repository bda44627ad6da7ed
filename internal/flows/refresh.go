package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/campusAuth/model"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMalformed
	RefreshFailureNotFound
	RefreshFailureLookup
	RefreshFailureRevoked
	RefreshFailureExpired
	RefreshFailureHashMismatch
	RefreshFailureRevokeStore
	RefreshFailureLostRace
	RefreshFailureIssueAccess
	RefreshFailureIssueRefresh
	RefreshFailureLink
)

const (
	RevokeReasonRotated = "rotated"
	RevokeReasonLogout  = "logout"
	// RevokeReasonAborted marks a replacement token withdrawn because the
	// rotation that produced it could not be completed.
	RevokeReasonAborted = "rotation_aborted"
)

// RefreshResult carries either the new token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	TokenID      string
	UserID       string
	NewTokenID   string
	AccessToken  string
	RefreshToken string
}

// RefreshDeps captures rotation and revocation dependencies.
type RefreshDeps struct {
	Now            func() time.Time
	Parse          func(string) (id, secret string, err error)
	Find           func(context.Context, string) (*model.RefreshToken, error)
	Matches        func(secret string, stored [32]byte) bool
	RevokeIfActive func(ctx context.Context, id string, at time.Time, reason, ip string) (bool, error)
	Save           func(context.Context, *model.RefreshToken) error
	IssueAccess    func(ctx context.Context, userID string) (string, error)
	IssueRefresh   func(ctx context.Context, userID, ip string) (string, *model.RefreshToken, error)
	NotFound       error
}

// check parses the token and verifies it against its row, in the order:
// shape, existence, revocation, expiry, hash.
func check(ctx context.Context, token string, deps RefreshDeps) (*model.RefreshToken, string, RefreshResult) {
	id, secret, err := deps.Parse(token)
	if err != nil {
		return nil, "", RefreshResult{Failure: RefreshFailureMalformed, Err: err}
	}

	row, err := deps.Find(ctx, id)
	if err != nil {
		if deps.NotFound != nil && errors.Is(err, deps.NotFound) {
			return nil, "", RefreshResult{Failure: RefreshFailureNotFound, Err: err, TokenID: id}
		}
		return nil, "", RefreshResult{Failure: RefreshFailureLookup, Err: err, TokenID: id}
	}
	return row, secret, RefreshResult{TokenID: id, UserID: row.UserID}
}

// RunRefresh rotates a refresh token. The old row is revoked before anything
// new is minted; if a later step fails the caller ends up with the old token
// revoked and no new one.
func RunRefresh(ctx context.Context, token, ip string, deps RefreshDeps) RefreshResult {
	row, secret, res := check(ctx, token, deps)
	if res.Failure != RefreshFailureNone {
		return res
	}

	now := deps.Now()
	switch {
	case row.Revoked():
		res.Failure = RefreshFailureRevoked
		return res
	case row.Expired(now):
		res.Failure = RefreshFailureExpired
		return res
	case !deps.Matches(secret, row.TokenHash):
		res.Failure = RefreshFailureHashMismatch
		return res
	}

	won, err := deps.RevokeIfActive(ctx, row.ID, now, RevokeReasonRotated, ip)
	if err != nil {
		res.Failure = RefreshFailureRevokeStore
		res.Err = err
		return res
	}
	if !won {
		res.Failure = RefreshFailureLostRace
		return res
	}
	row.RevokedAt = &now
	row.RevokedReason = RevokeReasonRotated
	row.RevokedByIP = ip

	access, err := deps.IssueAccess(ctx, row.UserID)
	if err != nil {
		res.Failure = RefreshFailureIssueAccess
		res.Err = err
		return res
	}

	next, nextRow, err := deps.IssueRefresh(ctx, row.UserID, ip)
	if err != nil {
		res.Failure = RefreshFailureIssueRefresh
		res.Err = err
		return res
	}
	res.NewTokenID = nextRow.ID

	row.ReplacedByTokenID = nextRow.ID
	if err := deps.Save(ctx, row); err != nil {
		_, _ = deps.RevokeIfActive(ctx, nextRow.ID, now, RevokeReasonAborted, ip)
		res.Failure = RefreshFailureLink
		res.Err = err
		return res
	}

	res.AccessToken = access
	res.RefreshToken = next
	return res
}

// RevokeResult reports whether a logout actually revoked a row.
type RevokeResult struct {
	Failure RefreshFailureKind
	Err     error
	TokenID string
	UserID  string
	Revoked bool
}

// RunRevoke revokes a token for logout. Only a malformed string or a store
// failure is an error; a token that is unknown, already revoked or does not
// match is a silent no-op.
func RunRevoke(ctx context.Context, token, ip string, deps RefreshDeps) RevokeResult {
	row, secret, res := check(ctx, token, deps)
	switch res.Failure {
	case RefreshFailureNone:
	case RefreshFailureMalformed, RefreshFailureLookup:
		return RevokeResult{Failure: res.Failure, Err: res.Err, TokenID: res.TokenID}
	default:
		return RevokeResult{TokenID: res.TokenID}
	}

	out := RevokeResult{TokenID: row.ID, UserID: row.UserID}
	if row.Revoked() || !deps.Matches(secret, row.TokenHash) {
		return out
	}

	won, err := deps.RevokeIfActive(ctx, row.ID, deps.Now(), RevokeReasonLogout, ip)
	if err != nil {
		if deps.NotFound != nil && errors.Is(err, deps.NotFound) {
			return out
		}
		out.Failure = RefreshFailureRevokeStore
		out.Err = err
		return out
	}
	out.Revoked = won
	return out
}
