package campusAuth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/campusAuth/internal/flows"
	"github.com/MrEthical07/campusAuth/model"
	"github.com/MrEthical07/campusAuth/refresh"
)

func (e *Engine) refreshDeps() flows.RefreshDeps {
	return flows.RefreshDeps{
		Now:            e.clock.Now,
		Parse:          refresh.Parse,
		Find:           e.tokens.FindByID,
		Matches:        refresh.Matches,
		RevokeIfActive: e.tokens.RevokeIfActive,
		Save:           e.tokens.Save,
		IssueAccess:    e.accessFor,
		IssueRefresh:   e.issueRefresh,
		NotFound:       model.ErrNotFound,
	}
}

// accessFor re-reads the user so a rotated access token carries the current
// username and role.
func (e *Engine) accessFor(ctx context.Context, userID string) (string, error) {
	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return e.jwtManager.CreateAccess(user.ID, user.Username, string(user.Role))
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// access/refresh pair is returned. Each token can be rotated exactly once;
// presenting it again yields ErrRefreshTokenRevoked.
func (e *Engine) Refresh(ctx context.Context, token, ip string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ip = resolveIP(ctx, ip)

	res := flows.RunRefresh(ctx, token, ip, e.refreshDeps())
	if res.Failure == flows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.UserID, ip, nil, func() map[string]string {
			return map[string]string{"token_id": res.TokenID, "replaced_by": res.NewTokenID}
		})

		result := &LoginResult{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			ExpiresIn:    int64(e.jwtManager.TTL().Seconds()),
		}
		if user, err := e.users.FindByID(ctx, res.UserID); err == nil {
			result.User = user.Summary()
		}
		return result, nil
	}

	err := e.refreshError(res.Failure, res.Err)
	e.metricInc(MetricRefreshFailure)

	eventType := auditEventRefreshFailure
	if res.Failure == flows.RefreshFailureRevoked || res.Failure == flows.RefreshFailureLostRace {
		e.metricInc(MetricRefreshReplayDetected)
		eventType = auditEventRefreshReplayDetected
		e.logger.Warn("revoked refresh token presented", "token_id", res.TokenID, "user_id", res.UserID)
	}
	if KindOf(err) == KindInternal {
		e.logger.Error("refresh failed", "token_id", res.TokenID, "error", res.Err)
	}
	e.emitAudit(ctx, eventType, false, res.UserID, res.UserID, ip, err, func() map[string]string {
		if res.TokenID == "" {
			return nil
		}
		return map[string]string{"token_id": res.TokenID}
	})
	return nil, err
}

func (e *Engine) refreshError(kind flows.RefreshFailureKind, cause error) error {
	switch kind {
	case flows.RefreshFailureMalformed:
		return ErrMalformedRefreshToken
	case flows.RefreshFailureNotFound:
		return ErrRefreshTokenInvalid
	case flows.RefreshFailureRevoked, flows.RefreshFailureLostRace:
		return ErrRefreshTokenRevoked
	case flows.RefreshFailureExpired:
		return ErrRefreshTokenExpired
	case flows.RefreshFailureHashMismatch:
		return ErrRefreshHashMismatch
	case flows.RefreshFailureIssueAccess:
		if errors.Is(cause, model.ErrNotFound) {
			return ErrRefreshTokenInvalid
		}
		return fmt.Errorf("%w: %v", ErrSessionCreationFailed, cause)
	case flows.RefreshFailureIssueRefresh, flows.RefreshFailureLink:
		return fmt.Errorf("%w: %v", ErrSessionCreationFailed, cause)
	default:
		return storeErr(cause)
	}
}

// Revoke ends the session behind a refresh token. Tokens that are unknown,
// already revoked or do not match are ignored so logout never leaks which
// tokens exist. A malformed string is still rejected.
func (e *Engine) Revoke(ctx context.Context, token, ip string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ip = resolveIP(ctx, ip)

	res := flows.RunRevoke(ctx, token, ip, e.refreshDeps())
	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureMalformed:
		return ErrMalformedRefreshToken
	default:
		e.logger.Error("revoke failed", "token_id", res.TokenID, "error", res.Err)
		return storeErr(res.Err)
	}

	if res.Revoked {
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, true, res.UserID, res.UserID, ip, nil, func() map[string]string {
			return map[string]string{"token_id": res.TokenID}
		})
	}
	return nil
}
