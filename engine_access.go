package campusAuth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/campusAuth/model"
	"github.com/MrEthical07/campusAuth/ownership"
)

// HasPermission reports whether p's role grants perm. Admin is a superuser.
func (e *Engine) HasPermission(p model.Principal, perm string) bool {
	if e == nil || e.roleManager == nil {
		return false
	}
	return e.roleManager.Allows(string(p.Role), perm)
}

// Authorize decides whether p may act on the record id of kind check.Target.
//
// The role must grant perm unless perm is empty; then the ownership rules
// decide. A denial is ErrForbidden. A broken link between the user and its
// student, teacher or parent row is *LinkMissingError.
func (e *Engine) Authorize(ctx context.Context, p model.Principal, perm string, check ownership.Check, id string) error {
	if e == nil || e.resolver == nil {
		return ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
		}
	}()

	if perm != "" && !e.HasPermission(p, perm) {
		e.deny(ctx, p, perm, check.Target, id, ErrForbidden)
		return ErrForbidden
	}

	ok, err := e.resolver.Authorize(ctx, p, check.Target, id)
	if err != nil {
		var linkErr *LinkMissingError
		if errors.As(err, &linkErr) {
			e.deny(ctx, p, perm, check.Target, id, err)
			return err
		}
		e.logger.Error("ownership lookup failed", "user_id", p.UserID, "target", check.Target.String(), "error", err)
		return storeErr(err)
	}
	if !ok {
		e.deny(ctx, p, perm, check.Target, id, ErrForbidden)
		return ErrForbidden
	}

	e.metricInc(MetricAccessAllowed)
	return nil
}

// AccessContext materializes what p may reach. It is a read-only view for
// listing endpoints; single-record checks should use Authorize.
func (e *Engine) AccessContext(ctx context.Context, p model.Principal) (*ownership.AccessContext, error) {
	if e == nil || e.relations == nil {
		return nil, ErrEngineNotReady
	}
	ac, err := ownership.BuildAccessContext(ctx, e.relations, p.Role, p.UserID)
	if err != nil {
		var linkErr *LinkMissingError
		if errors.As(err, &linkErr) {
			return nil, err
		}
		return nil, storeErr(err)
	}
	return ac, nil
}

func (e *Engine) deny(ctx context.Context, p model.Principal, perm string, target ownership.Target, id string, err error) {
	e.metricInc(MetricAccessDenied)
	e.emitAudit(ctx, auditEventAccessDenied, false, p.UserID, "", "", err, func() map[string]string {
		return map[string]string{
			"role":       string(p.Role),
			"permission": perm,
			"target":     fmt.Sprintf("%s:%s", target, id),
		}
	})
}
