package keygate

import (
	"context"
	"strconv"
	"time"

	"github.com/keygatelabs/keygate/rbac"
)

// DisableAccount soft-deletes the target identity. The record stays in the
// store so audit references resolve; a disabled identity receives no
// challenges and cannot log in. The actor needs users:manage and authority
// over the target's role.
func (e *Engine) DisableAccount(ctx context.Context, actor rbac.Role, targetID string) error {
	if e == nil || e.identities == nil {
		return ErrEngineNotReady
	}
	if targetID == "" {
		return ErrInvalidInput
	}

	identity, err := e.identities.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := e.authorizeManage(actor, identity.Role); err != nil {
		e.emitAudit(ctx, auditEventAccountDisable, false, targetID, err, nil)
		return err
	}
	if !identity.Active {
		return nil
	}

	identity.Active = false
	if err := e.identities.Save(ctx, identity); err != nil {
		return err
	}

	// Disabled identities keep no pending challenges around.
	if err := e.InvalidateChallenges(ctx, identity.Channel); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventAccountDisable, true, targetID, nil, func() map[string]string {
		return map[string]string{"channel": identity.Channel, "role": identity.Role.String()}
	})
	return nil
}

// EnableAccount reverses a soft delete. Same authority rules as
// [Engine.DisableAccount].
func (e *Engine) EnableAccount(ctx context.Context, actor rbac.Role, targetID string) error {
	if e == nil || e.identities == nil {
		return ErrEngineNotReady
	}
	if targetID == "" {
		return ErrInvalidInput
	}

	identity, err := e.identities.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := e.authorizeManage(actor, identity.Role); err != nil {
		return err
	}
	if identity.Active {
		return nil
	}

	identity.Active = true
	return e.identities.Save(ctx, identity)
}

// UnlockAccount clears the target's failure counter and lockout ahead of
// the timer. The actor needs users:manage and authority over the target's
// role.
func (e *Engine) UnlockAccount(ctx context.Context, actor rbac.Role, targetID string) error {
	if e == nil || e.identities == nil || e.guard == nil {
		return ErrEngineNotReady
	}
	if targetID == "" {
		return ErrInvalidInput
	}

	identity, err := e.identities.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := e.authorizeManage(actor, identity.Role); err != nil {
		e.emitAudit(ctx, auditEventAccountUnlock, false, targetID, err, nil)
		return err
	}

	wasLocked := e.guard.IsLocked(identity)
	if err := e.guard.RecordSuccess(ctx, &identity); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventAccountUnlock, true, targetID, nil, func() map[string]string {
		return map[string]string{"was_locked": strconv.FormatBool(wasLocked)}
	})
	return nil
}

// ChangeRole reassigns the target's role. The actor needs authority over
// both the current and the new role, so nobody can promote past their own
// reach. Outstanding tokens keep the old role until they expire; pending
// challenges are invalidated.
func (e *Engine) ChangeRole(ctx context.Context, actor rbac.Role, targetID string, newRole rbac.Role) error {
	if e == nil || e.identities == nil {
		return ErrEngineNotReady
	}
	if targetID == "" || !newRole.Valid() {
		return ErrInvalidInput
	}

	identity, err := e.identities.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := e.authorizeManage(actor, identity.Role); err != nil {
		return err
	}
	if err := e.authorizeManage(actor, newRole); err != nil {
		return err
	}
	if identity.Role == newRole {
		return nil
	}

	oldRole := identity.Role
	identity.Role = newRole
	if err := e.identities.Save(ctx, identity); err != nil {
		return err
	}
	if err := e.InvalidateChallenges(ctx, identity.Channel); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventRoleChange, true, targetID, nil, func() map[string]string {
		return map[string]string{"from": oldRole.String(), "to": newRole.String()}
	})
	return nil
}

// AccountLocked reports whether the identity is currently inside a lockout
// window, and if so until when. Locks are wall-clock; an elapsed lock reads
// as unlocked without any store write.
func (e *Engine) AccountLocked(ctx context.Context, targetID string) (bool, time.Time, error) {
	if e == nil || e.identities == nil || e.guard == nil {
		return false, time.Time{}, ErrEngineNotReady
	}
	if targetID == "" {
		return false, time.Time{}, ErrInvalidInput
	}

	identity, err := e.identities.FindByID(ctx, targetID)
	if err != nil {
		return false, time.Time{}, err
	}
	if !e.guard.IsLocked(identity) {
		return false, time.Time{}, nil
	}
	return true, identity.LockedUntil, nil
}

// authorizeManage gates account administration: the actor needs the
// users:manage capability and management authority over the target role.
func (e *Engine) authorizeManage(actor, target rbac.Role) error {
	if err := e.Authorize(actor, rbac.CapUsersManage); err != nil {
		return err
	}
	if !e.perms.CanManageUser(actor, target) {
		e.metricInc(MetricPermissionDenied)
		return ErrPermissionDenied
	}
	return nil
}
