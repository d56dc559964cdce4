package keygate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/keygatelabs/keygate/keys"
	"github.com/keygatelabs/keygate/rbac"
)

// CreateKey registers a new key. A zero MaxDuration picks up the configured
// default so every key has an assignment ceiling.
func (e *Engine) CreateKey(ctx context.Context, actor rbac.Role, k keys.Key) (keys.Key, error) {
	if e == nil || e.keyService == nil {
		return keys.Key{}, ErrEngineNotReady
	}

	if k.MaxDuration <= 0 {
		k.MaxDuration = e.config.Keys.DefaultMaxDuration
	}

	created, err := e.keyService.Create(ctx, actor, k)
	if err != nil {
		e.noteKeyFailure(ctx, auditEventKeyCreate, k.ID, err)
		return keys.Key{}, err
	}

	e.metricInc(MetricKeyCreated)
	e.emitAudit(ctx, auditEventKeyCreate, true, "", nil, func() map[string]string {
		return map[string]string{"key": created.ID, "department": created.Department}
	})
	return created, nil
}

// GetKey loads one key record.
func (e *Engine) GetKey(ctx context.Context, actor rbac.Role, keyID string) (keys.Key, error) {
	if e == nil || e.keyService == nil {
		return keys.Key{}, ErrEngineNotReady
	}
	return e.keyService.Get(ctx, actor, keyID)
}

// AssignKey hands keyID to the identity behind holderChannel for at most
// min(requested, key max). A zero requested duration asks for the key's
// maximum. Exactly one of two racing assigns succeeds; the loser gets
// [ErrKeyConflict] and the winner's record is untouched.
func (e *Engine) AssignKey(ctx context.Context, actor rbac.Role, keyID, holderChannel, purpose string, requested time.Duration) (keys.Key, error) {
	if e == nil || e.keyService == nil || e.identities == nil {
		return keys.Key{}, ErrEngineNotReady
	}

	holderChannel = strings.TrimSpace(strings.ToLower(holderChannel))
	if holderChannel == "" {
		return keys.Key{}, ErrInvalidInput
	}

	identity, err := e.identities.FindByChannel(ctx, holderChannel)
	if err != nil {
		return keys.Key{}, err
	}
	if !identity.Active {
		return keys.Key{}, ErrIdentityDisabled
	}

	if requested <= 0 {
		requested = e.config.Keys.DefaultMaxDuration
	}

	holder := keys.Holder{ID: identity.ID, Role: identity.Role}
	assigned, err := e.keyService.Assign(ctx, actor, keyID, holder, purpose, requested)
	if err != nil {
		e.noteKeyFailure(ctx, auditEventKeyAssign, keyID, err)
		return keys.Key{}, err
	}

	e.metricInc(MetricKeyAssigned)
	e.emitAudit(ctx, auditEventKeyAssign, true, identity.ID, nil, func() map[string]string {
		return map[string]string{
			"key":             assigned.ID,
			"expected_return": assigned.Assignment.ExpectedReturnAt.Format(time.RFC3339),
		}
	})
	return assigned, nil
}

// ReturnKey accepts keyID back and reopens it for assignment.
func (e *Engine) ReturnKey(ctx context.Context, actor rbac.Role, keyID string) (keys.Key, error) {
	if e == nil || e.keyService == nil {
		return keys.Key{}, ErrEngineNotReady
	}

	returned, err := e.keyService.Return(ctx, actor, keyID)
	if err != nil {
		e.noteKeyFailure(ctx, auditEventKeyReturn, keyID, err)
		return keys.Key{}, err
	}

	e.metricInc(MetricKeyReturned)
	e.emitAudit(ctx, auditEventKeyReturn, true, "", nil, func() map[string]string {
		return map[string]string{"key": returned.ID}
	})
	return returned, nil
}

// MarkKeyMaintenance pulls keyID for service from any state, force-clearing
// an assignment if one exists.
func (e *Engine) MarkKeyMaintenance(ctx context.Context, actor rbac.Role, keyID, notes string) (keys.Key, error) {
	if e == nil || e.keyService == nil {
		return keys.Key{}, ErrEngineNotReady
	}

	k, err := e.keyService.MarkMaintenance(ctx, actor, keyID, notes)
	if err != nil {
		e.noteKeyFailure(ctx, auditEventKeyMaintenance, keyID, err)
		return keys.Key{}, err
	}

	e.metricInc(MetricKeyMaintenance)
	e.emitAudit(ctx, auditEventKeyMaintenance, true, "", nil, func() map[string]string {
		return map[string]string{"key": k.ID, "notes": notes}
	})
	return k, nil
}

// MarkKeyAvailable puts a non-assigned key back on the board, clearing
// maintenance notes and administrative flags.
func (e *Engine) MarkKeyAvailable(ctx context.Context, actor rbac.Role, keyID string) (keys.Key, error) {
	if e == nil || e.keyService == nil {
		return keys.Key{}, ErrEngineNotReady
	}

	k, err := e.keyService.MarkAvailable(ctx, actor, keyID)
	if err != nil {
		e.noteKeyFailure(ctx, auditEventKeyAvailable, keyID, err)
		return keys.Key{}, err
	}

	e.emitAudit(ctx, auditEventKeyAvailable, true, "", nil, func() map[string]string {
		return map[string]string{"key": k.ID}
	})
	return k, nil
}

// FlagKey marks keyID lost or damaged. The flag sticks until an explicit
// [Engine.MarkKeyAvailable].
func (e *Engine) FlagKey(ctx context.Context, actor rbac.Role, keyID string, flag keys.Status) (keys.Key, error) {
	if e == nil || e.keyService == nil {
		return keys.Key{}, ErrEngineNotReady
	}

	k, err := e.keyService.Flag(ctx, actor, keyID, flag)
	if err != nil {
		e.noteKeyFailure(ctx, auditEventKeyFlag, keyID, err)
		return keys.Key{}, err
	}

	e.emitAudit(ctx, auditEventKeyFlag, true, "", nil, func() map[string]string {
		return map[string]string{"key": k.ID, "flag": flag.String()}
	})
	return k, nil
}

// OverdueKeys lists assigned keys past their expected return, judged
// against the current clock.
func (e *Engine) OverdueKeys(ctx context.Context, actor rbac.Role) ([]keys.Key, error) {
	if e == nil || e.keyService == nil {
		return nil, ErrEngineNotReady
	}
	return e.keyService.Overdue(ctx, actor)
}

// noteKeyFailure records the metric and audit trail for a failed key
// operation. Permission and conflict failures are the two signals worth
// counting separately.
func (e *Engine) noteKeyFailure(ctx context.Context, eventType, keyID string, err error) {
	switch {
	case errors.Is(err, keys.ErrForbidden):
		e.metricInc(MetricPermissionDenied)
	case errors.Is(err, keys.ErrConflict):
		e.metricInc(MetricKeyConflict)
	}

	e.emitAudit(ctx, eventType, false, "", err, func() map[string]string {
		return map[string]string{"key": keyID}
	})
}
