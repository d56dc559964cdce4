package keygate

import (
	"context"
	"errors"

	"github.com/keygatelabs/keygate/internal/limiters"
	"github.com/keygatelabs/keygate/internal/stores"
	"github.com/keygatelabs/keygate/keys"
	"github.com/keygatelabs/keygate/rbac"
	"github.com/keygatelabs/keygate/token"
)

// Engine is the authentication/authorization core. Build one through
// [Builder.Build]; it is immutable and safe for concurrent use afterward.
type Engine struct {
	config     Config
	perms      *rbac.Hierarchy
	tokens     *token.Manager
	challenges *stores.ChallengeStore
	requests   *limiters.RequestLimiter
	guard      *accountGuard
	keyService *keys.Service
	identities IdentityStore
	notifier   Notifier
	audit      *auditDispatcher
	metrics    *Metrics
}

// Close flushes and stops the audit dispatcher. The Engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// Permissions exposes the immutable role hierarchy for boundary-layer
// checks (route guards, handler-level capability checks).
func (e *Engine) Permissions() *rbac.Hierarchy {
	return e.perms
}

// Keys exposes the key lifecycle service for callers that already hold an
// authenticated role.
func (e *Engine) Keys() *keys.Service {
	return e.keyService
}

// VerifyToken validates a session token. Failures are [ErrTokenMalformed],
// [ErrTokenSignature], or [ErrTokenExpired]. Purely computational, no I/O.
func (e *Engine) VerifyToken(tokenStr string) (*token.Claims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(tokenStr)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		return nil, err
	}
	return claims, nil
}

// RefreshToken verifies tokenStr and reissues a token with a fresh TTL for
// the same identity and role. The old token stays valid until its own
// expiry; this design keeps tokens stateless and unrevocable.
func (e *Engine) RefreshToken(ctx context.Context, tokenStr string) (string, error) {
	if e == nil || e.tokens == nil {
		return "", ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(tokenStr)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		e.emitAudit(ctx, auditEventTokenRefresh, false, "", err, nil)
		return "", err
	}

	refreshed, err := e.tokens.Issue(claims.IdentityID, claims.Role)
	if err != nil {
		return "", err
	}

	e.metricInc(MetricTokenRefreshed)
	e.emitAudit(ctx, auditEventTokenRefresh, true, claims.IdentityID, nil, nil)
	return refreshed, nil
}

// Authorize checks that role holds capability, returning
// [ErrPermissionDenied] otherwise.
func (e *Engine) Authorize(role rbac.Role, capability string) error {
	if e == nil || e.perms == nil {
		return ErrEngineNotReady
	}
	if !e.perms.Has(role, capability) {
		e.metricInc(MetricPermissionDenied)
		return ErrPermissionDenied
	}
	return nil
}

func isStoreNotFound(err error) bool {
	return errors.Is(err, ErrIdentityNotFound)
}
