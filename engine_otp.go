package keygate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/keygatelabs/keygate/internal"
	"github.com/keygatelabs/keygate/internal/limiters"
	"github.com/keygatelabs/keygate/internal/stores"
	"github.com/keygatelabs/keygate/rbac"
)

// RequestChallenge creates a one-time challenge for channel and purpose and
// hands the code to the notifier. Creating a challenge atomically
// invalidates any prior active one for the same (channel, purpose).
//
// The response is enumeration-safe: for the login purpose an unknown
// channel returns a plausible receipt without creating anything.
func (e *Engine) RequestChallenge(ctx context.Context, channel string, purpose Purpose) (ChallengeReceipt, error) {
	if e == nil || e.challenges == nil || e.identities == nil {
		return ChallengeReceipt{}, ErrEngineNotReady
	}

	channel = strings.TrimSpace(strings.ToLower(channel))
	if channel == "" || !purpose.Valid() {
		return ChallengeReceipt{}, ErrInvalidInput
	}

	identity, err := e.identities.FindByChannel(ctx, channel)
	switch {
	case err == nil:
		if !identity.Active {
			// Soft-deleted identities do not receive codes, but the caller
			// cannot tell.
			e.emitAudit(ctx, auditEventChallengeRequest, true, identity.ID, nil, func() map[string]string {
				return map[string]string{"channel": channel, "noop": "identity_disabled"}
			})
			return ChallengeReceipt{ExpiresAt: time.Now().Add(e.config.OTP.TTL)}, nil
		}
		if e.guard.IsLocked(identity) {
			e.metricInc(MetricLoginLockedRejected)
			e.emitAudit(ctx, auditEventChallengeRequest, false, identity.ID, ErrAccountLocked, nil)
			return ChallengeReceipt{}, ErrAccountLocked
		}
		if purpose == PurposeRegistration {
			e.emitAudit(ctx, auditEventChallengeRequest, false, identity.ID, ErrIdentityExists, nil)
			return ChallengeReceipt{}, ErrIdentityExists
		}
	case isStoreNotFound(err):
		if purpose != PurposeRegistration {
			// Unknown channel on a non-registration purpose: fake success.
			e.emitAudit(ctx, auditEventChallengeRequest, true, "", nil, func() map[string]string {
				return map[string]string{"channel": channel, "enumeration_safe": "true"}
			})
			return ChallengeReceipt{ExpiresAt: time.Now().Add(e.config.OTP.TTL)}, nil
		}
	default:
		return ChallengeReceipt{}, err
	}

	if err := e.requests.Allow(ctx, channel, string(purpose)); err != nil {
		if errors.Is(err, limiters.ErrRateLimited) {
			e.metricInc(MetricChallengeRateLimited)
			e.emitAudit(ctx, auditEventChallengeRequest, false, identity.ID, ErrChallengeRateLimited, func() map[string]string {
				return map[string]string{"channel": channel}
			})
			return ChallengeReceipt{}, ErrChallengeRateLimited
		}
		return ChallengeReceipt{}, err
	}

	code, err := internal.NewCode(e.config.OTP.Digits)
	if err != nil {
		return ChallengeReceipt{}, err
	}

	codeHash := internal.HashCode(code)
	expiresAt := time.Now().Add(e.config.OTP.TTL)
	record := &stores.ChallengeRecord{
		IdentityID: identity.ID, // empty for registration of a new channel
		CodeHash:   codeHash,
		ExpiresAt:  expiresAt.Unix(),
	}

	if err := e.challenges.Save(ctx, channel, string(purpose), record, e.config.OTP.TTL); err != nil {
		e.emitAudit(ctx, auditEventChallengeRequest, false, identity.ID, err, nil)
		return ChallengeReceipt{}, err
	}

	// Delivery failure is non-fatal: the challenge exists, the caller can
	// re-request within the rate budget.
	if err := e.notifier.Deliver(ctx, channel, code, purpose); err != nil {
		e.metricInc(MetricChallengeDeliveryFailed)
		e.emitAudit(ctx, auditEventDeliveryFailure, false, identity.ID, err, func() map[string]string {
			return map[string]string{"channel": channel, "purpose": string(purpose)}
		})
	}

	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, auditEventChallengeRequest, true, identity.ID, nil, func() map[string]string {
		return map[string]string{"channel": channel, "purpose": string(purpose)}
	})

	return ChallengeReceipt{ExpiresAt: expiresAt}, nil
}

// Register starts the registration flow for a new channel. The identity is
// created only when the challenge is verified.
func (e *Engine) Register(ctx context.Context, channel string) (ChallengeReceipt, error) {
	return e.RequestChallenge(ctx, channel, PurposeRegistration)
}

// VerifyChallenge validates code against the active challenge for (channel,
// purpose). On success the challenge is consumed, the failure counter
// clears, and for the login and registration purposes a session token is
// minted. Exactly one challenge leaves the active state per call, matched
// or not.
func (e *Engine) VerifyChallenge(ctx context.Context, channel, code string, purpose Purpose) (*LoginResult, error) {
	if e == nil || e.challenges == nil || e.identities == nil {
		return nil, ErrEngineNotReady
	}

	channel = strings.TrimSpace(strings.ToLower(channel))
	if channel == "" || code == "" || !purpose.Valid() {
		return nil, ErrInvalidInput
	}

	identity, err := e.identities.FindByChannel(ctx, channel)
	knownIdentity := err == nil
	if err != nil && !isStoreNotFound(err) {
		return nil, err
	}
	if knownIdentity && purpose != PurposeRegistration {
		if !identity.Active {
			e.emitAudit(ctx, auditEventChallengeVerify, false, identity.ID, ErrIdentityDisabled, nil)
			return nil, ErrIdentityDisabled
		}
		// Locked accounts fail before the code is even considered, so a
		// correct code cannot shorten the lock window.
		if e.guard.IsLocked(identity) {
			e.metricInc(MetricLoginLockedRejected)
			e.emitAudit(ctx, auditEventChallengeVerify, false, identity.ID, ErrAccountLocked, nil)
			return nil, ErrAccountLocked
		}
	}

	_, consumeErr := e.challenges.Consume(ctx, channel, string(purpose), internal.HashCode(code), e.config.OTP.MaxAttempts)
	if consumeErr != nil {
		mapped := mapChallengeError(consumeErr)
		e.metricInc(MetricChallengeFailed)

		if knownIdentity {
			locked, guardErr := e.guard.RecordFailure(ctx, &identity)
			if guardErr != nil {
				return nil, guardErr
			}
			if locked {
				e.metricInc(MetricLockoutTriggered)
				e.emitAudit(ctx, auditEventLockout, true, identity.ID, nil, func() map[string]string {
					return map[string]string{"locked_until": identity.LockedUntil.Format(time.RFC3339)}
				})
			}
		}

		e.emitAudit(ctx, auditEventChallengeVerify, false, identity.ID, mapped, func() map[string]string {
			return map[string]string{"channel": channel, "purpose": string(purpose)}
		})
		return nil, mapped
	}

	if purpose == PurposeRegistration && !knownIdentity {
		identity = Identity{
			ID:        internal.NewID(),
			Channel:   channel,
			Role:      rbac.Faculty,
			Active:    true,
			CreatedAt: time.Now(),
		}
		if err := e.identities.Save(ctx, identity); err != nil {
			return nil, err
		}
		e.emitAudit(ctx, auditEventRegistration, true, identity.ID, nil, func() map[string]string {
			return map[string]string{"channel": channel}
		})
	} else if !knownIdentity {
		// A consumable challenge without an identity can only happen if the
		// identity vanished between creation and verification.
		return nil, ErrIdentityNotFound
	}

	if err := e.guard.RecordSuccess(ctx, &identity); err != nil {
		return nil, err
	}

	e.metricInc(MetricChallengeVerified)
	e.emitAudit(ctx, auditEventChallengeVerify, true, identity.ID, nil, func() map[string]string {
		return map[string]string{"channel": channel, "purpose": string(purpose)}
	})

	result := &LoginResult{Identity: identity}
	if purpose == PurposeLogin || purpose == PurposeRegistration {
		tok, err := e.tokens.Issue(identity.ID, identity.Role)
		if err != nil {
			return nil, err
		}
		result.Token = tok
		e.metricInc(MetricTokenIssued)
	}

	return result, nil
}

// InvalidateChallenges administratively invalidates active challenges for
// channel. With no purposes given, every purpose is cleared. Used on logout
// and role change.
func (e *Engine) InvalidateChallenges(ctx context.Context, channel string, purposes ...Purpose) error {
	if e == nil || e.challenges == nil {
		return ErrEngineNotReady
	}

	channel = strings.TrimSpace(strings.ToLower(channel))
	if channel == "" {
		return ErrInvalidInput
	}

	if len(purposes) == 0 {
		purposes = Purposes()
	}
	names := make([]string, len(purposes))
	for i, p := range purposes {
		if !p.Valid() {
			return ErrInvalidInput
		}
		names[i] = string(p)
	}

	if err := e.challenges.Invalidate(ctx, channel, names...); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventChallengeInvalid, true, "", nil, func() map[string]string {
		return map[string]string{"channel": channel}
	})
	return nil
}

// Logout invalidates every pending challenge for channel. Session tokens
// are stateless and expire on their own.
func (e *Engine) Logout(ctx context.Context, channel string) error {
	return e.InvalidateChallenges(ctx, channel)
}

func mapChallengeError(err error) error {
	switch {
	case errors.Is(err, stores.ErrChallengeNotFound), errors.Is(err, stores.ErrCodeMismatch):
		return ErrInvalidChallenge
	case errors.Is(err, stores.ErrChallengeExpired), errors.Is(err, stores.ErrAttemptsExceeded):
		return ErrChallengeExpired
	default:
		return err
	}
}
