package keygate

import (
	"context"
	"time"

	"github.com/keygatelabs/keygate/rbac"
)

// Purpose scopes a challenge to one flow so a code issued for one purpose
// can never satisfy another.
type Purpose string

const (
	// PurposeLogin authenticates an existing identity.
	PurposeLogin Purpose = "login"
	// PurposeRegistration proves channel control before an identity exists.
	PurposeRegistration Purpose = "registration"
	// PurposeReset re-proves channel control for account recovery.
	PurposeReset Purpose = "reset"
	// PurposeVerifyChannel confirms a changed delivery channel.
	PurposeVerifyChannel Purpose = "verify_channel"
)

// Purposes lists every valid purpose.
func Purposes() []Purpose {
	return []Purpose{PurposeLogin, PurposeRegistration, PurposeReset, PurposeVerifyChannel}
}

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeLogin, PurposeRegistration, PurposeReset, PurposeVerifyChannel:
		return true
	}
	return false
}

// Identity is the account record managed through the external
// [IdentityStore]. Identities are never hard-deleted; Active is the
// soft-delete flag. FailedAttempts and LockedUntil belong to the account
// guard and must not be mutated elsewhere.
type Identity struct {
	ID             string
	Channel        string
	Role           rbac.Role
	Department     string
	Active         bool
	FailedAttempts int
	LockedUntil    time.Time
	CreatedAt      time.Time
}

// IdentityStore is the external persistence contract for identities.
// Implementations must return [ErrIdentityNotFound] (or an error wrapping
// it) when no record matches.
type IdentityStore interface {
	FindByChannel(ctx context.Context, channel string) (Identity, error)
	FindByID(ctx context.Context, id string) (Identity, error)
	Save(ctx context.Context, identity Identity) error
}

// Notifier delivers challenge codes out-of-band. Delivery failure is logged
// by the engine and never fails challenge creation.
type Notifier interface {
	Deliver(ctx context.Context, channel, code string, purpose Purpose) error
}

// NoOpNotifier drops every delivery. Useful in tests and load tools.
type NoOpNotifier struct{}

// Deliver implements [Notifier].
func (NoOpNotifier) Deliver(context.Context, string, string, Purpose) error { return nil }

// ChallengeReceipt is returned by challenge-creating operations. The code
// itself travels only through the [Notifier].
type ChallengeReceipt struct {
	ExpiresAt time.Time
}

// LoginResult is returned by a successful [Engine.VerifyChallenge] for the
// login and registration purposes.
type LoginResult struct {
	Token    string
	Identity Identity
}
