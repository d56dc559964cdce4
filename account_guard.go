package keygate

import (
	"context"
	"fmt"
	"time"
)

// accountGuard tracks consecutive authentication failures on the Identity
// record itself and enforces the timed lockout. Lock timers are wall-clock
// and evaluated lazily on access; an elapsed lock heals without any
// administrative action.
type accountGuard struct {
	store  IdentityStore
	config LockoutConfig
	now    func() time.Time
}

func newAccountGuard(store IdentityStore, cfg LockoutConfig) *accountGuard {
	return &accountGuard{
		store:  store,
		config: cfg,
		now:    time.Now,
	}
}

// RecordFailure increments the failure counter and arms the lock at the
// threshold. A counter left over from an already-elapsed lock restarts at 1
// rather than re-locking immediately.
func (g *accountGuard) RecordFailure(ctx context.Context, identity *Identity) (locked bool, err error) {
	now := g.now()

	if !identity.LockedUntil.IsZero() && now.After(identity.LockedUntil) {
		identity.FailedAttempts = 1
		identity.LockedUntil = time.Time{}
	} else {
		identity.FailedAttempts++
	}

	if identity.FailedAttempts >= g.config.Threshold {
		identity.LockedUntil = now.Add(g.config.Duration)
		locked = true
	}

	if err := g.store.Save(ctx, *identity); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return locked, nil
}

// RecordSuccess clears the failure counter and any lock.
func (g *accountGuard) RecordSuccess(ctx context.Context, identity *Identity) error {
	if identity.FailedAttempts == 0 && identity.LockedUntil.IsZero() {
		return nil
	}

	identity.FailedAttempts = 0
	identity.LockedUntil = time.Time{}

	if err := g.store.Save(ctx, *identity); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsLocked reports whether identity is inside its lockout window.
func (g *accountGuard) IsLocked(identity Identity) bool {
	return g.now().Before(identity.LockedUntil)
}
