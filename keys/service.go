package keys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keygatelabs/keygate/rbac"
)

var (
	// ErrNotFound means no key record exists for the id.
	ErrNotFound = errors.New("key not found")
	// ErrExists means a key with the id already exists.
	ErrExists = errors.New("key already exists")
	// ErrConflict means an illegal state transition or a lost
	// compare-and-swap race.
	ErrConflict = errors.New("key state conflict")
	// ErrForbidden means the acting role lacks the required capability.
	ErrForbidden = errors.New("key operation forbidden")
	// ErrHolderNotAllowed means the holder's role is outside the key's
	// allowed-roles list.
	ErrHolderNotAllowed = errors.New("holder role not allowed for key")
	// ErrInvalid means malformed operation input.
	ErrInvalid = errors.New("invalid key operation input")
	// ErrVersionConflict is returned by stores when the record version
	// advanced under a compare-and-swap.
	ErrVersionConflict = errors.New("key version conflict")
	// ErrUnavailable means the key store backend is unreachable.
	ErrUnavailable = errors.New("key store unavailable")
)

// Store is the persistence contract for key records. CompareAndSwap must be
// conditional on k.Version matching the stored version and must advance it
// atomically; a stale version fails with [ErrVersionConflict].
type Store interface {
	Get(ctx context.Context, id string) (Key, error)
	Create(ctx context.Context, k Key) error
	CompareAndSwap(ctx context.Context, k Key) (Key, error)
	List(ctx context.Context) ([]Key, error)
}

// Holder identifies who receives a key on assignment.
type Holder struct {
	ID   string
	Role rbac.Role
}

// Service executes key lifecycle transitions, gating every operation through
// the permission hierarchy and the store compare-and-swap.
type Service struct {
	store Store
	perms *rbac.Hierarchy
	now   func() time.Time
}

// NewService wires a Service. perms must be the shared immutable hierarchy.
func NewService(store Store, perms *rbac.Hierarchy) *Service {
	return &Service{
		store: store,
		perms: perms,
		now:   time.Now,
	}
}

// Create registers a new key, initially available. Requires keys:manage.
func (s *Service) Create(ctx context.Context, actor rbac.Role, k Key) (Key, error) {
	if !s.perms.Has(actor, rbac.CapKeysManage) {
		return Key{}, fmt.Errorf("%w: %s cannot create keys", ErrForbidden, actor)
	}
	if k.ID == "" {
		return Key{}, fmt.Errorf("%w: empty key id", ErrInvalid)
	}
	for _, role := range k.AllowedRoles {
		if !role.Valid() {
			return Key{}, fmt.Errorf("%w: invalid allowed role", ErrInvalid)
		}
	}

	now := s.now()
	k.Status = Available
	k.Active = true
	k.Assignment = nil
	k.Version = 0
	k.CreatedAt = now
	k.UpdatedAt = now

	if err := s.store.Create(ctx, k); err != nil {
		return Key{}, err
	}
	return k, nil
}

// Get loads one key. Requires keys:view.
func (s *Service) Get(ctx context.Context, actor rbac.Role, id string) (Key, error) {
	if !s.perms.HasAny(actor, rbac.CapKeysView, rbac.CapKeysViewAll) {
		return Key{}, fmt.Errorf("%w: %s cannot view keys", ErrForbidden, actor)
	}
	return s.store.Get(ctx, id)
}

// Assign hands the key to holder for at most min(requested, MaxDuration).
// Requires keys:assign on the actor and an allowed holder role. The write is
// a compare-and-swap: a racing assign loses with ErrConflict and the stored
// record is untouched.
func (s *Service) Assign(ctx context.Context, actor rbac.Role, keyID string, holder Holder, purpose string, requested time.Duration) (Key, error) {
	if !s.perms.Has(actor, rbac.CapKeysAssign) {
		return Key{}, fmt.Errorf("%w: %s cannot assign keys", ErrForbidden, actor)
	}
	if holder.ID == "" || requested <= 0 {
		return Key{}, fmt.Errorf("%w: holder and duration required", ErrInvalid)
	}

	k, err := s.store.Get(ctx, keyID)
	if err != nil {
		return Key{}, err
	}
	if !k.CanBeAccessedBy(holder.Role) {
		return Key{}, fmt.Errorf("%w: %s on key %s", ErrHolderNotAllowed, holder.Role, keyID)
	}

	next, err := applyAssign(k, holder.ID, purpose, requested, s.now())
	if err != nil {
		return Key{}, err
	}
	return s.swap(ctx, next)
}

// Return accepts the key back and reopens it for assignment. Requires
// keys:return.
func (s *Service) Return(ctx context.Context, actor rbac.Role, keyID string) (Key, error) {
	if !s.perms.Has(actor, rbac.CapKeysReturn) {
		return Key{}, fmt.Errorf("%w: %s cannot return keys", ErrForbidden, actor)
	}

	k, err := s.store.Get(ctx, keyID)
	if err != nil {
		return Key{}, err
	}
	next, err := applyReturn(k, s.now())
	if err != nil {
		return Key{}, err
	}
	return s.swap(ctx, next)
}

// MarkMaintenance pulls the key for service from any status, clearing any
// assignment. Requires keys:manage.
func (s *Service) MarkMaintenance(ctx context.Context, actor rbac.Role, keyID, notes string) (Key, error) {
	if !s.perms.Has(actor, rbac.CapKeysManage) {
		return Key{}, fmt.Errorf("%w: %s cannot manage keys", ErrForbidden, actor)
	}

	k, err := s.store.Get(ctx, keyID)
	if err != nil {
		return Key{}, err
	}
	next, err := applyMaintenance(k, notes, s.now())
	if err != nil {
		return Key{}, err
	}
	return s.swap(ctx, next)
}

// MarkAvailable resets a non-assigned key to available. Requires keys:manage.
func (s *Service) MarkAvailable(ctx context.Context, actor rbac.Role, keyID string) (Key, error) {
	if !s.perms.Has(actor, rbac.CapKeysManage) {
		return Key{}, fmt.Errorf("%w: %s cannot manage keys", ErrForbidden, actor)
	}

	k, err := s.store.Get(ctx, keyID)
	if err != nil {
		return Key{}, err
	}
	next, err := applyAvailable(k, s.now())
	if err != nil {
		return Key{}, err
	}
	return s.swap(ctx, next)
}

// Flag marks a key lost or damaged. Requires keys:manage.
func (s *Service) Flag(ctx context.Context, actor rbac.Role, keyID string, flag Status) (Key, error) {
	if !s.perms.Has(actor, rbac.CapKeysManage) {
		return Key{}, fmt.Errorf("%w: %s cannot manage keys", ErrForbidden, actor)
	}

	k, err := s.store.Get(ctx, keyID)
	if err != nil {
		return Key{}, err
	}
	next, err := applyFlag(k, flag, s.now())
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return s.swap(ctx, next)
}

// Overdue lists assigned keys past their expected return. Requires
// keys:view_all.
func (s *Service) Overdue(ctx context.Context, actor rbac.Role) ([]Key, error) {
	if !s.perms.Has(actor, rbac.CapKeysViewAll) {
		return nil, fmt.Errorf("%w: %s cannot view all keys", ErrForbidden, actor)
	}

	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var overdue []Key
	for _, k := range all {
		if k.IsOverdue(now) {
			overdue = append(overdue, k)
		}
	}
	return overdue, nil
}

func (s *Service) swap(ctx context.Context, next Key) (Key, error) {
	stored, err := s.store.CompareAndSwap(ctx, next)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			// Race loss: another transition won between our read and write.
			return Key{}, fmt.Errorf("%w: key %s changed concurrently", ErrConflict, next.ID)
		}
		return Key{}, err
	}
	return stored, nil
}
