package keys

import (
	"errors"
	"fmt"
	"time"

	"github.com/keygatelabs/keygate/rbac"
)

// Status is the lifecycle state of a key.
type Status uint8

const (
	// Available means the key is on the board and assignable.
	Available Status = iota + 1
	// Assigned means the key is held by an identity.
	Assigned
	// Maintenance means the key is pulled for service.
	Maintenance
	// Lost is an administrative flag, terminal until a manual reset.
	Lost
	// Damaged is an administrative flag, terminal until a manual reset.
	Damaged
)

var statusNames = map[Status]string{
	Available:   "available",
	Assigned:    "assigned",
	Maintenance: "maintenance",
	Lost:        "lost",
	Damaged:     "damaged",
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// MarshalText encodes s as its stable name for the JSON store records.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid key status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes the stable name.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("invalid key status %q", text)
}

// Assignment records who holds a key and for how long. It exists only while
// the key status is Assigned.
type Assignment struct {
	HolderID         string    `json:"holder_id"`
	AssignedAt       time.Time `json:"assigned_at"`
	ExpectedReturnAt time.Time `json:"expected_return_at"`
	Purpose          string    `json:"purpose"`
}

// Key is a tracked physical-access credential. Keys are mutated only through
// [Service] transitions; Version backs the store compare-and-swap.
type Key struct {
	ID               string        `json:"id"`
	Department       string        `json:"department"`
	Category         string        `json:"category"`
	Active           bool          `json:"active"`
	Status           Status        `json:"status"`
	MaxDuration      time.Duration `json:"max_duration"`
	AllowedRoles     []rbac.Role   `json:"allowed_roles,omitempty"`
	Assignment       *Assignment   `json:"assignment,omitempty"`
	MaintenanceNotes string        `json:"maintenance_notes,omitempty"`
	Version          uint64        `json:"version"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// CanBeAccessedBy reports whether role may hold this key. An empty
// AllowedRoles list means any role.
func (k *Key) CanBeAccessedBy(role rbac.Role) bool {
	if len(k.AllowedRoles) == 0 {
		return role.Valid()
	}
	for _, allowed := range k.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}

// IsOverdue reports whether the key is assigned and past its expected
// return. Computed at query time, never stored.
func (k *Key) IsOverdue(now time.Time) bool {
	return k.Status == Assigned && k.Assignment != nil && now.After(k.Assignment.ExpectedReturnAt)
}

var errNotAvailable = errors.New("key not available")

// applyAssign returns a copy of k assigned to holderID, or ErrConflict when
// k is not available. Effective duration is min(requested, MaxDuration).
func applyAssign(k Key, holderID, purpose string, requested time.Duration, now time.Time) (Key, error) {
	if k.Status != Available {
		return Key{}, fmt.Errorf("%w: key %s is %s: %v", ErrConflict, k.ID, k.Status, errNotAvailable)
	}
	if !k.Active {
		return Key{}, fmt.Errorf("%w: key %s is inactive", ErrConflict, k.ID)
	}

	duration := requested
	if k.MaxDuration > 0 && duration > k.MaxDuration {
		duration = k.MaxDuration
	}

	k.Status = Assigned
	k.Assignment = &Assignment{
		HolderID:         holderID,
		AssignedAt:       now,
		ExpectedReturnAt: now.Add(duration),
		Purpose:          purpose,
	}
	k.UpdatedAt = now
	return k, nil
}

// applyReturn clears the assignment and puts the key back on the board.
func applyReturn(k Key, now time.Time) (Key, error) {
	if k.Status != Assigned {
		return Key{}, fmt.Errorf("%w: key %s is %s, not assigned", ErrConflict, k.ID, k.Status)
	}
	k.Status = Available
	k.Assignment = nil
	k.UpdatedAt = now
	return k, nil
}

// applyMaintenance is allowed from any status and clears any assignment as a
// side effect.
func applyMaintenance(k Key, notes string, now time.Time) (Key, error) {
	k.Status = Maintenance
	k.Assignment = nil
	k.MaintenanceNotes = notes
	k.UpdatedAt = now
	return k, nil
}

// applyAvailable resets a non-assigned key to available. Assigned keys must
// be returned first.
func applyAvailable(k Key, now time.Time) (Key, error) {
	if k.Status == Assigned {
		return Key{}, fmt.Errorf("%w: key %s is assigned, return it first", ErrConflict, k.ID)
	}
	k.Status = Available
	k.Assignment = nil
	k.MaintenanceNotes = ""
	k.UpdatedAt = now
	return k, nil
}

// applyFlag marks a key lost or damaged. Assignments are cleared; the flag
// is terminal until a manual applyAvailable.
func applyFlag(k Key, flag Status, now time.Time) (Key, error) {
	if flag != Lost && flag != Damaged {
		return Key{}, fmt.Errorf("invalid administrative flag %s", flag)
	}
	k.Status = flag
	k.Assignment = nil
	k.UpdatedAt = now
	return k, nil
}
