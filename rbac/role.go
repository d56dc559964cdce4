package rbac

import (
	"errors"
	"fmt"
)

// Role is the closed set of principal roles. The zero value is invalid so an
// uninitialized role never passes a check.
type Role uint8

const (
	// Faculty is the base role for key holders.
	Faculty Role = iota + 1
	// Security staff issue and accept keys at the counter.
	Security
	// HOD (head of department) oversees faculty of one department.
	HOD
	// SecurityIncharge supervises security staff and key inventory.
	SecurityIncharge
	// Admin has every capability.
	Admin
)

// ErrUnknownRole is returned by [Parse] for strings outside the closed set.
var ErrUnknownRole = errors.New("unknown role")

var roleNames = map[Role]string{
	Faculty:          "faculty",
	Security:         "security",
	HOD:              "hod",
	SecurityIncharge: "security_incharge",
	Admin:            "admin",
}

var namesToRole = map[string]Role{
	"faculty":           Faculty,
	"security":          Security,
	"hod":               HOD,
	"security_incharge": SecurityIncharge,
	"admin":             Admin,
}

// Roles lists every valid role in ascending privilege order.
func Roles() []Role {
	return []Role{Faculty, Security, HOD, SecurityIncharge, Admin}
}

// Valid reports whether r is a member of the closed set.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// Level returns the position of r in the total order. Higher means more
// privileged. Invalid roles return 0, below every valid role.
func (r Role) Level() int {
	if !r.Valid() {
		return 0
	}
	return int(r)
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// Parse converts the wire form of a role back to the enum.
func Parse(s string) (Role, error) {
	if role, ok := namesToRole[s]; ok {
		return role, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// MarshalText encodes r as its stable string name so roles embedded in JSON
// claims survive version changes of the numeric values.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes the stable string name.
func (r *Role) UnmarshalText(text []byte) error {
	role, err := Parse(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}
