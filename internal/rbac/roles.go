package rbac

import "strings"

// Role is the closed set of roles the service knows about.
// Keep names stable; they are part of the token contract.
type Role string

const (
	RoleOwner      Role = "OWNER"
	RoleManager    Role = "MANAGER"
	RoleInstructor Role = "INSTRUCTOR"
	RoleStaff      Role = "STAFF"
)

type capability uint8

const (
	capUnrestricted capability = 1 << iota
)

var roleCaps = map[Role]capability{
	RoleOwner:      capUnrestricted,
	RoleManager:    0,
	RoleInstructor: 0,
	RoleStaff:      0,
}

// ParseRole maps a token role claim onto a known Role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.TrimSpace(s))
	_, ok := roleCaps[r]
	return r, ok
}

// Unrestricted reports whether r bypasses permission checks entirely.
func (r Role) Unrestricted() bool {
	return roleCaps[r]&capUnrestricted != 0
}

func (r Role) String() string { return string(r) }
