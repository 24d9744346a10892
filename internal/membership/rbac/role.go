// Package rbac evaluates organization roles. Everything here is pure: no
// storage, no clocks, no logging.
package rbac

import (
	"errors"
	"strings"
)

type Role string

const (
	RoleNone      Role = ""
	RoleMember    Role = "MEMBER"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
	RolePresident Role = "PRESIDENT"
)

var ErrInvalidRole = errors.New("invalid_role")

var roleLevels = map[Role]int{
	RoleNone:      0,
	RoleMember:    1,
	RoleModerator: 2,
	RoleAdmin:     3,
	RolePresident: 4,
}

// Roles lists the assignable hierarchy from lowest to highest.
func Roles() []Role {
	return []Role{RoleMember, RoleModerator, RoleAdmin, RolePresident}
}

// ParseRole accepts the canonical upper-case name, ignoring surrounding
// whitespace and case.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if role == RoleNone {
		return RoleNone, ErrInvalidRole
	}
	if _, ok := roleLevels[role]; !ok {
		return RoleNone, ErrInvalidRole
	}
	return role, nil
}

// Level returns the rank of r. Unknown roles rank as NONE.
func (r Role) Level() int {
	return roleLevels[r]
}

func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok && r != RoleNone
}

func (r Role) String() string {
	if r == RoleNone {
		return "NONE"
	}
	return string(r)
}

// HasAtLeast reports whether actor ranks at or above required.
func HasAtLeast(actor, required Role) bool {
	return actor.Level() >= required.Level() && actor.Level() > 0
}

// CanAssignRole reports whether actor may grant or revoke target. PRESIDENT is
// never assignable; it only moves through a presidency transfer. ADMIN can
// only be handed out by the PRESIDENT.
func CanAssignRole(actor, target Role) bool {
	switch target {
	case RolePresident:
		return false
	case RoleAdmin:
		return actor == RolePresident
	}
	return actor.Level() > target.Level()
}
