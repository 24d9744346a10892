package rbac

import "github.com/bwmarrin/snowflake"

// Actor is the caller of a membership operation as seen from one
// organization. Role is RoleNone when the user holds no membership there.
type Actor struct {
	UserID      snowflake.ID
	OrgID       snowflake.ID
	Role        Role
	GlobalAdmin bool
}

// GlobalAdminActor synthesizes the PRESIDENT-equivalent actor of a global
// admin. Its scope is not restricted to orgID.
func GlobalAdminActor(userID, orgID snowflake.ID) Actor {
	return Actor{
		UserID:      userID,
		OrgID:       orgID,
		Role:        RolePresident,
		GlobalAdmin: true,
	}
}

// InScope reports whether the actor may act on orgID at all.
func (a Actor) InScope(orgID snowflake.ID) bool {
	return a.GlobalAdmin || (a.OrgID == orgID && a.Role != RoleNone)
}

func (a Actor) HasAtLeast(required Role) bool {
	if a.GlobalAdmin {
		return true
	}
	return HasAtLeast(a.Role, required)
}

func (a Actor) CanAssign(target Role) bool {
	if a.GlobalAdmin {
		return true
	}
	return CanAssignRole(a.Role, target)
}

// Outranks reports whether the actor sits strictly above target.
func (a Actor) Outranks(target Role) bool {
	if a.GlobalAdmin {
		return true
	}
	return a.Role.Level() > target.Level()
}

func (a Actor) IsPresident() bool {
	return a.GlobalAdmin || a.Role == RolePresident
}
