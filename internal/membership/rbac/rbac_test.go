package rbac

import (
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasAtLeastIsTotalOverHierarchy(t *testing.T) {
	for _, actor := range Roles() {
		for _, required := range Roles() {
			t.Run(fmt.Sprintf("%s_vs_%s", actor, required), func(t *testing.T) {
				assert.Equal(t, actor.Level() >= required.Level(), HasAtLeast(actor, required))
			})
		}
	}
}

func TestNoneFailsEveryCheck(t *testing.T) {
	for _, required := range Roles() {
		assert.False(t, HasAtLeast(RoleNone, required), required)
		assert.False(t, CanAssignRole(RoleNone, required), required)
	}
}

func TestCanAssignRoleNeverAllowsEqualOrHigherTarget(t *testing.T) {
	for _, actor := range Roles() {
		for _, target := range Roles() {
			if actor.Level() <= target.Level() {
				assert.False(t, CanAssignRole(actor, target), "%s assigning %s", actor, target)
			}
		}
	}
}

func TestCanAssignRoleMatrix(t *testing.T) {
	cases := []struct {
		actor  Role
		target Role
		want   bool
	}{
		{RolePresident, RoleAdmin, true},
		{RolePresident, RoleModerator, true},
		{RolePresident, RoleMember, true},
		{RolePresident, RolePresident, false},
		{RoleAdmin, RoleModerator, true},
		{RoleAdmin, RoleMember, true},
		{RoleAdmin, RoleAdmin, false},
		{RoleModerator, RoleMember, true},
		{RoleModerator, RoleModerator, false},
		{RoleMember, RoleMember, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanAssignRole(tc.actor, tc.target), "%s assigning %s", tc.actor, tc.target)
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	_, err = ParseRole("OWNER")
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = ParseRole("")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestGlobalAdminBypassesEveryCheck(t *testing.T) {
	actor := GlobalAdminActor(snowflake.ID(1), snowflake.ID(10))

	assert.True(t, actor.InScope(snowflake.ID(99)))
	for _, role := range Roles() {
		assert.True(t, actor.HasAtLeast(role))
		assert.True(t, actor.CanAssign(role))
		assert.True(t, actor.Outranks(role))
	}
	assert.True(t, actor.IsPresident())
}

func TestActorScope(t *testing.T) {
	actor := Actor{UserID: 1, OrgID: 10, Role: RoleAdmin}
	assert.True(t, actor.InScope(10))
	assert.False(t, actor.InScope(11))

	outsider := Actor{UserID: 2, OrgID: 10, Role: RoleNone}
	assert.False(t, outsider.InScope(10))
	assert.False(t, outsider.HasAtLeast(RoleMember))
}
