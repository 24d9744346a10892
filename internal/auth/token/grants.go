package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orgservice/internal/membership/rbac"
)

var ErrMalformedGrant = errors.New("malformed_grant")

// Grant is one decoded role claim, e.g. "A27" is ADMIN of organization 27.
type Grant struct {
	OrgID snowflake.ID
	Role  rbac.Role
}

var grantRoles = map[byte]rbac.Role{
	'M': rbac.RoleMember,
	'O': rbac.RoleModerator,
	'A': rbac.RoleAdmin,
	'P': rbac.RolePresident,
}

// ParseGrant decodes a single compact grant.
func ParseGrant(raw string) (Grant, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 {
		return Grant{}, fmt.Errorf("%w: %q", ErrMalformedGrant, raw)
	}
	role, ok := grantRoles[raw[0]]
	if !ok {
		return Grant{}, fmt.Errorf("%w: unknown role %q", ErrMalformedGrant, raw[:1])
	}
	for i := 1; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return Grant{}, fmt.Errorf("%w: %q", ErrMalformedGrant, raw)
		}
	}
	orgID, err := snowflake.ParseString(raw[1:])
	if err != nil || orgID <= 0 {
		return Grant{}, fmt.Errorf("%w: %q", ErrMalformedGrant, raw)
	}
	return Grant{OrgID: orgID, Role: role}, nil
}

// ParseGrants decodes every entry. A single malformed entry fails the whole
// set; a duplicate organization keeps the first grant.
func ParseGrants(raw []string) ([]Grant, error) {
	grants := make([]Grant, 0, len(raw))
	seen := make(map[snowflake.ID]struct{}, len(raw))
	for _, entry := range raw {
		grant, err := ParseGrant(entry)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[grant.OrgID]; dup {
			continue
		}
		seen[grant.OrgID] = struct{}{}
		grants = append(grants, grant)
	}
	return grants, nil
}

// EncodeGrant is the inverse of ParseGrant.
func EncodeGrant(g Grant) string {
	for code, role := range grantRoles {
		if role == g.Role {
			return string(code) + g.OrgID.String()
		}
	}
	return ""
}

// RoleFor returns the claimed role for orgID, or RoleNone.
func RoleFor(grants []Grant, orgID snowflake.ID) rbac.Role {
	for _, g := range grants {
		if g.OrgID == orgID {
			return g.Role
		}
	}
	return rbac.RoleNone
}
