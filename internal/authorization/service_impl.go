package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	membershipdomain "github.com/smallbiznis/orgservice/internal/membership/domain"
	"github.com/smallbiznis/orgservice/internal/membership/rbac"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectOrganization = "organization"
	ObjectMembership   = "membership"
)

const (
	ActionOrganizationView   = "organization.view"
	ActionOrganizationUpdate = "organization.update"
	ActionOrganizationDelete = "organization.delete"

	ActionMembershipListUnverified = "membership.list_unverified"
	ActionMembershipRemove         = "membership.remove"
)

var (
	ErrForbidden     = membershipdomain.ErrForbidden
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service answers whether an actor may perform an organization-level action.
type Service interface {
	Authorize(ctx context.Context, actor rbac.Actor, orgID snowflake.ID, object, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads policies through the gorm adapter and seeds the role
// graph and the policy catalog. Seeding is idempotent.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedRoleGraph(enforcer); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor rbac.Actor, orgID snowflake.ID, object, action string) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	if actor.GlobalAdmin {
		return nil
	}
	if !actor.InScope(orgID) {
		s.denied(actor, orgID, object, action)
		return ErrForbidden
	}

	allowed, err := s.enforcer.Enforce(RoleSubject(actor.Role), object, action)
	if err != nil {
		return fmt.Errorf("enforce %s: %w", action, err)
	}
	if !allowed {
		s.denied(actor, orgID, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) denied(actor rbac.Actor, orgID snowflake.ID, object, action string) {
	s.log.Debug("authorization denied",
		zap.String("org_id", orgID.String()),
		zap.String("actor_id", actor.UserID.String()),
		zap.String("role", actor.Role.String()),
		zap.String("object", object),
		zap.String("action", action),
	)
}

// RoleSubject is the casbin subject for a membership role.
func RoleSubject(role rbac.Role) string {
	return "role:" + strings.ToLower(role.String())
}

// seedRoleGraph mirrors the rbac hierarchy: each role inherits every
// permission of the role directly below it.
func seedRoleGraph(enforcer *casbin.SyncedEnforcer) error {
	roles := rbac.Roles()
	for i := len(roles) - 1; i > 0; i-- {
		higher, lower := RoleSubject(roles[i]), RoleSubject(roles[i-1])
		has, err := enforcer.HasGroupingPolicy(higher, lower)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(higher, lower); err != nil {
			return err
		}
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{RoleSubject(rbac.RoleMember), ObjectOrganization, ActionOrganizationView},

		{RoleSubject(rbac.RoleAdmin), ObjectOrganization, ActionOrganizationUpdate},
		{RoleSubject(rbac.RoleAdmin), ObjectMembership, ActionMembershipListUnverified},
		{RoleSubject(rbac.RoleAdmin), ObjectMembership, ActionMembershipRemove},

		{RoleSubject(rbac.RolePresident), ObjectOrganization, ActionOrganizationDelete},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
