package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orgservice/internal/membership/rbac"
)

type Service interface {
	Enroll(ctx context.Context, orgID, userID snowflake.ID, suppliedKey *string) (*EnrollResult, error)
	AssignRole(ctx context.Context, actor rbac.Actor, orgID, targetUserID snowflake.ID, newRole rbac.Role) (*Membership, error)
	TransferPresidency(ctx context.Context, actor rbac.Actor, orgID, targetUserID snowflake.ID) (*PresidencyTransfer, error)
	SetVerification(ctx context.Context, actor rbac.Actor, orgID, targetUserID snowflake.ID, verified bool) (*Membership, error)
	Leave(ctx context.Context, actor rbac.Actor) error
	RemoveMember(ctx context.Context, actor rbac.Actor, orgID, targetUserID snowflake.ID) error
	ListVerifiedMembers(ctx context.Context, orgID snowflake.ID, page PageRequest) (*MemberPage, error)
	ListUnverifiedMembers(ctx context.Context, actor rbac.Actor, orgID snowflake.ID, page PageRequest) (*MemberPage, error)
	GetMembership(ctx context.Context, orgID, userID snowflake.ID) (*Membership, error)
	ResolveActor(ctx context.Context, userID snowflake.ID, globalAdmin bool, orgID snowflake.ID) (rbac.Actor, error)
}
