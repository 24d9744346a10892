package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/orgservice/internal/authorization"
	"github.com/smallbiznis/orgservice/internal/clock"
	membershipdomain "github.com/smallbiznis/orgservice/internal/membership/domain"
	"github.com/smallbiznis/orgservice/internal/membership/event"
	"github.com/smallbiznis/orgservice/internal/membership/rbac"
	"github.com/smallbiznis/orgservice/internal/organization/domain"
	"github.com/smallbiznis/orgservice/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxNameLength = 120

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	MemberRepo membershipdomain.Repository
	Publisher  event.Publisher
	Authz      authorization.Service
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	memberRepo membershipdomain.Repository
	publisher  event.Publisher
	authz      authorization.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("organization.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		memberRepo: p.MemberRepo,
		publisher:  p.Publisher,
		authz:      p.Authz,
	}
}

func (s *service) Create(ctx context.Context, actor rbac.Actor, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if actor.UserID == 0 {
		return nil, membershipdomain.ErrInvalidUser
	}

	name, err := normalizeName(req.Name)
	if err != nil {
		return nil, err
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPublic
	}
	if !validVisibility(visibility) {
		return nil, domain.ErrInvalidVisibility
	}

	var keyHash *string
	if req.EnrollmentKey != nil && *req.EnrollmentKey != "" {
		hash, err := domain.HashEnrollmentKey(*req.EnrollmentKey)
		if err != nil {
			return nil, err
		}
		keyHash = &hash
	}
	if visibility == domain.VisibilityPrivate && keyHash == nil {
		return nil, domain.ErrEnrollmentKeyRequired
	}

	now := s.clock.Now()
	org := &domain.Organization{
		ID:                   s.genID.Generate(),
		Name:                 name,
		Description:          strings.TrimSpace(req.Description),
		Visibility:           visibility,
		EnrollmentEnabled:    boolOr(req.EnrollmentEnabled, true),
		EnrollmentKeyHash:    keyHash,
		RequiresVerification: boolOr(req.RequiresVerification, true),
		Metadata:             datatypes.JSONMap(req.Metadata),
		CreatedBy:            actor.UserID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if org.Metadata == nil {
		org.Metadata = datatypes.JSONMap{}
	}

	president := &membershipdomain.Membership{
		ID:         s.genID.Generate(),
		OrgID:      org.ID,
		UserID:     actor.UserID,
		Role:       rbac.RolePresident,
		IsVerified: true,
		VerifiedAt: &now,
		JoinedAt:   now,
		UpdatedAt:  now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		orgSlug, err := s.uniqueSlug(ctx, repo, name, org.ID)
		if err != nil {
			return err
		}
		org.Slug = orgSlug

		if err := repo.Create(ctx, org); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrOrganizationExists
			}
			return err
		}
		if err := s.memberRepo.WithTx(tx).Create(ctx, president); err != nil {
			return err
		}

		publisher := s.publisher.WithTx(tx)
		if err := publisher.Publish(ctx, org.ID, event.TopicOrganizationCreated, event.OrganizationPayload{
			OrgID:   org.ID.String(),
			Slug:    org.Slug,
			ActorID: actor.UserID.String(),
		}); err != nil {
			return err
		}
		return publisher.Publish(ctx, org.ID, event.TopicEnrolled, event.NewMembershipPayload(president, actor.UserID))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
		zap.String("actor_id", actor.UserID.String()),
	)

	return toResponse(org, president), nil
}

func (s *service) Get(ctx context.Context, actor rbac.Actor, orgID snowflake.ID) (*domain.OrganizationResponse, error) {
	org, err := s.repo.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	if org == nil {
		return nil, membershipdomain.ErrOrganizationNotFound
	}

	var membership *membershipdomain.Membership
	if actor.UserID != 0 {
		membership, err = s.memberRepo.Get(ctx, orgID, actor.UserID)
		if err != nil {
			return nil, err
		}
	}

	if org.Visibility == domain.VisibilityPrivate && membership == nil && !actor.GlobalAdmin {
		// private organizations are invisible to outsiders
		return nil, membershipdomain.ErrOrganizationNotFound
	}

	return toResponse(org, membership), nil
}

func (s *service) Update(ctx context.Context, actor rbac.Actor, orgID snowflake.ID, req domain.UpdateOrganizationRequest) (*domain.OrganizationResponse, error) {
	var updated *domain.Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		org, err := repo.GetForUpdate(ctx, orgID)
		if err != nil {
			return err
		}
		if org == nil {
			return membershipdomain.ErrOrganizationNotFound
		}

		current, err := s.scopedActor(ctx, s.memberRepo.WithTx(tx), actor, orgID)
		if err != nil {
			return err
		}
		if hiddenFrom(org, current) {
			return membershipdomain.ErrOrganizationNotFound
		}
		if err := s.authz.Authorize(ctx, current, orgID, authorization.ObjectOrganization, authorization.ActionOrganizationUpdate); err != nil {
			return err
		}

		if err := applyUpdate(org, req); err != nil {
			return err
		}
		org.UpdatedAt = s.clock.Now()

		if err := repo.Update(ctx, org); err != nil {
			return err
		}
		updated = org

		return s.publisher.WithTx(tx).Publish(ctx, orgID, event.TopicOrganizationUpdated, event.OrganizationPayload{
			OrgID:   orgID.String(),
			Slug:    org.Slug,
			ActorID: actor.UserID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization updated",
		zap.String("org_id", orgID.String()),
		zap.String("actor_id", actor.UserID.String()),
	)

	return toResponse(updated, nil), nil
}

func (s *service) Delete(ctx context.Context, actor rbac.Actor, orgID snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		memberRepo := s.memberRepo.WithTx(tx)

		org, err := repo.GetForUpdate(ctx, orgID)
		if err != nil {
			return err
		}
		if org == nil {
			return membershipdomain.ErrOrganizationNotFound
		}

		current, err := s.scopedActor(ctx, memberRepo, actor, orgID)
		if err != nil {
			return err
		}
		if hiddenFrom(org, current) {
			return membershipdomain.ErrOrganizationNotFound
		}
		if err := s.authz.Authorize(ctx, current, orgID, authorization.ObjectOrganization, authorization.ActionOrganizationDelete); err != nil {
			return err
		}

		if err := memberRepo.DeleteByOrg(ctx, orgID); err != nil {
			return err
		}
		if err := repo.Delete(ctx, orgID); err != nil {
			return err
		}

		return s.publisher.WithTx(tx).Publish(ctx, orgID, event.TopicOrganizationDeleted, event.OrganizationPayload{
			OrgID:   orgID.String(),
			Slug:    org.Slug,
			ActorID: actor.UserID.String(),
		})
	})
	if err != nil {
		return err
	}

	s.log.Info("organization deleted",
		zap.String("org_id", orgID.String()),
		zap.String("actor_id", actor.UserID.String()),
	)
	return nil
}

func (s *service) ListForUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListItem, error) {
	if userID == 0 {
		return nil, membershipdomain.ErrInvalidUser
	}

	items, err := s.memberRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.OrganizationListItem, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.OrganizationListItem{
			ID:         item.OrgID.String(),
			Name:       item.OrgName,
			Slug:       item.OrgSlug,
			Role:       item.Role,
			IsVerified: item.IsVerified,
			JoinedAt:   item.JoinedAt,
		})
	}

	return resp, nil
}

func (s *service) scopedActor(ctx context.Context, memberRepo membershipdomain.Repository, actor rbac.Actor, orgID snowflake.ID) (rbac.Actor, error) {
	if actor.GlobalAdmin {
		return rbac.GlobalAdminActor(actor.UserID, orgID), nil
	}
	resolved := rbac.Actor{UserID: actor.UserID, OrgID: orgID, Role: rbac.RoleNone}
	m, err := memberRepo.Get(ctx, orgID, actor.UserID)
	if err != nil {
		return rbac.Actor{}, err
	}
	if m != nil {
		resolved.Role = m.Role
	}
	return resolved, nil
}

// hiddenFrom reports whether a private organization must look absent to
// actor, who is neither a member nor a global admin.
func hiddenFrom(org *domain.Organization, actor rbac.Actor) bool {
	return org.Visibility == domain.VisibilityPrivate && actor.Role == rbac.RoleNone && !actor.GlobalAdmin
}

func (s *service) uniqueSlug(ctx context.Context, repo domain.Repository, name string, id snowflake.ID) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "org"
	}
	exists, err := repo.SlugExists(ctx, base)
	if err != nil {
		return "", err
	}
	if !exists {
		return base, nil
	}
	return fmt.Sprintf("%s-%s", base, id.Base36()), nil
}

func applyUpdate(org *domain.Organization, req domain.UpdateOrganizationRequest) error {
	if req.Name != nil {
		name, err := normalizeName(*req.Name)
		if err != nil {
			return err
		}
		org.Name = name
	}
	if req.Description != nil {
		org.Description = strings.TrimSpace(*req.Description)
	}
	if req.Visibility != nil {
		if !validVisibility(*req.Visibility) {
			return domain.ErrInvalidVisibility
		}
		// PRIVATE -> PUBLIC keeps the existing key
		org.Visibility = *req.Visibility
	}
	if req.EnrollmentEnabled != nil {
		org.EnrollmentEnabled = *req.EnrollmentEnabled
	}
	if req.RequiresVerification != nil {
		org.RequiresVerification = *req.RequiresVerification
	}

	if req.ClearEnrollmentKey && req.EnrollmentKey != nil {
		return domain.ErrInvalidEnrollmentKeyFormat
	}
	if req.ClearEnrollmentKey {
		org.EnrollmentKeyHash = nil
	}
	if req.EnrollmentKey != nil {
		hash, err := domain.HashEnrollmentKey(*req.EnrollmentKey)
		if err != nil {
			return err
		}
		org.EnrollmentKeyHash = &hash
	}

	if req.Metadata != nil {
		org.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if org.Visibility == domain.VisibilityPrivate && !org.HasEnrollmentKey() {
		return domain.ErrEnrollmentKeyRequired
	}
	return nil
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", domain.ErrInvalidName
	}
	return name, nil
}

func validVisibility(v domain.Visibility) bool {
	return v == domain.VisibilityPublic || v == domain.VisibilityPrivate
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func toResponse(org *domain.Organization, membership *membershipdomain.Membership) *domain.OrganizationResponse {
	return &domain.OrganizationResponse{
		ID:                   org.ID.String(),
		Name:                 org.Name,
		Slug:                 org.Slug,
		Description:          org.Description,
		Visibility:           org.Visibility,
		EnrollmentEnabled:    org.EnrollmentEnabled,
		HasEnrollmentKey:     org.HasEnrollmentKey(),
		RequiresVerification: org.RequiresVerification,
		Metadata:             map[string]any(org.Metadata),
		CreatedAt:            org.CreatedAt,
		UpdatedAt:            org.UpdatedAt,
		Membership:           membership,
	}
}
