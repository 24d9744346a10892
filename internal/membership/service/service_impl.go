package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orgservice/internal/authorization"
	"github.com/smallbiznis/orgservice/internal/clock"
	"github.com/smallbiznis/orgservice/internal/config"
	"github.com/smallbiznis/orgservice/internal/membership/domain"
	"github.com/smallbiznis/orgservice/internal/membership/event"
	"github.com/smallbiznis/orgservice/internal/membership/rbac"
	obsmetrics "github.com/smallbiznis/orgservice/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/orgservice/internal/organization/domain"
	"github.com/smallbiznis/orgservice/pkg/db"
	"github.com/smallbiznis/orgservice/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	OrgRepo   orgdomain.Repository
	Publisher event.Publisher
	Authz     authorization.Service
	Policy    *config.PolicyHolder `optional:"true"`
	Metrics   *obsmetrics.Metrics  `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	orgRepo   orgdomain.Repository
	publisher event.Publisher
	authz     authorization.Service
	policy    *config.PolicyHolder
	metrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("membership.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		orgRepo:   p.OrgRepo,
		publisher: p.Publisher,
		authz:     p.Authz,
		policy:    p.Policy,
		metrics:   p.Metrics,
	}
}

func (s *Service) Enroll(ctx context.Context, orgID, userID snowflake.ID, suppliedKey *string) (*domain.EnrollResult, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	org, err := s.orgRepo.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	if !org.EnrollmentEnabled {
		return nil, domain.ErrEnrollmentDisabled
	}
	if org.HasEnrollmentKey() {
		if suppliedKey == nil {
			return nil, domain.ErrInvalidEnrollmentKey
		}
		ok, err := org.MatchEnrollmentKey(*suppliedKey)
		if err != nil {
			return nil, fmt.Errorf("compare enrollment key: %w", err)
		}
		if !ok {
			s.log.Info("enrollment key rejected",
				zap.String("org_id", orgID.String()),
				zap.String("user_id", userID.String()),
			)
			return nil, domain.ErrInvalidEnrollmentKey
		}
	}

	now := s.clock.Now()
	membership := &domain.Membership{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		UserID:     userID,
		Role:       rbac.RoleMember,
		IsVerified: !org.RequiresVerification,
		JoinedAt:   now,
		UpdatedAt:  now,
	}
	if membership.IsVerified {
		// self-verified: verifiedBy stays empty
		membership.VerifiedAt = &now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.Get(ctx, orgID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadyEnrolled
		}

		if err := repo.Create(ctx, membership); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadyEnrolled
			}
			return err
		}

		return s.publisher.WithTx(tx).Publish(ctx, orgID, event.TopicEnrolled, event.NewMembershipPayload(membership, 0))
	})
	if err != nil {
		return nil, err
	}

	status := domain.EnrollStatusPendingVerification
	if membership.IsVerified {
		status = domain.EnrollStatusVerified
	}
	s.metrics.RecordEnrollment(ctx, orgID.String(), string(status))
	s.log.Info("member enrolled",
		zap.String("org_id", orgID.String()),
		zap.String("user_id", userID.String()),
		zap.String("status", string(status)),
	)

	return &domain.EnrollResult{Membership: membership, Status: status}, nil
}

func (s *Service) AssignRole(ctx context.Context, actor rbac.Actor, orgID, targetUserID snowflake.ID, newRole rbac.Role) (*domain.Membership, error) {
	if !newRole.Valid() {
		return nil, domain.ErrInvalidOperation
	}

	var (
		target   *domain.Membership
		previous rbac.Role
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := s.currentActor(ctx, repo, actor, orgID)
		if err != nil {
			return err
		}

		target, err = repo.GetForUpdate(ctx, orgID, targetUserID)
		if err != nil {
			return err
		}
		if target == nil {
			return domain.ErrNotAMember
		}

		if current.UserID == targetUserID || !current.CanAssign(newRole) {
			return domain.ErrForbidden
		}
		if target.Role != rbac.RolePresident && !current.CanAssign(target.Role) {
			return domain.ErrForbidden
		}
		if newRole == rbac.RolePresident || target.Role == rbac.RolePresident {
			return domain.ErrInvalidOperation
		}

		previous = target.Role
		if previous == newRole {
			return nil
		}

		now := s.clock.Now()
		if err := repo.UpdateRole(ctx, target.ID, newRole, now); err != nil {
			return err
		}
		target.Role = newRole
		target.UpdatedAt = now

		return s.publisher.WithTx(tx).Publish(ctx, orgID, event.TopicRoleChanged, event.RoleChangedPayload{
			OrgID:    orgID.String(),
			UserID:   targetUserID.String(),
			FromRole: string(previous),
			ToRole:   string(newRole),
			ActorID:  actor.UserID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	if previous != newRole {
		s.metrics.RecordRoleChange(ctx, orgID.String(), string(previous), string(newRole))
		s.log.Info("role assigned",
			zap.String("org_id", orgID.String()),
			zap.String("user_id", targetUserID.String()),
			zap.String("from_role", string(previous)),
			zap.String("to_role", string(newRole)),
			zap.String("actor_id", actor.UserID.String()),
		)
	}

	return target, nil
}

func (s *Service) TransferPresidency(ctx context.Context, actor rbac.Actor, orgID, targetUserID snowflake.ID) (*domain.PresidencyTransfer, error) {
	var result domain.PresidencyTransfer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := s.currentActor(ctx, repo, actor, orgID)
		if err != nil {
			return err
		}
		if !current.IsPresident() {
			return domain.ErrForbidden
		}

		// president row first, then target: every transfer locks in the same order
		president, err := repo.GetPresidentForUpdate(ctx, orgID)
		if err != nil {
			return err
		}
		target, err := repo.GetForUpdate(ctx, orgID, targetUserID)
		if err != nil {
			return err
		}
		if target == nil {
			return domain.ErrNotAMember
		}
		if president == nil {
			return fmt.Errorf("organization %s has no president", orgID)
		}

		// a concurrent transfer may have moved the office since the actor was resolved
		if !current.GlobalAdmin && president.UserID != current.UserID {
			return domain.ErrForbidden
		}
		if target.ID == president.ID {
			return domain.ErrInvalidOperation
		}

		now := s.clock.Now()
		if err := repo.UpdateRole(ctx, president.ID, rbac.RoleAdmin, now); err != nil {
			return err
		}
		if err := repo.UpdateRole(ctx, target.ID, rbac.RolePresident, now); err != nil {
			return err
		}
		president.Role, president.UpdatedAt = rbac.RoleAdmin, now
		target.Role, target.UpdatedAt = rbac.RolePresident, now

		result = domain.PresidencyTransfer{President: target, FormerPresident: president}

		return s.publisher.WithTx(tx).Publish(ctx, orgID, event.TopicPresidencyTransferred, event.PresidencyTransferredPayload{
			OrgID:         orgID.String(),
			FromUserID:    president.UserID.String(),
			ToUserID:      target.UserID.String(),
			ActorID:       actor.UserID.String(),
			ByGlobalAdmin: current.GlobalAdmin,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPresidencyTransfer(ctx, orgID.String())
	s.log.Info("presidency transferred",
		zap.String("org_id", orgID.String()),
		zap.String("from_user_id", result.FormerPresident.UserID.String()),
		zap.String("to_user_id", result.President.UserID.String()),
		zap.String("actor_id", actor.UserID.String()),
	)

	return &result, nil
}

func (s *Service) SetVerification(ctx context.Context, actor rbac.Actor, orgID, targetUserID snowflake.ID, verified bool) (*domain.Membership, error) {
	var target *domain.Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := s.currentActor(ctx, repo, actor, orgID)
		if err != nil {
			return err
		}
		if !current.HasAtLeast(rbac.RoleAdmin) {
			return domain.ErrForbidden
		}

		org, err := s.orgRepo.WithTx(tx).Get(ctx, orgID)
		if err != nil {
			return err
		}
		if org == nil {
			return domain.ErrOrganizationNotFound
		}
		if !org.EnrollmentEnabled {
			return domain.ErrEnrollmentDisabled
		}

		target, err = repo.GetForUpdate(ctx, orgID, targetUserID)
		if err != nil {
			return err
		}
		if target == nil {
			return domain.ErrNotAMember
		}

		now := s.clock.Now()
		var (
			verifiedBy *snowflake.ID
			verifiedAt *time.Time
		)
		if verified {
			by := current.UserID
			verifiedBy, verifiedAt = &by, &now
		}
		if err := repo.UpdateVerification(ctx, target.ID, verified, verifiedBy, verifiedAt, now); err != nil {
			return err
		}
		target.IsVerified = verified
		target.VerifiedBy = verifiedBy
		target.VerifiedAt = verifiedAt
		target.UpdatedAt = now

		return s.publisher.WithTx(tx).Publish(ctx, orgID, event.TopicVerificationChanged, event.NewMembershipPayload(target, current.UserID))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordVerificationChange(ctx, orgID.String(), verified)
	s.log.Info("verification changed",
		zap.String("org_id", orgID.String()),
		zap.String("user_id", targetUserID.String()),
		zap.Bool("verified", verified),
		zap.String("actor_id", actor.UserID.String()),
	)

	return target, nil
}

func (s *Service) Leave(ctx context.Context, actor rbac.Actor) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		m, err := repo.GetForUpdate(ctx, actor.OrgID, actor.UserID)
		if err != nil {
			return err
		}
		if m == nil {
			return domain.ErrNotAMember
		}
		if m.Role == rbac.RolePresident {
			return domain.ErrInvalidOperation
		}

		if err := repo.Delete(ctx, m.ID); err != nil {
			return err
		}
		return s.publisher.WithTx(tx).Publish(ctx, actor.OrgID, event.TopicLeft, event.NewMembershipPayload(m, actor.UserID))
	})
	if err != nil {
		return err
	}

	s.log.Info("member left",
		zap.String("org_id", actor.OrgID.String()),
		zap.String("user_id", actor.UserID.String()),
	)
	return nil
}

func (s *Service) RemoveMember(ctx context.Context, actor rbac.Actor, orgID, targetUserID snowflake.ID) error {
	if actor.UserID == targetUserID {
		return domain.ErrInvalidOperation
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := s.currentActor(ctx, repo, actor, orgID)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(ctx, current, orgID, authorization.ObjectMembership, authorization.ActionMembershipRemove); err != nil {
			return err
		}

		target, err := repo.GetForUpdate(ctx, orgID, targetUserID)
		if err != nil {
			return err
		}
		if target == nil {
			return domain.ErrNotAMember
		}
		if target.Role == rbac.RolePresident {
			return domain.ErrInvalidOperation
		}
		if !current.Outranks(target.Role) {
			return domain.ErrForbidden
		}

		if err := repo.Delete(ctx, target.ID); err != nil {
			return err
		}
		return s.publisher.WithTx(tx).Publish(ctx, orgID, event.TopicRemoved, event.NewMembershipPayload(target, current.UserID))
	})
	if err != nil {
		return err
	}

	s.log.Info("member removed",
		zap.String("org_id", orgID.String()),
		zap.String("user_id", targetUserID.String()),
		zap.String("actor_id", actor.UserID.String()),
	)
	return nil
}

func (s *Service) ListVerifiedMembers(ctx context.Context, orgID snowflake.ID, page domain.PageRequest) (*domain.MemberPage, error) {
	org, err := s.orgRepo.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return s.listMembers(ctx, orgID, true, page)
}

func (s *Service) ListUnverifiedMembers(ctx context.Context, actor rbac.Actor, orgID snowflake.ID, page domain.PageRequest) (*domain.MemberPage, error) {
	current, err := s.currentActor(ctx, s.repo, actor, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, current, orgID, authorization.ObjectMembership, authorization.ActionMembershipListUnverified); err != nil {
		return nil, err
	}

	if current.GlobalAdmin {
		org, err := s.orgRepo.Get(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("load organization: %w", err)
		}
		if org == nil {
			return nil, domain.ErrOrganizationNotFound
		}
	}
	return s.listMembers(ctx, orgID, false, page)
}

func (s *Service) GetMembership(ctx context.Context, orgID, userID snowflake.ID) (*domain.Membership, error) {
	m, err := s.repo.Get(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.ErrNotAMember
	}
	return m, nil
}

func (s *Service) ResolveActor(ctx context.Context, userID snowflake.ID, globalAdmin bool, orgID snowflake.ID) (rbac.Actor, error) {
	if globalAdmin {
		return rbac.GlobalAdminActor(userID, orgID), nil
	}
	return s.currentActor(ctx, s.repo, rbac.Actor{UserID: userID, OrgID: orgID}, orgID)
}

// currentActor re-reads the actor's role for orgID through repo, so checks
// made inside a transaction see the committed role rather than the one
// resolved at the start of the request.
func (s *Service) currentActor(ctx context.Context, repo domain.Repository, actor rbac.Actor, orgID snowflake.ID) (rbac.Actor, error) {
	if actor.GlobalAdmin {
		return rbac.GlobalAdminActor(actor.UserID, orgID), nil
	}

	resolved := rbac.Actor{UserID: actor.UserID, OrgID: orgID, Role: rbac.RoleNone}
	if actor.UserID == 0 {
		return resolved, nil
	}

	m, err := repo.Get(ctx, orgID, actor.UserID)
	if err != nil {
		return rbac.Actor{}, err
	}
	if m != nil {
		resolved.Role = m.Role
	}
	return resolved, nil
}

func (s *Service) listMembers(ctx context.Context, orgID snowflake.ID, verified bool, page domain.PageRequest) (*domain.MemberPage, error) {
	policy := s.policy.Get().Pagination
	size := pagination.ClampPageSize(page.PageSize, policy.DefaultPageSize, policy.MaxPageSize)

	afterID, err := pagination.DecodeIDCursor(page.PageToken)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.List(ctx, domain.ListFilter{
		OrgID:    orgID,
		Verified: verified,
		AfterID:  snowflake.ID(afterID),
		Limit:    size + 1,
	})
	if err != nil {
		return nil, err
	}

	items, info, err := pagination.BuildCursorPageInfo(items, size, func(m *domain.Membership) string {
		return strconv.FormatInt(m.ID.Int64(), 10)
	})
	if err != nil {
		return nil, err
	}

	return &domain.MemberPage{
		Items:         items,
		NextPageToken: info.NextPageToken,
		HasMore:       info.HasMore,
	}, nil
}
