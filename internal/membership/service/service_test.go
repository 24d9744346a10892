package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/smallbiznis/orgservice/internal/authorization"
	"github.com/smallbiznis/orgservice/internal/clock"
	"github.com/smallbiznis/orgservice/internal/config"
	"github.com/smallbiznis/orgservice/internal/membership/domain"
	"github.com/smallbiznis/orgservice/internal/membership/event"
	"github.com/smallbiznis/orgservice/internal/membership/rbac"
	"github.com/smallbiznis/orgservice/internal/membership/repository"
	"github.com/smallbiznis/orgservice/internal/migration"
	obsmetrics "github.com/smallbiznis/orgservice/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/orgservice/internal/organization/domain"
	orgrepository "github.com/smallbiznis/orgservice/internal/organization/repository"
	"github.com/smallbiznis/orgservice/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	svc      domain.Service
	clock    *clock.FakeClock
	genID    *snowflake.Node
	enforcer *casbin.SyncedEnforcer
}

type envOption func(*Params)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	policy := config.DefaultMembershipPolicy()
	policy.Pagination.DefaultPageSize = 2

	params := Params{
		DB:        conn,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      repository.NewRepository(conn),
		OrgRepo:   orgrepository.NewRepository(conn),
		Publisher: event.NewOutboxPublisher(conn, node, clk),
		Authz:     authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer}),
		Policy:    config.NewStaticPolicyHolder(policy),
		Metrics:   obsmetrics.NewNoop(),
	}
	for _, opt := range opts {
		opt(&params)
	}

	return &testEnv{db: conn, svc: New(params), clock: clk, genID: node, enforcer: enforcer}
}

type orgOption func(*orgdomain.Organization)

func withKey(t *testing.T, key string) orgOption {
	return func(o *orgdomain.Organization) {
		hash, err := orgdomain.HashEnrollmentKey(key)
		require.NoError(t, err)
		o.EnrollmentKeyHash = &hash
	}
}

func private(o *orgdomain.Organization)          { o.Visibility = orgdomain.VisibilityPrivate }
func autoVerify(o *orgdomain.Organization)       { o.RequiresVerification = false }
func enrollmentClosed(o *orgdomain.Organization) { o.EnrollmentEnabled = false }

func (e *testEnv) org(t *testing.T, opts ...orgOption) snowflake.ID {
	t.Helper()

	id := e.genID.Generate()
	org := &orgdomain.Organization{
		ID:                   id,
		Name:                 "Chess Club " + id.String(),
		Slug:                 "chess-club-" + id.String(),
		Visibility:           orgdomain.VisibilityPublic,
		EnrollmentEnabled:    true,
		RequiresVerification: true,
		CreatedBy:            1,
		CreatedAt:            e.clock.Now(),
		UpdatedAt:            e.clock.Now(),
	}
	for _, opt := range opts {
		opt(org)
	}
	require.NoError(t, e.db.Create(org).Error)
	return id
}

func (e *testEnv) member(t *testing.T, orgID, userID snowflake.ID, role rbac.Role, verified bool) rbac.Actor {
	t.Helper()

	require.NoError(t, e.db.Create(&domain.Membership{
		ID:         e.genID.Generate(),
		OrgID:      orgID,
		UserID:     userID,
		Role:       role,
		IsVerified: verified,
		JoinedAt:   e.clock.Now(),
		UpdatedAt:  e.clock.Now(),
	}).Error)
	return rbac.Actor{UserID: userID, OrgID: orgID, Role: role}
}

func (e *testEnv) role(t *testing.T, orgID, userID snowflake.ID) rbac.Role {
	t.Helper()

	m, err := e.svc.GetMembership(context.Background(), orgID, userID)
	require.NoError(t, err)
	return m.Role
}

func (e *testEnv) topics(t *testing.T, orgID snowflake.ID) []string {
	t.Helper()

	var topics []string
	require.NoError(t, e.db.Model(&domain.MembershipEvent{}).
		Where("org_id = ?", orgID).
		Order("id ASC").
		Pluck("topic", &topics).Error)
	return topics
}

func strPtr(s string) *string { return &s }

func TestEnrollPrivateOrgRequiresKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t, private, withKey(t, "ABC123"))
	userID := snowflake.ID(42)

	_, err := env.svc.Enroll(ctx, orgID, userID, strPtr("wrong"))
	assert.ErrorIs(t, err, domain.ErrInvalidEnrollmentKey)

	_, err = env.svc.Enroll(ctx, orgID, userID, strPtr("abc123"))
	assert.ErrorIs(t, err, domain.ErrInvalidEnrollmentKey, "comparison is case-sensitive")

	_, err = env.svc.Enroll(ctx, orgID, userID, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidEnrollmentKey)

	res, err := env.svc.Enroll(ctx, orgID, userID, strPtr("ABC123"))
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollStatusPendingVerification, res.Status)
	assert.False(t, res.Membership.IsVerified)
	assert.Nil(t, res.Membership.VerifiedBy)
	assert.Nil(t, res.Membership.VerifiedAt)
	assert.Equal(t, rbac.RoleMember, res.Membership.Role)
	assert.Equal(t, env.clock.Now(), res.Membership.JoinedAt)
}

func TestEnrollPublicOrgAutoVerifies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t, autoVerify)

	res, err := env.svc.Enroll(ctx, orgID, 42, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollStatusVerified, res.Status)
	assert.True(t, res.Membership.IsVerified)
	assert.Nil(t, res.Membership.VerifiedBy)
	require.NotNil(t, res.Membership.VerifiedAt)

	stored, err := env.svc.GetMembership(ctx, orgID, 42)
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)
	assert.Nil(t, stored.VerifiedBy)

	assert.Equal(t, []string{event.TopicEnrolled}, env.topics(t, orgID))
}

func TestEnrollPublicOrgWithKey(t *testing.T) {
	env := newTestEnv(t)
	orgID := env.org(t, withKey(t, "s3cret"))

	_, err := env.svc.Enroll(context.Background(), orgID, 42, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidEnrollmentKey)
}

func TestEnrollFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Enroll(ctx, 999, 42, nil)
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)

	closed := env.org(t, enrollmentClosed)
	_, err = env.svc.Enroll(ctx, closed, 42, nil)
	assert.ErrorIs(t, err, domain.ErrEnrollmentDisabled)

	open := env.org(t)
	_, err = env.svc.Enroll(ctx, open, 0, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
}

func TestEnrollTwiceIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t)

	_, err := env.svc.Enroll(ctx, orgID, 42, nil)
	require.NoError(t, err)

	_, err = env.svc.Enroll(ctx, orgID, 42, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyEnrolled)
}

// staleReadRepo misses every lookup, as a transaction racing a concurrent
// enrollment would, so the unique index has the final word.
type staleReadRepo struct {
	domain.Repository
}

func (r staleReadRepo) Get(context.Context, snowflake.ID, snowflake.ID) (*domain.Membership, error) {
	return nil, nil
}

func (r staleReadRepo) WithTx(tx *gorm.DB) domain.Repository {
	return staleReadRepo{Repository: r.Repository.WithTx(tx)}
}

func TestEnrollDuplicateKeyIsAlreadyEnrolled(t *testing.T) {
	env := newTestEnv(t, func(p *Params) {
		p.Repo = staleReadRepo{Repository: repository.NewRepository(p.DB)}
	})
	ctx := context.Background()
	orgID := env.org(t)
	env.member(t, orgID, 42, rbac.RoleMember, true)

	_, err := env.svc.Enroll(ctx, orgID, 42, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyEnrolled)

	var count int64
	require.NoError(t, env.db.Model(&domain.Membership{}).Where("org_id = ? AND user_id = ?", orgID, 42).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.Empty(t, env.topics(t, orgID))
}

func TestEnrollRejectsKeyBeyondBcryptLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := strings.Repeat("k", 72)
	orgID := env.org(t, private, withKey(t, key))

	_, err := env.svc.Enroll(ctx, orgID, 42, strPtr(key+"EXTRA"))
	assert.ErrorIs(t, err, domain.ErrInvalidEnrollmentKey)

	_, err = env.svc.Enroll(ctx, orgID, 42, strPtr(key))
	require.NoError(t, err)
}

func TestEnrollConcurrentSameUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t)

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Enroll(ctx, orgID, 42, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, domain.ErrAlreadyEnrolled):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, rejected)

	var count int64
	require.NoError(t, env.db.Model(&domain.Membership{}).Where("org_id = ? AND user_id = ?", orgID, 42).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestAssignRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t)

	president := env.member(t, orgID, 1, rbac.RolePresident, true)
	admin := env.member(t, orgID, 2, rbac.RoleAdmin, true)
	moderator := env.member(t, orgID, 3, rbac.RoleModerator, true)
	env.member(t, orgID, 4, rbac.RoleMember, false)
	env.member(t, orgID, 5, rbac.RoleMember, true)

	m, err := env.svc.AssignRole(ctx, admin, orgID, 4, rbac.RoleModerator)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleModerator, m.Role)
	assert.False(t, m.IsVerified, "verification fields are untouched")

	// only the president hands out ADMIN
	_, err = env.svc.AssignRole(ctx, admin, orgID, 5, rbac.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	m, err = env.svc.AssignRole(ctx, president, orgID, 5, rbac.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, m.Role)

	// admins cannot demote their peers
	_, err = env.svc.AssignRole(ctx, admin, orgID, 5, rbac.RoleMember)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// moderators cannot touch equals
	_, err = env.svc.AssignRole(ctx, moderator, orgID, 4, rbac.RoleMember)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.svc.AssignRole(ctx, admin, orgID, 2, rbac.RoleModerator)
	assert.ErrorIs(t, err, domain.ErrForbidden, "self role changes are refused")

	_, err = env.svc.AssignRole(ctx, president, orgID, 2, rbac.RolePresident)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.svc.AssignRole(ctx, rbac.GlobalAdminActor(77, orgID), orgID, 2, rbac.RolePresident)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	_, err = env.svc.AssignRole(ctx, rbac.GlobalAdminActor(77, orgID), orgID, 1, rbac.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation, "the president is only changed by transfer")

	_, err = env.svc.AssignRole(ctx, president, orgID, 404, rbac.RoleMember)
	assert.ErrorIs(t, err, domain.ErrNotAMember)

	_, err = env.svc.AssignRole(ctx, president, orgID, 4, rbac.Role("OWNER"))
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	assert.Equal(t, rbac.RolePresident, env.role(t, orgID, 1))
	assert.Equal(t, rbac.RoleAdmin, env.role(t, orgID, 2))
}

func TestAssignRoleUsesStoredRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t)

	env.member(t, orgID, 2, rbac.RoleMember, true)
	env.member(t, orgID, 3, rbac.RoleMember, true)

	// a stale actor claiming ADMIN is resolved against the store
	stale := rbac.Actor{UserID: 2, OrgID: orgID, Role: rbac.RoleAdmin}
	_, err := env.svc.AssignRole(ctx, stale, orgID, 3, rbac.RoleModerator)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	outsider := rbac.Actor{UserID: 9, OrgID: orgID}
	_, err = env.svc.AssignRole(ctx, outsider, orgID, 3, rbac.RoleModerator)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAssignSameRoleIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t)

	president := env.member(t, orgID, 1, rbac.RolePresident, true)
	env.member(t, orgID, 2, rbac.RoleModerator, true)

	m, err := env.svc.AssignRole(ctx, president, orgID, 2, rbac.RoleModerator)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleModerator, m.Role)
	assert.Empty(t, env.topics(t, orgID))
}

func TestTransferPresidency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t)

	president := env.member(t, orgID, 1, rbac.RolePresident, true)
	admin := env.member(t, orgID, 2, rbac.RoleAdmin, true)
	env.member(t, orgID, 3, rbac.RoleMember, true)

	_, err := env.svc.TransferPresidency(ctx, admin, orgID, 3)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.svc.TransferPresidency(ctx, president, orgID, 404)
	assert.ErrorIs(t, err, domain.ErrNotAMember)

	_, err = env.svc.TransferPresidency(ctx, president, orgID, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	res, err := env.svc.TransferPresidency(ctx, president, orgID, 3)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(3), res.President.UserID)
	assert.Equal(t, rbac.RolePresident, res.President.Role)
	assert.Equal(t, snowflake.ID(1), res.FormerPresident.UserID)
	assert.Equal(t, rbac.RoleAdmin, res.FormerPresident.Role)

	assert.Equal(t, rbac.RoleAdmin, env.role(t, orgID, 1))
	assert.Equal(t, rbac.RolePresident, env.role(t, orgID, 3))

	// the former president no longer holds the office
	_, err = env.svc.TransferPresidency(ctx, president, orgID, 2)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.Equal(t, []string{event.TopicPresidencyTransferred}, env.topics(t, orgID))
}

func TestTransferPresidencyByGlobalAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t)

	env.member(t, orgID, 1, rbac.RolePresident, true)
	env.member(t, orgID, 2, rbac.RoleMember, true)

	res, err := env.svc.TransferPresidency(ctx, rbac.GlobalAdminActor(77, orgID), orgID, 2)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), res.FormerPresident.UserID)
	assert.Equal(t, rbac.RoleAdmin, env.role(t, orgID, 1))
	assert.Equal(t, rbac.RolePresident, env.role(t, orgID, 2))
}

func TestConcurrentTransfersKeepOnePresident(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t)
	repo := repository.NewRepository(env.db)

	president := env.member(t, orgID, 1, rbac.RolePresident, true)
	for uid := snowflake.ID(2); uid <= 6; uid++ {
		env.member(t, orgID, uid, rbac.RoleAdmin, true)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for uid := snowflake.ID(2); uid <= 6; uid++ {
		wg.Add(1)
		go func(target snowflake.ID) {
			defer wg.Done()
			_, err := env.svc.TransferPresidency(ctx, president, orgID, target)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			assert.ErrorIs(t, err, domain.ErrForbidden)
		}(uid)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)

	count, err := repo.CountByRole(ctx, orgID, rbac.RolePresident)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, rbac.RoleAdmin, env.role(t, orgID, 1))
}

func TestSetVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t, private, withKey(t, "ABC123"))

	admin := env.member(t, orgID, 2, rbac.RoleAdmin, true)

	res, err := env.svc.Enroll(ctx, orgID, 42, strPtr("ABC123"))
	require.NoError(t, err)
	require.Equal(t, domain.EnrollStatusPendingVerification, res.Status)

	env.clock.Advance(time.Hour)
	m, err := env.svc.SetVerification(ctx, admin, orgID, 42, true)
	require.NoError(t, err)
	assert.True(t, m.IsVerified)
	require.NotNil(t, m.VerifiedBy)
	assert.Equal(t, admin.UserID, *m.VerifiedBy)
	require.NotNil(t, m.VerifiedAt)
	assert.Equal(t, env.clock.Now(), *m.VerifiedAt)

	stored, err := env.svc.GetMembership(ctx, orgID, 42)
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)
	require.NotNil(t, stored.VerifiedBy)
	assert.Equal(t, admin.UserID, *stored.VerifiedBy)

	m, err = env.svc.SetVerification(ctx, admin, orgID, 42, false)
	require.NoError(t, err)
	assert.False(t, m.IsVerified)
	assert.Nil(t, m.VerifiedBy)
	assert.Nil(t, m.VerifiedAt)

	stored, err = env.svc.GetMembership(ctx, orgID, 42)
	require.NoError(t, err)
	assert.False(t, stored.IsVerified)
	assert.Nil(t, stored.VerifiedBy)
	assert.Nil(t, stored.VerifiedAt)
}

func TestModeratorCannotVerify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t, private, withKey(t, "ABC123"))

	moderator := env.member(t, orgID, 3, rbac.RoleModerator, true)
	_, err := env.svc.Enroll(ctx, orgID, 42, strPtr("ABC123"))
	require.NoError(t, err)

	_, err = env.svc.SetVerification(ctx, moderator, orgID, 42, true)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	stored, err := env.svc.GetMembership(ctx, orgID, 42)
	require.NoError(t, err)
	assert.False(t, stored.IsVerified)
}

func TestSetVerificationGatedByEnrollment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t, enrollmentClosed)

	president := env.member(t, orgID, 1, rbac.RolePresident, true)
	env.member(t, orgID, 42, rbac.RoleMember, false)

	_, err := env.svc.SetVerification(ctx, president, orgID, 42, true)
	assert.ErrorIs(t, err, domain.ErrEnrollmentDisabled)

	_, err = env.svc.SetVerification(ctx, rbac.GlobalAdminActor(77, orgID), orgID, 42, true)
	assert.ErrorIs(t, err, domain.ErrEnrollmentDisabled)
}

func TestSetVerificationUnknownTarget(t *testing.T) {
	env := newTestEnv(t)
	orgID := env.org(t)
	president := env.member(t, orgID, 1, rbac.RolePresident, true)

	_, err := env.svc.SetVerification(context.Background(), president, orgID, 404, true)
	assert.ErrorIs(t, err, domain.ErrNotAMember)
}

func TestLeave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t)

	president := env.member(t, orgID, 1, rbac.RolePresident, true)
	member := env.member(t, orgID, 2, rbac.RoleMember, true)

	assert.ErrorIs(t, env.svc.Leave(ctx, president), domain.ErrInvalidOperation)

	require.NoError(t, env.svc.Leave(ctx, member))
	_, err := env.svc.GetMembership(ctx, orgID, 2)
	assert.ErrorIs(t, err, domain.ErrNotAMember)

	assert.ErrorIs(t, env.svc.Leave(ctx, member), domain.ErrNotAMember)
	assert.Equal(t, []string{event.TopicLeft}, env.topics(t, orgID))
}

func TestRemoveMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t)

	president := env.member(t, orgID, 1, rbac.RolePresident, true)
	admin := env.member(t, orgID, 2, rbac.RoleAdmin, true)
	moderator := env.member(t, orgID, 3, rbac.RoleModerator, true)
	env.member(t, orgID, 4, rbac.RoleMember, true)
	env.member(t, orgID, 5, rbac.RoleAdmin, true)

	assert.ErrorIs(t, env.svc.RemoveMember(ctx, moderator, orgID, 4), domain.ErrForbidden)
	assert.ErrorIs(t, env.svc.RemoveMember(ctx, admin, orgID, 5), domain.ErrForbidden)
	assert.ErrorIs(t, env.svc.RemoveMember(ctx, admin, orgID, 1), domain.ErrInvalidOperation)
	assert.ErrorIs(t, env.svc.RemoveMember(ctx, admin, orgID, 2), domain.ErrInvalidOperation)
	assert.ErrorIs(t, env.svc.RemoveMember(ctx, admin, orgID, 404), domain.ErrNotAMember)

	require.NoError(t, env.svc.RemoveMember(ctx, admin, orgID, 4))
	require.NoError(t, env.svc.RemoveMember(ctx, president, orgID, 5))
	require.NoError(t, env.svc.RemoveMember(ctx, rbac.GlobalAdminActor(77, orgID), orgID, 3))

	for _, uid := range []snowflake.ID{3, 4, 5} {
		_, err := env.svc.GetMembership(ctx, orgID, uid)
		assert.ErrorIs(t, err, domain.ErrNotAMember)
	}
}

func TestMemberActionsFollowPolicies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t)

	president := env.member(t, orgID, 1, rbac.RolePresident, true)
	admin := env.member(t, orgID, 2, rbac.RoleAdmin, true)
	env.member(t, orgID, 3, rbac.RoleMember, true)
	env.member(t, orgID, 4, rbac.RoleMember, false)

	removed, err := env.enforcer.RemovePolicy(authorization.RoleSubject(rbac.RoleAdmin), authorization.ObjectMembership, authorization.ActionMembershipRemove)
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = env.enforcer.RemovePolicy(authorization.RoleSubject(rbac.RoleAdmin), authorization.ObjectMembership, authorization.ActionMembershipListUnverified)
	require.NoError(t, err)
	require.True(t, removed)

	assert.ErrorIs(t, env.svc.RemoveMember(ctx, admin, orgID, 3), domain.ErrForbidden)
	assert.ErrorIs(t, env.svc.RemoveMember(ctx, president, orgID, 3), domain.ErrForbidden, "president inherits from admin")
	_, err = env.svc.ListUnverifiedMembers(ctx, admin, orgID, domain.PageRequest{})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// global admins bypass the policy table
	page, err := env.svc.ListUnverifiedMembers(ctx, rbac.GlobalAdminActor(77, orgID), orgID, domain.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NoError(t, env.svc.RemoveMember(ctx, rbac.GlobalAdminActor(77, orgID), orgID, 3))

	_, err = env.enforcer.AddPolicy(authorization.RoleSubject(rbac.RoleAdmin), authorization.ObjectMembership, authorization.ActionMembershipRemove)
	require.NoError(t, err)
	require.NoError(t, env.svc.RemoveMember(ctx, admin, orgID, 4))
}

func TestListMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t)

	admin := env.member(t, orgID, 1, rbac.RolePresident, true)
	env.member(t, orgID, 2, rbac.RoleMember, true)
	env.member(t, orgID, 3, rbac.RoleMember, true)
	env.member(t, orgID, 4, rbac.RoleMember, false)
	member := env.member(t, orgID, 5, rbac.RoleMember, true)

	first, err := env.svc.ListVerifiedMembers(ctx, orgID, domain.PageRequest{})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := env.svc.ListVerifiedMembers(ctx, orgID, domain.PageRequest{PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.False(t, second.HasMore)
	assert.Empty(t, second.NextPageToken)

	seen := map[snowflake.ID]bool{}
	for _, m := range append(first.Items, second.Items...) {
		assert.True(t, m.IsVerified)
		seen[m.UserID] = true
	}
	assert.Len(t, seen, 4)

	unverified, err := env.svc.ListUnverifiedMembers(ctx, admin, orgID, domain.PageRequest{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, unverified.Items, 1)
	assert.Equal(t, snowflake.ID(4), unverified.Items[0].UserID)

	_, err = env.svc.ListUnverifiedMembers(ctx, member, orgID, domain.PageRequest{})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.svc.ListVerifiedMembers(ctx, 999, domain.PageRequest{})
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)

	_, err = env.svc.ListUnverifiedMembers(ctx, rbac.GlobalAdminActor(77, 999), 999, domain.PageRequest{})
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)

	_, err = env.svc.ListVerifiedMembers(ctx, orgID, domain.PageRequest{PageToken: "%%%"})
	assert.Error(t, err)
}

func TestResolveActor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.org(t)
	env.member(t, orgID, 2, rbac.RoleModerator, true)

	actor, err := env.svc.ResolveActor(ctx, 2, false, orgID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleModerator, actor.Role)
	assert.False(t, actor.GlobalAdmin)

	actor, err = env.svc.ResolveActor(ctx, 9, false, orgID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleNone, actor.Role)

	actor, err = env.svc.ResolveActor(ctx, 77, true, orgID)
	require.NoError(t, err)
	assert.True(t, actor.GlobalAdmin)
	assert.Equal(t, rbac.RolePresident, actor.Role)
}
