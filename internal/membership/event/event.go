package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orgservice/internal/clock"
	"github.com/smallbiznis/orgservice/internal/membership/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TopicEnrolled              = "membership.enrolled"
	TopicRoleChanged           = "membership.role_changed"
	TopicPresidencyTransferred = "membership.presidency_transferred"
	TopicVerificationChanged   = "membership.verification_changed"
	TopicLeft                  = "membership.left"
	TopicRemoved               = "membership.removed"

	TopicOrganizationCreated = "organization.created"
	TopicOrganizationUpdated = "organization.updated"
	TopicOrganizationDeleted = "organization.deleted"
)

// Publisher appends outbox rows. Call WithTx so the row commits together with
// the mutation it describes.
type Publisher interface {
	WithTx(tx *gorm.DB) Publisher
	Publish(ctx context.Context, orgID snowflake.ID, topic string, payload any) error
}

type outboxPublisher struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func NewOutboxPublisher(db *gorm.DB, genID *snowflake.Node, clk clock.Clock) Publisher {
	return &outboxPublisher{
		db:    db,
		genID: genID,
		clock: clk,
	}
}

func (p *outboxPublisher) WithTx(tx *gorm.DB) Publisher {
	return &outboxPublisher{db: tx, genID: p.genID, clock: p.clock}
}

func (p *outboxPublisher) Publish(ctx context.Context, orgID snowflake.ID, topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if p.clock != nil {
		now = p.clock.Now()
	}

	return p.db.WithContext(ctx).Create(&domain.MembershipEvent{
		ID:        p.genID.Generate(),
		OrgID:     orgID,
		Topic:     topic,
		Payload:   datatypes.JSON(raw),
		CreatedAt: now,
	}).Error
}

type MembershipPayload struct {
	OrgID      string `json:"org_id"`
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	IsVerified bool   `json:"is_verified"`
	ActorID    string `json:"actor_id,omitempty"`
}

type RoleChangedPayload struct {
	OrgID    string `json:"org_id"`
	UserID   string `json:"user_id"`
	FromRole string `json:"from_role"`
	ToRole   string `json:"to_role"`
	ActorID  string `json:"actor_id"`
}

type PresidencyTransferredPayload struct {
	OrgID         string `json:"org_id"`
	FromUserID    string `json:"from_user_id"`
	ToUserID      string `json:"to_user_id"`
	ActorID       string `json:"actor_id"`
	ByGlobalAdmin bool   `json:"by_global_admin"`
}

type OrganizationPayload struct {
	OrgID   string `json:"org_id"`
	Slug    string `json:"slug,omitempty"`
	ActorID string `json:"actor_id"`
}

// NewMembershipPayload describes m as seen after the mutation.
func NewMembershipPayload(m *domain.Membership, actorID snowflake.ID) MembershipPayload {
	payload := MembershipPayload{
		OrgID:      m.OrgID.String(),
		UserID:     m.UserID.String(),
		Role:       string(m.Role),
		IsVerified: m.IsVerified,
	}
	if actorID != 0 {
		payload.ActorID = actorID.String()
	}
	return payload
}
