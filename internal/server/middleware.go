package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orgservice/internal/auth/token"
	"github.com/smallbiznis/orgservice/internal/membership/rbac"
	obscontext "github.com/smallbiznis/orgservice/internal/observability/context"
	"github.com/smallbiznis/orgservice/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	contextPrincipalKey = "principal"
	contextOrgIDKey     = "org_id"

	actorTypeUser        = "user"
	actorTypeGlobalAdmin = "global_admin"
)

// AuthRequired verifies the bearer token and stores the principal.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.verifier.Verify(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		actorType := actorTypeUser
		if principal.GlobalAdmin {
			actorType = actorTypeGlobalAdmin
		}
		ctx := obscontext.WithActor(c.Request.Context(), actorType, principal.UserID.String())
		c.Request = c.Request.WithContext(ctx)

		c.Set(contextPrincipalKey, principal)
		c.Next()
	}
}

// OrgContext resolves :orgId for the handlers below it.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := parseSnowflakeParam(c, "orgId")
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithOrgID(c.Request.Context(), orgID.String())
		c.Request = c.Request.WithContext(ctx)

		c.Set(contextOrgIDKey, orgID)
		c.Next()
	}
}

func principalFromContext(c *gin.Context) (*token.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*token.Principal)
	return principal, ok && principal != nil
}

func orgIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextOrgIDKey)
	if !ok {
		return 0, false
	}
	orgID, ok := value.(snowflake.ID)
	return orgID, ok && orgID != 0
}

// actor resolves the caller's role in the request organization from the
// membership store. Token grants are only compared, never trusted.
func (s *Server) actor(c *gin.Context) (rbac.Actor, error) {
	principal, ok := principalFromContext(c)
	if !ok {
		return rbac.Actor{}, ErrUnauthorized
	}
	orgID, ok := orgIDFromContext(c)
	if !ok {
		return rbac.Actor{}, ErrInvalidRequest
	}

	ctx := c.Request.Context()
	actor, err := s.membershipSvc.ResolveActor(ctx, principal.UserID, principal.GlobalAdmin, orgID)
	if err != nil {
		return rbac.Actor{}, err
	}

	if !principal.GlobalAdmin && len(principal.Grants) > 0 {
		if claimed := token.RoleFor(principal.Grants, orgID); claimed != actor.Role {
			logger.FromContext(ctx).Debug("stale role claim in token",
				logger.Membership(orgID, principal.UserID),
				zap.String("claimed_role", claimed.String()),
				zap.String("stored_role", actor.Role.String()),
			)
		}
	}

	return actor, nil
}

// userActor is the caller outside any organization scope.
func (s *Server) userActor(c *gin.Context) (rbac.Actor, error) {
	principal, ok := principalFromContext(c)
	if !ok {
		return rbac.Actor{}, ErrUnauthorized
	}
	return rbac.Actor{UserID: principal.UserID, GlobalAdmin: principal.GlobalAdmin}, nil
}

func bearerToken(header string) (string, bool) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
