package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orgservice/internal/membership/rbac"
)

type enrollRequest struct {
	EnrollmentKey *string `json:"enrollment_key"`
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

type setVerificationRequest struct {
	Verified *bool `json:"verified"`
}

type transferPresidencyRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) Enroll(c *gin.Context) {
	actor, err := s.actor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// the body is optional; an empty one, chunked or not, carries no key
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.membershipSvc.Enroll(c.Request.Context(), actor.OrgID, actor.UserID, req.EnrollmentKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (s *Server) LeaveOrganization(c *gin.Context) {
	actor, err := s.actor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.membershipSvc.Leave(c.Request.Context(), actor); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetMyMembership(c *gin.Context) {
	actor, err := s.actor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	m, err := s.membershipSvc.GetMembership(c.Request.Context(), actor.OrgID, actor.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, m)
}

// ListVerifiedMembers is open to anyone who can see the organization.
func (s *Server) ListVerifiedMembers(c *gin.Context) {
	actor, err := s.actor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, err := parsePageRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := s.organizationSvc.Get(ctx, actor, actor.OrgID); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.membershipSvc.ListVerifiedMembers(ctx, actor.OrgID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListUnverifiedMembers(c *gin.Context) {
	actor, err := s.actor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, err := parsePageRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.membershipSvc.ListUnverifiedMembers(c.Request.Context(), actor, actor.OrgID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) AssignRole(c *gin.Context) {
	actor, err := s.actor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetUserID, err := parseSnowflakeParam(c, "userId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	m, err := s.membershipSvc.AssignRole(c.Request.Context(), actor, actor.OrgID, targetUserID, role)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, m)
}

func (s *Server) SetVerification(c *gin.Context) {
	actor, err := s.actor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetUserID, err := parseSnowflakeParam(c, "userId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Verified == nil {
		AbortWithError(c, newValidationError("verified", "required", "verified is required"))
		return
	}

	m, err := s.membershipSvc.SetVerification(c.Request.Context(), actor, actor.OrgID, targetUserID, *req.Verified)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, m)
}

func (s *Server) RemoveMember(c *gin.Context) {
	actor, err := s.actor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetUserID, err := parseSnowflakeParam(c, "userId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.membershipSvc.RemoveMember(c.Request.Context(), actor, actor.OrgID, targetUserID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) TransferPresidency(c *gin.Context) {
	actor, err := s.actor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req transferPresidencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	targetUserID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || targetUserID <= 0 {
		AbortWithError(c, newValidationError("user_id", "invalid_id", "invalid user id"))
		return
	}

	res, err := s.membershipSvc.TransferPresidency(c.Request.Context(), actor, actor.OrgID, targetUserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
