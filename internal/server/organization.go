package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	membershipdomain "github.com/smallbiznis/orgservice/internal/membership/domain"
	organizationdomain "github.com/smallbiznis/orgservice/internal/organization/domain"
)

type createOrganizationRequest struct {
	Name                 string         `json:"name"`
	Description          string         `json:"description"`
	Visibility           string         `json:"visibility"`
	EnrollmentEnabled    *bool          `json:"enrollment_enabled"`
	EnrollmentKey        *string        `json:"enrollment_key"`
	RequiresVerification *bool          `json:"requires_verification"`
	Metadata             map[string]any `json:"metadata"`
}

type updateOrganizationRequest struct {
	Name                 *string        `json:"name"`
	Description          *string        `json:"description"`
	Visibility           *string        `json:"visibility"`
	EnrollmentEnabled    *bool          `json:"enrollment_enabled"`
	EnrollmentKey        *string        `json:"enrollment_key"`
	ClearEnrollmentKey   bool           `json:"clear_enrollment_key"`
	RequiresVerification *bool          `json:"requires_verification"`
	Metadata             map[string]any `json:"metadata"`
}

func (s *Server) CreateOrganization(c *gin.Context) {
	actor, err := s.userActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.organizationSvc.Create(c.Request.Context(), actor, organizationdomain.CreateOrganizationRequest{
		Name:                 req.Name,
		Description:          req.Description,
		Visibility:           normalizeVisibility(req.Visibility),
		EnrollmentEnabled:    req.EnrollmentEnabled,
		EnrollmentKey:        req.EnrollmentKey,
		RequiresVerification: req.RequiresVerification,
		Metadata:             req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) ListMyOrganizations(c *gin.Context) {
	actor, err := s.userActor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.organizationSvc.ListForUser(c.Request.Context(), actor.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetOrganization(c *gin.Context) {
	actor, err := s.actor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.organizationSvc.Get(c.Request.Context(), actor, actor.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) UpdateOrganization(c *gin.Context) {
	actor, err := s.actor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := organizationdomain.UpdateOrganizationRequest{
		Name:                 req.Name,
		Description:          req.Description,
		EnrollmentEnabled:    req.EnrollmentEnabled,
		EnrollmentKey:        req.EnrollmentKey,
		ClearEnrollmentKey:   req.ClearEnrollmentKey,
		RequiresVerification: req.RequiresVerification,
		Metadata:             req.Metadata,
	}
	if req.Visibility != nil {
		visibility := normalizeVisibility(*req.Visibility)
		update.Visibility = &visibility
	}

	resp, err := s.organizationSvc.Update(c.Request.Context(), actor, actor.OrgID, update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) DeleteOrganization(c *gin.Context) {
	actor, err := s.actor(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.organizationSvc.Delete(c.Request.Context(), actor, actor.OrgID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func normalizeVisibility(raw string) organizationdomain.Visibility {
	return organizationdomain.Visibility(strings.ToUpper(strings.TrimSpace(raw)))
}

func isOrganizationValidationError(err error) bool {
	switch err {
	case organizationdomain.ErrInvalidName,
		organizationdomain.ErrInvalidVisibility,
		organizationdomain.ErrEnrollmentKeyRequired,
		organizationdomain.ErrInvalidEnrollmentKeyFormat,
		organizationdomain.ErrInvalidOrganization,
		membershipdomain.ErrInvalidUser:
		return true
	default:
		return false
	}
}
