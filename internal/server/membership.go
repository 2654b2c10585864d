package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/accounts/internal/authorization"
	"github.com/smallbiznis/accounts/pkg/db/pagination"
)

// Members are addressed by the uuid of their individual organization.
type addMembershipRequest struct {
	IndividualOrganization string `json:"individual_organization"`
	Admin                  bool   `json:"admin"`
}

type updateMembershipRequest struct {
	Admin *bool `json:"admin"`
}

func (s *Server) ListMemberships(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.organizationSvc.ListMemberships(c.Request.Context(), viewer(c), c.Param("uuid"), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) AddMembership(c *gin.Context) {
	var req addMembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.IndividualOrganization) == "" {
		AbortWithError(c, newValidationError("individual_organization", "required", "individual_organization is required"))
		return
	}

	memberID, err := s.memberID(c, req.IndividualOrganization)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.organizationSvc.AddMember(c.Request.Context(), c.Param("uuid"), memberID, req.Admin)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetMembership(c *gin.Context) {
	memberID, err := s.memberID(c, c.Param("member_org"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.organizationSvc.GetMembership(c.Request.Context(), viewer(c), c.Param("uuid"), memberID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) UpdateMembership(c *gin.Context) {
	var req updateMembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Admin == nil {
		AbortWithError(c, newValidationError("admin", "required", "admin is required"))
		return
	}

	memberID, err := s.memberID(c, c.Param("member_org"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.organizationSvc.UpdateMembership(c.Request.Context(), c.Param("uuid"), memberID, *req.Admin)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RemoveMembership lets admins remove anyone and members remove themselves.
func (s *Server) RemoveMembership(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	memberID, err := s.memberID(c, c.Param("member_org"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if memberID != user.ID {
		if err := s.authorizeOrg(c, c.Param("uuid"), authorization.ObjectMembership, authorization.ActionDelete); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	if err := s.organizationSvc.RemoveMember(c.Request.Context(), c.Param("uuid"), memberID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// memberID resolves an individual organization uuid to its owner.
func (s *Server) memberID(c *gin.Context, individualOrgUUID string) (snowflake.ID, error) {
	user, err := s.userSvc.GetByIndividualOrganization(c.Request.Context(), strings.TrimSpace(individualOrgUUID))
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}
