package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orgdomain "github.com/smallbiznis/accounts/internal/organization/domain"
	"github.com/smallbiznis/accounts/pkg/db/pagination"
)

type createOrganizationRequest struct {
	Name     string `json:"name"`
	Private  bool   `json:"private"`
	MaxUsers *int   `json:"max_users"`
	Plan     string `json:"plan"`
}

type updateOrganizationRequest struct {
	Name          *string   `json:"name"`
	MaxUsers      *int      `json:"max_users"`
	Private       *bool     `json:"private"`
	Plan          *string   `json:"plan"`
	ReceiptEmails *[]string `json:"receipt_emails"`
	Subtypes      *[]string `json:"subtypes"`
}

func (s *Server) ListOrganizations(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	individual, err := parseOptionalBool(c.Query("individual"))
	if err != nil {
		AbortWithError(c, newValidationError("individual", "invalid_individual", "invalid individual filter"))
		return
	}

	resp, err := s.organizationSvc.List(c.Request.Context(), viewer(c), orgdomain.ListOrganizationsRequest{
		Pagination: page,
		Individual: individual,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) CreateOrganization(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.organizationSvc.Create(c.Request.Context(), orgdomain.CreateOrganizationRequest{
		CreatorID:    user.ID,
		CreatorEmail: user.Email,
		Name:         strings.TrimSpace(req.Name),
		Private:      req.Private,
		MaxUsers:     req.MaxUsers,
		PlanID:       strings.TrimSpace(req.Plan),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetOrganization(c *gin.Context) {
	resp, err := s.organizationSvc.Get(c.Request.Context(), viewer(c), c.Param("uuid"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) UpdateOrganization(c *gin.Context) {
	var req updateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.organizationSvc.Update(c.Request.Context(), viewer(c), c.Param("uuid"), orgdomain.UpdateOrganizationRequest{
		Name:          req.Name,
		MaxUsers:      req.MaxUsers,
		Private:       req.Private,
		PlanID:        req.Plan,
		ReceiptEmails: req.ReceiptEmails,
		SubtypeIDs:    req.Subtypes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) DeleteOrganization(c *gin.Context) {
	if err := s.organizationSvc.Delete(c.Request.Context(), c.Param("uuid")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListChangeLogs(c *gin.Context) {
	items, err := s.organizationSvc.ListChangeLogs(c.Request.Context(), viewer(c), c.Param("uuid"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": items})
}
