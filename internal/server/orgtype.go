package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	orgtypedomain "github.com/smallbiznis/accounts/internal/orgtype/domain"
)

type createOrganizationTypeRequest struct {
	Name string `json:"name"`
}

type createOrganizationSubtypeRequest struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

func (s *Server) ListOrganizationTypes(c *gin.Context) {
	items, err := s.orgTypeSvc.ListTypes(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": items})
}

func (s *Server) CreateOrganizationType(c *gin.Context) {
	var req createOrganizationTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orgTypeSvc.CreateType(c.Request.Context(), orgtypedomain.CreateTypeRequest{Name: req.Name})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetOrganizationType(c *gin.Context) {
	resp, err := s.orgTypeSvc.GetType(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteOrganizationType refuses while subtypes still reference the type.
func (s *Server) DeleteOrganizationType(c *gin.Context) {
	if err := s.orgTypeSvc.DeleteType(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListOrganizationSubtypes(c *gin.Context) {
	items, err := s.orgTypeSvc.ListSubtypes(c.Request.Context(), c.Query("type"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": items})
}

func (s *Server) CreateOrganizationSubtype(c *gin.Context) {
	var req createOrganizationSubtypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orgTypeSvc.CreateSubtype(c.Request.Context(), orgtypedomain.CreateSubtypeRequest{
		TypeID: req.Type,
		Name:   req.Name,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) DeleteOrganizationSubtype(c *gin.Context) {
	if err := s.orgTypeSvc.DeleteSubtype(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
