package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetUser(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := s.userSvc.Get(ctx, c.Param("uuid"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.userSvc.Describe(ctx, user)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteUser removes the user together with their memberships and
// individual organization.
func (s *Server) DeleteUser(c *gin.Context) {
	if err := s.userSvc.Delete(c.Request.Context(), c.Param("uuid")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
