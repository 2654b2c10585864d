package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/accounts/internal/observability/context"
)

// authorizeOrgAction gates a route on the caller's role in the organization
// named by the :uuid path parameter. Staff bypass the role check.
func (s *Server) authorizeOrgAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeOrg(c, c.Param("uuid"), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeOrg(c *gin.Context, orgUUID string, object string, action string) error {
	user, ok := currentUser(c)
	if !ok {
		return ErrUnauthorized
	}

	ctx := c.Request.Context()
	org, err := s.organizationSvc.Resolve(ctx, strings.TrimSpace(orgUUID))
	if err != nil {
		return err
	}
	c.Request = c.Request.WithContext(obscontext.WithOrgID(ctx, org.UUID))

	if user.IsStaff {
		return nil
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(c.Request.Context(), user.ID, org.ID, strings.TrimSpace(object), strings.TrimSpace(action))
}
