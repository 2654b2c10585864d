package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/accounts/internal/observability/context"
	orgdomain "github.com/smallbiznis/accounts/internal/organization/domain"
	userdomain "github.com/smallbiznis/accounts/internal/user/domain"
)

const (
	contextUserKey = "user"
	bearerPrefix   = "bearer "
)

// authenticate resolves an optional bearer token. Requests without an
// Authorization header continue anonymously; a bad token is rejected.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			c.Next()
			return
		}
		if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		user, err := s.authsvc.Authenticate(c.Request.Context(), strings.TrimSpace(header[len(bearerPrefix):]))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserKey, user)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "user", user.UUID))
		c.Next()
	}
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := currentUser(c); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) requireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !user.IsStaff {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) (*userdomain.User, bool) {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*userdomain.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// viewer describes the caller for visibility checks; anonymous when unauthenticated.
func viewer(c *gin.Context) orgdomain.Viewer {
	user, ok := currentUser(c)
	if !ok {
		return orgdomain.Viewer{}
	}
	return orgdomain.Viewer{UserID: user.ID, Staff: user.IsStaff}
}
