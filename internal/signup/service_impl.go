package signup

import (
	"context"
	"strings"

	authdomain "github.com/smallbiznis/accounts/internal/auth/domain"
	orgdomain "github.com/smallbiznis/accounts/internal/organization/domain"
	"github.com/smallbiznis/accounts/internal/signup/domain"
	userdomain "github.com/smallbiznis/accounts/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Auth  authdomain.Service
	Users userdomain.Service
	Orgs  orgdomain.Service
}

type service struct {
	log   *zap.Logger
	auth  authdomain.Service
	users userdomain.Service
	orgs  orgdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		log:   p.Log.Named("signup.service"),
		auth:  p.Auth,
		users: p.Users,
		orgs:  p.Orgs,
	}
}

func (s *service) Signup(ctx context.Context, req domain.Request) (*domain.Result, error) {
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, domain.ErrInvalidRequest
	}

	user, err := s.users.Create(ctx, userdomain.CreateUserRequest{
		Username: req.Username,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Source:   req.Source,
	})
	if err != nil {
		return nil, err
	}

	profile, err := s.users.Describe(ctx, user)
	if err != nil {
		return nil, err
	}

	result := &domain.Result{
		User:                   user.UUID,
		IndividualOrganization: profile.IndividualOrganization,
	}

	if orgName := strings.TrimSpace(req.OrgName); orgName != "" {
		org, err := s.orgs.Create(ctx, orgdomain.CreateOrganizationRequest{
			CreatorID:    user.ID,
			CreatorEmail: user.Email,
			Name:         orgName,
		})
		if err != nil {
			// The account exists; the caller can create the organization later.
			s.log.Warn("signup organization not created",
				zap.String("user_uuid", user.UUID),
				zap.Error(err),
			)
		} else {
			result.Organization = org.UUID
		}
	}

	issued, err := s.auth.IssueToken(user)
	if err != nil {
		return nil, err
	}
	result.Token = issued.Token
	result.TokenType = issued.TokenType
	result.ExpiresAt = issued.ExpiresAt
	return result, nil
}
