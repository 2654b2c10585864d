package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/accounts/internal/auth/domain"
	"github.com/smallbiznis/accounts/internal/auth/password"
	"github.com/smallbiznis/accounts/internal/auth/token"
	userdomain "github.com/smallbiznis/accounts/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const tokenType = "Bearer"

type Params struct {
	fx.In

	Log    *zap.Logger
	Users  userdomain.Service
	Issuer *token.Issuer
}

type Service struct {
	log    *zap.Logger
	users  userdomain.Service
	issuer *token.Issuer
}

func New(p Params) domain.Service {
	return &Service{
		log:    p.Log.Named("auth.service"),
		users:  p.Users,
		issuer: p.Issuer,
	}
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil || !password.Verify(req.Password, *user.PasswordHash) {
		s.log.Debug("login rejected", zap.String("user_uuid", user.UUID))
		return nil, domain.ErrInvalidCredentials
	}

	return s.IssueToken(user)
}

func (s *Service) IssueToken(user *userdomain.User) (*domain.LoginResult, error) {
	if user == nil {
		return nil, domain.ErrInvalidCredentials
	}
	raw, expiresAt, err := s.issuer.Issue(user.UUID, user.IsStaff)
	if err != nil {
		return nil, err
	}
	return &domain.LoginResult{
		Token:     raw,
		TokenType: tokenType,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*userdomain.User, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, domain.ErrInvalidToken
	}

	claims, err := s.issuer.Parse(rawToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrInvalidToken
	}

	user, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}
