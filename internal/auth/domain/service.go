// Package domain contains the auth service contract.
package domain

import (
	"context"
	"errors"
	"time"

	userdomain "github.com/smallbiznis/accounts/internal/user/domain"
)

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	// Authenticate resolves a bearer token to its user.
	Authenticate(ctx context.Context, rawToken string) (*userdomain.User, error)
	IssueToken(user *userdomain.User) (*LoginResult, error)
}

type LoginRequest struct {
	Email    string
	Password string
}

type LoginResult struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrTokenExpired       = errors.New("token_expired")
)
