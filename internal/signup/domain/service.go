package domain

import (
	"context"
	"errors"
	"time"

	userdomain "github.com/smallbiznis/accounts/internal/user/domain"
)

type Service interface {
	Signup(ctx context.Context, req Request) (*Result, error)
}

// Request registers a user. OrgName, when set, also creates a group
// organization with the new user as its admin.
type Request struct {
	Username string            `json:"username"`
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Source   userdomain.Source `json:"source"`
	OrgName  string            `json:"org_name"`
}

type Result struct {
	Token                  string    `json:"token"`
	TokenType              string    `json:"token_type"`
	ExpiresAt              time.Time `json:"expires_at"`
	User                   string    `json:"user"`
	IndividualOrganization string    `json:"individual_organization"`
	Organization           string    `json:"organization,omitempty"`
}

var ErrInvalidRequest = errors.New("invalid_signup_request")
