package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateUserRequest) (*User, error)
	Get(ctx context.Context, uuid string) (*User, error)
	GetByID(ctx context.Context, id snowflake.ID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// GetByIndividualOrganization finds the owner of an individual organization.
	GetByIndividualOrganization(ctx context.Context, orgUUID string) (*User, error)
	Delete(ctx context.Context, uuid string) error
	Describe(ctx context.Context, user *User) (*UserResponse, error)
}

type CreateUserRequest struct {
	Username string
	Name     string
	Email    string
	Password string
	Source   Source
	IsStaff  bool
	Metadata map[string]any
}

type UserResponse struct {
	UUID                   string    `json:"uuid"`
	Username               string    `json:"username"`
	Name                   string    `json:"name"`
	Email                  string    `json:"email"`
	Source                 Source    `json:"source"`
	IsStaff                bool      `json:"is_staff"`
	IndividualOrganization string    `json:"individual_organization"`
	CreatedAt              time.Time `json:"created_at"`
}

var (
	ErrInvalidUsername = errors.New("invalid_username")
	ErrInvalidEmail    = errors.New("invalid_email")
	ErrInvalidPassword = errors.New("invalid_password")
	ErrInvalidSource   = errors.New("invalid_source")
	ErrDuplicateUser   = errors.New("duplicate_user")
	ErrUserNotFound    = errors.New("user_not_found")
)
