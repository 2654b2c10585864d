package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service decides whether a user may act on an object inside an organization.
type Service interface {
	Authorize(ctx context.Context, userID, orgID snowflake.ID, object, action string) error
	// Role returns the user's role in the organization, or "" when not a member.
	Role(ctx context.Context, userID, orgID snowflake.ID) (string, error)
}

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)
