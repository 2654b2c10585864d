package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accounts/pkg/db/pagination"
	"gorm.io/gorm"
)

// Viewer identifies who is reading. The zero value is an anonymous caller.
type Viewer struct {
	UserID snowflake.ID
	Staff  bool
}

func (v Viewer) Anonymous() bool { return v.UserID == 0 && !v.Staff }

type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest) (*OrganizationResponse, error)
	Get(ctx context.Context, viewer Viewer, uuid string) (*OrganizationResponse, error)
	GetByID(ctx context.Context, viewer Viewer, id snowflake.ID) (*OrganizationResponse, error)
	Resolve(ctx context.Context, uuid string) (*Organization, error)
	List(ctx context.Context, viewer Viewer, req ListOrganizationsRequest) (*ListOrganizationsResponse, error)
	Update(ctx context.Context, actor Viewer, uuid string, req UpdateOrganizationRequest) (*OrganizationResponse, error)
	Delete(ctx context.Context, uuid string) error

	HasAdmin(ctx context.Context, orgID, userID snowflake.ID) (bool, error)
	HasMember(ctx context.Context, orgID, userID snowflake.ID) (bool, error)
	AddMember(ctx context.Context, orgUUID string, userID snowflake.ID, admin bool) (*MembershipResponse, error)
	RemoveMember(ctx context.Context, orgUUID string, userID snowflake.ID) error
	UpdateMembership(ctx context.Context, orgUUID string, userID snowflake.ID, admin bool) (*MembershipResponse, error)
	GetMembership(ctx context.Context, viewer Viewer, orgUUID string, userID snowflake.ID) (*MembershipResponse, error)
	ListMemberships(ctx context.Context, viewer Viewer, orgUUID string, page pagination.Pagination) (*ListMembershipsResponse, error)

	ListChangeLogs(ctx context.Context, viewer Viewer, orgUUID string) ([]ChangeLogResponse, error)
	ListReceiptEmails(ctx context.Context, orgUUID string) ([]string, error)
	// RecordPaymentFailure appends a failed ChangeLog carrying the current plan.
	RecordPaymentFailure(ctx context.Context, orgID snowflake.ID) error

	// CreateIndividual and RemoveUser run on the caller's transaction so user
	// provisioning and deletion stay atomic.
	CreateIndividual(ctx context.Context, tx *gorm.DB, owner IndividualOwner) (*Organization, error)
	RemoveUser(ctx context.Context, tx *gorm.DB, userID, individualOrgID snowflake.ID) error
}

// IndividualOwner describes the user an individual organization is created for.
type IndividualOwner struct {
	UserID   snowflake.ID
	Username string
	Email    string
}

type CreateOrganizationRequest struct {
	CreatorID    snowflake.ID
	CreatorEmail string
	Name         string
	Private      bool
	MaxUsers     *int
	PlanID       string
}

// UpdateOrganizationRequest is a partial update; nil fields are left unchanged.
type UpdateOrganizationRequest struct {
	Name          *string
	MaxUsers      *int
	Private       *bool
	PlanID        *string
	ReceiptEmails *[]string
	SubtypeIDs    *[]string
}

type ListOrganizationsRequest struct {
	pagination.Pagination
	Individual *bool
}

type SubtypeResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type OrganizationResponse struct {
	UUID          string            `json:"uuid"`
	Name          string            `json:"name"`
	Slug          string            `json:"slug"`
	Individual    bool              `json:"individual"`
	Private       bool              `json:"private"`
	MaxUsers      int               `json:"max_users"`
	Plan          *string           `json:"plan"`
	ReceiptEmails []string          `json:"receipt_emails,omitempty"`
	Subtypes      []SubtypeResponse `json:"subtypes"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type ListOrganizationsResponse struct {
	Results []OrganizationResponse `json:"results"`
	pagination.PageInfo
}

type MembershipResponse struct {
	User                   string    `json:"user"`
	Username               string    `json:"username"`
	Name                   string    `json:"name"`
	IndividualOrganization string    `json:"individual_organization"`
	Admin                  bool      `json:"admin"`
	CreatedAt              time.Time `json:"created_at"`
}

type ListMembershipsResponse struct {
	Results []MembershipResponse `json:"results"`
	pagination.PageInfo
}

type ChangeLogResponse struct {
	ID           string       `json:"id"`
	Reason       ChangeReason `json:"reason"`
	User         *string      `json:"user_id"`
	FromPlan     *string      `json:"from_plan"`
	ToPlan       *string      `json:"to_plan"`
	FromMaxUsers *int         `json:"from_max_users"`
	ToMaxUsers   int          `json:"to_max_users"`
	CreatedAt    time.Time    `json:"created_at"`
}

var (
	ErrInvalidName            = errors.New("invalid_name")
	ErrInvalidUser            = errors.New("invalid_user")
	ErrInvalidEmail           = errors.New("invalid_email")
	ErrInvalidMaxUsers        = errors.New("invalid_max_users")
	ErrInvalidPlan            = errors.New("invalid_plan")
	ErrInvalidSubtype         = errors.New("invalid_subtype")
	ErrIndividualOrganization = errors.New("invalid_individual_organization")
	ErrOrganizationNotFound   = errors.New("organization_not_found")
	ErrMembershipNotFound     = errors.New("membership_not_found")
	ErrDuplicateMembership    = errors.New("duplicate_membership")
	ErrLastAdmin              = errors.New("last_admin")
	ErrOrganizationHasCharges = errors.New("organization_has_charges")
)
