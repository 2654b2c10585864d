// Package domain contains persistence models for the organization service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const DefaultMaxUsers = 5

// Organization is a tenant. Every user also owns exactly one individual organization.
type Organization struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	UUID       string        `gorm:"size:36;not null;uniqueIndex:ux_organizations_uuid" json:"uuid"`
	Name       string        `gorm:"size:255;not null" json:"name"`
	Slug       string        `gorm:"size:255;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	Individual bool          `gorm:"not null;default:false" json:"individual"`
	Private    bool          `gorm:"not null;default:false" json:"private"`
	MaxUsers   int           `gorm:"not null;default:5" json:"max_users"`
	PlanID     *snowflake.ID `gorm:"index" json:"plan_id,omitempty"`
	CreatedAt  time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// Membership links a user to an organization.
type Membership struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_memberships_org_user,priority:1" json:"organization_id"`
	UserID         snowflake.ID `gorm:"not null;index;uniqueIndex:ux_memberships_org_user,priority:2" json:"user_id"`
	Admin          bool         `gorm:"not null;default:false" json:"admin"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Membership) TableName() string { return "memberships" }

// ReceiptEmail is an address that receives charge receipts for an organization.
type ReceiptEmail struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID `gorm:"not null;uniqueIndex:ux_receipt_emails_org_email,priority:1" json:"organization_id"`
	Email          string       `gorm:"size:254;not null;uniqueIndex:ux_receipt_emails_org_email,priority:2" json:"email"`
	Failed         bool         `gorm:"not null;default:false" json:"failed"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (ReceiptEmail) TableName() string { return "receipt_emails" }

type ChangeReason string

const (
	ChangeReasonCreated ChangeReason = "created"
	ChangeReasonUpdated ChangeReason = "updated"
	ChangeReasonFailed  ChangeReason = "failed"
)

// ChangeLog is an append-only record of organization lifecycle events.
type ChangeLog struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID  `gorm:"not null;index" json:"organization_id"`
	UserID         *snowflake.ID `json:"user_id,omitempty"`
	Reason         ChangeReason  `gorm:"size:16;not null" json:"reason"`
	FromPlanID     *snowflake.ID `json:"from_plan_id,omitempty"`
	ToPlanID       *snowflake.ID `json:"to_plan_id,omitempty"`
	FromMaxUsers   *int          `json:"from_max_users,omitempty"`
	ToMaxUsers     int           `gorm:"not null" json:"to_max_users"`
	CreatedAt      time.Time     `gorm:"not null;index" json:"created_at"`
}

// TableName sets the database table name.
func (ChangeLog) TableName() string { return "change_logs" }

// MemberRecord is a membership joined with the member's user and individual organization.
type MemberRecord struct {
	MembershipID             snowflake.ID
	OrganizationID           snowflake.ID
	UserID                   snowflake.ID
	UserUUID                 string
	Username                 string
	Name                     string
	IndividualOrganizationID snowflake.ID
	IndividualOrgUUID        string
	Admin                    bool
	CreatedAt                time.Time
}
