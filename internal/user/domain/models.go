// Package domain contains core types for the user service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Source records which product a user signed up through.
type Source string

const (
	SourceMuckRock      Source = "muckrock"
	SourceDocumentCloud Source = "documentcloud"
	SourceFOIAMachine   Source = "foiamachine"
	SourceQuackbot      Source = "quackbot"
	SourceSquarelet     Source = "squarelet"
)

func (s Source) Valid() bool {
	switch s {
	case SourceMuckRock, SourceDocumentCloud, SourceFOIAMachine, SourceQuackbot, SourceSquarelet:
		return true
	}
	return false
}

// User is an account holder. IndividualOrganizationID points at the private
// organization created alongside the user.
type User struct {
	ID                       snowflake.ID      `gorm:"primaryKey"`
	UUID                     string            `gorm:"size:36;not null;uniqueIndex:ux_users_uuid"`
	Username                 string            `gorm:"size:150;not null;uniqueIndex:ux_users_username"`
	Name                     string            `gorm:"size:255;not null;default:''"`
	Email                    string            `gorm:"size:254;not null;uniqueIndex:ux_users_email"`
	PasswordHash             *string           `gorm:"type:text"`
	Source                   Source            `gorm:"size:16;not null;default:'squarelet'"`
	IsStaff                  bool              `gorm:"not null;default:false"`
	IndividualOrganizationID snowflake.ID      `gorm:"not null;default:0;index"`
	Metadata                 datatypes.JSONMap `gorm:"not null"`
	CreatedAt                time.Time         `gorm:"not null"`
	UpdatedAt                time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }
