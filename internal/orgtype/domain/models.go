package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// OrganizationType is the top level of the organization taxonomy.
type OrganizationType struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"size:255;not null;uniqueIndex:ux_organization_types_name" json:"name"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (OrganizationType) TableName() string { return "organization_types" }

// OrganizationSubtype always belongs to exactly one type.
type OrganizationSubtype struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TypeID    snowflake.ID `gorm:"not null;uniqueIndex:ux_organization_subtypes_type_name,priority:1" json:"type_id"`
	Name      string       `gorm:"size:255;not null;uniqueIndex:ux_organization_subtypes_type_name,priority:2" json:"name"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (OrganizationSubtype) TableName() string { return "organization_subtypes" }

// SubtypeAssignment is the organization <-> subtype join row.
type SubtypeAssignment struct {
	OrganizationID snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	SubtypeID      snowflake.ID `gorm:"primaryKey;autoIncrement:false;index"`
}

func (SubtypeAssignment) TableName() string { return "organization_subtype_assignments" }

// AssignedSubtype is a subtype joined with its type name.
type AssignedSubtype struct {
	OrganizationID snowflake.ID
	SubtypeID      snowflake.ID
	Name           string
	TypeName       string
}
