package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertType(ctx context.Context, db *gorm.DB, t *OrganizationType) error
	FindType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*OrganizationType, error)
	ListTypes(ctx context.Context, db *gorm.DB) ([]OrganizationType, error)
	DeleteType(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	CountSubtypes(ctx context.Context, db *gorm.DB, typeID snowflake.ID) (int64, error)

	InsertSubtype(ctx context.Context, db *gorm.DB, s *OrganizationSubtype) error
	FindSubtype(ctx context.Context, db *gorm.DB, id snowflake.ID) (*OrganizationSubtype, error)
	FindSubtypes(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]OrganizationSubtype, error)
	ListSubtypes(ctx context.Context, db *gorm.DB, typeID snowflake.ID) ([]OrganizationSubtype, error)
	DeleteSubtype(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	ReplaceAssignments(ctx context.Context, db *gorm.DB, orgID snowflake.ID, subtypeIDs []snowflake.ID) error
	ListAssigned(ctx context.Context, db *gorm.DB, orgIDs []snowflake.ID) ([]AssignedSubtype, error)
	DeleteAssignmentsBySubtype(ctx context.Context, db *gorm.DB, subtypeID snowflake.ID) error
	DeleteAssignmentsByOrganization(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error
}
