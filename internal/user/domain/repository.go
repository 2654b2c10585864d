package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	SetIndividualOrganization(ctx context.Context, db *gorm.DB, userID, orgID snowflake.ID) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByUUID(ctx context.Context, db *gorm.DB, uuid string) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	FindByIndividualOrganization(ctx context.Context, db *gorm.DB, orgUUID string) (*User, error)
	UsernameOrEmailExists(ctx context.Context, db *gorm.DB, username, email string) (bool, error)
}
