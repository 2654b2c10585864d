package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accounts/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const userColumns = `id, uuid, username, name, email, password_hash, source, is_staff,
	individual_organization_id, metadata, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.UUID,
		user.Username,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Source,
		user.IsStaff,
		user.IndividualOrganizationID,
		user.Metadata,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) SetIndividualOrganization(ctx context.Context, db *gorm.DB, userID, orgID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET individual_organization_id = ? WHERE id = ?`,
		orgID,
		userID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM users WHERE id = ?`, id).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByUUID(ctx context.Context, db *gorm.DB, uuid string) (*domain.User, error) {
	return r.findOne(ctx, db, `uuid = ?`, uuid)
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return r.findOne(ctx, db, `email = ?`, email)
}

func (r *repo) FindByIndividualOrganization(ctx context.Context, db *gorm.DB, orgUUID string) (*domain.User, error) {
	return r.findOne(ctx, db,
		`individual_organization_id = (SELECT id FROM organizations WHERE uuid = ? AND individual = ?)`,
		orgUUID,
		true,
	)
}

func (r *repo) UsernameOrEmailExists(ctx context.Context, db *gorm.DB, username, email string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM users WHERE username = ? OR email = ?`,
		username,
		email,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT `+userColumns+` FROM users WHERE `+where,
		args...,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}
