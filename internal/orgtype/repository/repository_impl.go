package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accounts/internal/orgtype/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertType(ctx context.Context, db *gorm.DB, t *domain.OrganizationType) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO organization_types (id, name, created_at) VALUES (?, ?, ?)`,
		t.ID,
		t.Name,
		t.CreatedAt,
	).Error
}

func (r *repo) FindType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.OrganizationType, error) {
	var t domain.OrganizationType
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, created_at FROM organization_types WHERE id = ?`,
		id,
	).Scan(&t).Error
	if err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	return &t, nil
}

func (r *repo) ListTypes(ctx context.Context, db *gorm.DB) ([]domain.OrganizationType, error) {
	var items []domain.OrganizationType
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, created_at FROM organization_types ORDER BY name ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeleteType(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM organization_types WHERE id = ?`, id).Error
}

func (r *repo) CountSubtypes(ctx context.Context, db *gorm.DB, typeID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM organization_subtypes WHERE type_id = ?`,
		typeID,
	).Scan(&count).Error
	return count, err
}

func (r *repo) InsertSubtype(ctx context.Context, db *gorm.DB, s *domain.OrganizationSubtype) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO organization_subtypes (id, type_id, name, created_at) VALUES (?, ?, ?, ?)`,
		s.ID,
		s.TypeID,
		s.Name,
		s.CreatedAt,
	).Error
}

func (r *repo) FindSubtype(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.OrganizationSubtype, error) {
	var s domain.OrganizationSubtype
	err := db.WithContext(ctx).Raw(
		`SELECT id, type_id, name, created_at FROM organization_subtypes WHERE id = ?`,
		id,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) FindSubtypes(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.OrganizationSubtype, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.OrganizationSubtype
	err := db.WithContext(ctx).Raw(
		`SELECT id, type_id, name, created_at FROM organization_subtypes WHERE id IN ?`,
		ids,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListSubtypes(ctx context.Context, db *gorm.DB, typeID snowflake.ID) ([]domain.OrganizationSubtype, error) {
	var items []domain.OrganizationSubtype
	stmt := db.WithContext(ctx).Model(&domain.OrganizationSubtype{})
	if typeID != 0 {
		stmt = stmt.Where("type_id = ?", typeID)
	}
	if err := stmt.Order("name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeleteSubtype(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM organization_subtypes WHERE id = ?`, id).Error
}

func (r *repo) ReplaceAssignments(ctx context.Context, db *gorm.DB, orgID snowflake.ID, subtypeIDs []snowflake.ID) error {
	if err := r.DeleteAssignmentsByOrganization(ctx, db, orgID); err != nil {
		return err
	}
	for _, id := range subtypeIDs {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO organization_subtype_assignments (organization_id, subtype_id) VALUES (?, ?)`,
			orgID,
			id,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListAssigned(ctx context.Context, db *gorm.DB, orgIDs []snowflake.ID) ([]domain.AssignedSubtype, error) {
	if len(orgIDs) == 0 {
		return nil, nil
	}
	var items []domain.AssignedSubtype
	err := db.WithContext(ctx).Raw(
		`SELECT a.organization_id, s.id AS subtype_id, s.name, t.name AS type_name
		 FROM organization_subtype_assignments a
		 JOIN organization_subtypes s ON s.id = a.subtype_id
		 JOIN organization_types t ON t.id = s.type_id
		 WHERE a.organization_id IN ?
		 ORDER BY t.name ASC, s.name ASC`,
		orgIDs,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeleteAssignmentsBySubtype(ctx context.Context, db *gorm.DB, subtypeID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM organization_subtype_assignments WHERE subtype_id = ?`,
		subtypeID,
	).Error
}

func (r *repo) DeleteAssignmentsByOrganization(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM organization_subtype_assignments WHERE organization_id = ?`,
		orgID,
	).Error
}
