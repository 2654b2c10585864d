package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accounts/internal/organization/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const organizationColumns = `id, uuid, name, slug, individual, private, max_users, plan_id, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, org *domain.Organization) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO organizations (`+organizationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		org.ID,
		org.UUID,
		org.Name,
		org.Slug,
		org.Individual,
		org.Private,
		org.MaxUsers,
		org.PlanID,
		org.CreatedAt,
		org.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, org *domain.Organization) error {
	return db.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET name = ?, private = ?, max_users = ?, plan_id = ?, updated_at = ?
		 WHERE id = ?`,
		org.Name,
		org.Private,
		org.MaxUsers,
		org.PlanID,
		org.UpdatedAt,
		org.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM organizations WHERE id = ?`, id).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := db.WithContext(ctx).Raw(
		`SELECT `+organizationColumns+` FROM organizations WHERE id = ?`,
		id,
	).Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}

func (r *repo) FindByUUID(ctx context.Context, db *gorm.DB, uuid string) (*domain.Organization, error) {
	var org domain.Organization
	err := db.WithContext(ctx).Raw(
		`SELECT `+organizationColumns+` FROM organizations WHERE uuid = ?`,
		uuid,
	).Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}

// FindForUpdate locks the organization row on stores that support row locks.
func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, uuid string) (*domain.Organization, error) {
	var orgs []domain.Organization
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("uuid = ?", uuid).
		Limit(1).
		Find(&orgs).Error
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, nil
	}
	return &orgs[0], nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM organizations WHERE slug = ?`,
		slug,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Organization, error) {
	var items []domain.Organization
	stmt := db.WithContext(ctx).Model(&domain.Organization{})

	if !filter.IncludeAllPrivate {
		if filter.MemberID != 0 {
			stmt = stmt.Where(
				"private = ? OR id IN (SELECT organization_id FROM memberships WHERE user_id = ?)",
				false,
				filter.MemberID,
			)
		} else {
			stmt = stmt.Where("private = ?", false)
		}
	}
	if filter.Individual != nil {
		stmt = stmt.Where("individual = ?", *filter.Individual)
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id > ?", filter.AfterID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	if err := stmt.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertMembership(ctx context.Context, db *gorm.DB, m *domain.Membership) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO memberships (id, organization_id, user_id, admin, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID,
		m.OrganizationID,
		m.UserID,
		m.Admin,
		m.CreatedAt,
	).Error
}

func (r *repo) FindMembership(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (*domain.Membership, error) {
	var m domain.Membership
	err := db.WithContext(ctx).Raw(
		`SELECT id, organization_id, user_id, admin, created_at
		 FROM memberships WHERE organization_id = ? AND user_id = ?`,
		orgID,
		userID,
	).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}

func (r *repo) UpdateMembershipAdmin(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, admin bool) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE memberships SET admin = ? WHERE organization_id = ? AND user_id = ?`,
		admin,
		orgID,
		userID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) DeleteMembership(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM memberships WHERE organization_id = ? AND user_id = ?`,
		orgID,
		userID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) DeleteMembershipsByOrganization(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM memberships WHERE organization_id = ?`, orgID).Error
}

func (r *repo) DeleteMembershipsByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM memberships WHERE user_id = ?`, userID).Error
}

func (r *repo) CountAdmins(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM memberships WHERE organization_id = ? AND admin = ?`,
		orgID,
		true,
	).Scan(&count).Error
	return count, err
}

func (r *repo) CountMembers(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM memberships WHERE organization_id = ?`,
		orgID,
	).Scan(&count).Error
	return count, err
}

const memberSelect = `SELECT m.id AS membership_id, m.organization_id, m.user_id,
	u.uuid AS user_uuid, u.username, u.name,
	u.individual_organization_id, io.uuid AS individual_org_uuid,
	m.admin, m.created_at
	FROM memberships m
	JOIN users u ON u.id = m.user_id
	LEFT JOIN organizations io ON io.id = u.individual_organization_id`

func (r *repo) ListMembers(ctx context.Context, db *gorm.DB, orgID, afterID snowflake.ID, limit int) ([]domain.MemberRecord, error) {
	var items []domain.MemberRecord
	err := db.WithContext(ctx).Raw(
		memberSelect+`
		 WHERE m.organization_id = ? AND m.id > ?
		 ORDER BY m.id ASC
		 LIMIT ?`,
		orgID,
		afterID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindMember(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (*domain.MemberRecord, error) {
	var item domain.MemberRecord
	err := db.WithContext(ctx).Raw(
		memberSelect+` WHERE m.organization_id = ? AND m.user_id = ?`,
		orgID,
		userID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.MembershipID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertReceiptEmail(ctx context.Context, db *gorm.DB, email *domain.ReceiptEmail) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO receipt_emails (id, organization_id, email, failed, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		email.ID,
		email.OrganizationID,
		email.Email,
		email.Failed,
		email.CreatedAt,
	).Error
}

func (r *repo) ListReceiptEmails(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]domain.ReceiptEmail, error) {
	var items []domain.ReceiptEmail
	err := db.WithContext(ctx).Raw(
		`SELECT id, organization_id, email, failed, created_at
		 FROM receipt_emails WHERE organization_id = ? ORDER BY id ASC`,
		orgID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeleteReceiptEmails(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM receipt_emails WHERE organization_id = ?`, orgID).Error
}

func (r *repo) InsertChangeLog(ctx context.Context, db *gorm.DB, log *domain.ChangeLog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO change_logs (id, organization_id, user_id, reason, from_plan_id, to_plan_id,
		   from_max_users, to_max_users, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID,
		log.OrganizationID,
		log.UserID,
		log.Reason,
		log.FromPlanID,
		log.ToPlanID,
		log.FromMaxUsers,
		log.ToMaxUsers,
		log.CreatedAt,
	).Error
}

func (r *repo) ListChangeLogs(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]domain.ChangeLog, error) {
	var items []domain.ChangeLog
	err := db.WithContext(ctx).Raw(
		`SELECT id, organization_id, user_id, reason, from_plan_id, to_plan_id,
		   from_max_users, to_max_users, created_at
		 FROM change_logs WHERE organization_id = ? ORDER BY created_at ASC, id ASC`,
		orgID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeleteChangeLogs(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM change_logs WHERE organization_id = ?`, orgID).Error
}

func (r *repo) CountCharges(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM charges WHERE organization_id = ?`,
		orgID,
	).Scan(&count).Error
	return count, err
}

func (r *repo) DeleteCustomers(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM customers WHERE organization_id = ?`, orgID).Error
}
