package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accounts/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertPlan(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plans (id, name, slug, minimum_users, base_price, price_per_user, feature_level,
		   public, annual, for_individuals, for_groups, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.Name,
		plan.Slug,
		plan.MinimumUsers,
		plan.BasePrice,
		plan.PricePerUser,
		plan.FeatureLevel,
		plan.Public,
		plan.Annual,
		plan.ForIndividuals,
		plan.ForGroups,
		plan.CreatedAt,
	).Error
}

func (r *repo) FindPlan(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Plan, error) {
	var p domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, minimum_users, base_price, price_per_user, feature_level,
		   public, annual, for_individuals, for_groups, created_at
		 FROM plans WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) ListPlans(ctx context.Context, db *gorm.DB, includePrivate bool, afterID snowflake.ID, limit int) ([]domain.Plan, error) {
	var items []domain.Plan
	stmt := db.WithContext(ctx).Model(&domain.Plan{})
	if !includePrivate {
		stmt = stmt.Where("public = ?", true)
	}
	if afterID != 0 {
		stmt = stmt.Where("id > ?", afterID)
	}
	if err := stmt.Order("id ASC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) LinkEntitlements(ctx context.Context, db *gorm.DB, planID snowflake.ID, entitlementIDs []snowflake.ID) error {
	for _, id := range entitlementIDs {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO plan_entitlements (plan_id, entitlement_id) VALUES (?, ?)`,
			planID,
			id,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListPlanEntitlements(ctx context.Context, db *gorm.DB, planIDs []snowflake.ID) ([]domain.PlanEntitlementRow, error) {
	if len(planIDs) == 0 {
		return nil, nil
	}
	var rows []domain.PlanEntitlementRow
	err := db.WithContext(ctx).Raw(
		`SELECT pe.plan_id, e.id, e.name, e.slug, e.description, e.resources, e.created_at
		 FROM plan_entitlements pe
		 JOIN entitlements e ON e.id = pe.entitlement_id
		 WHERE pe.plan_id IN ?
		 ORDER BY e.name ASC`,
		planIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) InsertEntitlement(ctx context.Context, db *gorm.DB, e *domain.Entitlement) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO entitlements (id, name, slug, description, resources, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Name,
		e.Slug,
		e.Description,
		e.Resources,
		e.CreatedAt,
	).Error
}

func (r *repo) FindEntitlement(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Entitlement, error) {
	var e domain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, description, resources, created_at FROM entitlements WHERE id = ?`,
		id,
	).Scan(&e).Error
	if err != nil {
		return nil, err
	}
	if e.ID == 0 {
		return nil, nil
	}
	return &e, nil
}

func (r *repo) FindEntitlements(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Entitlement, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, description, resources, created_at FROM entitlements WHERE id IN ?`,
		ids,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListEntitlements(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]domain.Entitlement, error) {
	var items []domain.Entitlement
	stmt := db.WithContext(ctx).Model(&domain.Entitlement{})
	if afterID != 0 {
		stmt = stmt.Where("id > ?", afterID)
	}
	if err := stmt.Order("id ASC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
