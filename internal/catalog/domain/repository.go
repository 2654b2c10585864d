package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPlan(ctx context.Context, db *gorm.DB, plan *Plan) error
	FindPlan(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	ListPlans(ctx context.Context, db *gorm.DB, includePrivate bool, afterID snowflake.ID, limit int) ([]Plan, error)
	LinkEntitlements(ctx context.Context, db *gorm.DB, planID snowflake.ID, entitlementIDs []snowflake.ID) error
	ListPlanEntitlements(ctx context.Context, db *gorm.DB, planIDs []snowflake.ID) ([]PlanEntitlementRow, error)

	InsertEntitlement(ctx context.Context, db *gorm.DB, e *Entitlement) error
	FindEntitlement(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Entitlement, error)
	FindEntitlements(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Entitlement, error)
	ListEntitlements(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]Entitlement, error)
}
