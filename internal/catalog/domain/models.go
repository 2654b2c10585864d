package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Entitlement grants access to a set of resources in a client application.
type Entitlement struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name        string            `gorm:"size:255;not null" json:"name"`
	Slug        string            `gorm:"size:255;not null;uniqueIndex:ux_entitlements_slug" json:"slug"`
	Description string            `gorm:"type:text;not null;default:''" json:"description"`
	Resources   datatypes.JSONMap `json:"resources"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
}

func (Entitlement) TableName() string { return "entitlements" }

// Plan is a subscription offering. Prices are in minor currency units.
type Plan struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	Name           string       `gorm:"size:255;not null" json:"name"`
	Slug           string       `gorm:"size:255;not null;uniqueIndex:ux_plans_slug" json:"slug"`
	MinimumUsers   int          `gorm:"not null;default:1" json:"minimum_users"`
	BasePrice      int64        `gorm:"not null;default:0" json:"base_price"`
	PricePerUser   int64        `gorm:"not null;default:0" json:"price_per_user"`
	FeatureLevel   int          `gorm:"not null;default:0" json:"feature_level"`
	Public         bool         `gorm:"not null;default:false" json:"public"`
	Annual         bool         `gorm:"not null;default:false" json:"annual"`
	ForIndividuals bool         `gorm:"not null;default:true" json:"for_individuals"`
	ForGroups      bool         `gorm:"not null;default:true" json:"for_groups"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
}

func (Plan) TableName() string { return "plans" }

// Cost is the price of the plan for the given number of users.
func (p Plan) Cost(users int) int64 {
	extra := users - p.MinimumUsers
	if extra < 0 {
		extra = 0
	}
	return p.BasePrice + int64(extra)*p.PricePerUser
}

type PlanEntitlement struct {
	PlanID        snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	EntitlementID snowflake.ID `gorm:"primaryKey;autoIncrement:false;index"`
}

func (PlanEntitlement) TableName() string { return "plan_entitlements" }

// PlanEntitlementRow is an entitlement annotated with the plan it belongs to.
type PlanEntitlementRow struct {
	PlanID snowflake.ID
	Entitlement
}
