package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/accounts/pkg/db/pagination"
)

type Service interface {
	CreatePlan(ctx context.Context, req CreatePlanRequest) (*PlanResponse, error)
	GetPlan(ctx context.Context, id string, includePrivate bool) (*PlanResponse, error)
	ListPlans(ctx context.Context, page pagination.Pagination, includePrivate bool) (*ListPlansResponse, error)

	CreateEntitlement(ctx context.Context, req CreateEntitlementRequest) (*EntitlementResponse, error)
	GetEntitlement(ctx context.Context, id string) (*EntitlementResponse, error)
	ListEntitlements(ctx context.Context, page pagination.Pagination) (*ListEntitlementsResponse, error)
}

type CreatePlanRequest struct {
	Name           string   `json:"name"`
	Slug           string   `json:"slug"`
	MinimumUsers   int      `json:"minimum_users"`
	BasePrice      int64    `json:"base_price"`
	PricePerUser   int64    `json:"price_per_user"`
	FeatureLevel   int      `json:"feature_level"`
	Public         bool     `json:"public"`
	Annual         bool     `json:"annual"`
	ForIndividuals *bool    `json:"for_individuals"`
	ForGroups      *bool    `json:"for_groups"`
	Entitlements   []string `json:"entitlements"`
}

type CreateEntitlementRequest struct {
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Description string         `json:"description"`
	Resources   map[string]any `json:"resources"`
}

type EntitlementResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Description string         `json:"description"`
	Resources   map[string]any `json:"resources"`
	CreatedAt   time.Time      `json:"created_at"`
}

type PlanResponse struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	Slug           string                `json:"slug"`
	MinimumUsers   int                   `json:"minimum_users"`
	BasePrice      int64                 `json:"base_price"`
	PricePerUser   int64                 `json:"price_per_user"`
	FeatureLevel   int                   `json:"feature_level"`
	Public         bool                  `json:"public"`
	Annual         bool                  `json:"annual"`
	ForIndividuals bool                  `json:"for_individuals"`
	ForGroups      bool                  `json:"for_groups"`
	Entitlements   []EntitlementResponse `json:"entitlements"`
	CreatedAt      time.Time             `json:"created_at"`
}

type ListPlansResponse struct {
	Results []PlanResponse `json:"results"`
	pagination.PageInfo
}

type ListEntitlementsResponse struct {
	Results []EntitlementResponse `json:"results"`
	pagination.PageInfo
}

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidSlug          = errors.New("invalid_slug")
	ErrInvalidPrice         = errors.New("invalid_price")
	ErrInvalidMinimumUsers  = errors.New("invalid_minimum_users")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrInvalidEntitlement   = errors.New("invalid_entitlement")
	ErrInvalidAudience      = errors.New("invalid_audience")
	ErrPlanNotFound         = errors.New("plan_not_found")
	ErrEntitlementNotFound  = errors.New("entitlement_not_found")
	ErrDuplicatePlan        = errors.New("duplicate_plan")
	ErrDuplicateEntitlement = errors.New("duplicate_entitlement")
)
