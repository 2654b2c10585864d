package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/accounts/internal/catalog/domain"
	"github.com/smallbiznis/accounts/pkg/db"
	"github.com/smallbiznis/accounts/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) CreatePlan(ctx context.Context, req domain.CreatePlanRequest) (*domain.PlanResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 255 {
		return nil, domain.ErrInvalidName
	}
	planSlug, err := normalizeSlug(req.Slug, name)
	if err != nil {
		return nil, err
	}
	if req.BasePrice < 0 || req.PricePerUser < 0 {
		return nil, domain.ErrInvalidPrice
	}
	minimumUsers := req.MinimumUsers
	if minimumUsers == 0 {
		minimumUsers = 1
	}
	if minimumUsers < 1 {
		return nil, domain.ErrInvalidMinimumUsers
	}
	forIndividuals := boolOr(req.ForIndividuals, true)
	forGroups := boolOr(req.ForGroups, true)
	if !forIndividuals && !forGroups {
		return nil, domain.ErrInvalidAudience
	}
	entitlementIDs, err := parseIDs(req.Entitlements, domain.ErrInvalidEntitlement)
	if err != nil {
		return nil, err
	}

	plan := domain.Plan{
		ID:             s.genID.Generate(),
		Name:           name,
		Slug:           planSlug,
		MinimumUsers:   minimumUsers,
		BasePrice:      req.BasePrice,
		PricePerUser:   req.PricePerUser,
		FeatureLevel:   req.FeatureLevel,
		Public:         req.Public,
		Annual:         req.Annual,
		ForIndividuals: forIndividuals,
		ForGroups:      forGroups,
		CreatedAt:      time.Now().UTC(),
	}

	var entitlements []domain.Entitlement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entitlements, err = s.repo.FindEntitlements(ctx, tx, entitlementIDs)
		if err != nil {
			return err
		}
		if len(entitlements) != len(entitlementIDs) {
			return domain.ErrInvalidEntitlement
		}
		if err := s.repo.InsertPlan(ctx, tx, &plan); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicatePlan
			}
			return err
		}
		return s.repo.LinkEntitlements(ctx, tx, plan.ID, entitlementIDs)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("plan created", zap.String("plan_id", plan.ID.String()), zap.String("slug", plan.Slug))
	return toPlanResponse(plan, entitlements), nil
}

func (s *Service) GetPlan(ctx context.Context, id string, includePrivate bool) (*domain.PlanResponse, error) {
	planID, err := parseID(id, domain.ErrInvalidPlan)
	if err != nil {
		return nil, err
	}
	plan, err := s.repo.FindPlan(ctx, s.db, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil || (!plan.Public && !includePrivate) {
		return nil, domain.ErrPlanNotFound
	}

	rows, err := s.repo.ListPlanEntitlements(ctx, s.db, []snowflake.ID{plan.ID})
	if err != nil {
		return nil, err
	}
	entitlements := make([]domain.Entitlement, 0, len(rows))
	for _, row := range rows {
		entitlements = append(entitlements, row.Entitlement)
	}
	return toPlanResponse(*plan, entitlements), nil
}

func (s *Service) ListPlans(ctx context.Context, page pagination.Pagination, includePrivate bool) (*domain.ListPlansResponse, error) {
	page = page.Normalize()
	afterID, err := page.AfterID()
	if err != nil {
		return nil, err
	}

	plans, err := s.repo.ListPlans(ctx, s.db, includePrivate, snowflake.ID(afterID), page.PageSize+1)
	if err != nil {
		return nil, err
	}
	plans, info := pagination.Trim(plans, page.PageSize, func(p domain.Plan) int64 { return p.ID.Int64() })

	ids := make([]snowflake.ID, 0, len(plans))
	for _, p := range plans {
		ids = append(ids, p.ID)
	}
	rows, err := s.repo.ListPlanEntitlements(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	byPlan := make(map[snowflake.ID][]domain.Entitlement, len(plans))
	for _, row := range rows {
		byPlan[row.PlanID] = append(byPlan[row.PlanID], row.Entitlement)
	}

	resp := &domain.ListPlansResponse{
		Results:  make([]domain.PlanResponse, 0, len(plans)),
		PageInfo: info,
	}
	for _, p := range plans {
		resp.Results = append(resp.Results, *toPlanResponse(p, byPlan[p.ID]))
	}
	return resp, nil
}

func (s *Service) CreateEntitlement(ctx context.Context, req domain.CreateEntitlementRequest) (*domain.EntitlementResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 255 {
		return nil, domain.ErrInvalidName
	}
	entSlug, err := normalizeSlug(req.Slug, name)
	if err != nil {
		return nil, err
	}

	resources := datatypes.JSONMap{}
	for k, v := range req.Resources {
		resources[k] = v
	}
	ent := domain.Entitlement{
		ID:          s.genID.Generate(),
		Name:        name,
		Slug:        entSlug,
		Description: strings.TrimSpace(req.Description),
		Resources:   resources,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.InsertEntitlement(ctx, s.db, &ent); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateEntitlement
		}
		return nil, err
	}

	resp := toEntitlementResponse(ent)
	return &resp, nil
}

func (s *Service) GetEntitlement(ctx context.Context, id string) (*domain.EntitlementResponse, error) {
	entID, err := parseID(id, domain.ErrInvalidEntitlement)
	if err != nil {
		return nil, err
	}
	ent, err := s.repo.FindEntitlement(ctx, s.db, entID)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return nil, domain.ErrEntitlementNotFound
	}
	resp := toEntitlementResponse(*ent)
	return &resp, nil
}

func (s *Service) ListEntitlements(ctx context.Context, page pagination.Pagination) (*domain.ListEntitlementsResponse, error) {
	page = page.Normalize()
	afterID, err := page.AfterID()
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListEntitlements(ctx, s.db, snowflake.ID(afterID), page.PageSize+1)
	if err != nil {
		return nil, err
	}
	items, info := pagination.Trim(items, page.PageSize, func(e domain.Entitlement) int64 { return e.ID.Int64() })

	resp := &domain.ListEntitlementsResponse{
		Results:  make([]domain.EntitlementResponse, 0, len(items)),
		PageInfo: info,
	}
	for _, item := range items {
		resp.Results = append(resp.Results, toEntitlementResponse(item))
	}
	return resp, nil
}

func normalizeSlug(raw, name string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		value = slug.Make(name)
	}
	if !slug.IsSlug(value) {
		return "", domain.ErrInvalidSlug
	}
	return value, nil
}

func parseID(raw string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, invalid
	}
	return id, nil
}

func parseIDs(raw []string, invalid error) ([]snowflake.ID, error) {
	seen := make(map[snowflake.ID]struct{}, len(raw))
	ids := make([]snowflake.ID, 0, len(raw))
	for _, r := range raw {
		id, err := parseID(r, invalid)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func toEntitlementResponse(e domain.Entitlement) domain.EntitlementResponse {
	resources := map[string]any(e.Resources)
	if resources == nil {
		resources = map[string]any{}
	}
	return domain.EntitlementResponse{
		ID:          e.ID.String(),
		Name:        e.Name,
		Slug:        e.Slug,
		Description: e.Description,
		Resources:   resources,
		CreatedAt:   e.CreatedAt,
	}
}

func toPlanResponse(p domain.Plan, entitlements []domain.Entitlement) *domain.PlanResponse {
	resp := &domain.PlanResponse{
		ID:             p.ID.String(),
		Name:           p.Name,
		Slug:           p.Slug,
		MinimumUsers:   p.MinimumUsers,
		BasePrice:      p.BasePrice,
		PricePerUser:   p.PricePerUser,
		FeatureLevel:   p.FeatureLevel,
		Public:         p.Public,
		Annual:         p.Annual,
		ForIndividuals: p.ForIndividuals,
		ForGroups:      p.ForGroups,
		Entitlements:   make([]domain.EntitlementResponse, 0, len(entitlements)),
		CreatedAt:      p.CreatedAt,
	}
	for _, e := range entitlements {
		resp.Entitlements = append(resp.Entitlements, toEntitlementResponse(e))
	}
	return resp
}
