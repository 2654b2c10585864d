package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accounts/internal/catalog/domain"
	"github.com/smallbiznis/accounts/internal/catalog/repository"
	"github.com/smallbiznis/accounts/internal/migration"
	"github.com/smallbiznis/accounts/pkg/db"
	"github.com/smallbiznis/accounts/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupService(t *testing.T) domain.Service {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return New(Params{
		DB:    conn,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Repo:  repository.Provide(),
	})
}

func TestListPlansReturnsPublicPlans(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := svc.CreatePlan(ctx, domain.CreatePlanRequest{
			Name:   fmt.Sprintf("Plan %d", i),
			Public: true,
		})
		require.NoError(t, err)
	}
	_, err := svc.CreatePlan(ctx, domain.CreatePlanRequest{Name: "Enterprise"})
	require.NoError(t, err)

	resp, err := svc.ListPlans(ctx, pagination.Pagination{PageSize: 50}, false)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 10)
	assert.False(t, resp.HasMore)

	resp, err = svc.ListPlans(ctx, pagination.Pagination{PageSize: 50}, true)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 11)
}

func TestListPlansPaginates(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.CreatePlan(ctx, domain.CreatePlanRequest{Name: fmt.Sprintf("Tier %d", i), Public: true})
		require.NoError(t, err)
	}

	first, err := svc.ListPlans(ctx, pagination.Pagination{PageSize: 3}, false)
	require.NoError(t, err)
	require.Len(t, first.Results, 3)
	require.True(t, first.HasMore)

	second, err := svc.ListPlans(ctx, pagination.Pagination{PageSize: 3, PageToken: first.NextPageToken}, false)
	require.NoError(t, err)
	require.Len(t, second.Results, 2)
	assert.False(t, second.HasMore)
	assert.NotEqual(t, first.Results[2].ID, second.Results[0].ID)
}

func TestCreatePlanLinksEntitlements(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	ent, err := svc.CreateEntitlement(ctx, domain.CreateEntitlementRequest{
		Name:      "DocumentCloud Premium",
		Resources: map[string]any{"minutes": float64(5000)},
	})
	require.NoError(t, err)
	assert.Equal(t, "documentcloud-premium", ent.Slug)

	plan, err := svc.CreatePlan(ctx, domain.CreatePlanRequest{
		Name:         "Organization",
		Public:       true,
		MinimumUsers: 5,
		BasePrice:    10000,
		PricePerUser: 1000,
		Entitlements: []string{ent.ID},
	})
	require.NoError(t, err)
	require.Len(t, plan.Entitlements, 1)

	got, err := svc.GetPlan(ctx, plan.ID, false)
	require.NoError(t, err)
	require.Len(t, got.Entitlements, 1)
	assert.Equal(t, ent.ID, got.Entitlements[0].ID)
	assert.Equal(t, float64(5000), got.Entitlements[0].Resources["minutes"])
}

func TestCreatePlanRejectsUnknownEntitlement(t *testing.T) {
	svc := setupService(t)

	_, err := svc.CreatePlan(context.Background(), domain.CreatePlanRequest{
		Name:         "Broken",
		Entitlements: []string{"424242"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidEntitlement)

	resp, err := svc.ListPlans(context.Background(), pagination.Pagination{}, true)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestCreatePlanValidation(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	no := false

	_, err := svc.CreatePlan(ctx, domain.CreatePlanRequest{Name: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.CreatePlan(ctx, domain.CreatePlanRequest{Name: "Neg", BasePrice: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = svc.CreatePlan(ctx, domain.CreatePlanRequest{Name: "Nobody", ForIndividuals: &no, ForGroups: &no})
	assert.ErrorIs(t, err, domain.ErrInvalidAudience)

	_, err = svc.CreatePlan(ctx, domain.CreatePlanRequest{Name: "Bad slug", Slug: "Not A Slug"})
	assert.ErrorIs(t, err, domain.ErrInvalidSlug)

	_, err = svc.CreatePlan(ctx, domain.CreatePlanRequest{Name: "Pro"})
	require.NoError(t, err)
	_, err = svc.CreatePlan(ctx, domain.CreatePlanRequest{Name: "Pro"})
	assert.ErrorIs(t, err, domain.ErrDuplicatePlan)
}

func TestGetPlanHidesPrivatePlans(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	plan, err := svc.CreatePlan(ctx, domain.CreatePlanRequest{Name: "Staff Only"})
	require.NoError(t, err)

	_, err = svc.GetPlan(ctx, plan.ID, false)
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)

	got, err := svc.GetPlan(ctx, plan.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "Staff Only", got.Name)

	_, err = svc.GetPlan(ctx, "999", true)
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestEntitlementsListAndGet(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	var last *domain.EntitlementResponse
	for i := 0; i < 10; i++ {
		ent, err := svc.CreateEntitlement(ctx, domain.CreateEntitlementRequest{Name: fmt.Sprintf("Entitlement %d", i)})
		require.NoError(t, err)
		last = ent
	}

	resp, err := svc.ListEntitlements(ctx, pagination.Pagination{PageSize: 25})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 10)

	got, err := svc.GetEntitlement(ctx, last.ID)
	require.NoError(t, err)
	assert.Equal(t, last.Name, got.Name)

	_, err = svc.GetEntitlement(ctx, "1")
	assert.ErrorIs(t, err, domain.ErrEntitlementNotFound)

	_, err = svc.CreateEntitlement(ctx, domain.CreateEntitlementRequest{Name: "Entitlement 0"})
	assert.ErrorIs(t, err, domain.ErrDuplicateEntitlement)
}

func TestPlanCost(t *testing.T) {
	plan := domain.Plan{MinimumUsers: 5, BasePrice: 10000, PricePerUser: 1000}
	assert.Equal(t, int64(10000), plan.Cost(3))
	assert.Equal(t, int64(10000), plan.Cost(5))
	assert.Equal(t, int64(12000), plan.Cost(7))
}
