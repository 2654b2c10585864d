package seed

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	catalogrepository "github.com/smallbiznis/accounts/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/accounts/internal/catalog/service"
	"github.com/smallbiznis/accounts/internal/migration"
	orgrepository "github.com/smallbiznis/accounts/internal/organization/repository"
	orgservice "github.com/smallbiznis/accounts/internal/organization/service"
	orgtyperepository "github.com/smallbiznis/accounts/internal/orgtype/repository"
	orgtypeservice "github.com/smallbiznis/accounts/internal/orgtype/service"
	userdomain "github.com/smallbiznis/accounts/internal/user/domain"
	userrepository "github.com/smallbiznis/accounts/internal/user/repository"
	userservice "github.com/smallbiznis/accounts/internal/user/service"
	"github.com/smallbiznis/accounts/pkg/db"
	"github.com/smallbiznis/accounts/pkg/db/pagination"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSeedIsIdempotent(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)

	catalog := catalogservice.New(catalogservice.Params{DB: conn, Log: log, GenID: node, Repo: catalogrepository.Provide()})
	typeRepo := orgtyperepository.Provide()
	orgRepo := orgrepository.Provide()
	orgs := orgservice.New(orgservice.Params{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Repo:     orgRepo,
		Plans:    catalogrepository.Provide(),
		Types:    typeRepo,
		Subtypes: orgtypeservice.New(orgtypeservice.Params{DB: conn, Log: log, GenID: node, Repo: typeRepo}),
	})
	users := userservice.New(userservice.Params{
		DB:      conn,
		Log:     log,
		GenID:   node,
		Repo:    userrepository.Provide(),
		Orgs:    orgs,
		OrgRepo: orgRepo,
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.NoError(t, EnsureCatalog(ctx, catalog, log))
		require.NoError(t, EnsureStaff(ctx, users, log, "admin@example.com", "correct-horse-42"))
	}

	plans, err := catalog.ListPlans(ctx, pagination.Pagination{PageSize: 10}, false)
	require.NoError(t, err)
	require.Len(t, plans.Results, 1)
	require.Equal(t, "free", plans.Results[0].Slug)

	admin, err := users.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	require.True(t, admin.IsStaff)
	require.NotZero(t, admin.IndividualOrganizationID)

	var count int64
	require.NoError(t, conn.Model(&userdomain.User{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestEnsureStaffSkipsWithoutEmail(t *testing.T) {
	require.NoError(t, EnsureStaff(context.Background(), nil, zaptest.NewLogger(t), "", ""))
}

func TestEnsureStaffRequiresPassword(t *testing.T) {
	require.Error(t, EnsureStaff(context.Background(), nil, zaptest.NewLogger(t), "admin@example.com", ""))
}
