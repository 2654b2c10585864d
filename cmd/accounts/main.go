package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accounts/internal/auth"
	"github.com/smallbiznis/accounts/internal/authorization"
	"github.com/smallbiznis/accounts/internal/catalog"
	"github.com/smallbiznis/accounts/internal/charge"
	"github.com/smallbiznis/accounts/internal/clock"
	"github.com/smallbiznis/accounts/internal/config"
	"github.com/smallbiznis/accounts/internal/migration"
	"github.com/smallbiznis/accounts/internal/observability"
	"github.com/smallbiznis/accounts/internal/organization"
	"github.com/smallbiznis/accounts/internal/orgtype"
	"github.com/smallbiznis/accounts/internal/providers"
	"github.com/smallbiznis/accounts/internal/ratelimit"
	"github.com/smallbiznis/accounts/internal/seed"
	"github.com/smallbiznis/accounts/internal/server"
	"github.com/smallbiznis/accounts/internal/signup"
	"github.com/smallbiznis/accounts/internal/user"
	"github.com/smallbiznis/accounts/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Functional Domains
		orgtype.Module,
		catalog.Module,
		organization.Module,
		user.Module,
		auth.Module,
		signup.Module,
		authorization.Module,
		providers.Module,
		ratelimit.Module,
		charge.Module,
		seed.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
