package seed

import (
	"context"

	catalogdomain "github.com/smallbiznis/accounts/internal/catalog/domain"
	"github.com/smallbiznis/accounts/internal/config"
	userdomain "github.com/smallbiznis/accounts/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("seed",
	fx.Invoke(Run),
)

type Params struct {
	fx.In

	Lc      fx.Lifecycle
	Cfg     config.Config
	Log     *zap.Logger
	Users   userdomain.Service
	Catalog catalogdomain.Service
}

func Run(p Params) {
	log := p.Log.Named("seed")
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if p.Cfg.SeedCatalog {
				if err := EnsureCatalog(ctx, p.Catalog, log); err != nil {
					return err
				}
			}
			return EnsureStaff(ctx, p.Users, log, p.Cfg.SeedAdminEmail, p.Cfg.SeedAdminPassword)
		},
	})
}
