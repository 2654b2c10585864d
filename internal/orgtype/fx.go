package orgtype

import (
	"github.com/smallbiznis/accounts/internal/orgtype/repository"
	"github.com/smallbiznis/accounts/internal/orgtype/service"
	"go.uber.org/fx"
)

var Module = fx.Module("orgtype.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
