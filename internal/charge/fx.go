package charge

import (
	"github.com/smallbiznis/accounts/internal/charge/repository"
	"github.com/smallbiznis/accounts/internal/charge/service"
	"go.uber.org/fx"
)

var Module = fx.Module("charge.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
