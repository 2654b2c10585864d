package auth

import (
	"github.com/smallbiznis/accounts/internal/auth/service"
	"github.com/smallbiznis/accounts/internal/auth/token"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(token.NewIssuer),
	fx.Provide(service.New),
)
