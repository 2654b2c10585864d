package payment

import (
	"github.com/smallbiznis/accounts/internal/config"
	"github.com/smallbiznis/accounts/internal/payment/domain"
	"github.com/smallbiznis/accounts/internal/payment/memory"
	"github.com/smallbiznis/accounts/internal/payment/stripe"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.processor",
	fx.Provide(NewRegistryFromConfig),
)

// NewRegistryFromConfig always registers the memory processor and adds stripe
// when a secret key is configured. Selecting stripe without a key fails startup.
func NewRegistryFromConfig(cfg config.Config, log *zap.Logger) (*Registry, error) {
	processors := []domain.Processor{memory.New()}

	client, err := stripe.New(cfg)
	switch {
	case err == nil:
		processors = append(processors, client)
	case cfg.Payment.Provider == config.ProviderStripe:
		return nil, err
	}

	registry := NewRegistry(cfg.Payment.Provider, processors...)
	if _, err := registry.Active(); err != nil {
		return nil, err
	}

	log.Named("payment").Info("payment processors registered",
		zap.String("active", cfg.Payment.Provider),
		zap.Strings("providers", registry.Providers()),
	)
	return registry, nil
}
