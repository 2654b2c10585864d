package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig holds charge settings that can change without a restart.
type BillingConfig struct {
	Currency            string        `mapstructure:"currency"`
	MinimumCharge       int64         `mapstructure:"minimumCharge"`
	StatementDescriptor string        `mapstructure:"statementDescriptor"`
	SendReceipts        bool          `mapstructure:"sendReceipts"`
	ChargeLockTTL       time.Duration `mapstructure:"chargeLockTTL"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Currency:            "usd",
		MinimumCharge:       50,
		StatementDescriptor: "ACCOUNTS",
		SendReceipts:        true,
		ChargeLockTTL:       30 * time.Second,
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfig returns a holder that never reloads.
func NewStaticBillingConfig(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(cfg Config) (*BillingConfigHolder, error) {
	log := zap.L().Named("config.billing")
	v := viper.New()

	if path := strings.TrimSpace(cfg.BillingConfigPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("billing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/accounts")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ACCOUNTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.currency", defaults.Currency)
	v.SetDefault("billing.minimumCharge", defaults.MinimumCharge)
	v.SetDefault("billing.statementDescriptor", defaults.StatementDescriptor)
	v.SetDefault("billing.sendReceipts", defaults.SendReceipts)
	v.SetDefault("billing.chargeLockTTL", defaults.ChargeLockTTL)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	loaded, err := unmarshalBilling(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfig(loaded)
	if !fileLoaded {
		log.Info("billing config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalBilling(v)
		if err != nil {
			log.Warn("billing config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

// unmarshalBilling decodes over the defaults so keys missing from a partial
// file keep their default value.
func unmarshalBilling(v *viper.Viper) (BillingConfig, error) {
	cfg := DefaultBillingConfig()
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return BillingConfig{}, err
	}
	cfg.Currency = strings.ToLower(strings.TrimSpace(cfg.Currency))
	if err := validateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

func validateBillingConfig(cfg BillingConfig) error {
	if len(cfg.Currency) != 3 {
		return fmt.Errorf("billing.currency must be an ISO 4217 code, got %q", cfg.Currency)
	}
	if cfg.MinimumCharge < 1 {
		return errors.New("billing.minimumCharge must be positive")
	}
	if len(cfg.StatementDescriptor) > 22 {
		return errors.New("billing.statementDescriptor must be at most 22 characters")
	}
	if cfg.ChargeLockTTL <= 0 {
		return errors.New("billing.chargeLockTTL must be positive")
	}
	return nil
}
