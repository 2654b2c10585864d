package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBillingFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "billing.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewBillingConfigHolderReadsFile(t *testing.T) {
	path := writeBillingFile(t, `
billing:
  currency: EUR
  minimumCharge: 100
  statementDescriptor: MUCKROCK
  sendReceipts: false
  chargeLockTTL: 10s
`)

	holder, err := NewBillingConfigHolder(Config{BillingConfigPath: path})
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, int64(100), cfg.MinimumCharge)
	assert.Equal(t, "MUCKROCK", cfg.StatementDescriptor)
	assert.False(t, cfg.SendReceipts)
	assert.Equal(t, 10*time.Second, cfg.ChargeLockTTL)
}

func TestNewBillingConfigHolderAppliesDefaults(t *testing.T) {
	path := writeBillingFile(t, "billing:\n  minimumCharge: 75\n")

	holder, err := NewBillingConfigHolder(Config{BillingConfigPath: path})
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, int64(75), cfg.MinimumCharge)
	assert.True(t, cfg.SendReceipts)
}

func TestNewBillingConfigHolderKeepsDefaultsForOmittedKeys(t *testing.T) {
	path := writeBillingFile(t, "billing:\n  sendReceipts: false\n")

	holder, err := NewBillingConfigHolder(Config{BillingConfigPath: path})
	require.NoError(t, err)

	defaults := DefaultBillingConfig()
	cfg := holder.Get()
	assert.False(t, cfg.SendReceipts)
	assert.Equal(t, defaults.Currency, cfg.Currency)
	assert.Equal(t, defaults.MinimumCharge, cfg.MinimumCharge)
	assert.Equal(t, defaults.StatementDescriptor, cfg.StatementDescriptor)
	assert.Equal(t, defaults.ChargeLockTTL, cfg.ChargeLockTTL)
}

func TestUnmarshalBillingPartialReload(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader("billing:\n  chargeLockTTL: 5s\n")))

	cfg, err := unmarshalBilling(v)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.ChargeLockTTL)
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, int64(50), cfg.MinimumCharge)
	assert.True(t, cfg.SendReceipts)
}

func TestNewBillingConfigHolderRejectsInvalid(t *testing.T) {
	path := writeBillingFile(t, "billing:\n  currency: dollars\n")

	_, err := NewBillingConfigHolder(Config{BillingConfigPath: path})
	require.Error(t, err)
}

func TestValidateBillingConfig(t *testing.T) {
	cfg := DefaultBillingConfig()
	require.NoError(t, validateBillingConfig(cfg))

	cfg.MinimumCharge = 0
	assert.Error(t, validateBillingConfig(cfg))

	cfg = DefaultBillingConfig()
	cfg.StatementDescriptor = "THIS DESCRIPTOR IS FAR TOO LONG"
	assert.Error(t, validateBillingConfig(cfg))
}
