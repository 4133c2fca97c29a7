package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  env: dev\n"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "data/db/ledger.db", cfg.Database.LedgerPath)
	assert.Equal(t, "paper", cfg.Broker.Mode)
	assert.Equal(t, 0.02, cfg.Risk.DailyLossLimitPct)
	assert.Equal(t, 0.90, cfg.Risk.HeatCalmPct)
	assert.Equal(t, 0.25, cfg.Risk.HeatCrisisPct)
	assert.Equal(t, 0.85, cfg.Risk.CorrHardCeiling)
	assert.Equal(t, 0.08, cfg.Safety.HaltDrawdownPct)
	assert.Equal(t, 0.10, cfg.Safety.PanicDrawdownPct)
	assert.Equal(t, 3, cfg.Trading.TopNPerStrategy)
	assert.Equal(t, 0.05, cfg.Trading.PriceTolerancePct)
	assert.Equal(t, "configs/strategies.yaml", cfg.Strategies.Path)
	assert.Equal(t, "configs/prices.yaml", cfg.Strategies.PricesPath)
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
app:
  log_level: debug
risk:
  daily_loss_limit_pct: 0.03
trading:
  top_n_per_strategy: 5
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 0.03, cfg.Risk.DailyLossLimitPct)
	assert.Equal(t, 5, cfg.Trading.TopNPerStrategy)
}

func TestLoadRejectsBadBrokerMode(t *testing.T) {
	_, err := Load(writeConfig(t, "broker:\n  mode: carrier_pigeon\n"))
	assert.ErrorContains(t, err, "broker.mode")
}

func TestLoadHTTPModeRequiresURL(t *testing.T) {
	_, err := Load(writeConfig(t, "broker:\n  mode: http\n"))
	assert.ErrorContains(t, err, "broker.api_url")

	cfg, err := Load(writeConfig(t, "broker:\n  mode: HTTP\n  api_url: https://venue.example\n"))
	require.NoError(t, err)
	assert.Equal(t, "http", cfg.Broker.Mode)
}

func TestLoadRejectsInvertedCorrBand(t *testing.T) {
	_, err := Load(writeConfig(t, `
risk:
  corr_soft_low: 0.9
  corr_soft_high: 0.95
`))
	assert.ErrorContains(t, err, "corr_soft_high")
}

func TestLoadRejectsDrawdownOrdering(t *testing.T) {
	_, err := Load(writeConfig(t, `
safety:
  halt_drawdown_pct: 0.12
  panic_drawdown_pct: 0.10
`))
	assert.ErrorContains(t, err, "halt_drawdown_pct")
}

func TestLoadRejectsTelegramWithoutToken(t *testing.T) {
	_, err := Load(writeConfig(t, `
notify:
  telegram:
    enabled: true
`))
	assert.ErrorContains(t, err, "telegram")
}

func TestLoadRejectsUnknownRegime(t *testing.T) {
	_, err := Load(writeConfig(t, "risk:\n  regime: stormy\n"))
	assert.ErrorContains(t, err, "risk.regime")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	_, err = Load("  ")
	assert.Error(t, err)
}
