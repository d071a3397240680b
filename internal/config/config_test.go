package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
symbols: [PETR4, VALE3]
strategies:
  momentum:
    enabled: true
`))
	require.NoError(t, err)

	assert.Equal(t, 100000.0, cfg.NAV)
	assert.Equal(t, "simulation", cfg.Source)
	assert.Equal(t, 0.1075, cfg.RiskFreeRate)
	assert.Equal(t, "adaptive", cfg.SizingMethod)
	assert.Equal(t, 300, cfg.Monitor.IntervalSeconds)
	assert.Equal(t, "data/journal.jsonl", cfg.Monitor.JournalPath)
	assert.Equal(t, int64(42), cfg.Sim.Seed)

	mom := cfg.Strategies["momentum"]
	assert.Equal(t, 0.05, mom.TakeProfitPct)
	assert.Equal(t, 0.02, mom.StopLossPct)
	assert.Equal(t, 0.2, mom.MinStrength)
	// the global rate propagates into every strategy's pricing inputs
	assert.Equal(t, cfg.RiskFreeRate, mom.Params.RiskFreeRate)

	assert.Equal(t, 1.5, cfg.Risk.MinGainLossRatio)
	assert.Equal(t, cfg.RiskFreeRate, cfg.Risk.RiskFreeRate)
	assert.Equal(t, 5.0, cfg.Execution.SpreadBps)
	assert.Equal(t, 0.05, cfg.Sizing.Fraction)
}

func TestLoadExplicitValuesWin(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
nav: 250000
symbols: [PETR4]
sizing_method: kelly
risk:
  min_gain_loss_ratio: 0.08
strategies:
  intraday_options:
    enabled: true
    min_strength: 0.4
    params:
      min_intraday_return: 0.006
      min_volume_ratio: 1.5
monitor:
  interval_seconds: 60
`))
	require.NoError(t, err)

	assert.Equal(t, 250000.0, cfg.NAV)
	assert.Equal(t, "kelly", cfg.SizingMethod)
	assert.Equal(t, 0.08, cfg.Risk.MinGainLossRatio)
	assert.Equal(t, 60, cfg.Monitor.IntervalSeconds)

	entry := cfg.Strategies["intraday_options"]
	assert.True(t, entry.Enabled)
	assert.Equal(t, 0.4, entry.MinStrength)
	assert.Equal(t, 0.006, entry.Params.MinIntradayReturn)
	assert.Equal(t, 1.5, entry.Params.MinVolumeRatio)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "symbols: [unterminated"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Root{
		Symbols:      []string{"PETR4"},
		Strategies:   map[string]StrategyEntry{"momentum": {Enabled: true}},
		SizingMethod: "fixed_fraction",
	}
	require.NoError(t, valid.Validate())

	noSymbols := valid
	noSymbols.Symbols = nil
	assert.Error(t, noSymbols.Validate())

	noStrategies := valid
	noStrategies.Strategies = map[string]StrategyEntry{"momentum": {Enabled: false}}
	assert.Error(t, noStrategies.Validate())

	badStrategy := valid
	badStrategy.Strategies = map[string]StrategyEntry{"astrology": {Enabled: true}}
	assert.Error(t, badStrategy.Validate())

	badSizing := valid
	badSizing.SizingMethod = "martingale"
	assert.Error(t, badSizing.Validate())
}
