package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantumFlowBot/internal/ports"
	"quantumFlowBot/internal/risk"
)

const tieredProfile = `
tiers:
  25: 6
  10: 4
  500: 15
settings:
  base_lot: 0.01
  risk_per_trade: 0.02
  max_drawdown: 10
  max_daily_loss: 5
pairs:
  GBPUSD:
    optimal_hours: [7, 8, 9]
    max_spread: 1.8
    min_volume: 80
    risk_settings:
      base_daily_trades: 3
      stop_loss_atr: 1.3
      take_profit_atr: 2.6
      trailing_start: 1.1
      trailing_step: 0.25
      max_position_size: 0.04
  EURUSD:
    optimal_hours: {from: 6, to: 16}
    max_spread: 1.5
    min_volume: 100
    risk_settings:
      base_daily_trades: 4
      stop_loss_atr: 1.2
      take_profit_atr: 2.4
      trailing_start: 1.0
      trailing_step: 0.2
      max_position_size: 0.05
recovery:
  max_consecutive_losses: 3
  lot_reduction: 0.5
  min_recovery_balance: 8
  cool_off_period: 4
compound:
  base_increment: 0.1
  profit_threshold: 5
  max_level: 5
  reset_on_loss: true
`

func TestParseProfile_Tiered(t *testing.T) {
	p, err := ParseProfile([]byte(tieredProfile), time.Hour)
	require.NoError(t, err)

	assert.False(t, p.Simple)
	assert.Equal(t, []risk.Tier{{Threshold: 10, MaxTrades: 4}, {Threshold: 25, MaxTrades: 6}, {Threshold: 500, MaxTrades: 15}}, p.Risk.Tiers)
	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, p.Symbols())
	assert.Equal(t, time.Hour, p.Risk.Limits.RefreshInterval)

	eur := p.Risk.Instruments[0]
	assert.Len(t, eur.OptimalHours, 10)
	assert.True(t, eur.InWindow(6))
	assert.True(t, eur.InWindow(15))
	assert.False(t, eur.InWindow(16))
	assert.Equal(t, 4, eur.Risk.BaseDailyTrades)

	assert.True(t, p.Risk.Recovery.Enabled)
	assert.Equal(t, 4*time.Hour, p.Risk.Recovery.CoolOff)
	assert.True(t, p.Risk.Compound.Enabled)
	assert.Equal(t, 5, p.Risk.Compound.MaxLevel)

	assert.Equal(t, 0.01, p.Risk.Sizing.BaseLot)
	assert.Equal(t, 0.02, p.Risk.Sizing.RiskPerTrade)
	assert.Equal(t, risk.DefaultSizingConfig().ReferenceBalance, p.Risk.Sizing.ReferenceBalance)
	assert.Equal(t, 5.0, p.Risk.Guards.MaxDailyLossPct)
	assert.Equal(t, 10.0, p.Risk.Guards.MaxDrawdownPct)
	assert.Equal(t, 30.0, p.Risk.Entry.RSIMin)
	assert.Equal(t, 0.5, p.Risk.Entry.MinMomentum)
	assert.Equal(t, "15", p.Strategy.KlineInterval)
}

func TestParseProfile_TieredLimits(t *testing.T) {
	p, err := ParseProfile([]byte(tieredProfile), time.Hour)
	require.NoError(t, err)
	engine, err := risk.NewEngine(p.Risk)
	require.NoError(t, err)

	changed, err := engine.Limits.Refresh(time.Now(), 600, nil)
	require.NoError(t, err)
	assert.True(t, changed)
	// 4 base trades scaled by 15/4 at the top tier.
	assert.Equal(t, 15, engine.Limits.Limits()["EURUSD"])
}

func TestParseProfile_FlagsDisablePolicies(t *testing.T) {
	doc := strings.Replace(tieredProfile, "settings:\n", "settings:\n  recovery_mode: false\n  compound_profits: false\n", 1)
	p, err := ParseProfile([]byte(doc), time.Hour)
	require.NoError(t, err)
	assert.False(t, p.Risk.Recovery.Enabled)
	assert.False(t, p.Risk.Compound.Enabled)
}

func TestParseProfile_SimpleVariant(t *testing.T) {
	doc := `
settings:
  base_lot: 0.01
  risk_per_trade: 0.01
pairs:
  EURUSD:
    optimal_hours: [8, 9, 10]
    max_spread: 2
    risk_settings:
      max_daily_trades: 5
      stop_loss_atr: 1.5
      take_profit_atr: 3
      trailing_start: 1
      trailing_step: 0.3
      max_position_size: 0.1
recovery:
  max_consecutive_losses: 3
  lot_reduction: 0.5
  cool_off_period: 1
`
	p, err := ParseProfile([]byte(doc), time.Hour)
	require.NoError(t, err)

	assert.True(t, p.Simple)
	assert.Equal(t, []risk.Tier{{Threshold: 0, MaxTrades: 1}}, p.Risk.Tiers)
	assert.Equal(t, 5, p.Risk.Instruments[0].Risk.BaseDailyTrades)
	assert.False(t, p.Risk.Recovery.Enabled)
	assert.False(t, p.Risk.Compound.Enabled)

	engine, err := risk.NewEngine(p.Risk)
	require.NoError(t, err)
	_, err = engine.Limits.Refresh(time.Now(), 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, engine.Limits.Limits()["EURUSD"])
}

func TestParseProfile_WrappingHourRange(t *testing.T) {
	doc := strings.Replace(tieredProfile, "optimal_hours: {from: 6, to: 16}", "optimal_hours: {from: 22, to: 3}", 1)
	p, err := ParseProfile([]byte(doc), time.Hour)
	require.NoError(t, err)

	eur := p.Risk.Instruments[0]
	require.Equal(t, "EURUSD", eur.Symbol)
	assert.Len(t, eur.OptimalHours, 5)
	for _, h := range []int{22, 23, 0, 1, 2} {
		assert.True(t, eur.InWindow(h), "hour %d", h)
	}
	assert.False(t, eur.InWindow(3))
	assert.False(t, eur.InWindow(21))
}

func TestParseProfile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{"malformed yaml", "tiers: [", "parse risk profile"},
		{"no pairs", "settings:\n  base_lot: 0.01\n  risk_per_trade: 0.01\n", "at least one instrument"},
		{"missing base lot", strings.Replace(tieredProfile, "base_lot: 0.01", "base_lot: 0", 1), "base_lot"},
		{"missing risk per trade", `
settings:
  base_lot: 0.01
pairs:
  EURUSD:
    optimal_hours: [1]
    max_spread: 1
    risk_settings: {base_daily_trades: 1, stop_loss_atr: 1, take_profit_atr: 2, trailing_start: 1, trailing_step: 0.2, max_position_size: 0.1}
`, "risk_per_trade is required"},
		{"bad hour range", `
settings: {base_lot: 0.01, risk_per_trade: 0.01}
pairs:
  EURUSD:
    optimal_hours: {from: 5, to: 5}
`, "hour range"},
		{"invalid pair", `
settings: {base_lot: 0.01, risk_per_trade: 0.01}
pairs:
  EURUSD:
    optimal_hours: [1]
    max_spread: 0
    risk_settings: {base_daily_trades: 1, stop_loss_atr: 1, take_profit_atr: 2, trailing_start: 1, trailing_step: 0.2, max_position_size: 0.1}
`, "max_spread"},
		{"decreasing tiers", strings.Replace(tieredProfile, "500: 15", "500: 2", 1), "fewer trades"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProfile([]byte(tt.doc), time.Hour)
			require.Error(t, err)
			assert.ErrorIs(t, err, ports.ErrConfigurationError)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tieredProfile), 0o600))

	p, err := LoadProfile(path, time.Hour)
	require.NoError(t, err)
	assert.Len(t, p.Risk.Instruments, 2)

	_, err = LoadProfile(filepath.Join(dir, "missing.yaml"), time.Hour)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestLoadProfile_ShippedProfile(t *testing.T) {
	p, err := LoadProfile("quantumflow.yaml", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, p.Symbols())
	assert.Equal(t, risk.DefaultTiers(), p.Risk.Tiers)
	assert.True(t, p.Risk.Recovery.Enabled)
	assert.True(t, p.Risk.Compound.Enabled)
}
