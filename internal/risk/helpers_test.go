package risk

import (
	"time"

	"quantumFlowBot/internal/domain"
)

var day1 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func testInstrument(symbol string, baseTrades int) domain.InstrumentConfig {
	return domain.InstrumentConfig{
		Symbol:       symbol,
		OptimalHours: domain.HourRange(8, 16),
		MaxSpread:    2,
		MinVolume:    1000,
		Risk: domain.RiskSettings{
			BaseDailyTrades: baseTrades,
			StopLossATR:     1.2,
			TakeProfitATR:   2.4,
			TrailingStart:   0.5,
			TrailingStep:    0.5,
			MaxPositionSize: 0.1,
		},
	}
}

func testRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Enabled:              true,
		MaxConsecutiveLosses: 3,
		LotReduction:         0.5,
		MinRecoveryBalance:   8,
		CoolOff:              4 * time.Hour,
	}
}

func testCompoundConfig() CompoundConfig {
	return CompoundConfig{
		Enabled:         true,
		BaseIncrement:   0.1,
		ProfitThreshold: 5,
		MaxLevel:        5,
		ResetOnLoss:     true,
	}
}

func testConfig() Config {
	return Config{
		Tiers:       DefaultTiers(),
		Instruments: []domain.InstrumentConfig{testInstrument("EURUSD", 4), testInstrument("GBPUSD", 3)},
		Limits:      LimitConfig{RefreshInterval: time.Hour},
		Recovery:    testRecoveryConfig(),
		Compound:    testCompoundConfig(),
		Sizing:      DefaultSizingConfig(),
		Entry:       EntryConfig{RSIMin: 30, RSIMax: 70, MinMomentum: 0.5},
		Guards:      GuardConfig{MaxDailyLossPct: 5, MaxDrawdownPct: 10},
	}
}

func win(pnl float64) domain.Trade  { return domain.Trade{Symbol: "EURUSD", PNL: pnl} }
func loss(pnl float64) domain.Trade { return domain.Trade{Symbol: "EURUSD", PNL: -pnl} }
