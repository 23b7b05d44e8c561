package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantumFlowBot/internal/domain"
)

func newTestCalculator(t *testing.T, cfg LimitConfig, instruments ...domain.InstrumentConfig) *TradeLimitCalculator {
	t.Helper()
	table, err := NewTierTable(DefaultTiers())
	require.NoError(t, err)
	if len(instruments) == 0 {
		instruments = []domain.InstrumentConfig{testInstrument("EURUSD", 4)}
	}
	calc, err := NewTradeLimitCalculator(table, instruments, cfg)
	require.NoError(t, err)
	return calc
}

func TestTradeLimitCalculator_Calculate(t *testing.T) {
	calc := newTestCalculator(t, LimitConfig{RefreshInterval: time.Hour},
		testInstrument("EURUSD", 4), testInstrument("GBPUSD", 3), testInstrument("USDJPY", 1))

	tests := []struct {
		balance float64
		want    TradeLimits
	}{
		{5, TradeLimits{"EURUSD": 4, "GBPUSD": 3, "USDJPY": 1}},
		{25, TradeLimits{"EURUSD": 6, "GBPUSD": 4, "USDJPY": 1}},
		{50, TradeLimits{"EURUSD": 8, "GBPUSD": 6, "USDJPY": 2}},
		// 600 falls in the 15-trade tier: 4 * 15 / 4.
		{600, TradeLimits{"EURUSD": 15, "GBPUSD": 11, "USDJPY": 3}},
		{5000, TradeLimits{"EURUSD": 20, "GBPUSD": 15, "USDJPY": 5}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calc.Calculate(tt.balance), "balance %v", tt.balance)
	}
}

func TestTradeLimitCalculator_Cap(t *testing.T) {
	calc := newTestCalculator(t, LimitConfig{RefreshInterval: time.Hour, MaxTradesCap: 12})
	assert.Equal(t, 8, calc.Calculate(50)["EURUSD"])
	assert.Equal(t, 12, calc.Calculate(600)["EURUSD"])
}

func TestTradeLimitCalculator_MonotonicInBalance(t *testing.T) {
	var instruments []domain.InstrumentConfig
	for base := 1; base <= 7; base++ {
		instruments = append(instruments, testInstrument(string(rune('A'+base)), base))
	}
	calc := newTestCalculator(t, LimitConfig{RefreshInterval: time.Hour}, instruments...)

	prev := calc.Calculate(0)
	for b := 1.0; b <= 2500; b += 2.5 {
		cur := calc.Calculate(b)
		for sym, limit := range cur {
			assert.GreaterOrEqual(t, limit, prev[sym], "symbol %s at balance %v", sym, b)
			assert.GreaterOrEqual(t, limit, 1)
		}
		prev = cur
	}
}

func TestTradeLimitCalculator_Refresh(t *testing.T) {
	calc := newTestCalculator(t, LimitConfig{RefreshInterval: time.Hour})
	fetchErr := errors.New("timeout")

	t.Run("failed first read leaves no limits", func(t *testing.T) {
		changed, err := calc.Refresh(day1, 0, fetchErr)
		require.Error(t, err)
		var transient *TransientDataError
		require.ErrorAs(t, err, &transient)
		assert.Equal(t, "balance", transient.Source)
		assert.ErrorIs(t, err, fetchErr)
		assert.False(t, changed)
		assert.Nil(t, calc.Limits())
	})

	t.Run("first good read computes limits", func(t *testing.T) {
		changed, err := calc.Refresh(day1, 50, nil)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, TradeLimits{"EURUSD": 8}, calc.Limits())
		assert.Equal(t, 50.0, calc.Tier().Threshold)
		assert.Equal(t, day1, calc.UpdatedAt())
	})

	t.Run("failed read keeps previous limits", func(t *testing.T) {
		_, err := calc.Refresh(day1.Add(2*time.Hour), 0, fetchErr)
		require.Error(t, err)
		assert.Equal(t, TradeLimits{"EURUSD": 8}, calc.Limits())
		assert.Equal(t, day1, calc.UpdatedAt())
	})

	t.Run("same tier within interval is not recomputed", func(t *testing.T) {
		assert.False(t, calc.Due(day1.Add(10*time.Minute), 60))
		changed, err := calc.Refresh(day1.Add(10*time.Minute), 60, nil)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, day1, calc.UpdatedAt())
	})

	t.Run("tier change forces recompute", func(t *testing.T) {
		now := day1.Add(20 * time.Minute)
		assert.True(t, calc.Due(now, 120))
		changed, err := calc.Refresh(now, 120, nil)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, TradeLimits{"EURUSD": 10}, calc.Limits())
		assert.Equal(t, now, calc.UpdatedAt())
	})

	t.Run("elapsed interval recomputes even without change", func(t *testing.T) {
		now := day1.Add(2 * time.Hour)
		changed, err := calc.Refresh(now, 120, nil)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, now, calc.UpdatedAt())
	})
}

func TestTradeLimitCalculator_LimitsAreCopies(t *testing.T) {
	calc := newTestCalculator(t, LimitConfig{RefreshInterval: time.Hour})
	_, err := calc.Refresh(day1, 50, nil)
	require.NoError(t, err)

	limits := calc.Limits()
	limits["EURUSD"] = 1000
	assert.Equal(t, 8, calc.Limits()["EURUSD"])
}

func TestNewTradeLimitCalculator_Invalid(t *testing.T) {
	table, err := NewTierTable(DefaultTiers())
	require.NoError(t, err)
	insts := []domain.InstrumentConfig{testInstrument("EURUSD", 4)}

	_, err = NewTradeLimitCalculator(nil, insts, LimitConfig{RefreshInterval: time.Hour})
	assert.Error(t, err)
	_, err = NewTradeLimitCalculator(table, nil, LimitConfig{RefreshInterval: time.Hour})
	assert.Error(t, err)
	_, err = NewTradeLimitCalculator(table, insts, LimitConfig{})
	assert.Error(t, err)
	_, err = NewTradeLimitCalculator(table, insts, LimitConfig{RefreshInterval: time.Hour, MaxTradesCap: -1})
	assert.Error(t, err)
}
