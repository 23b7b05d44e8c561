package risk

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantumFlowBot/internal/domain"
)

func newTestSizer(t *testing.T) *AdaptiveLotSizer {
	t.Helper()
	rec, err := NewRecoveryTracker(testRecoveryConfig())
	require.NoError(t, err)
	comp, err := NewCompoundTracker(testCompoundConfig())
	require.NoError(t, err)
	s, err := NewAdaptiveLotSizer(DefaultSizingConfig(), rec, comp)
	require.NoError(t, err)
	return s
}

func baseSizingInput() SizingInput {
	return SizingInput{
		Instrument: testInstrument("EURUSD", 4),
		BaseLot:    0.01,
		Balance:    10,
		WinRate:    0.5,
		Snapshot:   &domain.MarketSnapshot{Symbol: "EURUSD", Volatility: 1.0},
		Recovery:   RecoveryState{Mode: ModeNormal},
		Compound:   CompoundState{Level: 1},
	}
}

func TestAdaptiveLotSizer_NeutralInputs(t *testing.T) {
	s := newTestSizer(t)
	res := s.Size(baseSizingInput())

	assert.False(t, res.Fallback)
	assert.Equal(t, 1.0, res.Multiplier)
	assert.InDelta(t, 0.01, res.Size, 1e-12)
}

func TestAdaptiveLotSizer_MultiplierChain(t *testing.T) {
	s := newTestSizer(t)
	in := baseSizingInput()
	in.Balance = 20
	in.WinRate = 0.6
	in.Snapshot.Volatility = 0.3
	in.Compound = CompoundState{Level: 3}

	res := s.Size(in)
	require.False(t, res.Fallback)
	assert.InDelta(t, 2.0, res.BalanceMultiplier, 1e-9)
	assert.InDelta(t, 1.1, res.PerformanceMultiplier, 1e-9)
	assert.InDelta(t, 1.2, res.VolatilityMultiplier, 1e-9)
	assert.InDelta(t, 1.2, res.CompoundMultiplier, 1e-9)
	assert.Equal(t, 1.0, res.RecoveryFactor)
	// 0.01 * 3.168 rounded to three decimals.
	assert.InDelta(t, 0.032, res.Size, 1e-12)
}

func TestAdaptiveLotSizer_BalanceMultiplierCapped(t *testing.T) {
	s := newTestSizer(t)
	assert.Equal(t, 3.0, s.BalanceMultiplier(1000))
	assert.Equal(t, 0.5, s.BalanceMultiplier(5))
}

func TestAdaptiveLotSizer_VolatilityBands(t *testing.T) {
	s := newTestSizer(t)
	assert.Equal(t, 0.7, s.VolatilityMultiplier(2))
	assert.Equal(t, 1.2, s.VolatilityMultiplier(0.2))
	assert.Equal(t, 1.0, s.VolatilityMultiplier(1.5))
	assert.Equal(t, 1.0, s.VolatilityMultiplier(0.5))
}

func TestAdaptiveLotSizer_RecoveryIgnoresWinRate(t *testing.T) {
	s := newTestSizer(t)
	rec := RecoveryState{ConsecutiveLosses: 3, Mode: ModeRecovery}

	for _, wr := range []float64{0, 0.2, 0.5, 0.8, 1} {
		assert.Equal(t, 1.0, s.PerformanceMultiplier(wr, rec), "win rate %v", wr)

		in := baseSizingInput()
		in.Balance = 30
		in.WinRate = wr
		in.Recovery = rec
		res := s.Size(in)
		assert.Equal(t, 1.0, res.PerformanceMultiplier)
		assert.Equal(t, 0.5, res.RecoveryFactor)
		// 0.01 * 3 * 0.5
		assert.InDelta(t, 0.015, res.Size, 1e-12)
	}

	assert.InDelta(t, 1.3, s.PerformanceMultiplier(0.8, RecoveryState{Mode: ModeNormal}), 1e-9)
}

func TestAdaptiveLotSizer_StaysWithinBounds(t *testing.T) {
	s := newTestSizer(t)
	cfg := DefaultSizingConfig()

	balances := []float64{0.5, 1, 5, 10, 50, 1000}
	winRates := []float64{0, 0.5, 1}
	vols := []float64{0.1, 1, 3}
	baseLots := []float64{0.001, 0.01, 1}
	steps := []float64{0, 0.001, 0.01}
	modes := []RecoveryMode{ModeNormal, ModeRecovery}

	for _, b := range balances {
		for _, wr := range winRates {
			for _, v := range vols {
				for _, lot := range baseLots {
					for _, step := range steps {
						for _, mode := range modes {
							for level := 1; level <= 5; level++ {
								in := baseSizingInput()
								in.Balance = b
								in.WinRate = wr
								in.Snapshot.Volatility = v
								in.BaseLot = lot
								in.LotStep = step
								in.Recovery = RecoveryState{Mode: mode}
								in.Compound = CompoundState{Level: level}

								res := s.Size(in)
								upper := b * in.Instrument.Risk.MaxPositionSize
								require.False(t, res.Fallback)
								require.GreaterOrEqual(t, res.Size, cfg.MinLot, "%+v", in)
								require.LessOrEqual(t, res.Size, upper+1e-12, "%+v", in)
							}
						}
					}
				}
			}
		}
	}
}

func TestAdaptiveLotSizer_RoundsToLotStep(t *testing.T) {
	s := newTestSizer(t)

	t.Run("nearest step", func(t *testing.T) {
		in := baseSizingInput()
		in.BaseLot = 0.0317
		in.LotStep = 0.005
		assert.InDelta(t, 0.03, s.Size(in).Size, 1e-12)
	})

	t.Run("never rounds above the upper clamp", func(t *testing.T) {
		in := baseSizingInput()
		in.Balance = 1
		in.BaseLot = 1
		in.LotStep = 0.04
		// Upper clamp is 0.1; nearest multiple 0.12 would exceed it.
		assert.InDelta(t, 0.08, s.Size(in).Size, 1e-12)
	})
}

func TestAdaptiveLotSizer_Fallback(t *testing.T) {
	s := newTestSizer(t)
	tests := []struct {
		name   string
		mutate func(*SizingInput)
	}{
		{"missing snapshot", func(in *SizingInput) { in.Snapshot = nil }},
		{"zero balance", func(in *SizingInput) { in.Balance = 0 }},
		{"nan balance", func(in *SizingInput) { in.Balance = math.NaN() }},
		{"infinite balance", func(in *SizingInput) { in.Balance = math.Inf(1) }},
		{"win rate error", func(in *SizingInput) { in.WinRateErr = errors.New("stats down") }},
		{"win rate out of range", func(in *SizingInput) { in.WinRate = 1.5 }},
		{"nan volatility", func(in *SizingInput) { in.Snapshot.Volatility = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseSizingInput()
			in.BaseLot = 0.0005
			tt.mutate(&in)
			res := s.Size(in)
			assert.True(t, res.Fallback)
			assert.NotEmpty(t, res.FallbackReason)
			assert.Equal(t, 0.0005, res.Size)
		})
	}

	t.Run("risk-based lot is not used on fallback", func(t *testing.T) {
		in := baseSizingInput()
		// A tight stop makes the risk-based lot far larger than balance * max_position_size.
		in.BaseLot = s.OptimalLot(in.Balance, 0.0001)
		require.Greater(t, in.BaseLot, in.Balance*in.Instrument.Risk.MaxPositionSize)
		in.WinRateErr = errors.New("stats down")

		res := s.Size(in)
		assert.True(t, res.Fallback)
		assert.Equal(t, DefaultSizingConfig().BaseLot, res.Size)
		assert.LessOrEqual(t, res.Size, in.Balance*in.Instrument.Risk.MaxPositionSize)
	})

	t.Run("invalid base lot falls back to configured base lot", func(t *testing.T) {
		in := baseSizingInput()
		in.BaseLot = 0
		in.Snapshot = nil
		assert.Equal(t, DefaultSizingConfig().BaseLot, s.Size(in).Size)
	})
}

func TestAdaptiveLotSizer_OptimalLot(t *testing.T) {
	s := newTestSizer(t)
	assert.InDelta(t, 3.0, s.OptimalLot(100, 0.5), 1e-9)
	assert.Equal(t, 0.001, s.OptimalLot(100, 0))
	assert.Equal(t, 0.001, s.OptimalLot(0, 0.5))
	assert.Equal(t, 0.001, s.OptimalLot(1, 1e6))
}

func TestRoundPrice(t *testing.T) {
	assert.InDelta(t, 105.0, RoundPrice(105.15, 0.5, false), 1e-12)
	assert.InDelta(t, 105.5, RoundPrice(105.15, 0.5, true), 1e-12)
	assert.InDelta(t, 1.0852, RoundPrice(1.08523, 0.0001, false), 1e-12)
	assert.Equal(t, 42.42, RoundPrice(42.42, 0, true))
}
