package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"quantumFlowBot/internal/domain"
)

// SizingConfig holds the adaptive lot-sizing parameters.
type SizingConfig struct {
	BaseLot              float64 // Smallest regular lot, also the fallback size
	RiskPerTrade         float64 // Fraction of balance risked per trade for the optimal lot
	ReferenceBalance     float64 // Balance at which the balance multiplier is 1
	BalanceMultiplierCap float64
	HighVolatility       float64 // Volatility above this shrinks size
	LowVolatility        float64 // Volatility below this grows size
	HighVolatilityFactor float64
	LowVolatilityFactor  float64
	MinLot               float64 // Lower clamp
	LotPrecision         int32   // Decimal places when the exchange reports no lot step
}

// DefaultSizingConfig mirrors the reference micro-account settings.
func DefaultSizingConfig() SizingConfig {
	return SizingConfig{
		BaseLot:              0.001,
		RiskPerTrade:         0.015,
		ReferenceBalance:     10,
		BalanceMultiplierCap: 3,
		HighVolatility:       1.5,
		LowVolatility:        0.5,
		HighVolatilityFactor: 0.7,
		LowVolatilityFactor:  1.2,
		MinLot:               0.001,
		LotPrecision:         3,
	}
}

// Validate checks the sizing parameters.
func (c SizingConfig) Validate() error {
	switch {
	case c.BaseLot <= 0:
		return configError("sizing base_lot must be positive")
	case c.RiskPerTrade < 0 || c.RiskPerTrade >= 1:
		return configError("sizing risk_per_trade must be within [0, 1)")
	case c.ReferenceBalance <= 0:
		return configError("sizing reference_balance must be positive")
	case c.BalanceMultiplierCap <= 0:
		return configError("sizing balance_multiplier_cap must be positive")
	case c.LowVolatility >= c.HighVolatility:
		return configError("sizing low_volatility must be below high_volatility")
	case c.HighVolatilityFactor <= 0 || c.LowVolatilityFactor <= 0:
		return configError("sizing volatility factors must be positive")
	case c.MinLot <= 0:
		return configError("sizing min_lot must be positive")
	case c.LotPrecision < 0:
		return configError("sizing lot_precision cannot be negative")
	}
	return nil
}

// SizingInput is everything the sizer needs for one decision.
type SizingInput struct {
	Instrument domain.InstrumentConfig
	BaseLot    float64
	Balance    float64
	WinRate    float64
	WinRateErr error
	Snapshot   *domain.MarketSnapshot
	LotStep    float64 // Exchange quantity step, 0 if unknown
	Recovery   RecoveryState
	Compound   CompoundState
}

// SizingResult carries the size and the multiplier breakdown for logging.
type SizingResult struct {
	Size                  float64
	BalanceMultiplier     float64
	PerformanceMultiplier float64
	VolatilityMultiplier  float64
	CompoundMultiplier    float64
	RecoveryFactor        float64
	Multiplier            float64
	Fallback              bool
	FallbackReason        string
}

// AdaptiveLotSizer combines balance, performance, volatility, compounding and
// recovery into a clamped position size.
type AdaptiveLotSizer struct {
	cfg      SizingConfig
	recovery *RecoveryTracker
	compound *CompoundTracker
}

// NewAdaptiveLotSizer validates cfg and wires the trackers whose policies
// affect sizing.
func NewAdaptiveLotSizer(cfg SizingConfig, recovery *RecoveryTracker, compound *CompoundTracker) (*AdaptiveLotSizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if recovery == nil || compound == nil {
		return nil, configError("sizer requires recovery and compound trackers")
	}
	return &AdaptiveLotSizer{cfg: cfg, recovery: recovery, compound: compound}, nil
}

// OptimalLot is the risk-based base lot: balance * risk_per_trade / stop
// distance, never below the configured base lot.
func (s *AdaptiveLotSizer) OptimalLot(balance, stopDistance float64) float64 {
	if s.cfg.RiskPerTrade == 0 || !finitePositive(balance) || !finitePositive(stopDistance) {
		return s.cfg.BaseLot
	}
	return math.Max(s.cfg.BaseLot, balance*s.cfg.RiskPerTrade/stopDistance)
}

// BalanceMultiplier is min(balance / reference_balance, cap).
func (s *AdaptiveLotSizer) BalanceMultiplier(balance float64) float64 {
	return math.Min(balance/s.cfg.ReferenceBalance, s.cfg.BalanceMultiplierCap)
}

// PerformanceMultiplier is 1 + (win_rate - 0.5), or exactly 1 in recovery.
func (s *AdaptiveLotSizer) PerformanceMultiplier(winRate float64, rs RecoveryState) float64 {
	if rs.InRecovery() {
		return 1
	}
	return 1 + (winRate - 0.5)
}

// VolatilityMultiplier shrinks size in turbulent markets and grows it in calm ones.
func (s *AdaptiveLotSizer) VolatilityMultiplier(volatility float64) float64 {
	switch {
	case volatility > s.cfg.HighVolatility:
		return s.cfg.HighVolatilityFactor
	case volatility < s.cfg.LowVolatility:
		return s.cfg.LowVolatilityFactor
	default:
		return 1
	}
}

// Size returns the adaptive size for in. It never fails: unusable inputs
// yield the configured base lot with Fallback set, or in.BaseLot when that
// is smaller.
func (s *AdaptiveLotSizer) Size(in SizingInput) SizingResult {
	baseLot := in.BaseLot
	if !finitePositive(baseLot) {
		baseLot = s.cfg.BaseLot
	}
	if reason := s.checkInput(in); reason != "" {
		return SizingResult{Size: math.Min(baseLot, s.cfg.BaseLot), Multiplier: 1, Fallback: true, FallbackReason: reason}
	}

	res := SizingResult{
		BalanceMultiplier:     s.BalanceMultiplier(in.Balance),
		PerformanceMultiplier: s.PerformanceMultiplier(in.WinRate, in.Recovery),
		VolatilityMultiplier:  s.VolatilityMultiplier(in.Snapshot.Volatility),
		CompoundMultiplier:    s.compound.Multiplier(in.Compound),
		RecoveryFactor:        s.recovery.LotFactor(in.Recovery),
	}
	res.Multiplier = res.BalanceMultiplier * res.PerformanceMultiplier * res.VolatilityMultiplier *
		res.CompoundMultiplier * res.RecoveryFactor

	maxLot := in.Balance * in.Instrument.Risk.MaxPositionSize
	size := math.Max(s.cfg.MinLot, math.Min(baseLot*res.Multiplier, maxLot))
	res.Size = s.roundLot(size, maxLot, in.LotStep)
	return res
}

func (s *AdaptiveLotSizer) checkInput(in SizingInput) string {
	switch {
	case in.Snapshot == nil:
		return "missing market snapshot"
	case !finitePositive(in.Balance):
		return fmt.Sprintf("unusable balance %v", in.Balance)
	case in.WinRateErr != nil:
		return "win rate unavailable: " + in.WinRateErr.Error()
	case math.IsNaN(in.WinRate) || in.WinRate < 0 || in.WinRate > 1:
		return fmt.Sprintf("win rate %v outside [0, 1]", in.WinRate)
	case math.IsNaN(in.Snapshot.Volatility) || math.IsInf(in.Snapshot.Volatility, 0) || in.Snapshot.Volatility < 0:
		return fmt.Sprintf("unusable volatility %v", in.Snapshot.Volatility)
	case !finitePositive(in.Instrument.Risk.MaxPositionSize):
		return "instrument max position size not set"
	}
	return ""
}

// roundLot rounds size to the lot step (or to LotPrecision decimals) without
// ending above maxLot or below the minimum lot.
func (s *AdaptiveLotSizer) roundLot(size, maxLot, step float64) float64 {
	rounded := roundToStep(size, step, s.cfg.LotPrecision, false)
	if rounded > maxLot {
		rounded = roundToStep(maxLot, step, s.cfg.LotPrecision, true)
	}
	if rounded < s.cfg.MinLot {
		rounded = s.cfg.MinLot
	}
	return rounded
}

// roundToStep rounds v to a multiple of step, or to precision decimals when
// step is not positive. floor selects rounding down instead of to nearest.
func roundToStep(v, step float64, precision int32, floor bool) float64 {
	d := decimal.NewFromFloat(v)
	if step > 0 {
		st := decimal.NewFromFloat(step)
		q := d.Div(st)
		if floor {
			q = q.Floor()
		} else {
			q = q.Round(0)
		}
		return q.Mul(st).InexactFloat64()
	}
	if floor {
		return d.RoundFloor(precision).InexactFloat64()
	}
	return d.Round(precision).InexactFloat64()
}

// RoundPrice rounds a price to a multiple of tick, up when up is set and down
// otherwise.
func RoundPrice(price, tick float64, up bool) float64 {
	if tick <= 0 {
		return price
	}
	d := decimal.NewFromFloat(price).Div(decimal.NewFromFloat(tick))
	if up {
		d = d.Ceil()
	} else {
		d = d.Floor()
	}
	return d.Mul(decimal.NewFromFloat(tick)).InexactFloat64()
}

func finitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
