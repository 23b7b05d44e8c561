package risk

import (
	"fmt"

	"quantumFlowBot/internal/domain"
)

// ProtectiveLevels are the stop-loss and take-profit prices attached to a new position.
type ProtectiveLevels struct {
	StopLoss   float64
	TakeProfit float64
}

// StopDistance is the absolute distance from entry to the stop.
func (l ProtectiveLevels) StopDistance(entry float64) float64 {
	if entry > l.StopLoss {
		return entry - l.StopLoss
	}
	return l.StopLoss - entry
}

// Levels derives ATR-based protective levels for an entry at price entry.
func Levels(side domain.PositionSide, entry, atr float64, rs domain.RiskSettings) (ProtectiveLevels, error) {
	if !finitePositive(entry) || !finitePositive(atr) {
		return ProtectiveLevels{}, fmt.Errorf("cannot derive levels from entry %v and atr %v", entry, atr)
	}
	sl := atr * rs.StopLossATR
	tp := atr * rs.TakeProfitATR
	switch side {
	case domain.Long:
		return ProtectiveLevels{StopLoss: entry - sl, TakeProfit: entry + tp}, nil
	case domain.Short:
		return ProtectiveLevels{StopLoss: entry + sl, TakeProfit: entry - tp}, nil
	default:
		return ProtectiveLevels{}, fmt.Errorf("unknown position side %q", side)
	}
}

// RoundLevels rounds both levels to tick so that neither ends up closer to
// the entry than the unrounded value.
func RoundLevels(side domain.PositionSide, l ProtectiveLevels, tick float64) ProtectiveLevels {
	if side == domain.Short {
		return ProtectiveLevels{StopLoss: RoundPrice(l.StopLoss, tick, true), TakeProfit: RoundPrice(l.TakeProfit, tick, false)}
	}
	return ProtectiveLevels{StopLoss: RoundPrice(l.StopLoss, tick, false), TakeProfit: RoundPrice(l.TakeProfit, tick, true)}
}
