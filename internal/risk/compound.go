package risk

import (
	"quantumFlowBot/internal/domain"
)

// CompoundConfig holds the profit-compounding policy.
type CompoundConfig struct {
	Enabled                 bool
	BaseIncrement           float64 // Size increase per level above 1
	ProfitThreshold         float64 // Realized profit needed to climb one level
	MaxLevel                int
	ResetOnLoss             bool
	SignificantLossFraction float64 // Loss/balance ratio that counts as significant, 0 = any loss
}

// Validate checks the policy. A disabled policy is always valid.
func (c CompoundConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.BaseIncrement < 0 {
		return configError("compound base_increment cannot be negative")
	}
	if c.ProfitThreshold <= 0 {
		return configError("compound profit_threshold must be positive")
	}
	if c.MaxLevel < 1 {
		return configError("compound max_level must be at least 1")
	}
	if c.SignificantLossFraction < 0 || c.SignificantLossFraction >= 1 {
		return configError("compound significant_loss_fraction must be within [0, 1)")
	}
	return nil
}

// CompoundState is the compounding level and the realized profit
// accumulated since the level last changed.
type CompoundState struct {
	Level       int
	Accumulated float64
}

// CompoundTracker applies trade outcomes to a CompoundState.
type CompoundTracker struct {
	cfg CompoundConfig
}

// NewCompoundTracker validates cfg and returns a tracker.
func NewCompoundTracker(cfg CompoundConfig) (*CompoundTracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CompoundTracker{cfg: cfg}, nil
}

// Config returns the tracker's policy.
func (t *CompoundTracker) Config() CompoundConfig {
	return t.cfg
}

// Initial returns level 1 with an empty accumulator.
func (t *CompoundTracker) Initial() CompoundState {
	return CompoundState{Level: 1}
}

// OnTradeClosed applies a closed trade's realized PnL. balance is the account
// balance used to judge whether a loss is significant.
func (t *CompoundTracker) OnTradeClosed(s CompoundState, trade domain.Trade, balance float64) CompoundState {
	next := t.normalize(s)
	if !t.cfg.Enabled {
		return next
	}

	if trade.IsLoss() && t.cfg.ResetOnLoss && t.significant(trade.PNL, balance) {
		return CompoundState{Level: 1}
	}

	next.Accumulated += trade.PNL
	if next.Accumulated >= t.cfg.ProfitThreshold {
		if next.Level < t.cfg.MaxLevel {
			next.Level++
		}
		next.Accumulated = 0
	}
	return next
}

// Multiplier returns 1 + (level-1) * base_increment.
func (t *CompoundTracker) Multiplier(s CompoundState) float64 {
	if !t.cfg.Enabled {
		return 1
	}
	level := t.normalize(s).Level
	return 1 + float64(level-1)*t.cfg.BaseIncrement
}

func (t *CompoundTracker) significant(pnl, balance float64) bool {
	if t.cfg.SignificantLossFraction == 0 {
		return true
	}
	if balance <= 0 {
		return true
	}
	return -pnl >= t.cfg.SignificantLossFraction*balance
}

// normalize clamps a possibly restored state into [1, max_level].
func (t *CompoundTracker) normalize(s CompoundState) CompoundState {
	if s.Level < 1 {
		s.Level = 1
	}
	if t.cfg.Enabled && s.Level > t.cfg.MaxLevel {
		s.Level = t.cfg.MaxLevel
	}
	return s
}
