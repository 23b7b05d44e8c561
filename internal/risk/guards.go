package risk

import (
	"time"

	"quantumFlowBot/internal/domain"
)

// GuardConfig bounds account-level losses. Percentages, 0 disables a guard.
type GuardConfig struct {
	MaxDailyLossPct float64
	MaxDrawdownPct  float64
}

// Validate checks the guard percentages.
func (c GuardConfig) Validate() error {
	if c.MaxDailyLossPct < 0 || c.MaxDailyLossPct > 100 {
		return configError("max_daily_loss must be within [0, 100]")
	}
	if c.MaxDrawdownPct < 0 || c.MaxDrawdownPct > 100 {
		return configError("max_drawdown must be within [0, 100]")
	}
	return nil
}

// GuardState tracks the balance reference points for the account guards.
type GuardState struct {
	Day             time.Time // UTC day the daily figures belong to
	DayStartBalance float64
	RealizedToday   float64
	PeakBalance     float64
}

// AccountGuards denies new entries after a bad day or a deep drawdown.
type AccountGuards struct {
	cfg GuardConfig
}

// NewAccountGuards validates cfg and returns the guards.
func NewAccountGuards(cfg GuardConfig) (*AccountGuards, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &AccountGuards{cfg: cfg}, nil
}

// OnBalance rolls the day and tracks the session peak. When the day was
// rolled by a closed trade, the first balance of the day backs out the PnL
// already realized to recover the starting balance.
func (g *AccountGuards) OnBalance(s GuardState, balance float64, now time.Time) GuardState {
	next := s
	if day := utcDay(now); next.Day.IsZero() || day.After(next.Day) {
		next.Day = day
		next.DayStartBalance = balance
		next.RealizedToday = 0
	} else if next.DayStartBalance <= 0 {
		next.DayStartBalance = balance - next.RealizedToday
		if next.DayStartBalance <= 0 {
			next.DayStartBalance = balance
		}
	}
	if balance > next.PeakBalance {
		next.PeakBalance = balance
	}
	return next
}

// OnTradeClosed adds the trade's realized PnL to today's total.
func (g *AccountGuards) OnTradeClosed(s GuardState, trade domain.Trade, now time.Time) GuardState {
	next := s
	if day := utcDay(now); day.After(next.Day) {
		next.Day = day
		next.DayStartBalance = 0 // Set by the next balance read
		next.RealizedToday = 0
	}
	next.RealizedToday += trade.PNL
	return next
}

// Check returns a denial when either guard is tripped.
func (g *AccountGuards) Check(s GuardState, balance float64) Decision {
	if g.cfg.MaxDailyLossPct > 0 && s.DayStartBalance > 0 && s.RealizedToday < 0 {
		lossPct := -s.RealizedToday / s.DayStartBalance * 100
		if lossPct > g.cfg.MaxDailyLossPct {
			return deny(DenyDailyLoss, "daily loss %.2f%% above %.2f%%", lossPct, g.cfg.MaxDailyLossPct)
		}
	}
	if g.cfg.MaxDrawdownPct > 0 && s.PeakBalance > 0 && balance < s.PeakBalance {
		ddPct := (s.PeakBalance - balance) / s.PeakBalance * 100
		if ddPct > g.cfg.MaxDrawdownPct {
			return deny(DenyDrawdown, "drawdown %.2f%% above %.2f%%", ddPct, g.cfg.MaxDrawdownPct)
		}
	}
	return allow()
}
