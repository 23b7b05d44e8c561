package risk

import (
	"time"

	"quantumFlowBot/internal/domain"
)

// RecoveryMode is the state of the recovery state machine.
type RecoveryMode string

const (
	ModeNormal   RecoveryMode = "normal"
	ModeRecovery RecoveryMode = "recovery"
	ModeHalted   RecoveryMode = "halted"
)

// RecoveryConfig holds the loss-recovery policy.
type RecoveryConfig struct {
	Enabled              bool
	MaxConsecutiveLosses int
	LotReduction         float64 // Lot multiplier while in recovery, 0 or 1 disables
	MinRecoveryBalance   float64 // Trading halts below this balance
	CoolOff              time.Duration
	AutoResume           bool // Leave recovery as soon as the cool-off elapses
}

// Validate checks the policy. A disabled policy is always valid.
func (c RecoveryConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxConsecutiveLosses <= 0 {
		return configError("recovery max_consecutive_losses must be positive")
	}
	if c.LotReduction < 0 || c.LotReduction > 1 {
		return configError("recovery lot_reduction must be within [0, 1]")
	}
	if c.MinRecoveryBalance < 0 {
		return configError("recovery min_recovery_balance cannot be negative")
	}
	if c.CoolOff <= 0 {
		return configError("recovery cool_off_period must be positive")
	}
	return nil
}

// RecoveryState is the value the tracker transforms.
type RecoveryState struct {
	ConsecutiveLosses int
	Mode              RecoveryMode
	CoolOffUntil      time.Time // zero when no cool-off is running
}

// InRecovery reports whether performance boosts must be suppressed.
func (s RecoveryState) InRecovery() bool {
	return s.Mode == ModeRecovery
}

// Halted reports whether trading is stopped because of the balance floor.
func (s RecoveryState) Halted() bool {
	return s.Mode == ModeHalted
}

// RecoveryTracker applies trade outcomes and balance reads to a RecoveryState.
// All methods are pure: they return the next state and never keep one.
type RecoveryTracker struct {
	cfg RecoveryConfig
}

// NewRecoveryTracker validates cfg and returns a tracker.
func NewRecoveryTracker(cfg RecoveryConfig) (*RecoveryTracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RecoveryTracker{cfg: cfg}, nil
}

// Config returns the tracker's policy.
func (t *RecoveryTracker) Config() RecoveryConfig {
	return t.cfg
}

// Initial returns the starting state.
func (t *RecoveryTracker) Initial() RecoveryState {
	return RecoveryState{Mode: ModeNormal}
}

// OnTradeClosed applies one closed trade.
func (t *RecoveryTracker) OnTradeClosed(s RecoveryState, trade domain.Trade, now time.Time) RecoveryState {
	next := s
	if next.Mode == "" {
		next.Mode = ModeNormal
	}
	if !trade.IsLoss() {
		next.ConsecutiveLosses = 0
	} else {
		next.ConsecutiveLosses++
	}
	if !t.cfg.Enabled || next.Mode == ModeHalted {
		return next
	}

	switch next.Mode {
	case ModeNormal:
		if next.ConsecutiveLosses >= t.cfg.MaxConsecutiveLosses {
			next.Mode = ModeRecovery
			next.CoolOffUntil = now.Add(t.cfg.CoolOff)
		}
	case ModeRecovery:
		if trade.IsLoss() {
			// Another loss while recovering restarts the cool-off.
			next.CoolOffUntil = now.Add(t.cfg.CoolOff)
		} else if !now.Before(next.CoolOffUntil) {
			next = resume(next)
		}
	}
	return next
}

// OnBalance applies a fresh balance read and the passage of time: it halts
// below the balance floor, lifts a halt once the floor is met again, and ends
// an elapsed cool-off when auto-resume is set or the losing streak is over.
func (t *RecoveryTracker) OnBalance(s RecoveryState, balance float64, now time.Time) RecoveryState {
	next := s
	if next.Mode == "" {
		next.Mode = ModeNormal
	}
	if !t.cfg.Enabled {
		return next
	}

	if balance < t.cfg.MinRecoveryBalance {
		next.Mode = ModeHalted
		next.CoolOffUntil = time.Time{}
		return next
	}

	switch next.Mode {
	case ModeHalted:
		if next.ConsecutiveLosses >= t.cfg.MaxConsecutiveLosses {
			next.Mode = ModeRecovery
			next.CoolOffUntil = now.Add(t.cfg.CoolOff)
		} else {
			next.Mode = ModeNormal
		}
	case ModeRecovery:
		if !now.Before(next.CoolOffUntil) && (t.cfg.AutoResume || next.ConsecutiveLosses == 0) {
			next = resume(next)
		}
	}
	return next
}

// LotFactor returns the size multiplier implied by the state.
func (t *RecoveryTracker) LotFactor(s RecoveryState) float64 {
	if !t.cfg.Enabled || !s.InRecovery() || t.cfg.LotReduction <= 0 {
		return 1
	}
	return t.cfg.LotReduction
}

func resume(s RecoveryState) RecoveryState {
	s.Mode = ModeNormal
	s.CoolOffUntil = time.Time{}
	return s
}
