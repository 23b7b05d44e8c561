package risk

import (
	"errors"
	"fmt"
	"time"

	"quantumFlowBot/internal/domain"
)

// Config gathers every risk policy.
type Config struct {
	Tiers       []Tier
	Instruments []domain.InstrumentConfig
	Limits      LimitConfig
	Recovery    RecoveryConfig
	Compound    CompoundConfig
	Sizing      SizingConfig
	Entry       EntryConfig
	Guards      GuardConfig
}

// Engine wires the risk components together. Apart from the trade limit
// calculator, which caches its last result, it holds no mutable state:
// callers own the EngineState.
type Engine struct {
	Instruments []domain.InstrumentConfig
	TierTable   *TierTable
	Limits      *TradeLimitCalculator
	Recovery    *RecoveryTracker
	Compound    *CompoundTracker
	Sizer       *AdaptiveLotSizer
	Validator   *EntryValidator
	Trailing    *TrailingStopEngine
	Guards      *AccountGuards
}

// NewEngine validates cfg and builds every component. Any invalid core risk
// parameter is a configuration error; no defaults are substituted.
func NewEngine(cfg Config) (*Engine, error) {
	var errs []error
	seen := make(map[string]struct{}, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		if err := inst.Validate(); err != nil {
			errs = append(errs, err)
		}
		if _, dup := seen[inst.Symbol]; dup {
			errs = append(errs, fmt.Errorf("instrument %q configured twice", inst.Symbol))
		}
		seen[inst.Symbol] = struct{}{}
	}
	if len(errs) > 0 {
		return nil, configError("%v", errors.Join(errs...))
	}

	tiers, err := NewTierTable(cfg.Tiers)
	if err != nil {
		return nil, err
	}
	limits, err := NewTradeLimitCalculator(tiers, cfg.Instruments, cfg.Limits)
	if err != nil {
		return nil, err
	}
	recovery, err := NewRecoveryTracker(cfg.Recovery)
	if err != nil {
		return nil, err
	}
	compound, err := NewCompoundTracker(cfg.Compound)
	if err != nil {
		return nil, err
	}
	sizer, err := NewAdaptiveLotSizer(cfg.Sizing, recovery, compound)
	if err != nil {
		return nil, err
	}
	validator, err := NewEntryValidator(cfg.Entry)
	if err != nil {
		return nil, err
	}
	guards, err := NewAccountGuards(cfg.Guards)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Instruments: cfg.Instruments,
		TierTable:   tiers,
		Limits:      limits,
		Recovery:    recovery,
		Compound:    compound,
		Sizer:       sizer,
		Validator:   validator,
		Trailing:    NewTrailingStopEngine(cfg.Instruments),
		Guards:      guards,
	}, nil
}

// InitialState returns a fresh state for a run starting at now.
func (e *Engine) InitialState(now time.Time) EngineState {
	return EngineState{
		Counters: NewDailyTradeCounters(now),
		Recovery: e.Recovery.Initial(),
		Compound: e.Compound.Initial(),
		Trailing: NewTrailingState(),
	}
}

// StartCycle rolls the daily counters over and returns whether they were reset.
func (e *Engine) StartCycle(s EngineState, now time.Time) (EngineState, bool) {
	next := s.Clone()
	var reset bool
	next.Counters, reset = s.Counters.Rollover(now)
	return next, reset
}

// ApplyBalance records a successful balance read.
func (e *Engine) ApplyBalance(s EngineState, balance float64, now time.Time) EngineState {
	next := s.Clone()
	next.Balance = balance
	next.BalanceAt = now
	next.Recovery = e.Recovery.OnBalance(s.Recovery, balance, now)
	next.Guards = e.Guards.OnBalance(s.Guards, balance, now)
	return next
}

// ApplyTradeOutcome feeds one closed trade to the recovery, compounding and
// guard state machines.
func (e *Engine) ApplyTradeOutcome(s EngineState, trade domain.Trade, now time.Time) EngineState {
	next := s.Clone()
	next.Recovery = e.Recovery.OnTradeClosed(s.Recovery, trade, now)
	next.Compound = e.Compound.OnTradeClosed(s.Compound, trade, s.Balance)
	next.Guards = e.Guards.OnTradeClosed(s.Guards, trade, now)
	return next
}

// ApplyEntry counts an executed entry and remembers its stop distance for trailing.
func (e *Engine) ApplyEntry(s EngineState, positionID, symbol string, stopDistance float64) EngineState {
	next := s.Clone()
	next.Counters = s.Counters.Increment(symbol)
	if positionID != "" {
		next.Trailing = s.Trailing.RecordEntry(positionID, stopDistance)
	}
	return next
}

// Status builds the reporting view of s. All maps and slices are copies.
func (e *Engine) Status(s EngineState) Status {
	st := Status{
		Balance:         s.Balance,
		BalanceAt:       s.BalanceAt,
		Tier:            e.Limits.Tier(),
		Limits:          e.Limits.Limits(),
		LimitsUpdatedAt: e.Limits.UpdatedAt(),
		Counters:        s.Counters.Clone(),
		Recovery:        s.Recovery,
		Compound:        s.Compound,
		RecentStops:     append([]domain.StopIntent(nil), s.Stops...),
	}
	for _, in := range s.Stops {
		if in.Status == domain.IntentPending {
			st.PendingStops = append(st.PendingStops, in)
		}
	}
	return st
}
