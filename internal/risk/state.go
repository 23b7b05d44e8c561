package risk

import (
	"time"

	"quantumFlowBot/internal/domain"
	"quantumFlowBot/internal/ports"
)

// maxRecentStops bounds the stop-intent history kept for reporting.
const maxRecentStops = 50

// EngineState is all mutable risk state. It is passed by value through the
// engine's transition functions and owned by a single control loop.
type EngineState struct {
	Balance   float64
	BalanceAt time.Time
	Counters  DailyTradeCounters
	Recovery  RecoveryState
	Compound  CompoundState
	Guards    GuardState
	Trailing  TrailingState
	Stops     []domain.StopIntent // Most recent stop intents, oldest first
}

// Clone returns a deep copy.
func (s EngineState) Clone() EngineState {
	out := s
	out.Counters = s.Counters.Clone()
	out.Trailing = s.Trailing.Clone()
	out.Stops = append([]domain.StopIntent(nil), s.Stops...)
	return out
}

// AddStop appends an intent to the history.
func (s EngineState) AddStop(intent domain.StopIntent) EngineState {
	out := s.Clone()
	out.Stops = append(out.Stops, intent)
	if len(out.Stops) > maxRecentStops {
		out.Stops = out.Stops[len(out.Stops)-maxRecentStops:]
	}
	return out
}

// ResolveStop updates the status of a recorded intent.
func (s EngineState) ResolveStop(id string, status domain.IntentStatus, reason string) EngineState {
	out := s.Clone()
	for i := range out.Stops {
		if out.Stops[i].ID == id {
			out.Stops[i].Status = status
			out.Stops[i].Reason = reason
		}
	}
	return out
}

// Status is a read-only view of the engine for reporting layers.
type Status struct {
	Balance         float64
	BalanceAt       time.Time
	Tier            Tier
	Limits          TradeLimits
	LimitsUpdatedAt time.Time
	Counters        DailyTradeCounters
	Recovery        RecoveryState
	Compound        CompoundState
	PendingStops    []domain.StopIntent
	RecentStops     []domain.StopIntent
}

// Persisted converts the restart-relevant parts of s.
func (s EngineState) Persisted(now time.Time) ports.PersistedState {
	c := s.Counters.Clone()
	return ports.PersistedState{
		ConsecutiveLosses: s.Recovery.ConsecutiveLosses,
		RecoveryMode:      string(s.Recovery.Mode),
		CoolOffUntil:      s.Recovery.CoolOffUntil,
		CompoundLevel:     s.Compound.Level,
		CompoundProfit:    s.Compound.Accumulated,
		CounterDay:        c.Day,
		TradesToday:       c.Counts,
		UpdatedAt:         now,
	}
}

// Restore overlays a persisted state onto s. Counters from an earlier UTC day
// are dropped by the next Rollover.
func (s EngineState) Restore(p ports.PersistedState) EngineState {
	out := s.Clone()
	out.Recovery = RecoveryState{
		ConsecutiveLosses: p.ConsecutiveLosses,
		Mode:              RecoveryMode(p.RecoveryMode),
		CoolOffUntil:      p.CoolOffUntil,
	}
	switch out.Recovery.Mode {
	case ModeNormal, ModeRecovery, ModeHalted:
	default:
		out.Recovery.Mode = ModeNormal
	}
	out.Compound = CompoundState{Level: p.CompoundLevel, Accumulated: p.CompoundProfit}
	counters := DailyTradeCounters{Day: p.CounterDay, Counts: make(map[string]int, len(p.TradesToday))}
	for k, v := range p.TradesToday {
		counters.Counts[k] = v
	}
	out.Counters = counters
	return out
}
