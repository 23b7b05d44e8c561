package ports

import (
	"context"
	"time"
)

// PersistedState is the slice of engine state that survives a restart.
type PersistedState struct {
	ConsecutiveLosses int
	RecoveryMode      string
	CoolOffUntil      time.Time
	CompoundLevel     int
	CompoundProfit    float64
	CounterDay        time.Time      // UTC midnight of the day the counters belong to
	TradesToday       map[string]int // Per-symbol trades for CounterDay
	UpdatedAt         time.Time
}

// StateStore persists the risk engine state between runs.
type StateStore interface {
	// SaveState replaces the stored state.
	SaveState(ctx context.Context, state PersistedState) error
	// LoadState returns the stored state, or nil, nil if nothing was stored yet.
	LoadState(ctx context.Context) (*PersistedState, error)
}
