package risk

import (
	"math"
	"time"

	"quantumFlowBot/internal/domain"
)

// TrailingState remembers, per position, the stop distance at entry and the
// last stop already requested. Methods return modified copies.
type TrailingState struct {
	InitialDistance map[string]float64
	LastEmitted     map[string]float64
}

// NewTrailingState returns an empty state.
func NewTrailingState() TrailingState {
	return TrailingState{InitialDistance: map[string]float64{}, LastEmitted: map[string]float64{}}
}

// Clone returns a deep copy.
func (s TrailingState) Clone() TrailingState {
	out := NewTrailingState()
	for k, v := range s.InitialDistance {
		out.InitialDistance[k] = v
	}
	for k, v := range s.LastEmitted {
		out.LastEmitted[k] = v
	}
	return out
}

// RecordEntry stores the stop distance of a freshly opened position and
// forgets any stop emitted for an earlier position with the same ID.
func (s TrailingState) RecordEntry(positionID string, distance float64) TrailingState {
	out := s.Clone()
	out.InitialDistance[positionID] = math.Abs(distance)
	delete(out.LastEmitted, positionID)
	return out
}

// MarkEmitted records a stop request for positionID.
func (s TrailingState) MarkEmitted(positionID string, stop float64) TrailingState {
	out := s.Clone()
	out.LastEmitted[positionID] = stop
	return out
}

// ClearEmitted drops the memo after a rejected request so the next cycle can retry.
func (s TrailingState) ClearEmitted(positionID string) TrailingState {
	out := s.Clone()
	delete(out.LastEmitted, positionID)
	return out
}

// Retain keeps only the positions present in open.
func (s TrailingState) Retain(open map[string]struct{}) TrailingState {
	out := NewTrailingState()
	for k, v := range s.InitialDistance {
		if _, ok := open[k]; ok {
			out.InitialDistance[k] = v
		}
	}
	for k, v := range s.LastEmitted {
		if _, ok := open[k]; ok {
			out.LastEmitted[k] = v
		}
	}
	return out
}

// TrailingStopEngine computes stop tightening for open positions.
// The stop only ever moves toward price.
type TrailingStopEngine struct {
	instruments map[string]domain.InstrumentConfig
}

// NewTrailingStopEngine indexes the instrument configurations by symbol.
func NewTrailingStopEngine(instruments []domain.InstrumentConfig) *TrailingStopEngine {
	idx := make(map[string]domain.InstrumentConfig, len(instruments))
	for _, inst := range instruments {
		idx[inst.Symbol] = inst
	}
	return &TrailingStopEngine{instruments: idx}
}

// Evaluate returns a stop intent for pos at price, or false when the stop
// should stay where it is. tick is the instrument's price increment.
func (e *TrailingStopEngine) Evaluate(pos domain.OpenPosition, price, tick float64, st TrailingState, now time.Time) (domain.StopIntent, bool) {
	inst, ok := e.instruments[pos.Symbol]
	if !ok || !pos.Side.Valid() || !finitePositive(price) || !finitePositive(pos.EntryPrice) {
		return domain.StopIntent{}, false
	}

	move := pos.FavorableMove(price)
	if move <= 0 {
		return domain.StopIntent{}, false
	}

	dist, ok := st.InitialDistance[pos.ID]
	if !ok || dist <= 0 {
		if !pos.HasStop() {
			return domain.StopIntent{}, false
		}
		dist = math.Abs(pos.EntryPrice - pos.StopLoss)
	}
	if dist <= 0 || move <= dist*inst.Risk.TrailingStart {
		return domain.StopIntent{}, false
	}

	offset := move * inst.Risk.TrailingStep
	var candidate float64
	if pos.Side == domain.Long {
		candidate = RoundPrice(price-offset, tick, false)
	} else {
		candidate = RoundPrice(price+offset, tick, true)
	}
	if candidate <= 0 {
		return domain.StopIntent{}, false
	}

	if pos.HasStop() && !tighter(pos.Side, candidate, pos.StopLoss) {
		return domain.StopIntent{}, false
	}
	if last, ok := st.LastEmitted[pos.ID]; ok && !tighter(pos.Side, candidate, last) {
		return domain.StopIntent{}, false
	}

	return domain.StopIntent{
		ID:         domain.NewIntentID(now),
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Size:       pos.Size,
		OldStop:    pos.StopLoss,
		NewStop:    candidate,
		Price:      price,
		CreatedAt:  now,
		Status:     domain.IntentPending,
	}, true
}

// tighter reports whether candidate protects more than current.
func tighter(side domain.PositionSide, candidate, current float64) bool {
	if side == domain.Short {
		return candidate < current
	}
	return candidate > current
}
