package domain

// OpenPosition is a position as reported by the exchange.
// The core reads it and issues stop-modification intents; it never mutates it.
type OpenPosition struct {
	ID            string       // Exchange-side identifier (symbol+side on one-way venues)
	Symbol        string       // Trading symbol (e.g., "BTCUSDT")
	Side          PositionSide // long or short
	Size          float64      // Absolute position size
	EntryPrice    float64      // Average entry price
	MarkPrice     float64      // Latest mark price reported with the position
	StopLoss      float64      // Current protective stop (0 if none)
	TakeProfit    float64      // Current take profit (0 if none)
	UnrealizedPNL float64      // Unrealized profit/loss in quote currency
}

// HasStop reports whether the position currently carries a protective stop.
func (p OpenPosition) HasStop() bool {
	return p.StopLoss > 0
}

// FavorableMove returns how far price has moved in the position's favour,
// in price units. Negative values mean the position is under water.
func (p OpenPosition) FavorableMove(price float64) float64 {
	if p.Side == Short {
		return p.EntryPrice - price
	}
	return price - p.EntryPrice
}

// PositionKey is the identifier used for positions on one-way venues, where a
// symbol holds at most one position per side.
func PositionKey(symbol string, side PositionSide) string {
	return symbol + ":" + string(side)
}
