package domain

import "time"

// Trade represents a closed trade outcome. Trades are held in memory only.
type Trade struct {
	PositionID  string       // Identifier of the position this trade closed
	Symbol      string       // Trading symbol (e.g., "ETHUSDT")
	Side        PositionSide // Direction of the closed position
	EntryPrice  float64      // Price at which the position was entered
	ExitPrice   float64      // Price at which the position was exited (0 if unknown)
	Quantity    float64      // Size of the position traded
	PNL         float64      // Realized profit and loss
	EntryTime   time.Time    // When the position was entered (zero if unknown)
	ExitTime    time.Time    // When the position was observed closed
	CloseReason CloseReason  // Reason why the position was closed
}

// IsLoss reports whether the trade lost money. Break-even trades are not losses.
func (t Trade) IsLoss() bool {
	return t.PNL < 0
}
