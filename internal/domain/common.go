package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// PositionSide represents the direction of a position.
type PositionSide string

const (
	Long  PositionSide = "long"
	Short PositionSide = "short"
)

// EntrySide returns the order side that opens a position in this direction.
func (s PositionSide) EntrySide() OrderSide {
	if s == Short {
		return Sell
	}
	return Buy
}

// ExitSide returns the order side that closes a position in this direction.
func (s PositionSide) ExitSide() OrderSide {
	if s == Short {
		return Buy
	}
	return Sell
}

// Valid reports whether s is one of the known sides.
func (s PositionSide) Valid() bool {
	return s == Long || s == Short
}

// TrendDirection is the classifier's view of the market.
type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendFlat TrendDirection = "flat"
)

// Side maps a trend to the position side that trades with it.
// Flat trends have no side.
func (t TrendDirection) Side() (PositionSide, bool) {
	switch t {
	case TrendUp:
		return Long, true
	case TrendDown:
		return Short, true
	default:
		return "", false
	}
}

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "SL"
	CloseReasonTakeProfit CloseReason = "TP"
	CloseReasonMarket     CloseReason = "Market"
	CloseReasonUnknown    CloseReason = "Unknown"
)
