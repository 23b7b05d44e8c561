package ports

import "time"

// Metrics receives engine observations for an external monitoring system.
type Metrics interface {
	ObserveCycle(duration time.Duration, err error)
	SetBalance(balance float64)
	SetTradeLimit(symbol string, limit int)
	SetTradesToday(symbol string, count int)
	SetRecoveryMode(mode string)
	SetCompoundLevel(level int)
	IncOrder(symbol, result string)
	IncStopAdjustment(symbol, result string)
	IncEntryDenied(symbol, reason string)
}
