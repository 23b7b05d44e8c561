package ports

import (
	"context"
	"time"

	"quantumFlowBot/internal/domain"
)

// OrderResult represents the essential details returned after placing an order.
type OrderResult struct {
	OrderID       string    // Exchange's order ID
	ClientOrderID string    // User-defined order ID
	Symbol        string    // Symbol for the order
	AvgPrice      float64   // Average filled price (0 if not reported)
	Quantity      float64   // Quantity requested
	Status        string    // Order status as reported by the exchange
	Timestamp     time.Time // Time the order response was generated
}

// BalanceSource provides the account balance used for sizing and tiering.
type BalanceSource interface {
	// GetBalance returns the balance of the quote asset. It may fail transiently.
	GetBalance(ctx context.Context) (float64, error)
}

// MarketDataClient provides raw market data from an exchange.
type MarketDataClient interface {
	// GetTicker returns last, bid, ask and 24h volume for a symbol.
	GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error)
	// GetKlines returns the most recent klines for a symbol, oldest first.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)
}

// MarketSnapshotSource provides the per-cycle market view of an instrument.
type MarketSnapshotSource interface {
	GetSnapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error)
}

// PositionSource lists the positions currently open on the exchange.
type PositionSource interface {
	GetOpenPositions(ctx context.Context) ([]domain.OpenPosition, error)
}

// ExecutionSink submits trade intents to the exchange.
type ExecutionSink interface {
	// SubmitOrder opens a position with attached stop-loss and take-profit.
	SubmitOrder(ctx context.Context, intent domain.OrderIntent) (*OrderResult, error)
	// ModifyStop moves the protective stop of an open position.
	ModifyStop(ctx context.Context, intent domain.StopIntent) error
}

// InstrumentMetadata provides exchange trading rules for a symbol.
type InstrumentMetadata interface {
	GetTickSize(ctx context.Context, symbol string) (float64, error)
	GetMinOrderSize(ctx context.Context, symbol string) (float64, error)
}

// Exchange is everything the trading service needs from a venue.
type Exchange interface {
	BalanceSource
	MarketDataClient
	PositionSource
	ExecutionSink
	InstrumentMetadata
	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error
}

// WinRateSource supplies the recent win rate of an instrument in [0, 1].
type WinRateSource interface {
	WinRate(symbol string) (float64, error)
	RecordTrade(trade domain.Trade)
}
