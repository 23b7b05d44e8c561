package analytics

import (
	"sync"

	"quantumFlowBot/internal/domain"
)

// NeutralWinRate is reported for instruments without closed trades.
const NeutralWinRate = 0.5

// WinRateTracker keeps a rolling window of closed trades per instrument and
// serves their win rate. It implements ports.WinRateSource and is safe for
// concurrent use.
type WinRateTracker struct {
	mu     sync.RWMutex
	window int
	trades map[string][]domain.Trade
}

// NewWinRateTracker keeps at most window trades per symbol (20 if window <= 0).
func NewWinRateTracker(window int) *WinRateTracker {
	if window <= 0 {
		window = 20
	}
	return &WinRateTracker{window: window, trades: make(map[string][]domain.Trade)}
}

// RecordTrade adds a closed trade, evicting the oldest beyond the window.
func (t *WinRateTracker) RecordTrade(trade domain.Trade) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := append(t.trades[trade.Symbol], trade)
	if len(list) > t.window {
		list = append([]domain.Trade(nil), list[len(list)-t.window:]...)
	}
	t.trades[trade.Symbol] = list
}

// WinRate returns the share of winning trades in symbol's window.
func (t *WinRateTracker) WinRate(symbol string) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	list := t.trades[symbol]
	if len(list) == 0 {
		return NeutralWinRate, nil
	}
	return AnalyzePerformance(list, 0).WinRate, nil
}

// Summary returns metrics for symbol's window on top of initialBalance.
func (t *WinRateTracker) Summary(symbol string, initialBalance float64) *PerformanceMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return AnalyzePerformance(t.trades[symbol], initialBalance)
}
