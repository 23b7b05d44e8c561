package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantumFlowBot/internal/domain"
	"quantumFlowBot/internal/ports"
)

type mockMarket struct {
	ticker     *domain.Ticker
	tickerErr  error
	klines     []*domain.Kline
	klinesErr  error
	lastLimit  int
	lastSymbol string
}

func (m *mockMarket) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	m.lastSymbol = symbol
	return m.ticker, m.tickerErr
}

func (m *mockMarket) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error) {
	m.lastLimit = limit
	return m.klines, m.klinesErr
}

func testConfig() Config {
	return Config{KlineInterval: "15", ShortTermMAPeriod: 3, LongTermMAPeriod: 5, EMAPeriod: 3, RSIPeriod: 3, ATRPeriod: 3}
}

func series(closes ...float64) []*domain.Kline {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	out := make([]*domain.Kline, len(closes))
	for i, c := range closes {
		out[i] = &domain.Kline{OpenTime: start.Add(time.Duration(i) * 15 * time.Minute), Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return out
}

func newTestBuilder(t *testing.T, m *mockMarket) *SnapshotBuilder {
	t.Helper()
	b, err := New(testConfig(), m, ports.NopLogger{})
	require.NoError(t, err)
	b.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	return b
}

func TestNew(t *testing.T) {
	m := &mockMarket{}
	tests := []struct {
		name    string
		cfg     Config
		market  ports.MarketDataClient
		logger  ports.Logger
		wantErr bool
	}{
		{name: "valid config", cfg: DefaultConfig(), market: m, logger: ports.NopLogger{}},
		{name: "nil logger", cfg: DefaultConfig(), market: m, wantErr: true},
		{name: "nil market", cfg: DefaultConfig(), logger: ports.NopLogger{}, wantErr: true},
		{
			name:    "short period not below long",
			cfg:     Config{KlineInterval: "15", ShortTermMAPeriod: 50, LongTermMAPeriod: 20, EMAPeriod: 20, RSIPeriod: 14, ATRPeriod: 14},
			market:  m,
			logger:  ports.NopLogger{},
			wantErr: true,
		},
		{
			name:    "zero period",
			cfg:     Config{KlineInterval: "15", ShortTermMAPeriod: 5, LongTermMAPeriod: 20, EMAPeriod: 0, RSIPeriod: 14, ATRPeriod: 14},
			market:  m,
			logger:  ports.NopLogger{},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.cfg, tt.market, tt.logger)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, b)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 50, b.RequiredDataPoints())
		})
	}
}

func TestSnapshotBuilder_Uptrend(t *testing.T) {
	m := &mockMarket{
		ticker: &domain.Ticker{Symbol: "EURUSD", LastPrice: 106, BidPrice: 105.9, AskPrice: 106.1, Volume24h: 5000},
		klines: series(100, 101, 102, 103, 104, 105),
	}
	b := newTestBuilder(t, m)

	snap, err := b.GetSnapshot(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", m.lastSymbol)
	assert.Equal(t, 5, m.lastLimit)

	assert.Equal(t, domain.TrendUp, snap.Trend)
	assert.True(t, snap.Tradable)
	assert.InDelta(t, 2, snap.ATR, 1e-9)
	assert.InDelta(t, 100, snap.RSI, 1e-9)
	// (106 - SMA5 103) / ATR 2
	assert.InDelta(t, 1.5, snap.MomentumScore, 1e-9)
	assert.InDelta(t, 2.0/106*100, snap.Volatility, 1e-9)
	assert.Equal(t, 5000.0, snap.Volume)
	assert.Equal(t, 105.9, snap.BidPrice)
}

func TestSnapshotBuilder_Downtrend(t *testing.T) {
	m := &mockMarket{
		ticker: &domain.Ticker{Symbol: "EURUSD", LastPrice: 99, BidPrice: 98.9, AskPrice: 99.1},
		klines: series(105, 104, 103, 102, 101, 100),
	}
	snap, err := newTestBuilder(t, m).GetSnapshot(context.Background(), "EURUSD")
	require.NoError(t, err)

	assert.Equal(t, domain.TrendDown, snap.Trend)
	assert.True(t, snap.Tradable)
	assert.InDelta(t, 0, snap.RSI, 1e-9)
	assert.InDelta(t, -1.5, snap.MomentumScore, 1e-9)
}

func TestSnapshotBuilder_FlatMarketIsNotTradable(t *testing.T) {
	m := &mockMarket{
		ticker: &domain.Ticker{Symbol: "EURUSD", LastPrice: 100},
		klines: series(100, 100, 100, 100, 100, 100),
	}
	snap, err := newTestBuilder(t, m).GetSnapshot(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, domain.TrendFlat, snap.Trend)
	assert.False(t, snap.Tradable)
	assert.InDelta(t, 50, snap.RSI, 1e-9)
}

func TestSnapshotBuilder_Errors(t *testing.T) {
	fetchErr := errors.New("boom")

	t.Run("ticker failure", func(t *testing.T) {
		m := &mockMarket{tickerErr: fetchErr}
		_, err := newTestBuilder(t, m).GetSnapshot(context.Background(), "EURUSD")
		assert.ErrorIs(t, err, fetchErr)
	})

	t.Run("kline failure", func(t *testing.T) {
		m := &mockMarket{ticker: &domain.Ticker{Symbol: "EURUSD", LastPrice: 1}, klinesErr: fetchErr}
		_, err := newTestBuilder(t, m).GetSnapshot(context.Background(), "EURUSD")
		assert.ErrorIs(t, err, fetchErr)
	})

	t.Run("too few klines", func(t *testing.T) {
		m := &mockMarket{ticker: &domain.Ticker{Symbol: "EURUSD", LastPrice: 1}, klines: series(1, 2, 3)}
		_, err := newTestBuilder(t, m).GetSnapshot(context.Background(), "EURUSD")
		assert.ErrorIs(t, err, ports.ErrInsufficientData)
	})

	t.Run("no price falls back to last close", func(t *testing.T) {
		m := &mockMarket{ticker: &domain.Ticker{Symbol: "EURUSD"}, klines: series(100, 101, 102, 103, 104, 105)}
		snap, err := newTestBuilder(t, m).GetSnapshot(context.Background(), "EURUSD")
		require.NoError(t, err)
		assert.Equal(t, 105.0, snap.LastPrice)
	})
}
