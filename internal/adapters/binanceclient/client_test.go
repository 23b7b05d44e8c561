package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"quantumFlowBot/internal/domain"
	"quantumFlowBot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	c, err := New(Config{Logger: ports.NopLogger{}, UseTestnet: true})
	require.NoError(t, err)
	assert.Equal(t, baseURLTestnet, c.futuresClient.BaseURL)
	assert.Equal(t, "USDT", c.quoteAsset)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rate limit", &common.APIError{Code: -1003, Message: "Too many requests"}, ports.ErrRateLimited},
		{"signature", &common.APIError{Code: -1022}, ports.ErrAuthenticationFailed},
		{"margin", &common.APIError{Code: -2019}, ports.ErrInsufficientFunds},
		{"unknown order", &common.APIError{Code: -2013}, ports.ErrOrderNotFound},
		{"would trigger", &common.APIError{Code: -2021}, ports.ErrInvalidRequest},
		{"unmapped", &common.APIError{Code: -9999}, ports.ErrUnknown},
		{"wrapped", fmt.Errorf("create: %w", &common.APIError{Code: -1021}), ports.ErrTimeout},
		{"deadline", context.DeadlineExceeded, ports.ErrTimeout},
		{"canceled", context.Canceled, ports.ErrContextCanceled},
		{"reset", errors.New("read: connection reset by peer"), ports.ErrConnectionFailed},
		{"other", errors.New("boom"), ports.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}
}

func TestHandleError(t *testing.T) {
	c, err := New(Config{Logger: ports.NopLogger{}})
	require.NoError(t, err)

	orig := &common.APIError{Code: -1003, Message: "Too many requests"}
	wrapped := c.handleError(context.Background(), orig, "GetTicker")
	assert.ErrorIs(t, wrapped, ports.ErrRateLimited)
	var apiErr *common.APIError
	require.ErrorAs(t, wrapped, &apiErr)
	assert.Equal(t, int64(-1003), apiErr.Code)
	assert.NoError(t, c.handleError(context.Background(), nil, "noop"))
}

func TestTranslateTicker(t *testing.T) {
	book := &futures.BookTicker{Symbol: "BTCUSDT", BidPrice: "65000.1", AskPrice: "65000.3"}
	stats := &futures.PriceChangeStats{Symbol: "BTCUSDT", LastPrice: "65000.2", Volume: "1500.5"}

	ticker, err := translateTicker(book, stats)
	require.NoError(t, err)
	assert.Equal(t, domain.Ticker{Symbol: "BTCUSDT", LastPrice: 65000.2, BidPrice: 65000.1, AskPrice: 65000.3, Volume24h: 1500.5}, *ticker)

	stats.Volume = ""
	_, err = translateTicker(book, stats)
	assert.Error(t, err)
}

func TestTranslatePositionRisk(t *testing.T) {
	long, ok := translatePositionRisk(&futures.PositionRisk{
		Symbol: "BTCUSDT", PositionAmt: "0.010", EntryPrice: "64000", MarkPrice: "65000", UnRealizedProfit: "10",
	})
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT:long", long.ID)
	assert.Equal(t, domain.Long, long.Side)
	assert.Equal(t, 0.01, long.Size)
	assert.Equal(t, 10.0, long.UnrealizedPNL)

	short, ok := translatePositionRisk(&futures.PositionRisk{Symbol: "ETHUSDT", PositionAmt: "-0.5", EntryPrice: "3000"})
	require.True(t, ok)
	assert.Equal(t, domain.Short, short.Side)
	assert.Equal(t, 0.5, short.Size)

	_, ok = translatePositionRisk(&futures.PositionRisk{Symbol: "SOLUSDT", PositionAmt: "0"})
	assert.False(t, ok)
	_, ok = translatePositionRisk(nil)
	assert.False(t, ok)
}

func TestProtectiveLevels(t *testing.T) {
	orders := []*futures.Order{
		{Symbol: "BTCUSDT", Type: futures.OrderTypeStopMarket, StopPrice: "63000"},
		{Symbol: "BTCUSDT", Type: futures.OrderTypeTakeProfitMarket, StopPrice: "67000"},
		{Symbol: "ETHUSDT", Type: futures.OrderTypeLimit, StopPrice: "0"},
		nil,
	}
	levels := protectiveLevels(orders)
	require.Contains(t, levels, "BTCUSDT")
	assert.Equal(t, 63000.0, levels["BTCUSDT"].stop)
	assert.Equal(t, 67000.0, levels["BTCUSDT"].takeProfit)
	assert.NotContains(t, levels, "ETHUSDT")
}

func TestTranslateFilters(t *testing.T) {
	s := futures.Symbol{
		Symbol: "BTCUSDT",
		Filters: []map[string]interface{}{
			{"filterType": "PRICE_FILTER", "minPrice": "0.10", "maxPrice": "4529764", "tickSize": "0.10"},
			{"filterType": "LOT_SIZE", "minQty": "0.001", "maxQty": "1000", "stepSize": "0.001"},
		},
	}
	f, ok := translateFilters(s)
	require.True(t, ok)
	assert.Equal(t, symbolFilters{tickSize: 0.1, minQty: 0.001, stepSize: 0.001}, f)

	_, ok = translateFilters(futures.Symbol{Symbol: "X"})
	assert.False(t, ok)
}

func TestTranslateBinanceKline(t *testing.T) {
	open := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	bk := &futures.Kline{
		OpenTime:  open.UnixMilli(),
		CloseTime: open.Add(15*time.Minute - time.Millisecond).UnixMilli(),
		Open:      "100", High: "102", Low: "99", Close: "101", Volume: "10",
	}

	k, err := translateBinanceKline(bk, "BTCUSDT", "15m", open.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, open, k.OpenTime)
	assert.Equal(t, 101.0, k.Close)
	assert.True(t, k.IsFinal)

	k, err = translateBinanceKline(bk, "BTCUSDT", "15m", open.Add(5*time.Minute))
	require.NoError(t, err)
	assert.False(t, k.IsFinal)

	bk.High = "x"
	_, err = translateBinanceKline(bk, "BTCUSDT", "15m", open)
	assert.Error(t, err)
	_, err = translateBinanceKline(nil, "BTCUSDT", "15m", open)
	assert.Error(t, err)
}

func TestBinanceInterval(t *testing.T) {
	tests := map[string]string{
		"15":  "15m",
		"60":  "1h",
		"240": "4h",
		"D":   "1d",
		"1h":  "1h",
		"5m":  "5m",
	}
	for in, want := range tests {
		assert.Equal(t, want, binanceInterval(in), in)
	}
}

func TestTranslateOrderResponse(t *testing.T) {
	assert.Nil(t, translateOrderResponse(nil))
	res := translateOrderResponse(&futures.CreateOrderResponse{
		OrderID: 42, ClientOrderID: "cid", Symbol: "BTCUSDT", AvgPrice: "65000", OrigQuantity: "0.01",
		Status: futures.OrderStatusTypeFilled, UpdateTime: 1700000000000,
	})
	assert.Equal(t, "42", res.OrderID)
	assert.Equal(t, "cid", res.ClientOrderID)
	assert.Equal(t, 65000.0, res.AvgPrice)
	assert.Equal(t, 0.01, res.Quantity)
	assert.Equal(t, "FILLED", res.Status)
}

func TestFormatStep(t *testing.T) {
	assert.Equal(t, "0.012", formatStep(0.0123, 0.001))
	assert.Equal(t, "63000.1", formatStep(63000.12, 0.1))
}

func TestSubmitOrder_RejectsInvalidIntent(t *testing.T) {
	c, err := New(Config{Logger: ports.NopLogger{}})
	require.NoError(t, err)

	_, err = c.SubmitOrder(context.Background(), domain.OrderIntent{Symbol: "BTCUSDT", Side: domain.Long})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
	err = c.ModifyStop(context.Background(), domain.StopIntent{Symbol: "BTCUSDT", Side: domain.Long})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}
