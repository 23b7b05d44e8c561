package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"quantumFlowBot/internal/domain"
	"quantumFlowBot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements ports.Exchange on Binance USDⓈ-M futures.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	quoteAsset    string

	mu      sync.RWMutex
	filters map[string]symbolFilters
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	QuoteAsset string // defaults to "USDT"
	Logger     ports.Logger
}

type symbolFilters struct {
	tickSize float64
	minQty   float64
	stepSize float64
}

var _ ports.Exchange = (*Client)(nil)

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", ports.Fields{"baseURL": client.BaseURL})

	quote := cfg.QuoteAsset
	if quote == "" {
		quote = "USDT"
	}
	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		quoteAsset:    quote,
		filters:       make(map[string]symbolFilters),
	}, nil
}

// apiErrorCodes maps Binance API error codes to standardized ports errors.
var apiErrorCodes = map[int64]error{
	-1003: ports.ErrRateLimited,          // Too many requests
	-1021: ports.ErrTimeout,              // Timestamp outside of the recvWindow
	-1022: ports.ErrAuthenticationFailed, // Signature not valid
	-1102: ports.ErrInvalidRequest,
	-1111: ports.ErrInvalidRequest, // Precision over the maximum defined
	-1121: ports.ErrInvalidRequest, // Invalid symbol
	-2010: ports.ErrOrderPlacementFailed,
	-2011: ports.ErrOrderCancelFailed,
	-2013: ports.ErrOrderNotFound,
	-2014: ports.ErrInvalidAPIKeys,
	-2015: ports.ErrInvalidAPIKeys,
	-2019: ports.ErrInsufficientFunds, // Margin is insufficient
	-2021: ports.ErrInvalidRequest,    // Order would immediately trigger
	-4003: ports.ErrInvalidRequest,    // Qty not within permissible range
	-4014: ports.ErrInvalidRequest,    // Price not a multiple of tick size
	-4044: ports.ErrPositionNotFound,
	-4047: ports.ErrInsufficientFunds,
}

// mapError translates a Binance failure into the standard ports errors.
func mapError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if mapped, ok := apiErrorCodes[apiErr.Code]; ok {
			return mapped
		}
		return ports.ErrUnknown
	}
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ports.ErrTimeout
	case errors.Is(err, context.Canceled):
		return ports.ErrContextCanceled
	case strings.Contains(msg, "use of closed network connection"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset by peer"):
		return ports.ErrConnectionFailed
	}
	return ports.ErrUnknown
}

// handleError logs err and wraps it with the matching ports error.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	fields := ports.Fields{"operation": operation}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
	}
	c.logger.Error(ctx, err, operation+" failed", fields)
	return fmt.Errorf("%s failed: %w: %w", operation, mapError(err), err)
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetBalance returns the wallet balance of the quote asset.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	op := "GetBalance"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	for _, bal := range account.Assets {
		if bal.Asset != c.quoteAsset {
			continue
		}
		balance, err := strconv.ParseFloat(bal.WalletBalance, 64)
		if err != nil {
			return 0, c.handleError(ctx, fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.WalletBalance, c.quoteAsset, err), op)
		}
		return balance, nil
	}
	return 0, c.handleError(ctx, fmt.Errorf("%w: asset %s not in account", ports.ErrNotFound, c.quoteAsset), op)
}

// GetTicker combines the book ticker with 24h statistics.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	op := "GetTicker"
	books, err := c.futuresClient.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	stats, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(books) == 0 || len(stats) == 0 {
		return nil, c.handleError(ctx, fmt.Errorf("%w: no ticker data for %s", ports.ErrNotFound, symbol), op)
	}
	ticker, err := translateTicker(books[0], stats[0])
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return ticker, nil
}

// GetKlines retrieves the most recent klines for the given symbol, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	interval = binanceInterval(interval)
	binanceKlines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	now := time.Now()
	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval, now)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		domainKlines = append(domainKlines, dk)
	}
	return domainKlines, nil
}

// GetOpenPositions lists non-zero positions with the stops taken from their
// open close-position orders.
func (c *Client) GetOpenPositions(ctx context.Context) ([]domain.OpenPosition, error) {
	op := "GetOpenPositions"
	risks, err := c.futuresClient.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	orders, err := c.futuresClient.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	levels := protectiveLevels(orders)

	positions := make([]domain.OpenPosition, 0, len(risks))
	for _, r := range risks {
		pos, ok := translatePositionRisk(r)
		if !ok {
			continue
		}
		if l, found := levels[pos.Symbol]; found {
			pos.StopLoss = l.stop
			pos.TakeProfit = l.takeProfit
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// SubmitOrder opens a position with a market order, then attaches close-position
// STOP_MARKET and TAKE_PROFIT_MARKET orders.
func (c *Client) SubmitOrder(ctx context.Context, intent domain.OrderIntent) (*ports.OrderResult, error) {
	op := "SubmitOrder"
	if intent.Symbol == "" || intent.Size <= 0 || !intent.Side.Valid() {
		return nil, fmt.Errorf("%s: %w: symbol, side and positive size are required", op, ports.ErrInvalidRequest)
	}
	f := c.cachedFilters(intent.Symbol)

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(intent.Symbol).
		Side(futures.SideType(intent.Side.EntrySide())).
		Type(futures.OrderTypeMarket).
		Quantity(formatStep(intent.Size, f.stepSize)).
		NewClientOrderID(uuid.NewString()).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", ports.Fields{"symbol": intent.Symbol, "side": intent.Side, "size": intent.Size, "orderID": resp.OrderID, "avgPrice": resp.AvgPrice})

	exit := futures.SideType(intent.Side.ExitSide())
	if intent.StopLoss > 0 {
		if _, err := c.placeCloseOrder(ctx, intent.Symbol, exit, futures.OrderTypeStopMarket, formatStep(intent.StopLoss, f.tickSize)); err != nil {
			// The entry is filled; the next cycle sees a position without a stop.
			c.logger.Warn(ctx, op+": stop-loss order failed", ports.Fields{"symbol": intent.Symbol, "stopLoss": intent.StopLoss, "error": err.Error()})
		}
	}
	if intent.TakeProfit > 0 {
		if _, err := c.placeCloseOrder(ctx, intent.Symbol, exit, futures.OrderTypeTakeProfitMarket, formatStep(intent.TakeProfit, f.tickSize)); err != nil {
			c.logger.Warn(ctx, op+": take-profit order failed", ports.Fields{"symbol": intent.Symbol, "takeProfit": intent.TakeProfit, "error": err.Error()})
		}
	}
	return resp, nil
}

// ModifyStop cancels the open STOP_MARKET orders of the symbol and places a new one.
func (c *Client) ModifyStop(ctx context.Context, intent domain.StopIntent) error {
	op := "ModifyStop"
	if intent.Symbol == "" || intent.NewStop <= 0 || !intent.Side.Valid() {
		return fmt.Errorf("%s: %w: symbol, side and positive stop are required", op, ports.ErrInvalidRequest)
	}
	f := c.cachedFilters(intent.Symbol)

	// New stop first so the position is never left unprotected.
	placed, err := c.placeCloseOrder(ctx, intent.Symbol, futures.SideType(intent.Side.ExitSide()), futures.OrderTypeStopMarket, formatStep(intent.NewStop, f.tickSize))
	if err != nil {
		return fmt.Errorf("%w: %w", ports.ErrStopUpdateFailed, err)
	}

	open, err := c.futuresClient.NewListOpenOrdersService().Symbol(intent.Symbol).Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ports.ErrStopUpdateFailed, c.handleError(ctx, err, op))
	}
	for _, o := range open {
		if o.Type != futures.OrderTypeStopMarket || o.OrderID == placed.OrderID {
			continue
		}
		if _, err := c.futuresClient.NewCancelOrderService().Symbol(intent.Symbol).OrderID(o.OrderID).Do(ctx); err != nil {
			c.logger.Warn(ctx, op+": failed to cancel replaced stop", ports.Fields{"symbol": intent.Symbol, "orderID": o.OrderID, "error": err.Error()})
		}
	}
	c.logger.Info(ctx, op+" successful", ports.Fields{"symbol": intent.Symbol, "oldStop": intent.OldStop, "newStop": intent.NewStop, "intent": intent.ID})
	return nil
}

func (c *Client) placeCloseOrder(ctx context.Context, symbol string, side futures.SideType, typ futures.OrderType, stopPrice string) (*futures.CreateOrderResponse, error) {
	op := "Place" + string(typ)
	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(typ).
		StopPrice(stopPrice).
		ClosePosition(true).
		NewClientOrderID(uuid.NewString()).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return order, nil
}

// GetTickSize returns the PRICE_FILTER tick size of a symbol.
func (c *Client) GetTickSize(ctx context.Context, symbol string) (float64, error) {
	f, err := c.symbolFilters(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return f.tickSize, nil
}

// GetMinOrderSize returns the LOT_SIZE minimum quantity of a symbol.
func (c *Client) GetMinOrderSize(ctx context.Context, symbol string) (float64, error) {
	f, err := c.symbolFilters(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return f.minQty, nil
}

func (c *Client) cachedFilters(symbol string) symbolFilters {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filters[symbol]
}

// symbolFilters loads the exchange filters once and caches every symbol.
func (c *Client) symbolFilters(ctx context.Context, symbol string) (symbolFilters, error) {
	c.mu.RLock()
	f, ok := c.filters[symbol]
	c.mu.RUnlock()
	if ok {
		return f, nil
	}

	op := "GetExchangeInfo"
	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return symbolFilters{}, c.handleError(ctx, err, op)
	}
	c.mu.Lock()
	for _, s := range info.Symbols {
		if parsed, ok := translateFilters(s); ok {
			c.filters[s.Symbol] = parsed
		}
	}
	f, ok = c.filters[symbol]
	c.mu.Unlock()
	if !ok {
		return symbolFilters{}, c.handleError(ctx, fmt.Errorf("%w: symbol %s", ports.ErrNotFound, symbol), op)
	}
	return f, nil
}

// --- Translation Helpers ---

func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResult {
	if order == nil {
		return nil
	}
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	origQty, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	return &ports.OrderResult{
		OrderID:       strconv.FormatInt(order.OrderID, 10),
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		AvgPrice:      avgPrice,
		Quantity:      origQty,
		Status:        string(order.Status),
		Timestamp:     time.UnixMilli(order.UpdateTime).UTC(),
	}
}

func translateTicker(book *futures.BookTicker, stats *futures.PriceChangeStats) (*domain.Ticker, error) {
	t := &domain.Ticker{Symbol: book.Symbol}
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"bid price", book.BidPrice, &t.BidPrice},
		{"ask price", book.AskPrice, &t.AskPrice},
		{"last price", stats.LastPrice, &t.LastPrice},
		{"volume", stats.Volume, &t.Volume24h},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %s '%s': %w", f.name, f.raw, err)
		}
		*f.dst = v
	}
	return t, nil
}

// translatePositionRisk converts a position risk row. Rows with a zero amount
// are reported as not open.
func translatePositionRisk(pos *futures.PositionRisk) (domain.OpenPosition, bool) {
	if pos == nil {
		return domain.OpenPosition{}, false
	}
	amt, _ := strconv.ParseFloat(pos.PositionAmt, 64)
	if amt == 0 {
		return domain.OpenPosition{}, false
	}
	side := domain.Long
	if amt < 0 {
		side = domain.Short
		amt = -amt
	}
	entry, _ := strconv.ParseFloat(pos.EntryPrice, 64)
	mark, _ := strconv.ParseFloat(pos.MarkPrice, 64)
	upnl, _ := strconv.ParseFloat(pos.UnRealizedProfit, 64)
	return domain.OpenPosition{
		ID:            domain.PositionKey(pos.Symbol, side),
		Symbol:        pos.Symbol,
		Side:          side,
		Size:          amt,
		EntryPrice:    entry,
		MarkPrice:     mark,
		UnrealizedPNL: upnl,
	}, true
}

type closeLevels struct {
	stop       float64
	takeProfit float64
}

// protectiveLevels collects the stop and take-profit trigger prices of open
// close-position orders per symbol.
func protectiveLevels(orders []*futures.Order) map[string]closeLevels {
	out := make(map[string]closeLevels)
	for _, o := range orders {
		if o == nil {
			continue
		}
		price, err := strconv.ParseFloat(o.StopPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		l := out[o.Symbol]
		switch o.Type {
		case futures.OrderTypeStopMarket:
			l.stop = price
		case futures.OrderTypeTakeProfitMarket:
			l.takeProfit = price
		default:
			continue
		}
		out[o.Symbol] = l
	}
	return out
}

func translateFilters(s futures.Symbol) (symbolFilters, bool) {
	pf := s.PriceFilter()
	lf := s.LotSizeFilter()
	if pf == nil || lf == nil {
		return symbolFilters{}, false
	}
	tick, err := strconv.ParseFloat(pf.TickSize, 64)
	if err != nil || tick <= 0 {
		return symbolFilters{}, false
	}
	minQty, _ := strconv.ParseFloat(lf.MinQuantity, 64)
	step, _ := strconv.ParseFloat(lf.StepSize, 64)
	return symbolFilters{tickSize: tick, minQty: minQty, stepSize: step}, true
}

// translateBinanceKline converts a REST kline. A kline whose close time is still
// in the future relative to now is reported as not final.
func translateBinanceKline(bk *futures.Kline, symbol, interval string, now time.Time) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	raw := [5]string{bk.Open, bk.High, bk.Low, bk.Close, bk.Volume}
	var v [5]float64
	for i, s := range raw {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing kline field %d '%s': %w", i, s, err)
		}
		v[i] = f
	}
	closeTime := time.UnixMilli(bk.CloseTime).UTC()
	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime).UTC(),
		CloseTime: closeTime,
		Symbol:    symbol,
		Interval:  interval,
		Open:      v[0],
		High:      v[1],
		Low:       v[2],
		Close:     v[3],
		Volume:    v[4],
		IsFinal:   !closeTime.After(now),
	}, nil
}

// binanceInterval accepts both Binance ("15m", "1h") and minute-count
// ("15", "60", "D") interval names.
func binanceInterval(interval string) string {
	switch interval {
	case "D":
		return "1d"
	case "W":
		return "1w"
	case "M":
		return "1M"
	}
	minutes, err := strconv.Atoi(interval)
	if err != nil || minutes <= 0 {
		return interval
	}
	switch {
	case minutes%1440 == 0:
		return strconv.Itoa(minutes/1440) + "d"
	case minutes%60 == 0:
		return strconv.Itoa(minutes/60) + "h"
	default:
		return strconv.Itoa(minutes) + "m"
	}
}

// formatStep renders v rounded to the nearest multiple of step.
func formatStep(v, step float64) string {
	d := decimal.NewFromFloat(v)
	if step <= 0 {
		return d.String()
	}
	s := decimal.NewFromFloat(step)
	places := -s.Exponent()
	if places < 0 {
		places = 0
	}
	return d.Div(s).Round(0).Mul(s).StringFixed(places)
}
