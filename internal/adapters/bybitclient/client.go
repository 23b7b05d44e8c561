package bybitclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"quantumFlowBot/internal/domain"
	"quantumFlowBot/internal/ports"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/google/uuid"
)

const (
	// CategoryLinear is the USDT-margined perpetual category.
	CategoryLinear = "linear"
	accountUnified = "UNIFIED"
)

// Bybit return codes the adapter treats specially.
const (
	codeOK                  = 0
	codeInvalidAPIKey       = 10003
	codeInvalidSignature    = 10004
	codePermissionDenied    = 10005
	codeRateLimited         = 10006
	codeInvalidTimestamp    = 10002
	codeOrderNotFound       = 110001
	codeInsufficientBalance = 110007
	codeInvalidQty          = 110020
	codeInvalidPrice        = 110021
	codeNotModified         = 34040
)

// Client implements ports.Exchange on top of the Bybit v5 unified trading API.
type Client struct {
	httpClient *bybit_api.Client
	logger     ports.Logger
	category   string
	quoteAsset string

	mu          sync.RWMutex
	instruments map[string]instrumentRules
}

// Config holds configuration specific to the Bybit client adapter.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	Category   string // defaults to "linear"
	QuoteAsset string // defaults to "USDT"
	Logger     ports.Logger
}

type instrumentRules struct {
	tickSize float64
	minQty   float64
	qtyStep  float64
}

var _ ports.Exchange = (*Client)(nil)

// New creates a new Bybit client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Bybit client")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or APISecret is empty. Client will only work for public endpoints.")
	}
	baseURL := bybit_api.MAINNET
	if cfg.Testnet {
		baseURL = bybit_api.TESTNET
	}
	category := cfg.Category
	if category == "" {
		category = CategoryLinear
	}
	quote := cfg.QuoteAsset
	if quote == "" {
		quote = "USDT"
	}
	cfg.Logger.Info(context.Background(), "Bybit client configured", ports.Fields{"baseURL": baseURL, "category": category})

	return &Client{
		httpClient:  bybit_api.NewBybitHttpClient(cfg.APIKey, cfg.APISecret, bybit_api.WithBaseURL(baseURL)),
		logger:      cfg.Logger,
		category:    category,
		quoteAsset:  quote,
		instruments: make(map[string]instrumentRules),
	}, nil
}

// APIError is a non-zero retCode returned by Bybit.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit API error %d: %s", e.Code, e.Message)
}

// checkResponse turns a non-zero retCode into an *APIError.
func checkResponse(resp *bybit_api.ServerResponse) error {
	if resp == nil {
		return errors.New("empty response")
	}
	if resp.RetCode != codeOK {
		return &APIError{Code: resp.RetCode, Message: resp.RetMsg}
	}
	return nil
}

// mapError translates a Bybit failure into the standard ports errors.
func mapError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeRateLimited:
			return ports.ErrRateLimited
		case codeInvalidTimestamp:
			return ports.ErrTimeout
		case codeInvalidAPIKey, codeInvalidSignature:
			return ports.ErrAuthenticationFailed
		case codePermissionDenied:
			return ports.ErrPermissionDenied
		case codeOrderNotFound:
			return ports.ErrOrderNotFound
		case codeInsufficientBalance:
			return ports.ErrInsufficientFunds
		case codeInvalidQty, codeInvalidPrice:
			return ports.ErrInvalidRequest
		default:
			return ports.ErrUnknown
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ports.ErrTimeout
	case errors.Is(err, context.Canceled):
		return ports.ErrContextCanceled
	case strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"),
		strings.Contains(err.Error(), "no such host"):
		return ports.ErrConnectionFailed
	case strings.Contains(err.Error(), "status code: 5"):
		return ports.ErrExchangeUnavailable
	}
	return ports.ErrUnknown
}

// handleError logs err and wraps it with the matching ports error.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	mapped := mapError(err)
	fields := ports.Fields{"operation": operation}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		fields["retCode"] = apiErr.Code
		fields["retMsg"] = apiErr.Message
	}
	c.logger.Error(ctx, err, operation+" failed", fields)
	return fmt.Errorf("%s failed: %w: %w", operation, mapped, err)
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	resp, err := c.httpClient.NewUtaBybitServiceNoParams().GetServerTime(ctx)
	if err == nil {
		err = checkResponse(resp)
	}
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetBalance returns the wallet balance of the quote asset in the unified account.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	op := "GetBalance"
	params := map[string]interface{}{
		"accountType": accountUnified,
		"coin":        c.quoteAsset,
	}
	resp, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	balance, err := parseWalletBalance(resp, c.quoteAsset)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	return balance, nil
}

// GetTicker returns last, bid, ask and 24h volume for a symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	op := "GetTicker"
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}
	resp, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	ticker, err := parseTicker(resp, symbol)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return ticker, nil
}

// GetKlines returns the most recent klines for a symbol, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"interval": interval,
		"limit":    limit,
	}
	resp, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	klines, err := parseKlines(resp, symbol, interval)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return klines, nil
}

// GetOpenPositions lists the non-empty positions of the configured category.
func (c *Client) GetOpenPositions(ctx context.Context) ([]domain.OpenPosition, error) {
	op := "GetOpenPositions"
	params := map[string]interface{}{
		"category":   c.category,
		"settleCoin": c.quoteAsset,
	}
	resp, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	positions, err := parsePositions(resp)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return positions, nil
}

// SubmitOrder opens a position with a market order carrying its stop-loss and take-profit.
func (c *Client) SubmitOrder(ctx context.Context, intent domain.OrderIntent) (*ports.OrderResult, error) {
	op := "SubmitOrder"
	if intent.Symbol == "" || intent.Size <= 0 || !intent.Side.Valid() {
		return nil, fmt.Errorf("%s: %w: symbol, side and positive size are required", op, ports.ErrInvalidRequest)
	}
	rules := c.cachedRules(intent.Symbol)
	linkID := uuid.NewString()
	params := map[string]interface{}{
		"category":    c.category,
		"symbol":      intent.Symbol,
		"side":        bybitSide(intent.Side),
		"orderType":   "Market",
		"qty":         formatStep(intent.Size, rules.qtyStep),
		"orderLinkId": linkID,
		"positionIdx": 0,
	}
	if intent.StopLoss > 0 {
		params["stopLoss"] = formatStep(intent.StopLoss, rules.tickSize)
	}
	if intent.TakeProfit > 0 {
		params["takeProfit"] = formatStep(intent.TakeProfit, rules.tickSize)
	}
	if intent.StopLoss > 0 || intent.TakeProfit > 0 {
		params["tpslMode"] = "Full"
	}

	resp, err := c.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrOrderPlacementFailed, err), op)
	}
	result, err := parseOrder(resp, intent)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if result.ClientOrderID == "" {
		result.ClientOrderID = linkID
	}
	c.logger.Info(ctx, op+" successful", ports.Fields{
		"symbol":     intent.Symbol,
		"side":       intent.Side,
		"size":       intent.Size,
		"stopLoss":   intent.StopLoss,
		"takeProfit": intent.TakeProfit,
		"orderID":    result.OrderID,
	})
	return result, nil
}

// ModifyStop moves the position's stop-loss through the trading-stop endpoint.
// A "not modified" answer means the stop already sits at the requested price.
func (c *Client) ModifyStop(ctx context.Context, intent domain.StopIntent) error {
	op := "ModifyStop"
	if intent.Symbol == "" || intent.NewStop <= 0 {
		return fmt.Errorf("%s: %w: symbol and positive stop are required", op, ports.ErrInvalidRequest)
	}
	rules := c.cachedRules(intent.Symbol)
	params := map[string]interface{}{
		"category":    c.category,
		"symbol":      intent.Symbol,
		"positionIdx": 0,
		"tpslMode":    "Full",
		"stopLoss":    formatStep(intent.NewStop, rules.tickSize),
	}
	resp, err := c.httpClient.NewUtaBybitServiceWithParams(params).SetPositionTradingStop(ctx)
	if err == nil {
		err = checkResponse(resp)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeNotModified {
		c.logger.Debug(ctx, op+": stop already in place", ports.Fields{"symbol": intent.Symbol, "stop": intent.NewStop})
		return nil
	}
	if err != nil {
		return c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrStopUpdateFailed, err), op)
	}
	c.logger.Info(ctx, op+" successful", ports.Fields{
		"symbol":  intent.Symbol,
		"oldStop": intent.OldStop,
		"newStop": intent.NewStop,
		"intent":  intent.ID,
	})
	return nil
}

// GetTickSize returns the price increment of a symbol.
func (c *Client) GetTickSize(ctx context.Context, symbol string) (float64, error) {
	rules, err := c.rules(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return rules.tickSize, nil
}

// GetMinOrderSize returns the minimum order quantity of a symbol.
func (c *Client) GetMinOrderSize(ctx context.Context, symbol string) (float64, error) {
	rules, err := c.rules(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return rules.minQty, nil
}

func (c *Client) cachedRules(symbol string) instrumentRules {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instruments[symbol]
}

// rules returns the instrument filters of symbol, fetching them once.
func (c *Client) rules(ctx context.Context, symbol string) (instrumentRules, error) {
	c.mu.RLock()
	r, ok := c.instruments[symbol]
	c.mu.RUnlock()
	if ok {
		return r, nil
	}

	op := "GetInstrumentInfo"
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}
	resp, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
	if err != nil {
		return instrumentRules{}, c.handleError(ctx, err, op)
	}
	r, err = parseInstrumentRules(resp, symbol)
	if err != nil {
		return instrumentRules{}, c.handleError(ctx, err, op)
	}

	c.mu.Lock()
	c.instruments[symbol] = r
	c.mu.Unlock()
	return r, nil
}

func bybitSide(side domain.PositionSide) string {
	if side == domain.Short {
		return "Sell"
	}
	return "Buy"
}
