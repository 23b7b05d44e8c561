package bybitclient

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"quantumFlowBot/internal/domain"
	"quantumFlowBot/internal/ports"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"
)

// --- Translation Helpers ---

// decodeResult checks the return code and decodes the result payload into out.
func decodeResult(resp *bybit_api.ServerResponse, out interface{}) error {
	if err := checkResponse(resp); err != nil {
		return err
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}

func parseWalletBalance(resp *bybit_api.ServerResponse, coin string) (float64, error) {
	var result struct {
		List []struct {
			AccountType        string `json:"accountType"`
			TotalWalletBalance string `json:"totalWalletBalance"`
			Coin               []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
				Equity        string `json:"equity"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := decodeResult(resp, &result); err != nil {
		return 0, err
	}
	for _, account := range result.List {
		for _, c := range account.Coin {
			if c.Coin != coin {
				continue
			}
			balance, err := parseNumber(c.WalletBalance)
			if err != nil {
				return 0, fmt.Errorf("could not parse wallet balance %q for %s: %w", c.WalletBalance, coin, err)
			}
			return balance, nil
		}
	}
	return 0, fmt.Errorf("%w: coin %s not found in wallet", ports.ErrNotFound, coin)
}

func parseTicker(resp *bybit_api.ServerResponse, symbol string) (*domain.Ticker, error) {
	var result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
			Bid1Price string `json:"bid1Price"`
			Ask1Price string `json:"ask1Price"`
			Volume24h string `json:"volume24h"`
		} `json:"list"`
	}
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	for _, t := range result.List {
		if t.Symbol != symbol {
			continue
		}
		last, err := parseNumber(t.LastPrice)
		if err != nil {
			return nil, fmt.Errorf("could not parse last price %q: %w", t.LastPrice, err)
		}
		bid, err := parseNumber(t.Bid1Price)
		if err != nil {
			return nil, fmt.Errorf("could not parse bid price %q: %w", t.Bid1Price, err)
		}
		ask, err := parseNumber(t.Ask1Price)
		if err != nil {
			return nil, fmt.Errorf("could not parse ask price %q: %w", t.Ask1Price, err)
		}
		vol, err := parseNumber(t.Volume24h)
		if err != nil {
			return nil, fmt.Errorf("could not parse volume %q: %w", t.Volume24h, err)
		}
		return &domain.Ticker{
			Symbol:    t.Symbol,
			LastPrice: last,
			BidPrice:  bid,
			AskPrice:  ask,
			Volume24h: vol,
		}, nil
	}
	return nil, fmt.Errorf("%w: no ticker data for %s", ports.ErrNotFound, symbol)
}

// parseKlines decodes Bybit kline rows. Bybit returns newest first; the result is oldest first.
func parseKlines(resp *bybit_api.ServerResponse, symbol, interval string) ([]*domain.Kline, error) {
	var result struct {
		List [][]string `json:"list"`
	}
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	step := intervalDuration(interval)
	klines := make([]*domain.Kline, 0, len(result.List))
	for _, row := range result.List {
		// [startTime, open, high, low, close, volume, turnover]
		if len(row) < 6 {
			continue
		}
		start, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing start time %q: %w", row[0], err)
		}
		var values [5]float64
		for i := range values {
			v, err := parseNumber(row[i+1])
			if err != nil {
				return nil, fmt.Errorf("parsing kline field %d %q: %w", i+1, row[i+1], err)
			}
			values[i] = v
		}
		openTime := time.UnixMilli(start).UTC()
		klines = append(klines, &domain.Kline{
			OpenTime:  openTime,
			CloseTime: openTime.Add(step - time.Millisecond),
			Symbol:    symbol,
			Interval:  interval,
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
			IsFinal:   true,
		})
	}
	sort.Slice(klines, func(i, j int) bool { return klines[i].OpenTime.Before(klines[j].OpenTime) })
	if n := len(klines); n > 0 {
		// The newest row is the candle still forming.
		klines[n-1].IsFinal = false
	}
	return klines, nil
}

func parsePositions(resp *bybit_api.ServerResponse) ([]domain.OpenPosition, error) {
	var result struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			Size          string `json:"size"`
			AvgPrice      string `json:"avgPrice"`
			MarkPrice     string `json:"markPrice"`
			StopLoss      string `json:"stopLoss"`
			TakeProfit    string `json:"takeProfit"`
			UnrealisedPnl string `json:"unrealisedPnl"`
		} `json:"list"`
	}
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	positions := make([]domain.OpenPosition, 0, len(result.List))
	for _, p := range result.List {
		size, err := parseNumber(p.Size)
		if err != nil {
			return nil, fmt.Errorf("could not parse size %q for %s: %w", p.Size, p.Symbol, err)
		}
		var side domain.PositionSide
		switch p.Side {
		case "Buy":
			side = domain.Long
		case "Sell":
			side = domain.Short
		default:
			continue
		}
		if size == 0 {
			continue
		}
		entry, err := parseNumber(p.AvgPrice)
		if err != nil {
			return nil, fmt.Errorf("could not parse entry price %q for %s: %w", p.AvgPrice, p.Symbol, err)
		}
		mark, _ := parseNumber(p.MarkPrice)
		stop, _ := parseNumber(p.StopLoss)
		tp, _ := parseNumber(p.TakeProfit)
		upnl, _ := parseNumber(p.UnrealisedPnl)
		positions = append(positions, domain.OpenPosition{
			ID:            domain.PositionKey(p.Symbol, side),
			Symbol:        p.Symbol,
			Side:          side,
			Size:          size,
			EntryPrice:    entry,
			MarkPrice:     mark,
			StopLoss:      stop,
			TakeProfit:    tp,
			UnrealizedPNL: upnl,
		})
	}
	return positions, nil
}

func parseOrder(resp *bybit_api.ServerResponse, intent domain.OrderIntent) (*ports.OrderResult, error) {
	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := decodeResult(resp, &result); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrOrderPlacementFailed, err)
	}
	return &ports.OrderResult{
		OrderID:       result.OrderID,
		ClientOrderID: result.OrderLinkID,
		Symbol:        intent.Symbol,
		Quantity:      intent.Size,
		Status:        "Created",
		Timestamp:     time.Now().UTC(),
	}, nil
}

func parseInstrumentRules(resp *bybit_api.ServerResponse, symbol string) (instrumentRules, error) {
	var result struct {
		List []struct {
			Symbol      string `json:"symbol"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
			LotSizeFilter struct {
				MinOrderQty string `json:"minOrderQty"`
				QtyStep     string `json:"qtyStep"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := decodeResult(resp, &result); err != nil {
		return instrumentRules{}, err
	}
	for _, item := range result.List {
		if item.Symbol != symbol {
			continue
		}
		tick, err := parseNumber(item.PriceFilter.TickSize)
		if err != nil || tick <= 0 {
			return instrumentRules{}, fmt.Errorf("invalid tick size %q for %s", item.PriceFilter.TickSize, symbol)
		}
		minQty, err := parseNumber(item.LotSizeFilter.MinOrderQty)
		if err != nil {
			return instrumentRules{}, fmt.Errorf("invalid min order qty %q for %s: %w", item.LotSizeFilter.MinOrderQty, symbol, err)
		}
		step, _ := parseNumber(item.LotSizeFilter.QtyStep)
		return instrumentRules{tickSize: tick, minQty: minQty, qtyStep: step}, nil
	}
	return instrumentRules{}, fmt.Errorf("%w: instrument %s", ports.ErrNotFound, symbol)
}

// parseNumber parses a Bybit numeric string. Empty strings are zero.
func parseNumber(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// formatStep renders v rounded to the nearest multiple of step, with the
// step's number of decimals. A zero step formats v as is.
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

// intervalDuration maps a Bybit kline interval to its length.
func intervalDuration(interval string) time.Duration {
	switch interval {
	case "D":
		return 24 * time.Hour
	case "W":
		return 7 * 24 * time.Hour
	case "M":
		return 30 * 24 * time.Hour
	}
	minutes, err := strconv.Atoi(interval)
	if err != nil || minutes <= 0 {
		return time.Minute
	}
	return time.Duration(minutes) * time.Minute
}
