package domain

import (
	"math"
	"time"
)

// Kline is one candlestick of an instrument, as returned by the exchange.
type Kline struct {
	OpenTime  time.Time
	CloseTime time.Time // Last millisecond of the interval
	Symbol    string
	Interval  string // Venue-native interval, e.g. "15" on Bybit or "15m" on Binance
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	IsFinal   bool // False for the still-forming candle
}

// TrueRange is the Wilder true range of k given the previous close.
// A non-positive prevClose yields the plain high-low range.
func (k Kline) TrueRange(prevClose float64) float64 {
	hl := k.High - k.Low
	if prevClose <= 0 {
		return hl
	}
	return math.Max(hl, math.Max(math.Abs(k.High-prevClose), math.Abs(k.Low-prevClose)))
}
